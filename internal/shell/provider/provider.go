// Package provider implements catalog and lifecycle adapters for the
// supported server-rental providers. This is part of the Imperative
// Shell - handles I/O with provider APIs.
package provider

import (
	"context"

	"github.com/artpar/rackmarket/internal/core/catalog"
)

// Credential is a caller-supplied provider API credential. It is passed
// through per call and never stored.
type Credential string

// Machine is a provider resource as seen during provisioning.
// ResourcePath is provider-relative (e.g. "compute/12345") and becomes
// the resource half of the deployment handle. IPAddress may be a
// placeholder ("", "0.0.0.0") until the provider finishes assignment.
type Machine struct {
	ResourcePath string
	IPAddress    string
}

// PowerState is a machine power status as reported by a provider.
type PowerState string

const (
	PowerOn  PowerState = "ON"
	PowerOff PowerState = "OFF"
)

// CreateRequest carries everything needed to order one machine.
type CreateRequest struct {
	// ProductKey and RegionKey are the provider-specific keys decoded
	// from the offering id.
	ProductKey string
	RegionKey  string

	// Type selects the provider's VPS or bare-metal surface where they
	// differ.
	Type catalog.MachineType

	// Period is the billing period for the order.
	Period catalog.Period

	// Hostname for the new machine.
	Hostname string

	// Bootstrap is the cloud-config payload injected via the provider's
	// user-data mechanism.
	Bootstrap string
}

// Catalog is the capability every provider adapter has: fetching its
// normalized offering list. Implementations page through the provider's
// listing endpoints sequentially and cross-reference region data; any
// unrecoverable error is returned to the registry, which degrades it to
// an empty contribution.
type Catalog interface {
	// Name is the canonical provider name used in offering records and
	// deployment handles.
	Name() string

	FetchOfferings(ctx context.Context, cred Credential) ([]catalog.Offering, error)
}

// StorageCatalog lists a provider's add-on volume products.
type StorageCatalog interface {
	FetchStorageOptions(ctx context.Context, cred Credential) ([]catalog.StorageOption, error)
}

// Provisioner creates machines and reports their current state. Not all
// providers expose an ordering API usable with a bare customer
// credential; those satisfy only Catalog.
type Provisioner interface {
	// CreateMachine places the order. Every call creates a new billable
	// resource; creation is deliberately not idempotent.
	CreateMachine(ctx context.Context, cred Credential, req CreateRequest) (Machine, error)

	// GetMachine fetches the machine's current state for address polling.
	GetMachine(ctx context.Context, cred Credential, resourcePath string) (Machine, error)
}

// StorageAttacher attaches an add-on volume to an existing machine.
type StorageAttacher interface {
	AttachStorage(ctx context.Context, cred Credential, resourcePath string, sizeGB int) error
}

// Reimager forces reinstallation of a machine's OS with a fresh
// bootstrap payload. Destructive: wipes all data on the machine.
type Reimager interface {
	Reimage(ctx context.Context, cred Credential, resourcePath, bootstrap string) error
}

// PowerCycler is implemented by providers that require an explicit
// power-off before reimaging. Providers without it are reimaged
// directly.
type PowerCycler interface {
	Shutdown(ctx context.Context, cred Credential, resourcePath string) error
	GetPowerState(ctx context.Context, cred Credential, resourcePath string) (PowerState, error)
}
