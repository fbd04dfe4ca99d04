// Package deploy contains the pure types shared by the provisioning and
// reset workflows: the deployment handle codec, the bootstrap payload,
// and the result values returned to callers.
package deploy

import (
	"fmt"
	"net"
	"strings"
)

// handleSeparator joins provider name and resource path in the wire form
// of a deployment handle.
const handleSeparator = "::"

// Handle identifies a previously provisioned machine: which provider
// owns it and the provider-relative resource path to reach it again
// (for example "compute/12345"). It carries no ownership semantics;
// ownership is tracked entirely by the provider account behind the
// caller's credential.
type Handle struct {
	Provider     string
	ResourcePath string
}

// String renders the opaque wire form "{provider}::{resourcePath}".
func (h Handle) String() string {
	return h.Provider + handleSeparator + h.ResourcePath
}

// ParseHandle decodes the wire form of a deployment handle. Parse once
// at the boundary and pass the typed value around; never re-split the
// string at use sites.
func ParseHandle(s string) (Handle, error) {
	provider, path, ok := strings.Cut(s, handleSeparator)
	if !ok || provider == "" || path == "" {
		return Handle{}, fmt.Errorf("malformed deployment handle %q: want {provider}%s{resourcePath}", s, handleSeparator)
	}
	return Handle{Provider: provider, ResourcePath: path}, nil
}

// ValidAddress reports whether an address terminates the provisioning
// poll loop. Providers return "" or "0.0.0.0" as placeholders while the
// real address is still being assigned; only a syntactically valid,
// non-placeholder IP counts.
func ValidAddress(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && !ip.IsUnspecified()
}
