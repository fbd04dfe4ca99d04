package api

import (
	"github.com/artpar/rackmarket/internal/core/catalog"
)

// =============================================================================
// Request Types
// =============================================================================

// ProvisionRequest is the POST /api/provision request body.
type ProvisionRequest struct {
	Provider       string `json:"provider"`
	OfferingID     string `json:"offering_id"`
	Type           string `json:"type"`
	Period         string `json:"period"`
	ExtraStorageGB int    `json:"extra_storage_gb,omitempty"`
	OwnerTag       string `json:"owner_tag"`
}

// ResetRequest is the POST /api/reset request body.
type ResetRequest struct {
	Handle   string `json:"deployment_handle"`
	OwnerTag string `json:"owner_tag"`
}

// =============================================================================
// Response Types
// =============================================================================

// CatalogResponse is the aggregated offering listing.
type CatalogResponse struct {
	Offerings []catalog.Offering `json:"offerings"`
	Count     int                `json:"count"`
	Providers []string           `json:"providers"`
}

// OfferingsResponse is one provider's offering listing.
type OfferingsResponse struct {
	Provider  string             `json:"provider"`
	Offerings []catalog.Offering `json:"offerings"`
	Count     int                `json:"count"`
}

// StorageOptionsResponse is one provider's add-on volume listing.
type StorageOptionsResponse struct {
	Provider string                  `json:"provider"`
	Options  []catalog.StorageOption `json:"options"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
