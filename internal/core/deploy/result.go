package deploy

import "github.com/artpar/rackmarket/internal/core/apierr"

// ProvisionResult is the outcome of a provisioning call. Every failure
// path is represented as data so callers can render it without exception
// handling. Handle is set as soon as the provider resource exists, even
// on failure, so the caller is never left with an orphaned, untracked
// machine.
type ProvisionResult struct {
	OK        bool               `json:"ok"`
	IPAddress string             `json:"ip_address,omitempty"`
	Handle    string             `json:"deployment_handle,omitempty"`
	Error     *apierr.Classified `json:"error,omitempty"`
}

// ProvisionSuccess builds a successful result.
func ProvisionSuccess(ipAddress string, handle Handle) ProvisionResult {
	return ProvisionResult{
		OK:        true,
		IPAddress: ipAddress,
		Handle:    handle.String(),
	}
}

// ProvisionFailure builds a failed result. handle may be empty when the
// failure happened before any resource was created.
func ProvisionFailure(handle string, err error) ProvisionResult {
	classified := apierr.Classify(err)
	return ProvisionResult{
		OK:     false,
		Handle: handle,
		Error:  &classified,
	}
}

// ResetResult is the outcome of a reset call.
type ResetResult struct {
	OK    bool               `json:"ok"`
	Error *apierr.Classified `json:"error,omitempty"`
}

// ResetSuccess builds a successful reset result.
func ResetSuccess() ResetResult {
	return ResetResult{OK: true}
}

// ResetFailure builds a failed reset result.
func ResetFailure(err error) ResetResult {
	classified := apierr.Classify(err)
	return ResetResult{OK: false, Error: &classified}
}
