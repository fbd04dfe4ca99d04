// Package apierr turns heterogeneous provider error payloads into one
// uniform error description. Classification is total: any input maps to
// a Classified value, never a panic or a raised error.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/artpar/rackmarket/internal/core/poll"
)

// Kind is the uniform error taxonomy shared by provisioning and reset.
type Kind string

const (
	// KindValidation marks malformed input: an undecodable offering id,
	// a missing required field, an unknown provider.
	KindValidation Kind = "validation"

	// KindProviderAPI marks a non-2xx response from a provider call.
	KindProviderAPI Kind = "provider_api"

	// KindCurrencyService marks an exchange-rate lookup failure.
	KindCurrencyService Kind = "currency_service"

	// KindTimeout marks a readiness poll that exceeded its deadline.
	KindTimeout Kind = "timeout"

	// KindUnknown is the fallback for everything else.
	KindUnknown Kind = "unknown"
)

// unknownMessage is the fallback when no extraction strategy matches.
const unknownMessage = "An unknown error has occurred."

// ErrCurrencyService is the sentinel wrapped by exchange-rate lookup
// failures so they classify as KindCurrencyService.
var ErrCurrencyService = errors.New("currency service unavailable")

// Classified is a uniform {kind, message} error description.
type Classified struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// ValidationError marks malformed caller input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ProviderError is a non-2xx response from a provider API call. Body
// holds the raw response payload, whose error envelope shape varies by
// provider.
type ProviderError struct {
	Provider string
	Status   int
	Body     []byte
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API returned status %d", e.Provider, e.Status)
}

// Classify maps any error to a Classified description. It never panics
// and never returns an empty message.
func Classify(err error) Classified {
	if err == nil {
		return Classified{Kind: KindUnknown, Message: unknownMessage}
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return Classified{Kind: KindValidation, Message: valErr.Message}
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		msg, ok := MessageFromPayload(provErr.Body)
		if !ok {
			msg = provErr.Error()
		}
		return Classified{Kind: KindProviderAPI, Message: msg}
	}

	if errors.Is(err, ErrCurrencyService) {
		return Classified{Kind: KindCurrencyService, Message: err.Error()}
	}

	if errors.Is(err, poll.ErrTimeout) {
		return Classified{Kind: KindTimeout, Message: err.Error()}
	}

	if msg := err.Error(); msg != "" {
		return Classified{Kind: KindUnknown, Message: msg}
	}
	return Classified{Kind: KindUnknown, Message: unknownMessage}
}

// MessageFromPayload extracts a human-readable message from a raw
// provider error payload. Providers disagree on envelope shape, so a
// prioritized sequence of strategies is tried: a structured "message",
// then "description", then "error", then the first element of an error
// array. Both a top-level envelope {"error": ...} and a bare object are
// accepted.
func MessageFromPayload(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", false
	}

	if obj, ok := doc.(map[string]any); ok {
		if inner, ok := obj["error"]; ok {
			if msg, ok := messageFromValue(inner); ok {
				return msg, true
			}
		}
		return messageFromValue(obj)
	}
	return messageFromValue(doc)
}

func messageFromValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		if val != "" {
			return val, true
		}
	case []any:
		if len(val) > 0 {
			if s, ok := val[0].(string); ok && s != "" {
				return s, true
			}
		}
	case map[string]any:
		for _, key := range []string{"message", "description", "error"} {
			if s, ok := val[key].(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}
