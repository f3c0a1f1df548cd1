package domain

import "errors"

// Adapter failure kinds. Adapters wrap these so callers can classify a
// failure with errors.Is regardless of which provider produced it.
var (
	// ErrProviderUnavailable marks network-level failures reaching an
	// upstream provider. Retryable by the caller.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderRequestFailed marks upstream responses that are not usable
	// (unexpected status, undecodable payload). Retryable by the caller.
	ErrProviderRequestFailed = errors.New("provider request failed")

	// ErrContentNotFound means the provider does not know the content id.
	ErrContentNotFound = errors.New("subtitle content not found")

	// ErrFeatureNotFound means a catalog cross-reference lookup came up empty.
	ErrFeatureNotFound = errors.New("feature not found in provider catalog")

	// ErrAuthenticationFailed marks login/credential failures. Not retryable
	// without operator intervention.
	ErrAuthenticationFailed = errors.New("provider authentication failed")
)
