package provider

import "errors"

// Error kinds of the authorization protocol. Handlers translate these to
// OAuth wire errors; nothing below the handler layer speaks HTTP.
var (
	ErrInvalidClient      = errors.New("invalid client")
	ErrInvalidRedirectURI = errors.New("invalid redirect URI")
	ErrInvalidScope       = errors.New("invalid scope")
	ErrInvalidGrant       = errors.New("invalid grant")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrNotFound           = errors.New("not found")

	// ErrStoreUnavailable marks transient persistence failures. Validation
	// failures are deterministic and terminal; this one the caller may
	// retry with backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
)
