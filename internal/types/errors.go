// internal/types/errors.go
package types

import "errors"

// Error taxonomy for ingestion. Permanent errors abort the current
// job/batch immediately; transient errors consume retry budget under
// backoff. Wrap these with fmt.Errorf("...: %w", err) so callers can
// classify with errors.Is.
var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrJobTimeout          = errors.New("job poll retry budget exhausted")
	ErrTransport           = errors.New("transport error")
)

// IsPermanent reports whether err should abort immediately rather than
// consume retry budget. Retrying an auth or malformed-request failure
// wastes the entire backoff budget and delays the real report by
// minutes.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !IsPermanent(err)
}
