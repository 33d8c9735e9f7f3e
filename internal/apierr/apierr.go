// Package apierr defines the error taxonomy shared across providers, stores
// and the REST surface, so handlers can map a single well-known error to an
// HTTP status without string-matching.
package apierr

import "errors"

// Sentinel errors for the core taxonomy. Wrap with fmt.Errorf("...: %w", Err)
// to add context while keeping errors.Is matching intact.
var (
	ErrInvalidInterval  = errors.New("invalid_interval")
	ErrUnknownProvider  = errors.New("unknown_provider")
	ErrUnknownSymbol    = errors.New("unknown_symbol")
	ErrNotConnected     = errors.New("not_connected")
	ErrNotFound         = errors.New("not_found")
	ErrTransportFailure = errors.New("transport_failure")
	ErrInvalidArgument  = errors.New("invalid_argument")
)

// Code identifies which sentinel (if any) an error wraps, for REST mapping.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInterval):
		return "invalid_interval"
	case errors.Is(err, ErrUnknownProvider):
		return "unknown_provider"
	case errors.Is(err, ErrUnknownSymbol):
		return "unknown_symbol"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransportFailure):
		return "transport_failure"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return ""
	}
}

// HTTPStatus maps a taxonomy error to its REST status code: not_found is 404,
// the other listed taxonomy errors are 400, and any unmapped error is 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrNotConnected),
		errors.Is(err, ErrInvalidInterval),
		errors.Is(err, ErrUnknownProvider),
		errors.Is(err, ErrUnknownSymbol),
		errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrTransportFailure):
		return 400
	default:
		return 500
	}
}
