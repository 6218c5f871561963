package proxy

import "errors"

var (
	// ErrMalformed marks a vendor payload that could not be interpreted.
	// Fetch functions wrap it so the degraded badge reads "invalid".
	ErrMalformed = errors.New("malformed vendor payload")

	// ErrVendorPanic is reported when a fetch function panics.
	ErrVendorPanic = errors.New("vendor fetch panicked")
)
