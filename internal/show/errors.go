package show

import "errors"

var (
	// ErrValidation is returned when user input is malformed (e.g. an empty preset name).
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("conflict")

	// ErrNotFound is returned only where a lookup failure is meaningful to the
	// caller. Toggles, preset loads and cue triggers on unknown names are
	// silent no-ops and never return it.
	ErrNotFound = errors.New("not found")

	// ErrExternalService wraps any failure of the AI assistant or speech backend.
	ErrExternalService = errors.New("external service failed")

	// ErrUnavailable is returned when an optional capability is not configured.
	ErrUnavailable = errors.New("capability not configured")
)
