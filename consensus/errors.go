package consensus

import (
	"errors"
)

// Sentinel error kinds surfaced by this package, checked with errors.Is.
// Context is layered on top with github.com/juju/errors (Annotate/Trace) at
// each call site that returns them; the underlying sentinel always remains
// reachable via errors.Is because juju/errors-wrapped errors implement
// Unwrap.
var (
	// ErrNotFound is returned when a metadata record file is missing. Unset
	// optional fields (e.g. pending config) are reported through an ok bool
	// by their accessors instead.
	ErrNotFound = errors.New("consensus: not found")
	// ErrAlreadyPresent is returned by Create when the target record file
	// already exists.
	ErrAlreadyPresent = errors.New("consensus: record already present")
	// ErrInvalidConfig is returned by Flush when the committed config fails
	// structural validation.
	ErrInvalidConfig = errors.New("consensus: invalid configuration")
	// ErrIoError wraps any underlying filesystem failure.
	ErrIoError = errors.New("consensus: io error")
	// ErrCorrupt is returned by Load when the on-disk record fails its CRC
	// check.
	ErrCorrupt = errors.New("consensus: corrupt record")
)
