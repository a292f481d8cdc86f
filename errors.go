package pfir

import "errors"

var (
	// ErrNoCarrier is returned when an Emitter is built without an output to drive.
	ErrNoCarrier = errors.New("pfir: no carrier")
	// ErrNoClock is returned when an Emitter is built without a time base.
	ErrNoClock = errors.New("pfir: no clock")
)
