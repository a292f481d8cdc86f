package pfir

import "time"

const (
	// Freq38Khz is the carrier frequency Power Functions receivers demodulate.
	Freq38Khz = 38000
)

// TimePair encodes two durations: how long the carrier is on, then how long it is off.
type TimePair [2]time.Duration

// Total is the mark-to-mark length of the pair.
func (p TimePair) Total() time.Duration {
	return p[0] + p[1]
}

// FrameMarshaller is anything that can be put on the air as a sequence of
// mark/space pairs, such as a Power Functions datagram.
type FrameMarshaller interface {
	MarshalFrame() []TimePair
}

// Carrier is the hardware primitive behind an Emitter. On drives the IR LED
// with the modulated carrier, Off stops it. Both must return as fast as the
// hardware allows; whatever latency they do have is measured by Calibrate.
type Carrier interface {
	On()
	Off()
}

// Clock supplies the time base for pulse emission. Wait must not yield for
// long; sleeping schedulers are far too coarse for 158us marks.
type Clock interface {
	Now() time.Time
	Wait(d time.Duration)
}

// RxStateMachine consumes demodulated pulses as they arrive, one mark and
// the space that followed it at a time.
type RxStateMachine interface {
	HandleTimePair(TimePair)
}
