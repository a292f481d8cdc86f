package pfir

import (
	"fmt"
	"log"
	"time"
)

const (
	calibrationRuns = 32
	// unitDelay is what each half of a calibration bit asks the clock to wait.
	unitDelay = time.Microsecond
	// settlePause separates calibration from the first real frame.
	settlePause = 2000 * time.Microsecond
)

// Emitter sends TimePairs through a Carrier. Every wait is shortened by the
// per-transition overhead measured at construction so that the pulses on
// the air have the widths the protocol asks for.
type Emitter struct {
	carrier    Carrier
	clock      Clock
	correction time.Duration
	trace      *log.Logger
}

// EmitterOption configures optional Emitter behaviour.
type EmitterOption func(*Emitter)

// WithTrace logs every frame sent through SendFrame whose marshaller also
// implements fmt.Stringer. Meant for diagnostics only.
func WithTrace(l *log.Logger) EmitterOption {
	return func(e *Emitter) {
		e.trace = l
	}
}

// NewEmitter calibrates c against clk and returns an Emitter ready to send.
func NewEmitter(c Carrier, clk Clock, opts ...EmitterOption) (*Emitter, error) {
	if c == nil {
		return nil, ErrNoCarrier
	}
	if clk == nil {
		return nil, ErrNoClock
	}
	e := &Emitter{
		carrier: c,
		clock:   clk,
	}
	for _, opt := range opts {
		opt(e)
	}
	c.Off()
	e.correction = Calibrate(c, clk)
	clk.Wait(settlePause)
	return e, nil
}

// Calibrate emits a fixed number of minimal bits and returns how much longer
// than requested each on or off phase took, truncated to whole microseconds.
func Calibrate(c Carrier, clk Clock) time.Duration {
	start := clk.Now()
	for i := 0; i < calibrationRuns; i++ {
		sendPair(c, clk, TimePair{unitDelay, unitDelay})
	}
	elapsed := clk.Now().Sub(start)

	phases := int64(calibrationRuns * 2)
	overhead := (elapsed.Microseconds() - phases*unitDelay.Microseconds()) / phases
	return time.Duration(overhead) * time.Microsecond
}

// Correction is the per-phase overhead subtracted from every wait.
func (e *Emitter) Correction() time.Duration {
	return e.correction
}

func sendPair(c Carrier, clk Clock, pair TimePair) {
	c.On()
	clk.Wait(pair[0])
	c.Off()
	clk.Wait(pair[1])
}

func (e *Emitter) corrected(d time.Duration) time.Duration {
	d -= e.correction
	if d < 0 {
		return 0
	}
	return d
}

func (e *Emitter) SendPair(pair TimePair) {
	sendPair(e.carrier, e.clock, TimePair{e.corrected(pair[0]), e.corrected(pair[1])})
}

func (e *Emitter) SendPairs(pairs ...TimePair) {
	for _, p := range pairs {
		e.SendPair(p)
	}
}

func (e *Emitter) SendFrame(fm FrameMarshaller) {
	e.SendPairs(fm.MarshalFrame()...)
	if e.trace == nil {
		return
	}
	if s, ok := fm.(fmt.Stringer); ok {
		e.trace.Printf("[Emitter] sent %s\r\n", s)
	}
}

func (e *Emitter) SendFrames(fms ...FrameMarshaller) {
	for _, fm := range fms {
		e.SendFrame(fm)
	}
}
