//go:build tinygo

package pfir

import (
	. "machine"
	"time"
)

// RxDevice timestamps the edges of a demodulating IR receiver and hands
// complete mark/space pairs to an RxStateMachine. Receivers of this kind idle
// high and pull the line low while they see the carrier.
type RxDevice struct {
	pin          Pin
	markStart    time.Time
	mark         time.Duration
	stateMachine RxStateMachine
}

func NewRxDevice(pin Pin, rsm RxStateMachine) *RxDevice {
	// the most common receivers have a pull up pin builtin
	pin.Configure(PinConfig{Mode: PinInput})
	return &RxDevice{
		pin:          pin,
		stateMachine: rsm,
	}
}

func (rx *RxDevice) interruptHandler(interruptPin Pin) {
	now := time.Now()
	if interruptPin.Get() {
		// carrier gone; the mark is over
		rx.mark = now.Sub(rx.markStart)
		return
	}
	// a new mark closes the previous pair
	if !rx.markStart.IsZero() {
		rx.stateMachine.HandleTimePair(TimePair{rx.mark, now.Sub(rx.markStart) - rx.mark})
	}
	rx.markStart = now
}

// Start sets the interrupt handler and thus starts processing signals.
func (rx *RxDevice) Start() {
	rx.pin.SetInterrupt(PinFalling|PinRising, rx.interruptHandler)
}

// Stop disables the interrupt handler.
func (rx *RxDevice) Stop() {
	rx.pin.SetInterrupt(PinFalling|PinRising, nil)
}
