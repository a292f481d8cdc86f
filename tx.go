//go:build tinygo

package pfir

import (
	"fmt"
	. "machine"

	"github.com/sparques/pwm"
)

// PWMCarrier generates the 38kHz carrier with a hardware PWM channel. The
// pin must be wired to the IR LED driver.
type PWMCarrier struct {
	pin    Pin
	pgroup pwm.Group
	ch     uint8
	duty   uint32
}

func NewPWMCarrier(pin Pin) (*PWMCarrier, error) {
	pin.Configure(PinConfig{Mode: PinPWM})
	pgroup := pwm.Get(pin)
	pgroup.Configure(PWMConfig{Period: uint64(1e9) / uint64(Freq38Khz)})
	ch, err := pgroup.Channel(pin)
	if err != nil {
		return nil, fmt.Errorf("pwm channel for pin %d: %w", pin, err)
	}
	pgroup.Set(ch, 0)
	return &PWMCarrier{
		pin:    pin,
		pgroup: pgroup,
		ch:     ch,
		duty:   pgroup.Top() / 2,
	}, nil
}

func (c *PWMCarrier) On() {
	c.pgroup.Set(c.ch, c.duty)
}

func (c *PWMCarrier) Off() {
	c.pgroup.Set(c.ch, 0)
}

// NewTxDevice is a convenience for the common case: a PWM carrier on pin,
// timed by a SpinClock.
func NewTxDevice(pin Pin, opts ...EmitterOption) (*Emitter, error) {
	c, err := NewPWMCarrier(pin)
	if err != nil {
		return nil, err
	}
	return NewEmitter(c, SpinClock{}, opts...)
}
