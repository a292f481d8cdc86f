/*
Package powerfunctions implements the LEGO Power Functions infrared protocol
on top of a pfir.Emitter.

# Datagram

Every message is 16 bits sent most significant bit first:

	TECC aMMO DDDD LLLL

	T    toggle bit, flipped for every new command on a channel
	E    escape; 1 selects combo PWM mode
	CC   channel 1-4 as 0-3
	a    address bit, always 0 here
	MMO  mode, and for single output mode the PWM/CST select and output
	DDDD data
	LLLL LRC = 0xF ^ nibble1 ^ nibble2 ^ nibble3

In combo PWM mode the second and third nibbles carry the blue and red
speeds instead of mode and data.

# Timing

A bit is a 6 cycle (158us) burst of 38kHz carrier followed by a pause. The
distance from one burst to the next decides the meaning: 421us is a 0, 711us
is a 1, 1184us is a start or stop. A frame is start, 16 bits, stop.

# Timeouts

Receivers float their outputs when combo mode commands stop arriving for
about a second. Transmitter therefore keeps resending held combo commands.
*/
package powerfunctions

// Channel addresses one of four receivers. The printed channel numbers on
// LEGO hardware are one higher.
type Channel uint8

const (
	Channel1 Channel = iota
	Channel2
	Channel3
	Channel4
)

// Output selects one of the two ports of a receiver.
type Output uint8

const (
	Red Output = iota
	Blue
)

// Mode identifies which of the protocol's command layouts a Command uses.
type Mode uint8

const (
	ModeExtended Mode = iota
	ModeComboDirect
	ModeSingleOutput
	ModeComboPWM
)

func (m Mode) String() string {
	switch m {
	case ModeComboDirect:
		return "combo direct"
	case ModeSingleOutput:
		return "single output"
	case ModeComboPWM:
		return "combo pwm"
	default:
		return "extended"
	}
}

// SingleOp is a single output mode operation. The value holds the mode bits
// as well as the data nibble, so it can be or'ed straight into a Command.
type SingleOp uint8

// PWM operations.
const (
	Float SingleOp = 0b100_0000 + iota
	Forward1
	Forward2
	Forward3
	Forward4
	Forward5
	Forward6
	Forward7
	BrakeThenFloat
	Backward7
	Backward6
	Backward5
	Backward4
	Backward3
	Backward2
	Backward1
)

// Clear/set/toggle operations.
const (
	ToggleFullForward SingleOp = 0b110_0000 + iota
	ToggleDirection
	IncrementNumericalPWM
	DecrementNumericalPWM
	IncrementPWM
	DecrementPWM
	FullForward
	FullBackward
	ToggleFullForwardBackward
	ClearC1
	SetC1
	ToggleC1
	ClearC2
	SetC2
	ToggleC2
	ToggleFullBackward
)

// DirectState is one output's state in combo direct mode.
type DirectState uint8

const (
	DirectFloat DirectState = iota
	DirectForward
	DirectBackward
	DirectBrakeThenFloat
)

// PWMSpeed is one output's speed step in combo PWM mode.
type PWMSpeed uint8

const (
	PWMFloat PWMSpeed = iota
	PWMForward1
	PWMForward2
	PWMForward3
	PWMForward4
	PWMForward5
	PWMForward6
	PWMForward7
	PWMBrakeThenFloat
	PWMBackward7
	PWMBackward6
	PWMBackward5
	PWMBackward4
	PWMBackward3
	PWMBackward2
	PWMBackward1
)

const (
	toggleBit   = 1 << 11
	escapeBit   = 1 << 10
	channelMask = 0b11 << 8
	commandMask = 0x0FFF

	comboDirectMode  = 0b0001_0000
	singleOutputMode = 0b0100_0000
	singleModeMask   = 0b0111_0000
)

// Command is the 12 bits of a datagram that precede the checksum, before the
// toggle bit is applied.
type Command uint16

// SingleOutput controls one output of ch with op.
func SingleOutput(ch Channel, out Output, op SingleOp) Command {
	return Command(uint16(ch&3)<<8 | uint16(op&0x7F) | uint16(out&1)<<4)
}

// ComboDirect sets both outputs of ch at once.
func ComboDirect(ch Channel, red, blue DirectState) Command {
	cmd := uint16(blue&3)<<2 | uint16(red&3)
	return Command(uint16(ch&3)<<8 | comboDirectMode | cmd)
}

// ComboPWM sets the speed of both outputs of ch at once.
func ComboPWM(ch Channel, red, blue PWMSpeed) Command {
	cmd := uint16(blue&0xF)<<4 | uint16(red&0xF)
	return Command(uint16(0b0100|ch&3)<<8 | cmd)
}

func (c Command) Channel() Channel {
	return Channel(c & channelMask >> 8)
}

// Toggle reports whether the toggle bit is set.
func (c Command) Toggle() bool {
	return c&toggleBit != 0
}

func (c Command) Mode() Mode {
	switch {
	case c&escapeBit != 0:
		return ModeComboPWM
	case c&singleOutputMode != 0:
		return ModeSingleOutput
	case c&singleModeMask == comboDirectMode:
		return ModeComboDirect
	default:
		return ModeExtended
	}
}

// Tag groups commands that must not be on the air interleaved: the same
// channel, mode and, in single output mode, output and PWM/CST select.
// The toggle bit and the payload are left out.
func (c Command) Tag() uint16 {
	if c.Mode() == ModeComboPWM {
		return uint16(c&(escapeBit|channelMask)) >> 4
	}
	return uint16(c&(commandMask&^toggleBit)) >> 4
}

// Mixable reports whether the command may be interleaved with other queued
// commands. The numerical PWM steps are relative; the receiver has to see
// them in the order they were issued.
func (c Command) Mixable() bool {
	if c.Mode() != ModeSingleOutput {
		return false
	}
	switch SingleOp(c & 0x7F &^ 0b1_0000) {
	case IncrementNumericalPWM, DecrementNumericalPWM:
		return false
	}
	return true
}

// Neutral reports whether a combo command leaves both outputs in a state that
// does not need refreshing: both floating, or both braked then floating.
func (c Command) Neutral() bool {
	switch c.Mode() {
	case ModeComboDirect:
		red, blue := DirectState(c&3), DirectState(c>>2&3)
		return red == blue && (red == DirectFloat || red == DirectBrakeThenFloat)
	case ModeComboPWM:
		red, blue := PWMSpeed(c&0xF), PWMSpeed(c>>4&0xF)
		return red == blue && (red == PWMFloat || red == PWMBrakeThenFloat)
	}
	return false
}
