package powerfunctions

import "sync"

// ToggleState holds the toggle bit of every channel. A receiver that has just
// been powered on only accepts a command with the toggle bit set, so every
// channel starts at 1.
type ToggleState struct {
	mu   sync.Mutex
	bits [4]uint16
}

func NewToggleState() *ToggleState {
	return &ToggleState{bits: [4]uint16{1, 1, 1, 1}}
}

// Apply sets cmd's toggle bit to the channel's current value and flips the
// stored value for the next command. Call it once per logical command;
// repeats of that command must reuse the result.
func (ts *ToggleState) Apply(cmd Command) Command {
	ch := cmd.Channel()
	ts.mu.Lock()
	bit := ts.bits[ch]
	ts.bits[ch] ^= 1
	ts.mu.Unlock()
	return Command(bit<<11) | cmd&^toggleBit
}
