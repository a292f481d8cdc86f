package powerfunctions

import (
	"strings"
	"time"

	"github.com/sparques/pfir"
)

// Pulse widths, mark to mark. A mark is 6 cycles of the 38kHz carrier.
const (
	markTime      = 158 * time.Microsecond
	lowBitTime    = 421 * time.Microsecond
	highBitTime   = 711 * time.Microsecond
	startStopTime = 1184 * time.Microsecond
)

var (
	startPair = pfir.TimePair{markTime, startStopTime - markTime}
	zeroPair  = pfir.TimePair{markTime, lowBitTime - markTime}
	onePair   = pfir.TimePair{markTime, highBitTime - markTime}
)

// FramePairs is the number of TimePairs in every frame: start, 16 bits, stop.
const FramePairs = 18

// Datagram is a Command with its toggle bit applied, shifted up a nibble,
// with the LRC in the low nibble.
type Datagram uint16

// LRC is the checksum of a 12 bit command.
func LRC(raw Command) uint16 {
	return 0xF ^ uint16(raw>>8&0xF) ^ uint16(raw>>4&0xF) ^ uint16(raw&0xF)
}

func NewDatagram(raw Command) Datagram {
	raw &= commandMask
	return Datagram(uint16(raw)<<4 | LRC(raw))
}

// Command returns the 12 bits in front of the checksum.
func (d Datagram) Command() Command {
	return Command(d >> 4)
}

// Checksum is the LRC nibble as transmitted.
func (d Datagram) Checksum() uint16 {
	return uint16(d & 0xF)
}

// Valid reports whether the transmitted checksum matches the command.
func (d Datagram) Valid() bool {
	return d.Checksum() == LRC(d.Command())
}

// MarshalFrame implements pfir.FrameMarshaller.
func (d Datagram) MarshalFrame() []pfir.TimePair {
	out := make([]pfir.TimePair, FramePairs)
	out[0] = startPair
	for bit := 0; bit < 16; bit++ {
		if d>>(15-bit)&1 == 1 {
			out[bit+1] = onePair
		} else {
			out[bit+1] = zeroPair
		}
	}
	// stop is timed exactly like start
	out[17] = startPair
	return out
}

// String renders the bits MSB first in nibbles, e.g. 1000_0001_0111_0110.
func (d Datagram) String() string {
	var sb strings.Builder
	for bit := 15; bit >= 0; bit-- {
		if d>>bit&1 == 1 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
		if bit%4 == 0 && bit != 0 {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
