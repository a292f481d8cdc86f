package powerfunctions

import (
	"time"

	"github.com/sparques/pfir"
)

// Decision boundaries halfway between the nominal mark-to-mark times.
const (
	zeroOneBoundary   = (lowBitTime + highBitTime) / 2
	oneStartBoundary  = (highBitTime + startStopTime) / 2
	startIdleBoundary = 2 * startStopTime
)

// StateMachine implements pfir.RxStateMachine and decodes Power Functions
// frames. Only datagrams with a good checksum reach the handler.
type StateMachine struct {
	CmdHandler func(Datagram)

	buf      uint16
	bitcount int
	synced   bool
}

func NewStateMachine(cmdHandler func(Datagram)) *StateMachine {
	return &StateMachine{CmdHandler: cmdHandler}
}

// HandleTimePair implements the pfir.RxStateMachine interface
func (sm *StateMachine) HandleTimePair(pair pfir.TimePair) {
	total := pair.Total()
	switch {
	case total > startIdleBoundary:
		// idle line, e.g. between two bursts of repeats
		sm.synced = false
		return
	case total > oneStartBoundary:
		// start, or a stop that doubles as the next start
		sm.buf = 0
		sm.bitcount = 0
		sm.synced = true
		return
	case !sm.synced:
		return
	}

	sm.buf <<= 1
	if total > zeroOneBoundary {
		sm.buf |= 1
	}
	sm.bitcount++

	if sm.bitcount < 16 {
		return
	}
	sm.synced = false
	d := Datagram(sm.buf)
	if d.Valid() && sm.CmdHandler != nil {
		sm.CmdHandler(d)
	}
}

// Timeout is how long a receiver keeps a combo mode output running after the
// last datagram it decoded.
const Timeout = 1200 * time.Millisecond
