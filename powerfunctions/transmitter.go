package powerfunctions

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sparques/pfir"
	"github.com/sparques/pfir/scheduler"
)

const (
	DefaultRepeatCommandAfter = 500 * time.Millisecond
	DefaultSignalRepeatNumber = 5
)

// Config is used to configure a Transmitter.
type Config struct {
	// RepeatCommandAfter is the period at which held combo commands are
	// resent. Zero means DefaultRepeatCommandAfter.
	RepeatCommandAfter time.Duration
	// AfterSignalPause is left idle after every datagram.
	AfterSignalPause time.Duration
	// SignalRepeatNumber is how many times each command is sent. Zero means
	// DefaultSignalRepeatNumber.
	SignalRepeatNumber int
	// Debug logs every datagram as it is queued and as it is sent.
	Debug bool
	// Logger receives diagnostics. Nil means log.Default().
	Logger *log.Logger
}

func (cfg *Config) setDefaults() {
	if cfg.RepeatCommandAfter <= 0 {
		cfg.RepeatCommandAfter = DefaultRepeatCommandAfter
	}
	if cfg.SignalRepeatNumber <= 0 {
		cfg.SignalRepeatNumber = DefaultSignalRepeatNumber
	}
	if cfg.AfterSignalPause < 0 {
		cfg.AfterSignalPause = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
}

// Sender puts a frame on the air. *pfir.Emitter is the usual implementation.
type Sender interface {
	SendFrame(pfir.FrameMarshaller)
}

// Transmitter turns Power Functions commands into datagrams on one emitter.
// It is safe for concurrent use; independent Transmitters share no state.
type Transmitter struct {
	sender Sender
	sched  *scheduler.Scheduler
	toggle *ToggleState
	repeat repeater
	log    *log.Logger
	debug  bool

	// held from cancelling a channel's resend loop until its next command
	// is queued and, for combo commands, its new loop is running
	chmu [4]sync.Mutex

	mu          sync.Mutex
	repeatAfter time.Duration
	repeats     int
}

// Connect calibrates an emitter on c and returns a Transmitter driving it.
// It must be called before any command is sent.
func Connect(c pfir.Carrier, cfg Config) (*Transmitter, error) {
	cfg.setDefaults()
	var opts []pfir.EmitterOption
	if cfg.Debug {
		opts = append(opts, pfir.WithTrace(cfg.Logger))
	}
	e, err := pfir.NewEmitter(c, pfir.SpinClock{}, opts...)
	if err != nil {
		return nil, fmt.Errorf("powerfunctions: connect: %w", err)
	}
	if cfg.Debug {
		cfg.Logger.Printf("[Transmitter] emitter calibrated, correction %v\r\n", e.Correction())
	}
	return NewTransmitter(e, cfg), nil
}

// NewTransmitter returns a Transmitter that sends through s.
func NewTransmitter(s Sender, cfg Config, opts ...scheduler.Option) *Transmitter {
	cfg.setDefaults()
	opts = append([]scheduler.Option{scheduler.WithPause(cfg.AfterSignalPause)}, opts...)
	return &Transmitter{
		sender:      s,
		sched:       scheduler.New(opts...),
		toggle:      NewToggleState(),
		log:         cfg.Logger,
		debug:       cfg.Debug,
		repeatAfter: cfg.RepeatCommandAfter,
		repeats:     cfg.SignalRepeatNumber,
	}
}

// Configure adjusts the resend period of held combo commands, the pause after
// every datagram and how many times each command is sent. Resend loops that
// are already running keep their period until replaced.
func (t *Transmitter) Configure(repeatCommandAfter, afterSignalPause time.Duration, signalRepeatNumber int) {
	cfg := Config{
		RepeatCommandAfter: repeatCommandAfter,
		AfterSignalPause:   afterSignalPause,
		SignalRepeatNumber: signalRepeatNumber,
		Logger:             t.log,
	}
	cfg.setDefaults()
	if cfg.RepeatCommandAfter >= Timeout {
		t.log.Printf("[Transmitter] repeat period %v exceeds the receiver timeout of %v\r\n", cfg.RepeatCommandAfter, Timeout)
	}

	t.mu.Lock()
	t.repeatAfter = cfg.RepeatCommandAfter
	t.repeats = cfg.SignalRepeatNumber
	t.mu.Unlock()
	t.sched.SetPause(cfg.AfterSignalPause)
}

// SingleOutputMode sends op to one output of ch. It stops any combo command
// being held on ch.
func (t *Transmitter) SingleOutputMode(ch Channel, out Output, op SingleOp) {
	cmd := SingleOutput(ch, out, op)
	ch = cmd.Channel()
	t.chmu[ch].Lock()
	defer t.chmu[ch].Unlock()
	t.repeat.cancel(ch)
	t.send(t.toggle.Apply(cmd), cmd.Mixable())
}

// ComboDirectMode sets both outputs of ch and keeps resending the command
// until another command for ch arrives, unless both outputs were set to
// float or to brake.
func (t *Transmitter) ComboDirectMode(ch Channel, red, blue DirectState) {
	t.combo(ComboDirect(ch, red, blue))
}

// ComboPWMMode sets the speed of both outputs of ch and keeps resending the
// command until another command for ch arrives, unless both outputs were set
// to float or to brake.
func (t *Transmitter) ComboPWMMode(ch Channel, red, blue PWMSpeed) {
	t.combo(ComboPWM(ch, red, blue))
}

func (t *Transmitter) combo(cmd Command) {
	ch := cmd.Channel()
	t.chmu[ch].Lock()
	defer t.chmu[ch].Unlock()
	t.repeat.cancel(ch)
	cmd = t.toggle.Apply(cmd)
	t.send(cmd, false)
	if cmd.Neutral() {
		return
	}

	t.mu.Lock()
	period := t.repeatAfter
	t.mu.Unlock()
	t.repeat.start(ch, period, func() {
		t.send(cmd, false)
	})
}

// send queues the configured number of transmissions of cmd, which must
// already carry its toggle bit. Combo tags never collide with single output
// tags, so a resend loop's send does not wait on the scheduler.
func (t *Transmitter) send(cmd Command, mix bool) {
	t.mu.Lock()
	n := t.repeats
	t.mu.Unlock()

	d := NewDatagram(cmd)
	if t.debug {
		t.log.Printf("[Transmitter] queue ch=%d %s %s x%d\r\n", cmd.Channel()+1, cmd.Mode(), d, n)
	}
	t.sched.Submit(cmd.Tag(), mix, n, func() {
		t.sender.SendFrame(d)
	})
}

// Close stops every resend loop and waits until queued datagrams are sent.
func (t *Transmitter) Close() {
	t.repeat.cancelAll()
	t.sched.Wait()
}
