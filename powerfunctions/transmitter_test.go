package powerfunctions

import (
	"bytes"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/sparques/pfir"
	"github.com/sparques/pfir/scheduler"
)

// recorder stands in for an emitter and keeps every datagram it was asked to send.
type recorder struct {
	mu   sync.Mutex
	sent []Datagram
}

func (r *recorder) SendFrame(fm pfir.FrameMarshaller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, fm.(Datagram))
}

func (r *recorder) Sent() []Datagram {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Datagram(nil), r.sent...)
}

func (r *recorder) Clear() {
	r.mu.Lock()
	r.sent = nil
	r.mu.Unlock()
}

func quietConfig() Config {
	return Config{Logger: log.New(io.Discard, "", 0)}
}

func waitFor(c *qt.C, what string, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			c.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSingleOutputModeRepeats(t *testing.T) {
	c := qt.New(t)

	rec := &recorder{}
	tx := NewTransmitter(rec, quietConfig())
	defer tx.Close()

	tx.SingleOutputMode(Channel1, Red, Forward7)
	tx.sched.Wait()
	want := []Datagram{0x8474, 0x8474, 0x8474, 0x8474, 0x8474}
	c.Assert(rec.Sent(), qt.DeepEquals, want)

	// the same command again is a new event: toggle flipped
	rec.Clear()
	tx.SingleOutputMode(Channel1, Red, Forward7)
	tx.sched.Wait()
	c.Assert(rec.Sent(), qt.DeepEquals, []Datagram{0x047C, 0x047C, 0x047C, 0x047C, 0x047C})
}

func TestConfigure(t *testing.T) {
	c := qt.New(t)

	var buf bytes.Buffer
	rec := &recorder{}
	tx := NewTransmitter(rec, Config{Logger: log.New(&buf, "", 0)})
	defer tx.Close()

	tx.Configure(0, 0, 2)
	c.Assert(tx.repeatAfter, qt.Equals, DefaultRepeatCommandAfter)
	c.Assert(tx.repeats, qt.Equals, 2)
	c.Assert(tx.sched.Pause(), qt.Equals, time.Duration(0))

	tx.SingleOutputMode(Channel2, Blue, SetC1)
	tx.sched.Wait()
	c.Assert(rec.Sent(), qt.HasLen, 2)
	c.Assert(buf.String(), qt.Equals, "")

	tx.Configure(2*time.Second, time.Millisecond, 3)
	c.Assert(tx.repeatAfter, qt.Equals, 2*time.Second)
	c.Assert(tx.sched.Pause(), qt.Equals, time.Millisecond)
	c.Assert(strings.Contains(buf.String(), "exceeds the receiver timeout"), qt.IsTrue)
}

func TestComboModeAutoRepeat(t *testing.T) {
	c := qt.New(t)

	rec := &recorder{}
	cfg := quietConfig()
	cfg.RepeatCommandAfter = 5 * time.Millisecond
	cfg.SignalRepeatNumber = 1
	tx := NewTransmitter(rec, cfg)
	defer tx.Close()

	tx.ComboDirectMode(Channel2, DirectForward, DirectFloat)
	c.Assert(tx.repeat.active(Channel2), qt.IsTrue)
	waitFor(c, "three resends", func() bool { return len(rec.Sent()) >= 4 })

	// every resend is the identical datagram, toggle included
	first := rec.Sent()[0]
	c.Assert(first.Command().Toggle(), qt.IsTrue)
	for _, d := range rec.Sent() {
		c.Assert(d, qt.Equals, first)
	}

	// floating both outputs ends the resend loop
	tx.ComboDirectMode(Channel2, DirectFloat, DirectFloat)
	c.Assert(tx.repeat.active(Channel2), qt.IsFalse)
	tx.sched.Wait()
	stop := NewDatagram(ComboDirect(Channel2, DirectFloat, DirectFloat))
	waitFor(c, "stop datagram", func() bool {
		sent := rec.Sent()
		return sent[len(sent)-1] == stop
	})
	n := len(rec.Sent())
	time.Sleep(30 * time.Millisecond)
	c.Assert(rec.Sent(), qt.HasLen, n)
}

func TestNeutralCommandsDoNotRepeat(t *testing.T) {
	c := qt.New(t)

	tests := []struct {
		name    string
		send    func(tx *Transmitter, ch Channel)
		repeats bool
	}{
		{"direct float", func(tx *Transmitter, ch Channel) { tx.ComboDirectMode(ch, DirectFloat, DirectFloat) }, false},
		{"direct brake", func(tx *Transmitter, ch Channel) { tx.ComboDirectMode(ch, DirectBrakeThenFloat, DirectBrakeThenFloat) }, false},
		{"direct forward", func(tx *Transmitter, ch Channel) { tx.ComboDirectMode(ch, DirectForward, DirectFloat) }, true},
		{"direct float/brake", func(tx *Transmitter, ch Channel) { tx.ComboDirectMode(ch, DirectFloat, DirectBrakeThenFloat) }, true},
		{"pwm float", func(tx *Transmitter, ch Channel) { tx.ComboPWMMode(ch, PWMFloat, PWMFloat) }, false},
		{"pwm brake", func(tx *Transmitter, ch Channel) { tx.ComboPWMMode(ch, PWMBrakeThenFloat, PWMBrakeThenFloat) }, false},
		{"pwm forward", func(tx *Transmitter, ch Channel) { tx.ComboPWMMode(ch, PWMForward1, PWMForward1) }, true},
		{"pwm backward", func(tx *Transmitter, ch Channel) { tx.ComboPWMMode(ch, PWMFloat, PWMBackward7) }, true},
	}
	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			tx := NewTransmitter(&recorder{}, quietConfig())
			defer tx.Close()
			tt.send(tx, Channel3)
			c.Assert(tx.repeat.active(Channel3), qt.Equals, tt.repeats)
		})
	}
}

func TestNewCommandReplacesRepeat(t *testing.T) {
	c := qt.New(t)

	rec := &recorder{}
	cfg := quietConfig()
	cfg.RepeatCommandAfter = 20 * time.Millisecond
	cfg.SignalRepeatNumber = 1
	tx := NewTransmitter(rec, cfg)
	defer tx.Close()

	tx.ComboPWMMode(Channel1, PWMForward7, PWMForward7)
	tx.ComboPWMMode(Channel4, PWMBackward3, PWMFloat)
	tx.ComboPWMMode(Channel1, PWMForward2, PWMForward2)
	c.Assert(tx.repeat.active(Channel1), qt.IsTrue)
	c.Assert(tx.repeat.active(Channel4), qt.IsTrue)

	// the first channel 1 command went out once and was never resent
	first := NewDatagram(ComboPWM(Channel1, PWMForward7, PWMForward7) | toggleBit)
	second := NewDatagram(ComboPWM(Channel1, PWMForward2, PWMForward2))
	waitFor(c, "resends of the replacement", func() bool {
		count := 0
		for _, d := range rec.Sent() {
			if d == second {
				count++
			}
		}
		return count >= 3
	})
	count := 0
	for _, d := range rec.Sent() {
		if d == first {
			count++
		}
	}
	c.Assert(count, qt.Equals, 1)

	// a single output command on the channel stops the loop too
	tx.SingleOutputMode(Channel1, Blue, Float)
	c.Assert(tx.repeat.active(Channel1), qt.IsFalse)
	c.Assert(tx.repeat.active(Channel4), qt.IsTrue)
}

func TestCloseStopsEverything(t *testing.T) {
	c := qt.New(t)

	rec := &recorder{}
	cfg := quietConfig()
	cfg.RepeatCommandAfter = 5 * time.Millisecond
	tx := NewTransmitter(rec, cfg)

	for ch := Channel1; ch <= Channel4; ch++ {
		tx.ComboDirectMode(ch, DirectBackward, DirectBackward)
	}
	tx.Close()
	for ch := Channel1; ch <= Channel4; ch++ {
		c.Assert(tx.repeat.active(ch), qt.IsFalse)
	}
	c.Assert(tx.sched.Len(), qt.Equals, 0)
	c.Assert(len(rec.Sent()) >= 4*DefaultSignalRepeatNumber, qt.IsTrue)
}

func TestConcurrentChannelsKeepDatagramsWhole(t *testing.T) {
	c := qt.New(t)

	rec := &recorder{}
	tx := NewTransmitter(rec, quietConfig())
	defer tx.Close()

	var wg sync.WaitGroup
	for ch := Channel1; ch <= Channel4; ch++ {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()
			tx.SingleOutputMode(ch, Red, Forward3)
			tx.SingleOutputMode(ch, Blue, Backward3)
		}(ch)
	}
	wg.Wait()
	tx.sched.Wait()

	sent := rec.Sent()
	c.Assert(sent, qt.HasLen, 4*2*DefaultSignalRepeatNumber)
	counts := map[Datagram]int{}
	for _, d := range sent {
		c.Assert(d.Valid(), qt.IsTrue)
		counts[d]++
	}
	c.Assert(counts, qt.HasLen, 8)
	for d, n := range counts {
		c.Assert(n, qt.Equals, DefaultSignalRepeatNumber, qt.Commentf("%s", d))
	}
}

func TestConnectWithoutCarrier(t *testing.T) {
	c := qt.New(t)

	_, err := Connect(nil, quietConfig())
	c.Assert(err, qt.ErrorIs, pfir.ErrNoCarrier)
}

// loopback records the carrier against real time closely enough for the
// decoder to read most repeats back.
type loopback struct {
	mu    sync.Mutex
	edges []time.Time
}

func (l *loopback) On() {
	l.mu.Lock()
	l.edges = append(l.edges, time.Now())
	l.mu.Unlock()
}

func (l *loopback) Off() {
	l.mu.Lock()
	if len(l.edges)%2 == 1 {
		l.edges = append(l.edges, time.Now())
	}
	l.mu.Unlock()
}

func TestConnectLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("busy waits through a full transmission")
	}
	c := qt.New(t)

	lb := &loopback{}
	var buf bytes.Buffer
	cfg := Config{Debug: true, Logger: log.New(&buf, "", 0)}
	tx, err := Connect(lb, cfg)
	c.Assert(err, qt.IsNil)

	tx.SingleOutputMode(Channel2, Blue, Forward1)
	tx.Close()

	var got []Datagram
	sm := NewStateMachine(func(d Datagram) { got = append(got, d) })
	lb.mu.Lock()
	edges := lb.edges
	lb.mu.Unlock()
	for i := 0; i+2 < len(edges); i += 2 {
		sm.HandleTimePair(pfir.TimePair{edges[i+1].Sub(edges[i]), edges[i+2].Sub(edges[i+1])})
	}
	want := NewDatagram(SingleOutput(Channel2, Blue, Forward1) | toggleBit)
	c.Assert(got, qt.Contains, want)
	c.Assert(strings.Contains(buf.String(), "[Emitter] sent "+want.String()), qt.IsTrue)
}

// gatedRecorder holds the first frame until release is closed.
type gatedRecorder struct {
	recorder
	once    sync.Once
	first   chan struct{}
	release chan struct{}
}

func newGatedRecorder() *gatedRecorder {
	return &gatedRecorder{first: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedRecorder) SendFrame(fm pfir.FrameMarshaller) {
	g.once.Do(func() {
		close(g.first)
		<-g.release
	})
	g.recorder.SendFrame(fm)
}

func TestStepAfterMixableCommandKeepsOrder(t *testing.T) {
	c := qt.New(t)

	rec := newGatedRecorder()
	// always pick the last candidate so a queued step would cut in
	tx := NewTransmitter(rec, quietConfig(), scheduler.WithIntn(func(n int) int { return n - 1 }))
	defer tx.Close()

	tx.SingleOutputMode(Channel1, Red, ToggleC1)
	<-rec.first

	done := make(chan struct{})
	go func() {
		tx.SingleOutputMode(Channel1, Red, IncrementNumericalPWM)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	c.Assert(tx.sched.Len(), qt.Equals, DefaultSignalRepeatNumber)

	close(rec.release)
	<-done
	tx.sched.Wait()

	toggle := NewDatagram(SingleOutput(Channel1, Red, ToggleC1) | toggleBit)
	step := NewDatagram(SingleOutput(Channel1, Red, IncrementNumericalPWM))
	c.Assert(toggle.Command().Tag(), qt.Equals, step.Command().Tag())
	var want []Datagram
	for i := 0; i < DefaultSignalRepeatNumber; i++ {
		want = append(want, toggle)
	}
	for i := 0; i < DefaultSignalRepeatNumber; i++ {
		want = append(want, step)
	}
	c.Assert(rec.Sent(), qt.DeepEquals, want)
}

func TestResendLoopFollowsLastCommand(t *testing.T) {
	c := qt.New(t)

	rec := &recorder{}
	cfg := quietConfig()
	cfg.RepeatCommandAfter = time.Second
	cfg.SignalRepeatNumber = 1
	tx := NewTransmitter(rec, cfg)
	defer tx.Close()

	for i := 0; i < 50; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			tx.ComboDirectMode(Channel3, DirectForward, DirectBackward)
		}()
		go func() {
			defer wg.Done()
			tx.SingleOutputMode(Channel3, Blue, IncrementNumericalPWM)
		}()
		wg.Wait()
		tx.sched.Wait()

		sent := rec.Sent()
		c.Assert(sent, qt.HasLen, 2)
		lastIsCombo := sent[1].Command().Mode() == ModeComboDirect
		c.Assert(tx.repeat.active(Channel3), qt.Equals, lastIsCombo, qt.Commentf("round %d", i))

		tx.repeat.cancel(Channel3)
		rec.Clear()
	}
}
