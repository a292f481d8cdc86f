package powerfunctions

import (
	"sync"
	"time"
)

type loop struct {
	stop chan struct{}
	done chan struct{}
}

// repeater keeps at most one resend loop per channel alive. A loop is
// stopped by closing its stop channel; it closes done on the way out.
type repeater struct {
	mu    sync.Mutex
	loops [4]*loop
}

// start replaces the channel's loop with one that calls fn every period.
func (r *repeater) start(ch Channel, period time.Duration, fn func()) {
	l := &loop{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	r.mu.Lock()
	r.stopLocked(ch)
	r.loops[ch] = l
	r.mu.Unlock()

	go func() {
		defer close(l.done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// cancel stops the channel's loop. Once it returns the old command will not
// be queued again.
func (r *repeater) cancel(ch Channel) {
	r.mu.Lock()
	r.stopLocked(ch)
	r.mu.Unlock()
}

func (r *repeater) cancelAll() {
	r.mu.Lock()
	for ch := range r.loops {
		r.stopLocked(Channel(ch))
	}
	r.mu.Unlock()
}

func (r *repeater) active(ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loops[ch] != nil
}

// stopLocked must not be reached from fn, which may still be running.
func (r *repeater) stopLocked(ch Channel) {
	l := r.loops[ch]
	if l == nil {
		return
	}
	close(l.stop)
	<-l.done
	r.loops[ch] = nil
}
