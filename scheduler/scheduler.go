// Package scheduler serializes transmissions onto a single emitter.
//
// Callers Submit units of work; one worker goroutine, started on demand and
// gone again once the queue is empty, runs them one at a time. Units that
// allow mixing are picked in random order so that a long burst for one
// receiver does not hold back another. Units sharing a tag are never queued
// together when either of them mixes, because two interleaved datagrams for
// the same output could be read as a third command nobody sent.
package scheduler

import (
	"math/rand"
	"sync"
	"time"
)

// Task is one unit of queued work, normally a single datagram transmission.
type Task struct {
	// Tag identifies tasks that must not be interleaved with each other.
	Tag uint16
	// Mix allows the worker to run this task out of submission order.
	Mix bool
	Run func()
}

type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Task
	running bool
	pause   time.Duration

	intn  func(n int) int
	sleep func(time.Duration)
}

type Option func(*Scheduler)

// WithIntn replaces the random source used to pick mixed tasks. intn(n) must
// return a value in [0,n).
func WithIntn(intn func(n int) int) Option {
	return func(s *Scheduler) {
		s.intn = intn
	}
}

// WithPause sets the gap the worker leaves after every task.
func WithPause(d time.Duration) Option {
	return func(s *Scheduler) {
		s.pause = d
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		intn:  rand.Intn,
		sleep: time.Sleep,
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPause changes the gap left after every task. It takes effect from the
// next task on.
func (s *Scheduler) SetPause(d time.Duration) {
	s.mu.Lock()
	s.pause = d
	s.mu.Unlock()
}

// Pause returns the current gap left after every task.
func (s *Scheduler) Pause() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pause
}

// Len returns the number of tasks waiting or running.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Submit queues n tasks that each call run. With mix set, Submit first waits
// until no task with the same tag is queued, then lets the worker pick the new
// tasks in any order. Without mix the tasks run in submission order, after
// waiting out any queued mixing task with the same tag.
func (s *Scheduler) Submit(tag uint16, mix bool, n int, run func()) {
	if n <= 0 || run == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.conflictLocked(tag, mix) {
		s.cond.Wait()
	}
	for i := 0; i < n; i++ {
		s.queue = append(s.queue, Task{Tag: tag, Mix: mix, Run: run})
	}
	if !s.running {
		s.running = true
		go s.work()
	}
}

// Wait blocks until the queue is empty and the worker has stopped.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	for s.running {
		s.cond.Wait()
	}
	s.mu.Unlock()
}

// conflictLocked reports whether a submission with tag could be interleaved
// with a queued task of the same tag.
func (s *Scheduler) conflictLocked(tag uint16, mix bool) bool {
	for _, t := range s.queue {
		if t.Tag == tag && (mix || t.Mix) {
			return true
		}
	}
	return false
}

// nextLocked picks the index of the task to run next. Tasks without Mix keep
// their relative order: only the first of them is a candidate.
func (s *Scheduler) nextLocked() int {
	if !s.queue[0].Mix {
		return 0
	}
	candidates := make([]int, 0, len(s.queue))
	fifo := false
	for i, t := range s.queue {
		if t.Mix {
			candidates = append(candidates, i)
		} else if !fifo {
			candidates = append(candidates, i)
			fifo = true
		}
	}
	return candidates[s.intn(len(candidates))]
}

func (s *Scheduler) work() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.cond.Broadcast()
			s.mu.Unlock()
			return
		}
		i := s.nextLocked()
		task := s.queue[i]
		s.mu.Unlock()

		// the task stays queued while it runs so that conflicting
		// submissions keep waiting
		task.Run()

		s.mu.Lock()
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		pause := s.pause
		s.cond.Broadcast()
		s.mu.Unlock()

		if pause > 0 {
			s.sleep(pause)
		}
	}
}
