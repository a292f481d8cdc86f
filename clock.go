package pfir

import "time"

// SpinClock busy-waits on time.Now. Timing accuracy matters more than
// yielding while a frame is on the air, and a frame is at most ~16ms long.
type SpinClock struct{}

func (SpinClock) Now() time.Time { return time.Now() }

func (SpinClock) Wait(d time.Duration) {
	if d <= 0 {
		return
	}
	start := time.Now()
	for time.Since(start) < d {
	}
}
