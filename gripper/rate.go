package gripper

import (
	"context"
	"time"
)

// rate paces a loop to a fixed period, absorbing the time spent between sleeps.
type rate struct {
	period time.Duration
	next   time.Time
}

func newRate(period time.Duration) *rate {
	return &rate{
		period: period,
		next:   time.Now().Add(period),
	}
}

func periodFor(hz float64) time.Duration {
	return time.Duration(float64(time.Second) / hz)
}

// sleep blocks until the next tick boundary. It returns false without waiting out
// the tick when ctx is done or wake fires.
func (r *rate) sleep(ctx context.Context, wake <-chan struct{}) bool {
	now := time.Now()
	d := r.next.Sub(now)
	if d <= 0 {
		// more than a full period behind, start counting again from now
		if -d > r.period {
			r.next = now.Add(r.period)
		} else {
			r.next = r.next.Add(r.period)
		}
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-wake:
		return false
	case <-timer.C:
		r.next = r.next.Add(r.period)
		return true
	}
}
