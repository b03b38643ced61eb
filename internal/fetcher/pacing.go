package fetcher

import (
	"context"
	"math/rand"
	"time"
)

// Pacer waits a uniformly random duration in [min,max]. Waits are
// context-aware; a cancelled context ends the wait early.
type Pacer struct {
	min, max time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer for the given range. Inverted bounds are swapped.
func NewPacer(min, max time.Duration) *Pacer {
	if min > max {
		min, max = max, min
	}
	return &Pacer{min: min, max: max, sleep: Sleep}
}

// WithSleep replaces the wait function, for tests.
func (p *Pacer) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Pacer {
	p.sleep = fn
	return p
}

// Next returns the next delay without waiting.
func (p *Pacer) Next() time.Duration {
	return UniformDelay(p.min, p.max)
}

// Wait sleeps for the next delay.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.max <= 0 {
		return ctx.Err()
	}
	return p.sleep(ctx, p.Next())
}

// UniformDelay returns a random duration in [min,max].
func UniformDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)+1))
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
