package device

import (
	"context"
	"time"
)

// Clock abstracts time so polling and hold loops can be tested instantly.
type Clock interface {
	Now() time.Time

	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock uses the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FakeClock advances only when slept on.
type FakeClock struct {
	now    time.Time
	Sleeps []time.Duration
}

// NewFakeClock creates a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Sleeps = append(c.Sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Elapsed returns the total time slept.
func (c *FakeClock) Elapsed() time.Duration {
	var total time.Duration
	for _, d := range c.Sleeps {
		total += d
	}
	return total
}
