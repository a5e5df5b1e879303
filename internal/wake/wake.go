// Package wake provides the periodic wake timer that paces the scheduling
// loop. A firing is an edge-triggered notification with no payload; at most
// one is ever pending.
package wake

import (
	"sync"
	"time"
)

// Timer is a one-shot wake source that the loop re-arms before every wait.
type Timer interface {
	// Arm schedules one firing after period, replacing any earlier arming.
	Arm(period time.Duration)

	// Disarm cancels a pending firing and discards an unconsumed notification.
	Disarm()

	// C delivers notifications.
	C() <-chan struct{}
}

// RealTimer fires from a runtime timer.
type RealTimer struct {
	mu  sync.Mutex
	t   *time.Timer
	gen uint64
	c   chan struct{}
}

// NewTimer creates a disarmed timer.
func NewTimer() *RealTimer {
	return &RealTimer{c: make(chan struct{}, 1)}
}

func (r *RealTimer) Arm(period time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t != nil {
		r.t.Stop()
	}
	r.gen++
	gen := r.gen
	r.t = time.AfterFunc(period, func() { r.fire(gen) })
}

// fire disables the timer and posts a notification. It never re-arms.
// A callback from a superseded or disarmed arming is dropped.
func (r *RealTimer) fire(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.gen || r.t == nil {
		return
	}
	r.t = nil
	notify(r.c)
}

func (r *RealTimer) Disarm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t != nil {
		r.t.Stop()
		r.t = nil
	}
	drain(r.c)
}

func (r *RealTimer) C() <-chan struct{} {
	return r.c
}

// notify posts without blocking; a pending notification absorbs the new one.
func notify(c chan struct{}) {
	select {
	case c <- struct{}{}:
	default:
	}
}

func drain(c chan struct{}) {
	select {
	case <-c:
	default:
	}
}
