package wake

import (
	"sync"
	"time"
)

// FakeTimer is a test double fired by hand.
// Safe for use from the test goroutine while the loop runs in another.
type FakeTimer struct {
	mu     sync.Mutex
	armed  bool
	arms   []time.Duration
	c      chan struct{}
	armedC chan struct{}
}

// NewFakeTimer creates a disarmed fake timer.
func NewFakeTimer() *FakeTimer {
	return &FakeTimer{
		c:      make(chan struct{}, 1),
		armedC: make(chan struct{}, 1),
	}
}

func (f *FakeTimer) Arm(period time.Duration) {
	f.mu.Lock()
	f.armed = true
	f.arms = append(f.arms, period)
	f.mu.Unlock()
	notify(f.armedC)
}

func (f *FakeTimer) Disarm() {
	f.mu.Lock()
	f.armed = false
	f.mu.Unlock()
	drain(f.c)
}

func (f *FakeTimer) C() <-chan struct{} {
	return f.c
}

// Fire delivers a notification if the timer is armed and disarms it, like a
// one-shot hardware interrupt. Returns false if it was not armed.
func (f *FakeTimer) Fire() bool {
	f.mu.Lock()
	armed := f.armed
	f.armed = false
	f.mu.Unlock()
	if !armed {
		return false
	}
	notify(f.c)
	return true
}

// WaitArmed blocks until the next call to Arm.
func (f *FakeTimer) WaitArmed() {
	<-f.armedC
}

// Tick waits for the loop to arm the timer and then fires it.
func (f *FakeTimer) Tick() {
	f.WaitArmed()
	f.Fire()
}

// Arms returns the periods passed to Arm, in order.
func (f *FakeTimer) Arms() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.arms...)
}
