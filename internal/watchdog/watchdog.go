// Package watchdog provides the supervisory watchdog that resets the board
// if the scheduling loop or a feedback poll stops making progress.
package watchdog

import "time"

// Feeder is the part of a watchdog a long-running operation needs.
type Feeder interface {
	// Feed postpones the forced reset by one timeout.
	Feed() error
}

// Watchdog is an armed supervisory timer.
type Watchdog interface {
	Feeder

	// Arm sets the reset timeout.
	Arm(timeout time.Duration) error

	// Close disarms the watchdog where the driver allows it.
	Close() error
}

// Nop is used when no watchdog device is configured.
type Nop struct{}

func (Nop) Feed() error { return nil }
func (Nop) Arm(time.Duration) error { return nil }
func (Nop) Close() error { return nil }
