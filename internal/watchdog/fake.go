package watchdog

import "time"

// Fake records watchdog use for test assertions.
type Fake struct {
	// Timeout is the last value passed to Arm.
	Timeout time.Duration

	// Feeds counts calls to Feed.
	Feeds int

	// FeedError, if set, will be returned by Feed (the feed is still counted).
	FeedError error

	// Closed tracks if Close was called.
	Closed bool
}

func (f *Fake) Arm(timeout time.Duration) error {
	f.Timeout = timeout
	return nil
}

func (f *Fake) Feed() error {
	f.Feeds++
	return f.FeedError
}

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}
