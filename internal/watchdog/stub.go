//go:build !linux

package watchdog

import (
	"errors"
	"time"
)

// DefaultPath is the kernel watchdog device.
const DefaultPath = "/dev/watchdog"

// Device is not available on non-Linux platforms.
type Device struct{}

// Open returns an error on non-Linux platforms.
func Open(path string) (*Device, error) {
	return nil, errors.New("watchdog: not supported on this platform (requires Linux)")
}

func (d *Device) Arm(time.Duration) error { return errors.New("watchdog: not supported") }
func (d *Device) Feed() error { return errors.New("watchdog: not supported") }
func (d *Device) Close() error { return nil }
