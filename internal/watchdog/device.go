//go:build linux

package watchdog

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultPath is the kernel watchdog device.
const DefaultPath = "/dev/watchdog"

// Device is a Linux kernel watchdog. Opening the device starts it.
type Device struct {
	f *os.File
}

// Open opens the watchdog device. The kernel starts the timer immediately.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open watchdog: %w", err)
	}
	return &Device{f: f}, nil
}

// Arm sets the timeout, rounded up to whole seconds.
func (d *Device) Arm(timeout time.Duration) error {
	secs := int((timeout + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	if err := unix.IoctlSetPointerInt(int(d.f.Fd()), unix.WDIOC_SETTIMEOUT, secs); err != nil {
		return fmt.Errorf("set watchdog timeout %ds: %w", secs, err)
	}
	return nil
}

// Feed sends a keepalive.
func (d *Device) Feed() error {
	if _, err := unix.IoctlGetInt(int(d.f.Fd()), unix.WDIOC_KEEPALIVE); err != nil {
		return fmt.Errorf("feed watchdog: %w", err)
	}
	return nil
}

// Close writes the magic character so drivers without nowayout stop the
// timer, then closes the device.
func (d *Device) Close() error {
	if _, err := d.f.Write([]byte("V")); err != nil {
		d.f.Close()
		return fmt.Errorf("disarm watchdog: %w", err)
	}
	return d.f.Close()
}
