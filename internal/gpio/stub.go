//go:build !linux

package gpio

import "errors"

// CdevPort is not available on non-Linux platforms.
type CdevPort struct{}

// NewCdevPort returns an error on non-Linux platforms.
func NewCdevPort(cfg Config) (*CdevPort, error) {
	return nil, errors.New("gpio: character device not supported on this platform (requires Linux)")
}

func (p *CdevPort) Press(b Button) error {
	return errors.New("gpio: not supported")
}

func (p *CdevPort) Release(b Button) error {
	return errors.New("gpio: not supported")
}

func (p *CdevPort) Feedback() (Level, error) {
	return Unpowered, errors.New("gpio: not supported")
}

func (p *CdevPort) SetIndicator(on bool) error {
	return errors.New("gpio: not supported")
}

func (p *CdevPort) Close() error {
	return nil
}
