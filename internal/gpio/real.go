//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// CdevPort drives the messenger through the Linux GPIO character device.
type CdevPort struct {
	cfg      Config
	chip     *gpiocdev.Chip
	buttons  map[Button]*gpiocdev.Line
	feedback *gpiocdev.Line
	led      *gpiocdev.Line
}

// NewCdevPort requests all lines. Buttons start released (input, not driven).
func NewCdevPort(cfg Config) (*CdevPort, error) {
	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	p := &CdevPort{
		cfg:     cfg,
		chip:    chip,
		buttons: make(map[Button]*gpiocdev.Line),
	}

	for _, b := range []Button{ButtonPower, ButtonMessageA, ButtonMessageB} {
		pin, _ := cfg.pin(b)
		line, err := chip.RequestLine(pin, gpiocdev.AsInput)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", b, pin, err)
		}
		p.buttons[b] = line
	}

	// Pull-down so a disconnected messenger reads as unpowered.
	p.feedback, err = chip.RequestLine(cfg.Pins.Feedback, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("request feedback pin %d: %w", cfg.Pins.Feedback, err)
	}

	if cfg.Pins.LED >= 0 {
		p.led, err = chip.RequestLine(cfg.Pins.LED, gpiocdev.AsOutput(0))
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("request led pin %d: %w", cfg.Pins.LED, err)
		}
	}

	return p, nil
}

// Press claims the button line as an output at the pressed level.
func (p *CdevPort) Press(b Button) error {
	line, ok := p.buttons[b]
	if !ok {
		return fmt.Errorf("press: unknown button %d", int(b))
	}
	if err := line.Reconfigure(gpiocdev.AsOutput(p.cfg.pressValue())); err != nil {
		return fmt.Errorf("press %s: %w", b, err)
	}
	return nil
}

// Release returns the button line to high-impedance input.
func (p *CdevPort) Release(b Button) error {
	line, ok := p.buttons[b]
	if !ok {
		return fmt.Errorf("release: unknown button %d", int(b))
	}
	if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
		return fmt.Errorf("release %s: %w", b, err)
	}
	return nil
}

// Feedback samples the feedback line.
func (p *CdevPort) Feedback() (Level, error) {
	raw, err := p.feedback.Value()
	if err != nil {
		return Unpowered, fmt.Errorf("read feedback pin: %w", err)
	}
	return p.cfg.levelFromRaw(raw), nil
}

// SetIndicator drives the LED, if one is configured.
func (p *CdevPort) SetIndicator(on bool) error {
	if p.led == nil {
		return nil
	}
	v := 0
	if on {
		v = 1
	}
	if err := p.led.SetValue(v); err != nil {
		return fmt.Errorf("set led: %w", err)
	}
	return nil
}

// Close releases GPIO resources.
// All lines are returned to input with pull-down (matching Pi boot defaults)
// before closing so no button is left pressed across a reboot.
func (p *CdevPort) Close() error {
	var errs []error

	closeLine := func(name string, l *gpiocdev.Line) {
		if l == nil {
			return
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", name, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", name, err))
		}
	}

	for b, l := range p.buttons {
		closeLine(b.String(), l)
	}
	closeLine("feedback", p.feedback)
	closeLine("led", p.led)

	if p.chip != nil {
		if err := p.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
