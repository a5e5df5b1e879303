package gpio

import (
	"fmt"
	"strconv"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphPort drives the messenger through periph.io, for boards or kernels
// without a usable GPIO character device.
type PeriphPort struct {
	cfg      Config
	buttons  map[Button]gpio.PinIO
	feedback gpio.PinIO
	led      gpio.PinIO
}

// NewPeriphPort initializes the periph host drivers and looks up every pin
// by its "GPIOn" name. Buttons start released (floating input).
func NewPeriphPort(cfg Config) (*PeriphPort, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph: %w", err)
	}

	p := &PeriphPort{
		cfg:     cfg,
		buttons: make(map[Button]gpio.PinIO),
	}

	for _, b := range []Button{ButtonPower, ButtonMessageA, ButtonMessageB} {
		n, _ := cfg.pin(b)
		pin, err := lookupPin(n)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b, err)
		}
		if err := pin.In(gpio.Float, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("release %s pin %d: %w", b, n, err)
		}
		p.buttons[b] = pin
	}

	fb, err := lookupPin(cfg.Pins.Feedback)
	if err != nil {
		return nil, fmt.Errorf("feedback: %w", err)
	}
	if err := fb.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure feedback pin %d: %w", cfg.Pins.Feedback, err)
	}
	p.feedback = fb

	if cfg.Pins.LED >= 0 {
		led, err := lookupPin(cfg.Pins.LED)
		if err != nil {
			return nil, fmt.Errorf("led: %w", err)
		}
		if err := led.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("configure led pin %d: %w", cfg.Pins.LED, err)
		}
		p.led = led
	}

	return p, nil
}

func lookupPin(n int) (gpio.PinIO, error) {
	name := "GPIO" + strconv.Itoa(n)
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("failed to find pin %q", name)
	}
	return pin, nil
}

func (p *PeriphPort) Press(b Button) error {
	pin, ok := p.buttons[b]
	if !ok {
		return fmt.Errorf("press: unknown button %d", int(b))
	}
	lvl := gpio.Low
	if p.cfg.PressHigh {
		lvl = gpio.High
	}
	if err := pin.Out(lvl); err != nil {
		return fmt.Errorf("press %s: %w", b, err)
	}
	return nil
}

func (p *PeriphPort) Release(b Button) error {
	pin, ok := p.buttons[b]
	if !ok {
		return fmt.Errorf("release: unknown button %d", int(b))
	}
	if err := pin.In(gpio.Float, gpio.NoEdge); err != nil {
		return fmt.Errorf("release %s: %w", b, err)
	}
	return nil
}

func (p *PeriphPort) Feedback() (Level, error) {
	raw := 0
	if p.feedback.Read() == gpio.High {
		raw = 1
	}
	return p.cfg.levelFromRaw(raw), nil
}

func (p *PeriphPort) SetIndicator(on bool) error {
	if p.led == nil {
		return nil
	}
	if err := p.led.Out(gpio.Level(on)); err != nil {
		return fmt.Errorf("set led: %w", err)
	}
	return nil
}

// Close releases every button and turns the LED off. periph pins have no
// handle to close.
func (p *PeriphPort) Close() error {
	var errs []error
	for b, pin := range p.buttons {
		if err := pin.In(gpio.PullDown, gpio.NoEdge); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", b, err))
		}
	}
	if p.led != nil {
		if err := p.led.Out(gpio.Low); err != nil {
			errs = append(errs, fmt.Errorf("led off: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
