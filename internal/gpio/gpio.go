// Package gpio provides the button, feedback and indicator lines wired to the
// messenger, with hardware abstraction.
// The default implementation uses the Linux GPIO character device; an
// alternative uses periph.io. The fake implementation allows testing without
// hardware.
package gpio

import "fmt"

// Button identifies one of the messenger's physical switches.
type Button int

const (
	ButtonPower Button = iota
	ButtonMessageA
	ButtonMessageB
)

func (b Button) String() string {
	switch b {
	case ButtonPower:
		return "power"
	case ButtonMessageA:
		return "message-a"
	case ButtonMessageB:
		return "message-b"
	}
	return fmt.Sprintf("button(%d)", int(b))
}

// Level is the sampled state of the feedback line.
type Level bool

const (
	Unpowered Level = false
	Powered   Level = true
)

func (l Level) String() string {
	if l {
		return "POWERED"
	}
	return "UNPOWERED"
}

// Port drives the messenger's buttons and senses its power feedback.
type Port interface {
	// Press drives the button line to its pressed level.
	Press(b Button) error

	// Release returns the button line to a non-driving input.
	Release(b Button) error

	// Feedback returns whether the messenger reports itself powered.
	Feedback() (Level, error)

	// SetIndicator drives the diagnostic LED.
	SetIndicator(on bool) error

	// Close releases all lines and GPIO resources.
	Close() error
}

// Pins holds line offsets (BCM numbering). A negative LED disables the
// indicator.
type Pins struct {
	Power    int
	MessageA int
	MessageB int
	Feedback int
	LED      int
}

// DefaultPins is the reference wiring.
var DefaultPins = Pins{
	Power:    17,
	MessageA: 27,
	MessageB: 22,
	Feedback: 23,
	LED:      24,
}

// Config describes how the port is wired.
type Config struct {
	Chip string // character device name, e.g. "gpiochip0"
	Pins Pins

	// PressHigh drives pressed buttons high; the default pulls them to ground.
	PressHigh bool

	// FeedbackActiveLow treats a low feedback line as powered.
	FeedbackActiveLow bool
}

func (c Config) pin(b Button) (int, error) {
	switch b {
	case ButtonPower:
		return c.Pins.Power, nil
	case ButtonMessageA:
		return c.Pins.MessageA, nil
	case ButtonMessageB:
		return c.Pins.MessageB, nil
	}
	return 0, fmt.Errorf("unknown button %d", int(b))
}

func (c Config) pressValue() int {
	if c.PressHigh {
		return 1
	}
	return 0
}

func (c Config) levelFromRaw(raw int) Level {
	if c.FeedbackActiveLow {
		return Level(raw == 0)
	}
	return Level(raw != 0)
}
