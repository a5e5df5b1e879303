package gpio

import (
	"errors"
	"fmt"
)

// OpKind is the kind of operation recorded by FakePort.
type OpKind string

const (
	OpPress     OpKind = "press"
	OpRelease   OpKind = "release"
	OpIndicator OpKind = "indicator"
)

// Op is a single recorded line operation.
type Op struct {
	Kind   OpKind
	Button Button
	On     bool // indicator state for OpIndicator
}

func (o Op) String() string {
	if o.Kind == OpIndicator {
		return fmt.Sprintf("%s:%v", o.Kind, o.On)
	}
	return fmt.Sprintf("%s:%s", o.Kind, o.Button)
}

// FakePort is a test double that records line operations and returns
// scripted feedback levels.
type FakePort struct {
	// Levels contains scripted feedback values to return.
	// Each call to Feedback() consumes the next level.
	Levels []Level

	// index tracks current position in Levels
	index int

	// Ops records every press, release and indicator change in order.
	Ops []Op

	// FeedbackReads counts calls to Feedback.
	FeedbackReads int

	// Closed tracks if Close was called
	Closed bool

	// FeedbackError, if set, will be returned by Feedback()
	FeedbackError error

	// PressError, if set, will be returned by Press()
	PressError error

	held map[Button]bool
}

// NewFakePort creates a FakePort with the given feedback levels.
func NewFakePort(levels ...Level) *FakePort {
	return &FakePort{Levels: levels, held: make(map[Button]bool)}
}

// Press records the press.
func (f *FakePort) Press(b Button) error {
	if f.PressError != nil {
		return f.PressError
	}
	f.Ops = append(f.Ops, Op{Kind: OpPress, Button: b})
	if f.held == nil {
		f.held = make(map[Button]bool)
	}
	f.held[b] = true
	return nil
}

// Release records the release.
func (f *FakePort) Release(b Button) error {
	f.Ops = append(f.Ops, Op{Kind: OpRelease, Button: b})
	delete(f.held, b)
	return nil
}

// Feedback returns the next scripted level.
// If levels are exhausted, returns the last level repeatedly.
func (f *FakePort) Feedback() (Level, error) {
	f.FeedbackReads++
	if f.FeedbackError != nil {
		return Unpowered, f.FeedbackError
	}

	if len(f.Levels) == 0 {
		return Unpowered, errors.New("no levels configured")
	}

	lvl := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return lvl, nil
}

// SetIndicator records the indicator change.
func (f *FakePort) SetIndicator(on bool) error {
	f.Ops = append(f.Ops, Op{Kind: OpIndicator, On: on})
	return nil
}

// Close marks the port as closed.
func (f *FakePort) Close() error {
	f.Closed = true
	return nil
}

// Held reports whether b is currently pressed.
func (f *FakePort) Held(b Button) bool {
	return f.held[b]
}

// Presses returns the buttons pressed, in order.
func (f *FakePort) Presses() []Button {
	var out []Button
	for _, op := range f.Ops {
		if op.Kind == OpPress {
			out = append(out, op.Button)
		}
	}
	return out
}

// Reset clears recorded operations and rewinds the scripted levels.
func (f *FakePort) Reset() {
	f.index = 0
	f.Ops = nil
	f.FeedbackReads = 0
	f.Closed = false
	f.held = make(map[Button]bool)
}
