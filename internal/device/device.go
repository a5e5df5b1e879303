// Package device implements the messenger's action primitives on top of the
// GPIO port: power-on and power-off confirmed by polling the feedback line,
// and the two message long-presses.
package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/messenger-cycler/internal/gpio"
	"github.com/sweeney/messenger-cycler/internal/logic"
	"github.com/sweeney/messenger-cycler/internal/watchdog"
)

// Config holds primitive timing.
type Config struct {
	// PollInterval is the feedback sampling period, and the longest gap
	// between watchdog feeds inside a primitive.
	PollInterval time.Duration

	// PowerTimeout bounds a power change. Zero waits forever.
	PowerTimeout time.Duration

	// HoldDuration is how long a message button is held to register a
	// long-press.
	HoldDuration time.Duration
}

// DefaultConfig is tuned for an inReach-class messenger.
var DefaultConfig = Config{
	PollInterval: 250 * time.Millisecond,
	PowerTimeout: 0,
	HoldDuration: 3 * time.Second,
}

// Validate checks that polling and hold durations are positive.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be > 0, got %v", c.PollInterval)
	}
	if c.HoldDuration <= 0 {
		return fmt.Errorf("hold duration must be > 0, got %v", c.HoldDuration)
	}
	if c.PowerTimeout < 0 {
		return fmt.Errorf("power timeout must be >= 0, got %v", c.PowerTimeout)
	}
	return nil
}

// Messenger performs the action primitives. It is not safe for concurrent
// use; the scheduling loop is its only caller.
type Messenger struct {
	port  gpio.Port
	wd    watchdog.Feeder
	clock Clock
	cfg   Config
}

var _ logic.Actions = (*Messenger)(nil)

// New creates a Messenger. A nil watchdog is replaced with watchdog.Nop.
func New(port gpio.Port, wd watchdog.Feeder, clock Clock, cfg Config) *Messenger {
	if wd == nil {
		wd = watchdog.Nop{}
	}
	return &Messenger{port: port, wd: wd, clock: clock, cfg: cfg}
}

// PowerOn presses power until feedback reports the messenger powered.
// No button is pressed if it already is.
func (m *Messenger) PowerOn(ctx context.Context) (logic.Outcome, error) {
	return m.setPower(ctx, gpio.Powered)
}

// PowerOff presses power until feedback reports the messenger unpowered.
// No button is pressed if it already is.
func (m *Messenger) PowerOff(ctx context.Context) (logic.Outcome, error) {
	return m.setPower(ctx, gpio.Unpowered)
}

// SendMessageA long-presses the first message button.
func (m *Messenger) SendMessageA(ctx context.Context) (logic.Outcome, error) {
	return m.send(ctx, gpio.ButtonMessageA)
}

// SendMessageB long-presses the second message button.
func (m *Messenger) SendMessageB(ctx context.Context) (logic.Outcome, error) {
	return m.send(ctx, gpio.ButtonMessageB)
}

func (m *Messenger) setPower(ctx context.Context, want gpio.Level) (outcome logic.Outcome, err error) {
	lvl, err := m.port.Feedback()
	if err != nil {
		return logic.OutcomeFailed, fmt.Errorf("read feedback: %w", err)
	}
	if lvl == want {
		log.Debugf("device: already %s", want)
		return logic.OutcomeAlreadySet, nil
	}

	m.indicator(true)
	defer m.indicator(false)

	if err := m.port.Press(gpio.ButtonPower); err != nil {
		return logic.OutcomeFailed, fmt.Errorf("press power: %w", err)
	}
	defer func() {
		if rerr := m.port.Release(gpio.ButtonPower); rerr != nil {
			outcome = logic.OutcomeFailed
			err = errors.Join(err, fmt.Errorf("release power: %w", rerr))
		}
	}()

	start := m.clock.Now()
	for {
		m.feed()
		if err := m.clock.Sleep(ctx, m.cfg.PollInterval); err != nil {
			return logic.OutcomeFailed, fmt.Errorf("wait for %s: %w", want, err)
		}

		lvl, err := m.port.Feedback()
		if err != nil {
			return logic.OutcomeFailed, fmt.Errorf("read feedback: %w", err)
		}
		if lvl == want {
			log.Debugf("device: %s after %v", want, m.clock.Now().Sub(start))
			return logic.OutcomeConfirmed, nil
		}

		if m.cfg.PowerTimeout > 0 && m.clock.Now().Sub(start) >= m.cfg.PowerTimeout {
			log.Warnf("device: no %s feedback after %v", want, m.cfg.PowerTimeout)
			return logic.OutcomeTimedOut, nil
		}
	}
}

func (m *Messenger) send(ctx context.Context, b gpio.Button) (outcome logic.Outcome, err error) {
	m.indicator(true)
	defer m.indicator(false)

	if err := m.port.Press(b); err != nil {
		return logic.OutcomeFailed, fmt.Errorf("press %s: %w", b, err)
	}
	defer func() {
		if rerr := m.port.Release(b); rerr != nil {
			outcome = logic.OutcomeFailed
			err = errors.Join(err, fmt.Errorf("release %s: %w", b, rerr))
		}
	}()

	if err := m.hold(ctx, m.cfg.HoldDuration); err != nil {
		return logic.OutcomeFailed, fmt.Errorf("hold %s: %w", b, err)
	}
	return logic.OutcomeSent, nil
}

// hold waits for d in poll-sized steps, feeding the watchdog before each.
func (m *Messenger) hold(ctx context.Context, d time.Duration) error {
	for d > 0 {
		m.feed()
		step := m.cfg.PollInterval
		if step > d {
			step = d
		}
		if err := m.clock.Sleep(ctx, step); err != nil {
			return err
		}
		d -= step
	}
	return nil
}

func (m *Messenger) feed() {
	if err := m.wd.Feed(); err != nil {
		log.Warnf("device: watchdog feed error: %v", err)
	}
}

// indicator failures are diagnostic only and never fail a primitive.
func (m *Messenger) indicator(on bool) {
	if err := m.port.SetIndicator(on); err != nil {
		log.Debugf("device: indicator error: %v", err)
	}
}
