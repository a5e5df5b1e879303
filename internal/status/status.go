// Package status provides a thread-safe status tracker for the cycler daemon.
// It is written by the scheduling loop and read by HTTP handlers and the
// MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/messenger-cycler/internal/logic"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	WakePeriodMs   int64
	SettleTicks    int
	SendTicks      int
	OffTicks       int
	HoldMs         int64
	PollMs         int64
	PowerTimeoutMs int64 // 0 = unbounded
	HeartbeatMs    int64
	GPIODriver     string
	Watchdog       string // device path, empty = disabled
	Broker         string
	HTTPAddr       string
}

// LastTransition describes the most recent state machine step.
type LastTransition struct {
	At         time.Time
	Duration   time.Duration
	Transition logic.Transition
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         logic.State
	Threshold     int
	Counter       int
	Ticks         uint64
	Counts        logic.ActionCounts
	Last          *LastTransition
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// TicksUntilAction returns the wake ticks remaining before the next action.
func (s Snapshot) TicksUntilAction() int {
	n := s.Threshold - s.Counter
	if n < 0 {
		return 0
	}
	return n
}

// NextActionIn estimates the time until the next action from the wake period.
func (s Snapshot) NextActionIn() time.Duration {
	return time.Duration(s.TicksUntilAction()) * time.Duration(s.Config.WakePeriodMs) * time.Millisecond
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Threshold: 1,
		},
		now: time.Now,
	}
}

// Update copies the machine's state. Called from the loop on every tick.
func (t *Tracker) Update(m *logic.Machine) {
	t.mu.Lock()
	t.snap.State = m.State()
	t.snap.Threshold = m.Threshold()
	t.snap.Counter = m.Counter()
	t.snap.Ticks = m.Ticks()
	t.snap.Counts = m.Counts()
	t.mu.Unlock()
}

// RecordTransition stores the most recent transition.
func (t *Tracker) RecordTransition(at time.Time, d time.Duration, tr logic.Transition) {
	t.mu.Lock()
	t.snap.Last = &LastTransition{At: at, Duration: d, Transition: tr}
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
