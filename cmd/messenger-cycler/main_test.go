package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/messenger-cycler/internal/device"
	"github.com/sweeney/messenger-cycler/internal/gpio"
	"github.com/sweeney/messenger-cycler/internal/logic"
	"github.com/sweeney/messenger-cycler/internal/mqtt"
	"github.com/sweeney/messenger-cycler/internal/status"
	"github.com/sweeney/messenger-cycler/internal/wake"
	"github.com/sweeney/messenger-cycler/internal/watchdog"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfo(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}, *info)
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	assert.Nil(t, readNetworkInfo())
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, "UNKNOWN", signalName(syscall.SIGHUP))
}

// --- argument tests ---

func parseArgs(t *testing.T, cmdline ...string) Args {
	t.Helper()
	var args Args
	p, err := arg.NewParser(arg.Config{Program: "messenger-cycler"}, &args)
	require.NoError(t, err)
	require.NoError(t, p.Parse(cmdline))
	return args
}

func TestArgsDefaults(t *testing.T) {
	args := parseArgs(t)

	assert.Equal(t, 8*time.Second, args.WakePeriod)
	assert.Equal(t, logic.DefaultTiming, args.timing())
	assert.Equal(t, device.DefaultConfig, args.deviceConfig())
	assert.Equal(t, 30*time.Second, args.WatchdogTimeout)
	assert.Equal(t, 15*time.Minute, args.Heartbeat)
	assert.Empty(t, args.Broker)
	assert.Empty(t, args.HTTP)
	assert.Empty(t, args.Watchdog)
	assert.Equal(t, "cdev", args.GPIODriver)

	cfg := args.gpioConfig()
	assert.Equal(t, "gpiochip0", cfg.Chip)
	assert.Equal(t, gpio.DefaultPins, cfg.Pins)
	assert.False(t, cfg.PressHigh)
	assert.False(t, cfg.FeedbackActiveLow)

	assert.NoError(t, args.validate())
}

func TestArgsFlagsAndEnv(t *testing.T) {
	t.Setenv("CYCLER_SEND_TICKS", "5")
	t.Setenv("CYCLER_BROKER", "tcp://broker:1883")

	args := parseArgs(t,
		"--wake-period", "2s",
		"--off-ticks", "7",
		"--press-level", "high",
		"--feedback-active-low",
		"--pin-led=-1",
		"--power-timeout", "45s",
	)

	assert.Equal(t, logic.Timing{SettleTicks: 1, SendTicks: 5, OffTicks: 7}, args.timing())
	assert.Equal(t, 45*time.Second, args.deviceConfig().PowerTimeout)
	assert.Equal(t, "tcp://broker:1883", args.Broker)

	cfg := args.gpioConfig()
	assert.True(t, cfg.PressHigh)
	assert.True(t, cfg.FeedbackActiveLow)
	assert.Equal(t, -1, cfg.Pins.LED)

	sc := args.statusConfig()
	assert.Equal(t, int64(2000), sc.WakePeriodMs)
	assert.Equal(t, int64(45000), sc.PowerTimeoutMs)
	assert.Equal(t, 5, sc.SendTicks)
}

func TestArgsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Args)
		errSub string
	}{
		{"zero wake period", func(a *Args) { a.WakePeriod = 0 }, "wake period"},
		{"zero settle", func(a *Args) { a.SettleTicks = 0 }, "settle ticks"},
		{"zero send", func(a *Args) { a.SendTicks = 0 }, "send ticks"},
		{"zero off", func(a *Args) { a.OffTicks = 0 }, "off ticks"},
		{"zero poll", func(a *Args) { a.Poll = 0 }, "poll interval"},
		{"zero hold", func(a *Args) { a.Hold = 0 }, "hold duration"},
		{"negative timeout", func(a *Args) { a.PowerTimeout = -time.Second }, "power timeout"},
		{"negative heartbeat", func(a *Args) { a.Heartbeat = -time.Second }, "heartbeat"},
		{"watchdog shorter than wake", func(a *Args) {
			a.Watchdog = "/dev/watchdog"
			a.WatchdogTimeout = 8 * time.Second
		}, "wake period"},
		{"watchdog shorter than poll", func(a *Args) {
			a.Watchdog = "/dev/watchdog"
			a.WakePeriod = 100 * time.Millisecond
			a.WatchdogTimeout = 200 * time.Millisecond
		}, "poll interval"},
		{"unknown driver", func(a *Args) { a.GPIODriver = "sysfs" }, "gpio driver"},
		{"bad press level", func(a *Args) { a.PressLevel = "floating" }, "press level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := parseArgs(t)
			tt.modify(&args)
			err := args.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSub)
		})
	}
}

func TestArgsValidateWatchdogIgnoredWhenDisabled(t *testing.T) {
	args := parseArgs(t, "--watchdog-timeout", "1s")
	assert.NoError(t, args.validate())
}

// --- runLoop tests ---

// simPort behaves like a messenger: a power press toggles power after the
// button is released, and feedback follows.
type simPort struct {
	mu        sync.Mutex
	powered   bool
	presses   []gpio.Button
	held      map[gpio.Button]bool
	pressErr  error
	toggleLag int // feedback reads while held before power changes
	reads     int
}

func newSimPort() *simPort {
	return &simPort{held: make(map[gpio.Button]bool), toggleLag: 2}
}

func (p *simPort) Press(b gpio.Button) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pressErr != nil {
		return p.pressErr
	}
	p.presses = append(p.presses, b)
	p.held[b] = true
	p.reads = 0
	return nil
}

func (p *simPort) Release(b gpio.Button) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.held, b)
	return nil
}

func (p *simPort) Feedback() (gpio.Level, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.held[gpio.ButtonPower] {
		p.reads++
		if p.reads == p.toggleLag {
			p.powered = !p.powered
		}
	}
	return gpio.Level(p.powered), nil
}

func (p *simPort) SetIndicator(bool) error { return nil }
func (p *simPort) Close() error            { return nil }

func (p *simPort) pressed() []gpio.Button {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]gpio.Button(nil), p.presses...)
}

func (p *simPort) isPowered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.powered
}

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only called from runLoop's goroutine.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

var testStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

const testWake = 8 * time.Second

type loopHarness struct {
	t       *testing.T
	port    *simPort
	timer   *wake.FakeTimer
	wd      *watchdog.Fake
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	machine *logic.Machine
	sig     chan os.Signal
	cancel  context.CancelFunc
	done    chan error
}

func startLoop(t *testing.T, timing logic.Timing, heartbeat time.Duration, now func() time.Time) *loopHarness {
	t.Helper()
	h := &loopHarness{
		t:     t,
		port:  newSimPort(),
		timer: wake.NewFakeTimer(),
		wd:    &watchdog.Fake{},
		pub:   mqtt.NewFakePublisher(),
		sig:   make(chan os.Signal, 1),
		done:  make(chan error, 1),
	}
	h.pub.Connected = true
	h.tracker = status.NewTracker(testStart, status.Config{WakePeriodMs: testWake.Milliseconds()})

	clock := device.NewFakeClock(testStart)
	messenger := device.New(h.port, h.wd, clock, device.DefaultConfig)
	h.machine = logic.NewMachine(timing, messenger)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		h.done <- runLoop(ctx, h.machine, h.timer, h.wd, h.pub, h.pub, h.tracker, testWake, heartbeat, now, h.sig)
	}()
	t.Cleanup(cancel)

	h.timer.WaitArmed()
	return h
}

// ticks fires the wake timer n times, returning once the loop has accounted
// the last tick and re-armed.
func (h *loopHarness) ticks(n int) {
	h.t.Helper()
	for i := 0; i < n; i++ {
		require.True(h.t, h.timer.Fire(), "timer not armed at tick %d", i+1)
		h.timer.WaitArmed()
	}
}

func (h *loopHarness) wait() {
	h.t.Helper()
	select {
	case err := <-h.done:
		require.NoError(h.t, err)
	case <-time.After(5 * time.Second):
		h.t.Fatal("runLoop did not return")
	}
}

func (h *loopHarness) actions() []logic.Action {
	h.pub.Lock()
	defer h.pub.Unlock()
	var out []logic.Action
	for _, e := range h.pub.Events {
		out = append(out, e.Transition.Action)
	}
	return out
}

func (h *loopHarness) systemEvents() []string {
	h.pub.Lock()
	defer h.pub.Unlock()
	var out []string
	for _, e := range h.pub.SystemEvents {
		out = append(out, e.Event)
	}
	return out
}

var shortTiming = logic.Timing{SettleTicks: 1, SendTicks: 2, OffTicks: 3}

func TestRunLoopFullCycle(t *testing.T) {
	h := startLoop(t, shortTiming, 0, time.Now)

	// Transitions at ticks 1, 2, 4, 7, 8, 10.
	h.ticks(10)

	assert.Equal(t, []gpio.Button{
		gpio.ButtonPower, gpio.ButtonMessageA, gpio.ButtonPower,
		gpio.ButtonPower, gpio.ButtonMessageB, gpio.ButtonPower,
	}, h.port.pressed())
	assert.Equal(t, []logic.Action{
		logic.ActionPowerOn, logic.ActionSendA, logic.ActionPowerOff,
		logic.ActionPowerOn, logic.ActionSendB, logic.ActionPowerOff,
	}, h.actions())
	assert.False(t, h.port.isPowered())

	snap := h.tracker.Snapshot()
	assert.Equal(t, logic.PowerOff, snap.State)
	assert.Equal(t, 3, snap.Threshold)
	assert.Equal(t, 0, snap.Counter)
	assert.Equal(t, uint64(10), snap.Ticks)
	assert.Equal(t, logic.ActionCounts{PowerOn: 2, PowerOff: 2, SendA: 1, SendB: 1}, snap.Counts)
	assert.True(t, snap.MQTTConnected)
	require.NotNil(t, snap.Last)
	assert.Equal(t, logic.ActionPowerOff, snap.Last.Transition.Action)
	assert.Equal(t, logic.OutcomeConfirmed, snap.Last.Transition.Outcome)

	// Every wait re-arms with the same period.
	for _, d := range h.timer.Arms() {
		assert.Equal(t, testWake, d)
	}
	assert.Len(t, h.timer.Arms(), 11)

	// One feed per wake plus feeds inside the primitives.
	assert.Greater(t, h.wd.Feeds, 10)

	h.cancel()
	h.wait()
}

func TestRunLoopTransitionPayload(t *testing.T) {
	h := startLoop(t, shortTiming, 0, time.Now)
	h.ticks(1)

	h.pub.Lock()
	require.Len(t, h.pub.Payloads, 1)
	payload := h.pub.Payloads[0]
	h.pub.Unlock()

	var p mqtt.Payload
	require.NoError(t, json.Unmarshal(payload, &p))
	assert.Equal(t, "POWER_ON", p.Action.Action)
	assert.Equal(t, "CONFIRMED", p.Action.Outcome)
	assert.Equal(t, "PowerOff", p.Action.From)
	assert.Equal(t, "PoweredOnPendingMessageA", p.Action.To)
	assert.Equal(t, uint64(1), p.Action.Tick)
	assert.Equal(t, 1, p.Action.Threshold)

	h.cancel()
	h.wait()
}

func TestRunLoopNoActionBetweenThresholds(t *testing.T) {
	h := startLoop(t, logic.DefaultTiming, 0, time.Now)

	h.ticks(2) // power-on, send A
	require.Len(t, h.actions(), 2)

	h.ticks(37)
	assert.Len(t, h.actions(), 2, "nothing is due until the send dwell elapses")
	assert.Equal(t, 37, h.tracker.Snapshot().Counter)

	h.ticks(1)
	assert.Equal(t, logic.ActionPowerOff, h.actions()[2])

	h.cancel()
	h.wait()
}

func TestRunLoopShutdownOnSignal(t *testing.T) {
	h := startLoop(t, shortTiming, 0, time.Now)
	h.ticks(2)

	h.sig <- syscall.SIGTERM
	h.wait()

	h.pub.Lock()
	defer h.pub.Unlock()
	require.Len(t, h.pub.SystemEvents, 1)
	ev := h.pub.SystemEvents[0]
	assert.Equal(t, "SHUTDOWN", ev.Event)
	assert.Equal(t, "SIGTERM", ev.Reason)
	assert.True(t, ev.Retained)

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(h.pub.SystemPayloads[0], &sj))
	assert.Equal(t, "SHUTDOWN", sj.Status.Event)
	assert.Equal(t, "SIGTERM", sj.Status.Reason)
	assert.Equal(t, "SendingMessageA", sj.Status.State)
	assert.True(t, sj.Status.MQTT.Connected)
}

func TestRunLoopShutdownOnCancel(t *testing.T) {
	h := startLoop(t, shortTiming, 0, time.Now)
	h.cancel()
	h.wait()

	assert.Equal(t, []string{"SHUTDOWN"}, h.systemEvents())
	h.pub.Lock()
	assert.Equal(t, "CANCELLED", h.pub.SystemEvents[0].Reason)
	h.pub.Unlock()
	assert.Empty(t, h.actions())
}

func TestRunLoopHeartbeat(t *testing.T) {
	// Each clock read advances a minute; at least two reads happen per tick.
	h := startLoop(t, shortTiming, 5*time.Minute, fakeClock(testStart, time.Minute))
	h.ticks(6)

	events := h.systemEvents()
	require.NotEmpty(t, events)
	for _, e := range events {
		assert.Equal(t, "HEARTBEAT", e)
	}

	h.pub.Lock()
	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(h.pub.SystemPayloads[0], &sj))
	h.pub.Unlock()
	assert.Equal(t, "HEARTBEAT", sj.Status.Event)

	h.cancel()
	h.wait()
}

func TestRunLoopHeartbeatDisabled(t *testing.T) {
	h := startLoop(t, shortTiming, 0, fakeClock(testStart, time.Hour))
	h.ticks(5)
	assert.Empty(t, h.systemEvents())

	h.cancel()
	h.wait()
}

func TestRunLoopPublishErrorDoesNotStop(t *testing.T) {
	h := startLoop(t, shortTiming, 0, time.Now)
	h.pub.Lock()
	h.pub.PublishError = errors.New("broker down")
	h.pub.Unlock()

	h.ticks(4)

	assert.Empty(t, h.actions())
	snap := h.tracker.Snapshot()
	assert.Equal(t, logic.PowerOff2, snap.State)
	require.NotNil(t, snap.Last)
	assert.Equal(t, logic.ActionPowerOff, snap.Last.Transition.Action)

	h.cancel()
	h.wait()
}

func TestRunLoopFailedActionStillAdvances(t *testing.T) {
	h := startLoop(t, shortTiming, 0, time.Now)
	h.port.mu.Lock()
	h.port.pressErr = errors.New("line busy")
	h.port.mu.Unlock()

	h.ticks(2)

	snap := h.tracker.Snapshot()
	assert.Equal(t, logic.SendingMessageA, snap.State)
	assert.Equal(t, 2, snap.Counts.Failed)
	require.NotNil(t, snap.Last)
	assert.Equal(t, logic.OutcomeFailed, snap.Last.Transition.Outcome)
	assert.True(t, strings.Contains(snap.Last.Transition.Err.Error(), "line busy"))

	h.cancel()
	h.wait()
}

func TestRunLoopWatchdogFeedError(t *testing.T) {
	h := startLoop(t, shortTiming, 0, time.Now)
	h.wd.FeedError = errors.New("ebadf")
	h.ticks(1)
	h.wd.FeedError = nil
	h.ticks(1)

	assert.Len(t, h.actions(), 2)

	h.cancel()
	h.wait()
}
