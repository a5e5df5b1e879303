// Command messenger-cycler power-cycles a satellite messenger on a fixed
// schedule, sending one of two preset messages each time it is powered on.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/messenger-cycler/internal/device"
	"github.com/sweeney/messenger-cycler/internal/gpio"
	"github.com/sweeney/messenger-cycler/internal/logic"
	"github.com/sweeney/messenger-cycler/internal/mqtt"
	"github.com/sweeney/messenger-cycler/internal/status"
	"github.com/sweeney/messenger-cycler/internal/wake"
	"github.com/sweeney/messenger-cycler/internal/watchdog"
	"github.com/sweeney/messenger-cycler/internal/web"
)

var version = "<not set>"

type Args struct {
	WakePeriod      time.Duration `arg:"--wake-period,env:CYCLER_WAKE_PERIOD" default:"8s" help:"wake timer period (one tick)"`
	SettleTicks     int           `arg:"--settle-ticks,env:CYCLER_SETTLE_TICKS" default:"1" help:"ticks between power-on and the message send"`
	SendTicks       int           `arg:"--send-ticks,env:CYCLER_SEND_TICKS" default:"38" help:"ticks between a message send and power-off"`
	OffTicks        int           `arg:"--off-ticks,env:CYCLER_OFF_TICKS" default:"60" help:"ticks the messenger stays off"`
	Hold            time.Duration `arg:"--hold,env:CYCLER_HOLD" default:"3s" help:"message button long-press duration"`
	Poll            time.Duration `arg:"--poll,env:CYCLER_POLL" default:"250ms" help:"power feedback poll interval"`
	PowerTimeout    time.Duration `arg:"--power-timeout,env:CYCLER_POWER_TIMEOUT" default:"0s" help:"give up on a power change after this long (0 waits forever)"`
	Watchdog        string        `arg:"--watchdog,env:CYCLER_WATCHDOG" help:"watchdog device, e.g. /dev/watchdog (empty to disable)"`
	WatchdogTimeout time.Duration `arg:"--watchdog-timeout,env:CYCLER_WATCHDOG_TIMEOUT" default:"30s" help:"watchdog reset timeout"`
	GPIODriver      string        `arg:"--gpio-driver,env:CYCLER_GPIO_DRIVER" default:"cdev" help:"GPIO backend: cdev or periph"`
	GPIOChip        string        `arg:"--gpio-chip,env:CYCLER_GPIO_CHIP" default:"gpiochip0" help:"GPIO character device (cdev only)"`
	PinPower        int           `arg:"--pin-power,env:CYCLER_PIN_POWER" default:"17" help:"BCM pin of the power button"`
	PinMsgA         int           `arg:"--pin-msg-a,env:CYCLER_PIN_MSG_A" default:"27" help:"BCM pin of the message A button"`
	PinMsgB         int           `arg:"--pin-msg-b,env:CYCLER_PIN_MSG_B" default:"22" help:"BCM pin of the message B button"`
	PinFeedback     int           `arg:"--pin-feedback,env:CYCLER_PIN_FEEDBACK" default:"23" help:"BCM pin of the power feedback line"`
	PinLED          int           `arg:"--pin-led,env:CYCLER_PIN_LED" default:"24" help:"BCM pin of the activity LED (-1 to disable)"`
	PressLevel      string        `arg:"--press-level,env:CYCLER_PRESS_LEVEL" default:"low" help:"level driven onto a pressed button: low or high"`
	FeedbackLow     bool          `arg:"--feedback-active-low,env:CYCLER_FEEDBACK_ACTIVE_LOW" help:"feedback line reads low when powered"`
	Broker          string        `arg:"--broker,env:CYCLER_BROKER" help:"MQTT broker address, e.g. tcp://192.168.1.200:1883 (empty to disable)"`
	Heartbeat       time.Duration `arg:"--heartbeat,env:CYCLER_HEARTBEAT" default:"15m" help:"heartbeat interval (0 to disable)"`
	HTTP            string        `arg:"--http,env:CYCLER_HTTP" help:"HTTP status address, e.g. :80 (empty to disable)"`
	LogLevel        string        `arg:"--log-level,env:CYCLER_LOG_LEVEL" default:"info" help:"log level"`
	PrintState      bool          `arg:"--print-state" help:"print the power feedback level and exit"`
}

func (Args) Version() string {
	return version
}

func (Args) Description() string {
	return "power-cycles a satellite messenger and sends preset messages on a schedule"
}

func (a Args) timing() logic.Timing {
	return logic.Timing{SettleTicks: a.SettleTicks, SendTicks: a.SendTicks, OffTicks: a.OffTicks}
}

func (a Args) deviceConfig() device.Config {
	return device.Config{PollInterval: a.Poll, PowerTimeout: a.PowerTimeout, HoldDuration: a.Hold}
}

func (a Args) gpioConfig() gpio.Config {
	return gpio.Config{
		Chip: a.GPIOChip,
		Pins: gpio.Pins{
			Power:    a.PinPower,
			MessageA: a.PinMsgA,
			MessageB: a.PinMsgB,
			Feedback: a.PinFeedback,
			LED:      a.PinLED,
		},
		PressHigh:         a.PressLevel == "high",
		FeedbackActiveLow: a.FeedbackLow,
	}
}

func (a Args) statusConfig() status.Config {
	return status.Config{
		WakePeriodMs:   a.WakePeriod.Milliseconds(),
		SettleTicks:    a.SettleTicks,
		SendTicks:      a.SendTicks,
		OffTicks:       a.OffTicks,
		HoldMs:         a.Hold.Milliseconds(),
		PollMs:         a.Poll.Milliseconds(),
		PowerTimeoutMs: a.PowerTimeout.Milliseconds(),
		HeartbeatMs:    a.Heartbeat.Milliseconds(),
		GPIODriver:     a.GPIODriver,
		Watchdog:       a.Watchdog,
		Broker:         a.Broker,
		HTTPAddr:       a.HTTP,
	}
}

// validate checks option combinations go-arg cannot express.
func (a Args) validate() error {
	if a.WakePeriod <= 0 {
		return fmt.Errorf("wake period must be > 0, got %v", a.WakePeriod)
	}
	if err := a.timing().Validate(); err != nil {
		return err
	}
	if err := a.deviceConfig().Validate(); err != nil {
		return err
	}
	if a.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must be >= 0, got %v", a.Heartbeat)
	}
	if a.Watchdog != "" {
		if a.WatchdogTimeout <= a.WakePeriod {
			return fmt.Errorf("watchdog timeout %v must exceed wake period %v", a.WatchdogTimeout, a.WakePeriod)
		}
		if a.WatchdogTimeout <= a.Poll {
			return fmt.Errorf("watchdog timeout %v must exceed poll interval %v", a.WatchdogTimeout, a.Poll)
		}
	}
	switch a.GPIODriver {
	case "cdev", "periph":
	default:
		return fmt.Errorf("unknown gpio driver %q", a.GPIODriver)
	}
	switch a.PressLevel {
	case "low", "high":
	default:
		return fmt.Errorf("press level must be low or high, got %q", a.PressLevel)
	}
	return nil
}

func main() {
	var args Args
	p := arg.MustParse(&args)
	if err := args.validate(); err != nil {
		p.Fail(err.Error())
	}

	level, err := log.ParseLevel(args.LogLevel)
	if err != nil {
		p.Fail(err.Error())
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := run(args); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func openPort(args Args) (gpio.Port, error) {
	cfg := args.gpioConfig()
	if args.GPIODriver == "periph" {
		p, err := gpio.NewPeriphPort(cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	p, err := gpio.NewCdevPort(cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func openWatchdog(args Args) (watchdog.Watchdog, error) {
	if args.Watchdog == "" {
		return watchdog.Nop{}, nil
	}
	wd, err := watchdog.Open(args.Watchdog)
	if err != nil {
		return nil, err
	}
	if err := wd.Arm(args.WatchdogTimeout); err != nil {
		wd.Close()
		return nil, fmt.Errorf("arm watchdog: %w", err)
	}
	return wd, nil
}

func run(args Args) error {
	port, err := openPort(args)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer port.Close()

	if args.PrintState {
		level, err := port.Feedback()
		if err != nil {
			return fmt.Errorf("read feedback: %w", err)
		}
		fmt.Printf("power: %s\n", level)
		return nil
	}

	log.Infof("running version: %s", version)

	wd, err := openWatchdog(args)
	if err != nil {
		return fmt.Errorf("init watchdog: %w", err)
	}
	defer wd.Close()

	var (
		publisher  mqtt.Publisher = mqtt.Discard{}
		mqttStatus mqtt.ConnectionStatus
	)
	if args.Broker != "" {
		host, _ := os.Hostname()
		rp, err := mqtt.NewRealPublisher(args.Broker, "messenger-cycler-"+host)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher, mqttStatus = rp, rp
	}
	defer publisher.Close()

	tracker := status.NewTracker(time.Now(), args.statusConfig())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Warnf("mqtt: publish startup: %v", err)
	}

	if args.HTTP != "" {
		srv := web.New(args.HTTP, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("http: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infof("http status server listening on %s", args.HTTP)
	}

	messenger := device.New(port, wd, device.RealClock{}, args.deviceConfig())
	machine := logic.NewMachine(args.timing(), messenger)

	log.Infof("started: wake=%v settle=%d send=%d off=%d hold=%v poll=%v driver=%s",
		args.WakePeriod, args.SettleTicks, args.SendTicks, args.OffTicks, args.Hold, args.Poll, args.GPIODriver)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(context.Background(), machine, wake.NewTimer(), wd, publisher, mqttStatus, tracker,
		args.WakePeriod, args.Heartbeat, time.Now, sigCh)
}

// runLoop owns the machine. Each pass arms the wake timer, sleeps until it
// fires, feeds the watchdog and accounts one tick. A signal cancels the
// context, interrupting any primitive in progress, and ends the loop once
// the current tick has been accounted.
func runLoop(ctx context.Context, machine *logic.Machine, timer wake.Timer, wd watchdog.Feeder, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, wakePeriod, heartbeat time.Duration, now func() time.Time, sig <-chan os.Signal) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reasonC := make(chan string, 1)
	go func() {
		select {
		case s := <-sig:
			log.Infof("received %v, shutting down", s)
			reasonC <- signalName(s)
			cancel()
		case <-ctx.Done():
		}
	}()

	hb := logic.NewHeartbeat(heartbeat, now())

	for {
		timer.Arm(wakePeriod)
		select {
		case <-ctx.Done():
			timer.Disarm()
			reason := "CANCELLED"
			select {
			case reason = <-reasonC:
			default:
			}
			shutdown(publisher, mqttStatus, tracker, now(), reason)
			return nil
		case <-timer.C():
		}

		if err := wd.Feed(); err != nil {
			log.Warnf("watchdog: feed: %v", err)
		}

		start := now()
		if tr := machine.OnTick(ctx); tr != nil {
			d := now().Sub(start)
			logTransition(tr, d)
			event := mqtt.ActionEvent{Timestamp: start, Duration: d, Transition: *tr}
			if err := publisher.Publish(event); err != nil {
				log.Warnf("mqtt: publish transition: %v", err)
			}
			tracker.RecordTransition(start, d, *tr)
		}

		tracker.Update(machine)
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}

		if hbData := hb.Check(now(), machine.State(), machine.Counts()); hbData != nil {
			log.Infof("heartbeat: uptime=%v state=%s power_on=%d send_a=%d send_b=%d failed=%d",
				hbData.Uptime, hbData.State, hbData.Counts.PowerOn, hbData.Counts.SendA, hbData.Counts.SendB, hbData.Counts.Failed)
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
			snap := tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  hbData.Timestamp,
				Event:      "HEARTBEAT",
				RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Warnf("mqtt: publish heartbeat: %v", err)
			}
		}
	}
}

func logTransition(tr *logic.Transition, d time.Duration) {
	entry := log.WithFields(log.Fields{
		"tick":      tr.Tick,
		"threshold": tr.Threshold,
		"took":      d.Round(time.Millisecond),
	})
	msg := fmt.Sprintf("transition: %s -> %s (%s %s)", tr.From, tr.To, tr.Action, tr.Outcome)
	switch tr.Outcome {
	case logic.OutcomeFailed:
		entry.WithError(tr.Err).Error(msg)
	case logic.OutcomeTimedOut:
		entry.Warn(msg)
	default:
		entry.Info(msg)
	}
}

func shutdown(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, at time.Time, reason string) {
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  at,
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Warnf("mqtt: publish shutdown: %v", err)
	} else {
		log.Info("published shutdown event")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
