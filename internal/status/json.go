package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string          `json:"event,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	State          string          `json:"state"`
	Cycle          string          `json:"cycle"`
	Phase          string          `json:"phase"`
	ThresholdTicks int             `json:"threshold_ticks"`
	CounterTicks   int             `json:"counter_ticks"`
	TotalTicks     uint64          `json:"total_ticks"`
	NextActionSecs int64           `json:"next_action_seconds"`
	LastAction     *LastActionJSON `json:"last_action,omitempty"`
	UptimeSeconds  int64           `json:"uptime_seconds"`
	StartTime      string          `json:"start_time"`
	Timestamp      string          `json:"timestamp"`
	MQTT           MQTTStatus      `json:"mqtt"`
	Counts         CountsJSON      `json:"action_counts"`
	Network        *NetworkJSON    `json:"network,omitempty"`
	Config         ConfigJSON      `json:"config"`
}

// LastActionJSON describes the most recent transition.
type LastActionJSON struct {
	Timestamp  string `json:"timestamp"`
	Action     string `json:"action"`
	Outcome    string `json:"outcome"`
	From       string `json:"from"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of action counts.
type CountsJSON struct {
	PowerOn  int `json:"power_on"`
	PowerOff int `json:"power_off"`
	SendA    int `json:"send_a"`
	SendB    int `json:"send_b"`
	TimedOut int `json:"timed_out"`
	Failed   int `json:"failed"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	WakePeriodMs   int64  `json:"wake_period_ms"`
	SettleTicks    int    `json:"settle_ticks"`
	SendTicks      int    `json:"send_ticks"`
	OffTicks       int    `json:"off_ticks"`
	HoldMs         int64  `json:"hold_ms"`
	PollMs         int64  `json:"poll_ms"`
	PowerTimeoutMs int64  `json:"power_timeout_ms"`
	HeartbeatMs    int64  `json:"heartbeat_ms"`
	GPIODriver     string `json:"gpio_driver"`
	Watchdog       string `json:"watchdog,omitempty"`
	Broker         string `json:"broker,omitempty"`
	HTTPAddr       string `json:"http_addr,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Config
	inner := StatusInner{
		State:          snap.State.String(),
		Cycle:          snap.State.Cycle.String(),
		Phase:          snap.State.Phase.String(),
		ThresholdTicks: snap.Threshold,
		CounterTicks:   snap.Counter,
		TotalTicks:     snap.Ticks,
		NextActionSecs: int64(snap.NextActionIn().Seconds()),
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: c.Broker},
		Counts: CountsJSON{
			PowerOn:  snap.Counts.PowerOn,
			PowerOff: snap.Counts.PowerOff,
			SendA:    snap.Counts.SendA,
			SendB:    snap.Counts.SendB,
			TimedOut: snap.Counts.TimedOut,
			Failed:   snap.Counts.Failed,
		},
		Config: ConfigJSON{
			WakePeriodMs:   c.WakePeriodMs,
			SettleTicks:    c.SettleTicks,
			SendTicks:      c.SendTicks,
			OffTicks:       c.OffTicks,
			HoldMs:         c.HoldMs,
			PollMs:         c.PollMs,
			PowerTimeoutMs: c.PowerTimeoutMs,
			HeartbeatMs:    c.HeartbeatMs,
			GPIODriver:     c.GPIODriver,
			Watchdog:       c.Watchdog,
			Broker:         c.Broker,
			HTTPAddr:       c.HTTPAddr,
		},
	}

	if last := snap.Last; last != nil {
		inner.LastAction = &LastActionJSON{
			Timestamp:  last.At.UTC().Format(time.RFC3339),
			Action:     string(last.Transition.Action),
			Outcome:    string(last.Transition.Outcome),
			From:       last.Transition.From.String(),
			DurationMs: last.Duration.Milliseconds(),
		}
		if last.Transition.Err != nil {
			inner.LastAction.Error = last.Transition.Err.Error()
		}
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
