// Package mqtt provides MQTT telemetry publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/messenger-cycler/internal/logic"
)

// Topic is the MQTT topic for state machine transitions.
const Topic = "messenger/cycler/actions"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "messenger/cycler/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a transition event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event ActionEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// ActionEvent is a state machine transition stamped with wall-clock time.
type ActionEvent struct {
	Timestamp  time.Time
	Duration   time.Duration // time spent in the action primitive
	Transition logic.Transition
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Action ActionPayload `json:"action"`
}

// ActionPayload contains the transition details.
type ActionPayload struct {
	Timestamp  string `json:"timestamp"`
	Tick       uint64 `json:"tick"`
	Action     string `json:"action"`
	Outcome    string `json:"outcome"`
	From       string `json:"from"`
	To         string `json:"to"`
	Threshold  int    `json:"threshold_ticks"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// FormatPayload creates the JSON payload for a transition event.
func FormatPayload(event ActionEvent) ([]byte, error) {
	tr := event.Transition
	payload := Payload{
		Action: ActionPayload{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Tick:       tr.Tick,
			Action:     string(tr.Action),
			Outcome:    string(tr.Outcome),
			From:       tr.From.String(),
			To:         tr.To.String(),
			Threshold:  tr.Threshold,
			DurationMs: event.Duration.Milliseconds(),
		},
	}
	if tr.Err != nil {
		payload.Action.Error = tr.Err.Error()
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (OFFLINE will, RECONNECTED) that don't carry a full
// status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Discard drops every event. Used when no broker is configured.
type Discard struct{}

func (Discard) Publish(ActionEvent) error { return nil }
func (Discard) PublishSystem(SystemEvent) error { return nil }
func (Discard) Close() error { return nil }
func (Discard) IsConnected() bool { return false }
