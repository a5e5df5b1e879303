// Package logic contains the pure scheduling logic for the messenger cycler:
// the tick accumulator and the power/message state machine.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Device actions are reached through the Actions interface.
package logic

import (
	"context"
	"fmt"
	"time"
)

// Cycle identifies which of the two chained on/send/off passes is active.
type Cycle uint8

const (
	CycleA Cycle = iota
	CycleB
)

func (c Cycle) String() string {
	switch c {
	case CycleA:
		return "A"
	case CycleB:
		return "B"
	}
	return fmt.Sprintf("Cycle(%d)", uint8(c))
}

// next returns the cycle that follows c after a power-off.
func (c Cycle) next() Cycle {
	if c == CycleA {
		return CycleB
	}
	return CycleA
}

// Phase is the last action completed within a cycle.
type Phase uint8

const (
	PhaseOff Phase = iota
	PhasePoweredOn
	PhaseSent
)

func (p Phase) String() string {
	switch p {
	case PhaseOff:
		return "Off"
	case PhasePoweredOn:
		return "PoweredOn"
	case PhaseSent:
		return "Sent"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// State is the operational state. It always names the action that was just
// completed, never the one in progress.
type State struct {
	Cycle Cycle
	Phase Phase
}

// The six recognized states.
var (
	PowerOff                 = State{CycleA, PhaseOff}
	PoweredOnPendingMessageA = State{CycleA, PhasePoweredOn}
	SendingMessageA          = State{CycleA, PhaseSent}
	PowerOff2                = State{CycleB, PhaseOff}
	PoweredOnPendingMessageB = State{CycleB, PhasePoweredOn}
	SendingMessageB          = State{CycleB, PhaseSent}
)

// Valid reports whether s is one of the six recognized states.
func (s State) Valid() bool {
	return s.Cycle <= CycleB && s.Phase <= PhaseSent
}

func (s State) String() string {
	switch s {
	case PowerOff:
		return "PowerOff"
	case PoweredOnPendingMessageA:
		return "PoweredOnPendingMessageA"
	case SendingMessageA:
		return "SendingMessageA"
	case PowerOff2:
		return "PowerOff2"
	case PoweredOnPendingMessageB:
		return "PoweredOnPendingMessageB"
	case SendingMessageB:
		return "SendingMessageB"
	}
	return fmt.Sprintf("Unrecognized(%s/%s)", s.Cycle, s.Phase)
}

// Action is a device action primitive.
type Action string

const (
	ActionPowerOn  Action = "POWER_ON"
	ActionPowerOff Action = "POWER_OFF"
	ActionSendA    Action = "SEND_A"
	ActionSendB    Action = "SEND_B"
)

// Outcome is the structured result of a device action primitive.
type Outcome string

const (
	// OutcomeConfirmed means feedback reached the requested power level.
	OutcomeConfirmed Outcome = "CONFIRMED"
	// OutcomeAlreadySet means feedback already matched; no button was pressed.
	OutcomeAlreadySet Outcome = "ALREADY_SET"
	// OutcomeTimedOut means the power timeout expired before feedback matched.
	OutcomeTimedOut Outcome = "TIMED_OUT"
	// OutcomeSent means a message button was held and released.
	OutcomeSent Outcome = "SENT"
	// OutcomeFailed means the primitive returned an error.
	OutcomeFailed Outcome = "FAILED"
)

// Actions performs the device action primitives. Implementations block until
// the primitive completes.
type Actions interface {
	PowerOn(ctx context.Context) (Outcome, error)
	PowerOff(ctx context.Context) (Outcome, error)
	SendMessageA(ctx context.Context) (Outcome, error)
	SendMessageB(ctx context.Context) (Outcome, error)
}

// Timing holds the dwell times, in wake ticks, that follow each phase.
type Timing struct {
	SettleTicks int // after power-on
	SendTicks   int // after a message send (N)
	OffTicks    int // after power-off (M)
}

// DefaultTiming matches an 8s wake period: a cycle pair every 198 ticks.
var DefaultTiming = Timing{SettleTicks: 1, SendTicks: 38, OffTicks: 60}

// Validate checks that every dwell is at least one tick.
func (t Timing) Validate() error {
	if t.SettleTicks < 1 {
		return fmt.Errorf("settle ticks must be >= 1, got %d", t.SettleTicks)
	}
	if t.SendTicks < 1 {
		return fmt.Errorf("send ticks must be >= 1, got %d", t.SendTicks)
	}
	if t.OffTicks < 1 {
		return fmt.Errorf("off ticks must be >= 1, got %d", t.OffTicks)
	}
	return nil
}

// Transition records one state machine step.
type Transition struct {
	Tick      uint64 // total ticks since cold start
	From      State
	To        State
	Action    Action
	Outcome   Outcome
	Err       error
	Threshold int // threshold programmed for the new state
}

// ActionCounts tracks primitive invocations since startup.
type ActionCounts struct {
	PowerOn  int
	PowerOff int
	SendA    int
	SendB    int
	TimedOut int
	Failed   int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	State     State
	Counts    ActionCounts
}
