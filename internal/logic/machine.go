package logic

import "context"

// Machine is the scheduling context owned by the wake loop. It holds the
// operational state, the tick threshold and the tick counter; OnTick and
// OnActionDue are their only writers.
type Machine struct {
	timing    Timing
	actions   Actions
	state     State
	threshold int
	counter   int
	ticks     uint64
	counts    ActionCounts
}

// NewMachine creates a machine at cold start: PowerOff with a threshold of
// one tick, so the first wake powers the device on.
func NewMachine(timing Timing, actions Actions) *Machine {
	return &Machine{
		timing:    timing,
		actions:   actions,
		state:     PowerOff,
		threshold: 1,
	}
}

// OnTick accounts for one wake timer firing. When the counter reaches the
// threshold it is reset and exactly one transition runs before OnTick
// returns. Returns nil if no transition was due.
func (m *Machine) OnTick(ctx context.Context) *Transition {
	m.ticks++
	m.counter++
	if m.counter < m.threshold {
		return nil
	}
	m.counter = 0
	tr := m.OnActionDue(ctx)
	return &tr
}

// OnActionDue performs the single action for the current state, moves to the
// successor and reprograms the threshold for it. The move happens whatever
// the action's outcome; the next scheduled cycle is the retry.
func (m *Machine) OnActionDue(ctx context.Context) Transition {
	from := m.state
	action, to := step(from)

	var (
		outcome Outcome
		err     error
	)
	switch action {
	case ActionPowerOn:
		m.counts.PowerOn++
		outcome, err = m.actions.PowerOn(ctx)
	case ActionPowerOff:
		m.counts.PowerOff++
		outcome, err = m.actions.PowerOff(ctx)
	case ActionSendA:
		m.counts.SendA++
		outcome, err = m.actions.SendMessageA(ctx)
	case ActionSendB:
		m.counts.SendB++
		outcome, err = m.actions.SendMessageB(ctx)
	}
	if err != nil {
		outcome = OutcomeFailed
		m.counts.Failed++
	} else if outcome == OutcomeTimedOut {
		m.counts.TimedOut++
	}

	m.state = to
	m.threshold = m.thresholdFor(to)

	return Transition{
		Tick:      m.ticks,
		From:      from,
		To:        to,
		Action:    action,
		Outcome:   outcome,
		Err:       err,
		Threshold: m.threshold,
	}
}

// step returns the action to run from s and the state that follows it.
// Unrecognized states are powered off and restart at PowerOff.
func step(s State) (Action, State) {
	if !s.Valid() {
		return ActionPowerOff, PowerOff
	}
	switch s.Phase {
	case PhaseOff:
		return ActionPowerOn, State{s.Cycle, PhasePoweredOn}
	case PhasePoweredOn:
		if s.Cycle == CycleA {
			return ActionSendA, State{s.Cycle, PhaseSent}
		}
		return ActionSendB, State{s.Cycle, PhaseSent}
	default:
		return ActionPowerOff, State{s.Cycle.next(), PhaseOff}
	}
}

// thresholdFor depends only on the state being entered.
func (m *Machine) thresholdFor(s State) int {
	var n int
	switch s.Phase {
	case PhasePoweredOn:
		n = m.timing.SettleTicks
	case PhaseSent:
		n = m.timing.SendTicks
	default:
		n = m.timing.OffTicks
	}
	if n < 1 {
		n = 1
	}
	return n
}

// State returns the current operational state.
func (m *Machine) State() State {
	return m.state
}

// Threshold returns the number of ticks required before the next transition.
func (m *Machine) Threshold() int {
	return m.threshold
}

// Counter returns the ticks accumulated since the last transition.
func (m *Machine) Counter() int {
	return m.counter
}

// Ticks returns the total number of ticks since cold start.
func (m *Machine) Ticks() uint64 {
	return m.ticks
}

// Counts returns a copy of the action counters.
func (m *Machine) Counts() ActionCounts {
	return m.counts
}
