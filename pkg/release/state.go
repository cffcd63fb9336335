package release

import (
	"fmt"
	"sync"
	"time"

	"github.com/propgate/propgate/pkg/errors"
)

// State is a release lifecycle state.
type State string

// Release states.
const (
	StateIdle               State = "idle"
	StateBackupInProgress   State = "backup_in_progress"
	StateStaging            State = "staging"
	StateValidatingGates    State = "validating_gates"
	StateDeploying          State = "deploying"
	StateVerifyingIntegrity State = "verifying_integrity"
	StateComplete           State = "complete"
	StateFailed             State = "failed"
	StateRolledBack         State = "rolled_back"
)

// transitions lists the legal successor states. Failed is reachable from any
// non-terminal state and is added by Allowed.
var transitions = map[State][]State{
	StateIdle:               {StateBackupInProgress, StateStaging, StateComplete},
	StateBackupInProgress:   {StateStaging, StateComplete},
	StateStaging:            {StateValidatingGates},
	StateValidatingGates:    {StateDeploying, StateStaging, StateComplete},
	StateDeploying:          {StateVerifyingIntegrity},
	StateVerifyingIntegrity: {StateStaging, StateComplete},
	StateComplete:           {StateRolledBack},
	StateFailed:             {StateRolledBack},
}

// Allowed reports whether from -> to is a legal transition.
func Allowed(from, to State) bool {
	if to == StateFailed {
		return from != StateFailed && from != StateRolledBack
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition records one state change.
type Transition struct {
	From State     `json:"from" yaml:"from"`
	To   State     `json:"to" yaml:"to"`
	At   time.Time `json:"at" yaml:"at"`
}

// Machine tracks the state of one release run.
type Machine struct {
	mu      sync.Mutex
	state   State
	history []Transition
	now     func() time.Time
}

// NewMachine creates a machine in the idle state.
func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{state: StateIdle, now: now}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// To moves the machine to a new state.
func (m *Machine) To(next State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !Allowed(m.state, next) {
		return fmt.Errorf("%w: %s -> %s", errors.ErrInvalidTransition, m.state, next)
	}
	m.history = append(m.history, Transition{From: m.state, To: next, At: m.now()})
	m.state = next
	return nil
}

// Fail moves the machine to failed unless it is already terminal.
func (m *Machine) Fail() {
	_ = m.To(StateFailed)
}

// History returns the recorded transitions.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}
