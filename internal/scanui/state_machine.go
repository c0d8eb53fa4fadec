package scanui

import (
	"sync"

	"go.uber.org/zap"
)

// Phase is the scan UI phase shown by the terminal display.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseScanning Phase = "scanning"
	PhaseReady    Phase = "ready"
	PhaseSuccess  Phase = "success"
	PhaseFailed   Phase = "failed"
)

// Op is a named transition request. Anything else is a no-op.
type Op string

const (
	OpScanning Op = "scanning"
	OpSuccess  Op = "success"
	OpFailed   Op = "failed"
	OpReady    Op = "ready"
	OpIdle     Op = "idle"
)

// Feedback carries the transient display fields for success/failed.
type Feedback struct {
	Message    string
	StatusCode string
	StatusData map[string]interface{}
}

// State is one scan UI state. Transient fields are cleared on every
// transition into ready or idle.
type State struct {
	Phase         Phase
	CustomMessage string
	StatusCode    string
	StatusData    map[string]interface{}
}

// NewState returns the initial idle state.
func NewState() *State {
	return &State{Phase: PhaseIdle}
}

// Apply runs one named transition and returns the resulting state. An
// unrecognized op returns the input state unchanged (same pointer); it
// never panics. The machine holds no timers: auto-return to ready and
// panel clearing are driven externally through these same named ops.
func Apply(s *State, op Op, fb *Feedback) *State {
	switch op {
	case OpScanning:
		return &State{Phase: PhaseScanning}
	case OpReady:
		return &State{Phase: PhaseReady}
	case OpIdle:
		return &State{Phase: PhaseIdle}
	case OpSuccess, OpFailed:
		next := &State{Phase: PhaseSuccess}
		if op == OpFailed {
			next.Phase = PhaseFailed
		}
		if fb != nil {
			next.CustomMessage = fb.Message
			next.StatusCode = fb.StatusCode
			next.StatusData = fb.StatusData
		}
		return next
	default:
		return s
	}
}

// Machine is a thread-safe holder for the current scan UI state. All
// mutation goes through the named transition methods.
type Machine struct {
	mu     sync.RWMutex
	state  *State
	logger *zap.Logger
}

// NewMachine creates a machine in the idle state.
func NewMachine(logger *zap.Logger) *Machine {
	return &Machine{
		state:  NewState(),
		logger: logger,
	}
}

// Current returns the current state.
func (m *Machine) Current() *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// SetScanning clears all transient fields and enters scanning.
func (m *Machine) SetScanning() { m.apply(OpScanning, nil) }

// SetSuccess populates transient fields and enters success.
func (m *Machine) SetSuccess(fb Feedback) { m.apply(OpSuccess, &fb) }

// SetFailed populates transient fields and enters failed.
func (m *Machine) SetFailed(fb Feedback) { m.apply(OpFailed, &fb) }

// SetReady clears transient fields and enters ready.
func (m *Machine) SetReady() { m.apply(OpReady, nil) }

// SetIdle clears transient fields and enters idle.
func (m *Machine) SetIdle() { m.apply(OpIdle, nil) }

// Reset returns the machine to idle, used on reader/session change.
func (m *Machine) Reset() { m.SetIdle() }

func (m *Machine) apply(op Op, fb *Feedback) {
	m.mu.Lock()
	old := m.state.Phase
	m.state = Apply(m.state, op, fb)
	newPhase := m.state.Phase
	m.mu.Unlock()

	if old != newPhase {
		m.logger.Debug("Scan state changed",
			zap.String("old_phase", string(old)),
			zap.String("new_phase", string(newPhase)),
		)
	}
}
