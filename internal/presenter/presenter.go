package presenter

import (
	"sync"
	"time"

	"asistencia/checador-terminal/internal/scanui"

	"go.uber.org/zap"
)

// Presenter owns every display timer so the scan state machine itself
// stays timer-free: auto-return to ready after a success/failure window
// and clearing of the attendance panel after a longer window. Timer policy
// lives here and is swappable without touching the machine.
type Presenter struct {
	machine          *scanui.Machine
	resultWindow     time.Duration
	panelClearWindow time.Duration
	clearPanel       func()
	logger           *zap.Logger

	mu          sync.Mutex
	resultTimer *time.Timer
	panelTimer  *time.Timer
	stopped     bool
}

// New creates a presenter. clearPanel runs when the panel-clear window
// elapses after a displayed result; it may be nil.
func New(machine *scanui.Machine, resultWindow, panelClearWindow time.Duration, clearPanel func(), logger *zap.Logger) *Presenter {
	return &Presenter{
		machine:          machine,
		resultWindow:     resultWindow,
		panelClearWindow: panelClearWindow,
		clearPanel:       clearPanel,
		logger:           logger,
	}
}

// ShowScanning clears any pending timers and enters scanning.
func (p *Presenter) ShowScanning() {
	p.cancelTimers()
	p.machine.SetScanning()
}

// ShowSuccess displays a successful check-in, auto-returning to ready after
// the result window and clearing the attendance panel after the longer one.
func (p *Presenter) ShowSuccess(fb scanui.Feedback) {
	p.machine.SetSuccess(fb)
	p.armTimers()
}

// ShowFailure displays a failed check-in with the same timer policy.
func (p *Presenter) ShowFailure(fb scanui.Feedback) {
	p.machine.SetFailed(fb)
	p.armTimers()
}

// Ready cancels pending timers and returns the display to ready.
func (p *Presenter) Ready() {
	p.cancelTimers()
	p.machine.SetReady()
}

// Stop cancels all timers; the machine is left as-is.
func (p *Presenter) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.cancelTimers()
	p.logger.Debug("Presenter stopped")
}

func (p *Presenter) armTimers() {
	p.cancelTimers()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}

	p.resultTimer = time.AfterFunc(p.resultWindow, func() {
		p.machine.SetReady()
	})
	p.panelTimer = time.AfterFunc(p.panelClearWindow, func() {
		if p.clearPanel != nil {
			p.clearPanel()
		}
	})
}

func (p *Presenter) cancelTimers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resultTimer != nil {
		p.resultTimer.Stop()
		p.resultTimer = nil
	}
	if p.panelTimer != nil {
		p.panelTimer.Stop()
		p.panelTimer = nil
	}
}
