package store

import (
	"context"
	"sync"
	"time"

	"asistencia/checador-terminal/internal/derive"
	"asistencia/checador-terminal/internal/models"

	"go.uber.org/zap"
)

const (
	maxHistoryEntries = 50
	fetchTimeout      = 10 * time.Second
)

// Fetcher loads the backend-side employee day state triggered by immediate
// feedback events
type Fetcher interface {
	FetchEmployee(ctx context.Context, employeeID int64) (*models.Employee, error)
	FetchDayShifts(ctx context.Context, employeeID int64, date time.Time) ([]models.WorkShiftSession, error)
}

// HistoryEntry is one recorded check-in attempt, most recent first.
type HistoryEntry struct {
	Time       time.Time `json:"hora"`
	Action     string    `json:"accion"`
	Success    bool      `json:"exito"`
	EmployeeID *int64    `json:"empleadoId,omitempty"`
	FullName   *string   `json:"nombreCompleto,omitempty"`
	StatusCode string    `json:"codigo"`
}

// StateView is the read-only reconciled terminal state.
type StateView struct {
	Employee               *models.Employee          `json:"empleado,omitempty"`
	Shifts                 []models.WorkShiftSession `json:"jornadas"`
	RecommendedAction      string                    `json:"accionRecomendada"`
	ActiveSessionID        *int64                    `json:"jornadaActivaId,omitempty"`
	JustCompletedSessionID *int64                    `json:"jornadaRecienCompletadaId,omitempty"`
	ConnectionError        string                    `json:"errorConexion,omitempty"`
	DataError              string                    `json:"errorDatos,omitempty"`
	History                []HistoryEntry            `json:"historial"`
}

// Store holds the current employee and today's shift list, reconciled from
// two inputs: full snapshots (backend authoritative, replace wholesale) and
// immediate feedback events (incremental, trigger a debounced day-state
// fetch). Connection and data errors are kept separate so both can show at
// once. Handlers are safe under re-entrancy: a snapshot arriving while a
// feedback-triggered fetch is in flight wins over the fetch result.
type Store struct {
	fetcher  Fetcher
	debounce time.Duration
	logger   *zap.Logger
	nowFn    func() time.Time
	onChange func()

	mu                     sync.Mutex
	employee               *models.Employee
	shifts                 []models.WorkShiftSession
	recommendedAction      string
	activeSessionID        *int64
	justCompletedSessionID *int64
	authoritative          bool
	generation             uint64
	connectionError        string
	dataError              string
	history                []HistoryEntry
	debounceTimer          *time.Timer
	pendingEmployeeID      int64
}

// New creates an empty store. onChange fires after every state mutation and
// may be nil.
func New(fetcher Fetcher, debounce time.Duration, onChange func(), logger *zap.Logger) *Store {
	return &Store{
		fetcher:           fetcher,
		debounce:          debounce,
		logger:            logger,
		nowFn:             time.Now,
		onChange:          onChange,
		recommendedAction: models.ActionNone,
	}
}

// ApplyFullSnapshot replaces employee and shift list atomically. The
// snapshot is externally authoritative: the next derivation pass is
// skipped so locally derived values do not overwrite backend-provided
// ones; the guard is consumed after that one pass.
func (s *Store) ApplyFullSnapshot(snap models.AttendanceSnapshot) {
	s.mu.Lock()

	s.employee = snap.Employee
	s.shifts = snap.Shifts
	s.activeSessionID = snap.ActiveSessionID
	s.justCompletedSessionID = snap.JustCompletedSessionID
	if snap.RecommendedAction != "" {
		s.recommendedAction = snap.RecommendedAction
	}
	s.authoritative = true
	s.generation++
	s.dataError = ""

	s.logger.Info("Applied full attendance snapshot",
		zap.Int("shift_count", len(snap.Shifts)),
		zap.String("recommended_action", s.recommendedAction),
	)

	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()
}

// ApplyImmediateFeedback records a check-in attempt and, when it carries an
// employee id, schedules a debounced fetch of that employee's full day
// state. Rapid repeated events collapse into one fetch.
func (s *Store) ApplyImmediateFeedback(event models.CheckinEvent) {
	s.mu.Lock()

	entry := HistoryEntry{
		Time:       s.nowFn(),
		Action:     event.Action,
		Success:    event.StatusType == models.StatusOK,
		EmployeeID: event.EmployeeID,
		FullName:   event.FullName,
		StatusCode: event.StatusCode,
	}
	s.history = append([]HistoryEntry{entry}, s.history...)
	if len(s.history) > maxHistoryEntries {
		s.history = s.history[:maxHistoryEntries]
	}

	var scheduled bool
	if event.EmployeeID != nil {
		s.pendingEmployeeID = *event.EmployeeID
		if s.debounceTimer != nil {
			s.debounceTimer.Stop()
		}
		generation := s.generation
		employeeID := s.pendingEmployeeID
		s.debounceTimer = time.AfterFunc(s.debounce, func() {
			s.fetchDayState(employeeID, generation)
		})
		scheduled = true
	}

	s.logger.Debug("Applied immediate feedback",
		zap.String("action", event.Action),
		zap.Bool("identified", event.Identified),
		zap.Bool("fetch_scheduled", scheduled),
	)

	s.mu.Unlock()
	s.notify()
}

// fetchDayState loads the employee and shift list after the debounce
// window. A full snapshot that arrived meanwhile bumps the generation and
// the stale result is discarded.
func (s *Store) fetchDayState(employeeID int64, generation uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	employee, err := s.fetcher.FetchEmployee(ctx, employeeID)
	var shifts []models.WorkShiftSession
	if err == nil {
		shifts, err = s.fetcher.FetchDayShifts(ctx, employeeID, s.nowFn())
	}

	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		s.logger.Debug("Discarding stale day-state fetch",
			zap.Int64("employee_id", employeeID),
		)
		return
	}

	if err != nil {
		s.logger.Error("Day-state fetch failed",
			zap.Error(err),
			zap.Int64("employee_id", employeeID),
		)
		s.dataError = "no se pudo cargar la información del empleado"
		s.employee = nil
		s.shifts = nil
		s.activeSessionID = nil
		s.justCompletedSessionID = nil
		s.recommendedAction = models.ActionNone
		s.mu.Unlock()
		s.notify()
		return
	}

	s.dataError = ""
	s.employee = employee
	s.shifts = shifts
	s.recomputeLocked()
	s.mu.Unlock()
	s.notify()
}

// recomputeLocked reruns the active-session derivation unless the store is
// in its one-pass authoritative guard, which it consumes. Caller holds the
// mutex.
func (s *Store) recomputeLocked() {
	if s.authoritative {
		s.authoritative = false
		return
	}

	result := derive.ActiveSession(s.shifts, s.nowFn())
	s.activeSessionID = result.ActiveSessionID
	s.justCompletedSessionID = result.JustCompletedSessionID
	s.recommendedAction = result.Action
}

// SetConnectionError sets or clears ("") the connection error string. Kept
// separate from the data error so both can be shown simultaneously.
func (s *Store) SetConnectionError(msg string) {
	s.mu.Lock()
	changed := s.connectionError != msg
	s.connectionError = msg
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// RecommendedAction returns the current recommended action; used as the
// fallback when a PIN response omits its own.
func (s *Store) RecommendedAction() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recommendedAction
}

// View returns a copy of the reconciled state.
func (s *Store) View() StateView {
	s.mu.Lock()
	defer s.mu.Unlock()

	shifts := make([]models.WorkShiftSession, len(s.shifts))
	copy(shifts, s.shifts)
	history := make([]HistoryEntry, len(s.history))
	copy(history, s.history)

	return StateView{
		Employee:               s.employee,
		Shifts:                 shifts,
		RecommendedAction:      s.recommendedAction,
		ActiveSessionID:        s.activeSessionID,
		JustCompletedSessionID: s.justCompletedSessionID,
		ConnectionError:        s.connectionError,
		DataError:              s.dataError,
		History:                history,
	}
}

// ClearPanel clears the displayed employee and day state, keeping history
// and error strings. Driven by the presenter's panel-clear timer.
func (s *Store) ClearPanel() {
	s.mu.Lock()
	s.employee = nil
	s.shifts = nil
	s.activeSessionID = nil
	s.justCompletedSessionID = nil
	s.recommendedAction = models.ActionNone
	s.generation++
	s.mu.Unlock()
	s.notify()
}

// Reset empties the store on reader/session change.
func (s *Store) Reset() {
	s.mu.Lock()
	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.employee = nil
	s.shifts = nil
	s.activeSessionID = nil
	s.justCompletedSessionID = nil
	s.recommendedAction = models.ActionNone
	s.connectionError = ""
	s.dataError = ""
	s.history = nil
	s.authoritative = false
	s.generation++
	s.mu.Unlock()
	s.notify()
}

// SetNow overrides the clock, for tests.
func (s *Store) SetNow(nowFn func() time.Time) {
	s.mu.Lock()
	s.nowFn = nowFn
	s.mu.Unlock()
}

func (s *Store) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}
