package models

import "time"

// WorkShiftSession is one scheduled work interval (jornada) for the current
// day, with its own entry/exit expectations and status.
type WorkShiftSession struct {
	ShiftDetailID          int64      `json:"jornadaDetalleId"`
	ScheduleID             int64      `json:"horarioId"`
	ShiftNumber            int        `json:"numeroJornada"`
	ScheduledStart         string     `json:"horaEntrada"` // time of day, HH:MM:SS
	ScheduledEnd           string     `json:"horaSalida"`
	ActualStart            *time.Time `json:"entradaReal,omitempty"`
	ActualEnd              *time.Time `json:"salidaReal,omitempty"`
	Status                 string     `json:"estado"`
	PreliminaryLateMinutes *int       `json:"minutosRetardo,omitempty"`
}

// Shift status constants matching the backend enum. The ABSENT_* statuses
// are advisory until wall-clock time passes the scheduled end.
const (
	ShiftPending       = "PENDING"
	ShiftInProgress    = "IN_PROGRESS"
	ShiftCompleted     = "COMPLETED"
	ShiftLate          = "LATE"
	ShiftLateNoCheckout = "LATE_NO_CHECKOUT"
	ShiftAbsentEntry   = "ABSENT_ENTRY"
	ShiftAbsentExit    = "ABSENT_EXIT"
	ShiftAbsent        = "ABSENT"
)

// Employee is the backend employee record as delivered in snapshots and
// fetches. Only the fields the terminal displays.
type Employee struct {
	ID         int64  `json:"id"`
	FullName   string `json:"nombreCompleto"`
	EmployeeNo string `json:"numeroEmpleado,omitempty"`
	Photo      string `json:"foto,omitempty"`
}

// AttendanceSnapshot is the full, backend-authoritative picture of an
// employee's day. It replaces the previous snapshot wholesale and is
// authoritative over locally derived values for one reconciliation pass.
type AttendanceSnapshot struct {
	Type                   string             `json:"type"` // FULL_ATTENDANCE_STATE_UPDATE
	Employee               *Employee          `json:"empleado,omitempty"`
	Shifts                 []WorkShiftSession `json:"jornadas"`
	RecommendedAction      string             `json:"accionRecomendada,omitempty"`
	ActiveSessionID        *int64             `json:"jornadaActivaId,omitempty"`
	JustCompletedSessionID *int64             `json:"jornadaRecienCompletadaId,omitempty"`
}

// MessageTypeFullState is the discriminant value marking a push message as
// a full snapshot; messages without it are checkin events.
const MessageTypeFullState = "FULL_ATTENDANCE_STATE_UPDATE"

// SessionIdentity binds a reader to one terminal session. A changed
// identity means tear down and recreate, never mutation in place.
type SessionIdentity struct {
	ReaderName string
	SessionID  string
}
