package derive

import (
	"testing"
	"time"

	"asistencia/checador-terminal/internal/models"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func shift(id int64, start string, status string) models.WorkShiftSession {
	return models.WorkShiftSession{
		ShiftDetailID:  id,
		ScheduledStart: start,
		ScheduledEnd:   "23:59:00",
		Status:         status,
	}
}

func withActualStart(s models.WorkShiftSession, t time.Time) models.WorkShiftSession {
	s.ActualStart = &t
	return s
}

func withActualEnd(s models.WorkShiftSession, t time.Time) models.WorkShiftSession {
	s.ActualEnd = &t
	return s
}

func checkResult(t *testing.T, got Result, wantID *int64, wantAction string) {
	t.Helper()
	if wantID == nil {
		if got.ActiveSessionID != nil {
			t.Errorf("expected no active session, got %d", *got.ActiveSessionID)
		}
	} else {
		if got.ActiveSessionID == nil {
			t.Fatalf("expected active session %d, got nil", *wantID)
		}
		if *got.ActiveSessionID != *wantID {
			t.Errorf("expected active session %d, got %d", *wantID, *got.ActiveSessionID)
		}
	}
	if got.Action != wantAction {
		t.Errorf("expected action %q, got %q", wantAction, got.Action)
	}
}

func id(v int64) *int64 { return &v }

func TestActiveSession_EmptyList(t *testing.T) {
	checkResult(t, ActiveSession(nil, baseTime), nil, models.ActionNone)
	checkResult(t, ActiveSession([]models.WorkShiftSession{}, baseTime), nil, models.ActionNone)
}

func TestActiveSession_AllCompleted(t *testing.T) {
	shifts := []models.WorkShiftSession{
		withActualEnd(shift(1, "08:00:00", models.ShiftCompleted), baseTime.Add(-3*time.Hour)),
		withActualEnd(shift(2, "12:00:00", models.ShiftCompleted), baseTime.Add(-1*time.Hour)),
	}
	checkResult(t, ActiveSession(shifts, baseTime), nil, models.ActionAllComplete)
}

func TestActiveSession_RecentlyCompletedRetained(t *testing.T) {
	shifts := []models.WorkShiftSession{
		withActualEnd(shift(1, "08:00:00", models.ShiftCompleted), baseTime.Add(-2*time.Minute)),
		shift(2, "14:00:00", models.ShiftPending),
	}
	got := ActiveSession(shifts, baseTime)
	checkResult(t, got, id(1), models.ActionAllComplete)
	if got.JustCompletedSessionID == nil || *got.JustCompletedSessionID != 1 {
		t.Errorf("expected just-completed session 1, got %v", got.JustCompletedSessionID)
	}
}

func TestActiveSession_RetentionWindowExpired(t *testing.T) {
	shifts := []models.WorkShiftSession{
		withActualEnd(shift(1, "08:00:00", models.ShiftCompleted), baseTime.Add(-6*time.Minute)),
		shift(2, "14:00:00", models.ShiftPending),
	}
	// Past the window the pending shift takes over
	checkResult(t, ActiveSession(shifts, baseTime), id(2), models.ActionEntry)
}

func TestActiveSession_InProgressWins(t *testing.T) {
	tests := []struct {
		name   string
		status string
	}{
		{"in progress", models.ShiftInProgress},
		{"late", models.ShiftLate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shifts := []models.WorkShiftSession{
				withActualEnd(shift(1, "08:00:00", models.ShiftCompleted), baseTime.Add(-3*time.Hour)),
				withActualStart(shift(12, "12:00:00", tt.status), baseTime.Add(-30*time.Minute)),
				shift(3, "18:00:00", models.ShiftPending),
			}
			checkResult(t, ActiveSession(shifts, baseTime), id(12), models.ActionExit)
		})
	}
}

func TestActiveSession_EarliestPendingSelected(t *testing.T) {
	// Deliberately out of order: the sort must pick the 09:00 shift
	shifts := []models.WorkShiftSession{
		shift(3, "16:00:00", models.ShiftPending),
		shift(2, "09:00:00", models.ShiftPending),
	}
	checkResult(t, ActiveSession(shifts, baseTime), id(2), models.ActionEntry)
}

func TestActiveSession_OrderIndependence(t *testing.T) {
	a := shift(1, "08:00:00", models.ShiftPending)
	b := shift(2, "12:00:00", models.ShiftPending)
	c := shift(3, "18:00:00", models.ShiftPending)

	forward := ActiveSession([]models.WorkShiftSession{a, b, c}, baseTime)
	reverse := ActiveSession([]models.WorkShiftSession{c, b, a}, baseTime)

	if *forward.ActiveSessionID != *reverse.ActiveSessionID || forward.Action != reverse.Action {
		t.Errorf("derivation depends on input order: %v vs %v", forward, reverse)
	}
}

func TestActiveSession_FallbackUnfinishedShift(t *testing.T) {
	// An ABSENT_EXIT shift with a recorded start falls through rules 1-4
	started := withActualStart(shift(5, "08:00:00", models.ShiftAbsentExit), baseTime.Add(-4*time.Hour))
	checkResult(t, ActiveSession([]models.WorkShiftSession{started}, baseTime), id(5), models.ActionExit)

	// Same status without a recorded start recommends entry
	checkResult(t, ActiveSession([]models.WorkShiftSession{shift(6, "08:00:00", models.ShiftAbsentEntry)}, baseTime), id(6), models.ActionEntry)
}

func TestActiveSession_CompletedRetentionScenario(t *testing.T) {
	// Snapshot shows shift 12 in progress
	inProgress := []models.WorkShiftSession{
		withActualStart(shift(12, "08:00:00", models.ShiftInProgress), baseTime.Add(-2*time.Hour)),
		shift(13, "16:00:00", models.ShiftPending),
	}
	checkResult(t, ActiveSession(inProgress, baseTime), id(12), models.ActionExit)

	// A later snapshot shows it completed two minutes ago: retention keeps it
	completed := []models.WorkShiftSession{
		withActualEnd(shift(12, "08:00:00", models.ShiftCompleted), baseTime.Add(-2*time.Minute)),
		shift(13, "16:00:00", models.ShiftPending),
	}
	checkResult(t, ActiveSession(completed, baseTime), id(12), models.ActionAllComplete)

	// Six minutes on, the pending shift takes over
	checkResult(t, ActiveSession(completed, baseTime.Add(4*time.Minute)), id(13), models.ActionEntry)
}
