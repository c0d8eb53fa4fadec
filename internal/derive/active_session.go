package derive

import (
	"sort"
	"time"

	"asistencia/checador-terminal/internal/models"
)

// RetentionWindow is how long a just-completed shift stays "active" so the
// terminal lingers on what the user just did instead of jumping ahead.
const RetentionWindow = 5 * time.Minute

// Result is the outcome of one derivation pass over the day's shift list.
type Result struct {
	ActiveSessionID        *int64
	JustCompletedSessionID *int64
	Action                 string
}

// ActiveSession selects which shift is active right now and what the next
// recommended action is. Pure: for a fixed shift list and wall-clock minute
// the selection is order-independent (shifts are sorted by scheduled start
// before positional rules apply). Priority order, first match wins:
//
//  1. COMPLETED shift whose actual end falls within the retention window
//  2. IN_PROGRESS or LATE shift -> exit
//  3. earliest PENDING shift with no recorded start -> entry
//  4. every shift COMPLETED -> all complete, no active shift
//  5. first non-COMPLETED shift -> entry or exit by recorded start
//  6. empty list -> no action
func ActiveSession(shifts []models.WorkShiftSession, now time.Time) Result {
	if len(shifts) == 0 {
		return Result{Action: models.ActionNone}
	}

	sorted := make([]models.WorkShiftSession, len(shifts))
	copy(sorted, shifts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ScheduledStart != sorted[j].ScheduledStart {
			return sorted[i].ScheduledStart < sorted[j].ScheduledStart
		}
		return sorted[i].ShiftNumber < sorted[j].ShiftNumber
	})

	// Rule 1: linger on a shift completed within the retention window
	for _, s := range sorted {
		if s.Status == models.ShiftCompleted && s.ActualEnd != nil {
			if elapsed := now.Sub(*s.ActualEnd); elapsed >= 0 && elapsed < RetentionWindow {
				id := s.ShiftDetailID
				return Result{
					ActiveSessionID:        &id,
					JustCompletedSessionID: &id,
					Action:                 models.ActionAllComplete,
				}
			}
		}
	}

	// Rule 2: an open shift always means the next move is checking out
	for _, s := range sorted {
		if s.Status == models.ShiftInProgress || s.Status == models.ShiftLate {
			id := s.ShiftDetailID
			return Result{ActiveSessionID: &id, Action: models.ActionExit}
		}
	}

	// Rule 3: earliest pending shift not yet started
	for _, s := range sorted {
		if s.Status == models.ShiftPending && s.ActualStart == nil {
			id := s.ShiftDetailID
			return Result{ActiveSessionID: &id, Action: models.ActionEntry}
		}
	}

	// Rule 4: the day is done
	allCompleted := true
	for _, s := range sorted {
		if s.Status != models.ShiftCompleted {
			allCompleted = false
			break
		}
	}
	if allCompleted {
		return Result{Action: models.ActionAllComplete}
	}

	// Rule 5: fall back to the first unfinished shift
	for _, s := range sorted {
		if s.Status != models.ShiftCompleted {
			id := s.ShiftDetailID
			action := models.ActionEntry
			if s.ActualStart != nil {
				action = models.ActionExit
			}
			return Result{ActiveSessionID: &id, Action: action}
		}
	}

	return Result{Action: models.ActionNone}
}
