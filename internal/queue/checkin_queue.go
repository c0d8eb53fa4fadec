package queue

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PendingCheckin is one card swipe accepted while the backend was
// unreachable, waiting for retry.
type PendingCheckin struct {
	ID         int64
	Card       int64
	Reader     string
	RetryCount int
}

// CheckinQueue manages the local queue of card swipes pending submission
type CheckinQueue struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCheckinQueue creates a new check-in queue
func NewCheckinQueue(db *sql.DB, logger *zap.Logger) *CheckinQueue {
	return &CheckinQueue{
		db:     db,
		logger: logger,
	}
}

// Enqueue stores a card swipe for later submission
func (cq *CheckinQueue) Enqueue(reader string, card int64) error {
	_, err := cq.db.Exec(`
		INSERT INTO pending_checkins (card, reader, created_at, retry_count)
		VALUES (?, ?, ?, 0)
	`, card, reader, time.Now())
	if err != nil {
		return fmt.Errorf("failed to enqueue checkin: %w", err)
	}

	cq.logger.Debug("Checkin enqueued",
		zap.Int64("card", card),
		zap.String("reader", reader),
	)
	return nil
}

// Dequeue retrieves a batch of pending check-ins, oldest first
func (cq *CheckinQueue) Dequeue(reader string, limit int) ([]PendingCheckin, error) {
	rows, err := cq.db.Query(`
		SELECT id, card, reader, retry_count
		FROM pending_checkins
		WHERE reader = ?
		ORDER BY created_at ASC
		LIMIT ?
	`, reader, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending checkins: %w", err)
	}
	defer rows.Close()

	var pending []PendingCheckin
	for rows.Next() {
		var p PendingCheckin
		if err := rows.Scan(&p.ID, &p.Card, &p.Reader, &p.RetryCount); err != nil {
			cq.logger.Error("Failed to scan row", zap.Error(err))
			continue
		}
		pending = append(pending, p)
	}

	return pending, rows.Err()
}

// Remove removes check-ins from the queue by their IDs
func (cq *CheckinQueue) Remove(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := "DELETE FROM pending_checkins WHERE id IN ("
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += ")"

	result, err := cq.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to remove checkins: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	cq.logger.Debug("Checkins removed from queue",
		zap.Int64("count", rowsAffected),
	)
	return nil
}

// IncrementRetry increments the retry count for check-ins
func (cq *CheckinQueue) IncrementRetry(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	query := "UPDATE pending_checkins SET retry_count = retry_count + 1, last_attempt = ? WHERE id IN ("
	args := make([]interface{}, len(ids)+1)
	args[0] = time.Now()
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i+1] = id
	}
	query += ")"

	if _, err := cq.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to increment retry: %w", err)
	}
	return nil
}

// GetPendingCount returns the number of pending check-ins for a reader
func (cq *CheckinQueue) GetPendingCount(reader string) (int, error) {
	var count int
	err := cq.db.QueryRow(`
		SELECT COUNT(*) FROM pending_checkins WHERE reader = ?
	`, reader).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}
	return count, nil
}

// CleanupOldEntries removes stale check-ins that kept failing. A swipe
// this old no longer reflects a presence worth registering.
func (cq *CheckinQueue) CleanupOldEntries(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	result, err := cq.db.Exec(`
		DELETE FROM pending_checkins
		WHERE created_at < ? AND retry_count > 10
	`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old checkins: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		cq.logger.Info("Cleaned up stale checkins",
			zap.Int64("count", rowsAffected),
		)
	}
	return nil
}
