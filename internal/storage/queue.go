package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// AddToSyncQueue inserts a pending outbox row and returns its queue id.
// Payload must be the JSON snapshot produced by the payload codec.
func (s *Store) AddToSyncQueue(actionType, payload string) (int64, error) {
	if actionType == "" {
		return 0, fmt.Errorf("queue action type is required")
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		INSERT INTO sync_queue (action_type, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		actionType, payload, QueuePending, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("enqueueing %s: %w", actionType, err)
	}
	return res.LastInsertId()
}

const queueColumns = "id, action_type, payload, status, error_message, created_at, updated_at"

func scanQueueItem(row interface{ Scan(...any) error }) (SyncQueueItem, error) {
	var item SyncQueueItem
	var errMsg sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&item.ID, &item.ActionType, &item.Payload, &item.Status, &errMsg, &createdAt, &updatedAt); err != nil {
		return SyncQueueItem{}, err
	}
	item.ErrorMessage = errMsg.String
	var err error
	if item.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return SyncQueueItem{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if item.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return SyncQueueItem{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return item, nil
}

// PendingSyncItems returns pending outbox rows oldest first, bounded by
// limit. The id tiebreak keeps FIFO order for rows created within the same
// second.
func (s *Store) PendingSyncItems(limit int) ([]SyncQueueItem, error) {
	rows, err := s.db.Query(`
		SELECT `+queueColumns+` FROM sync_queue
		WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		QueuePending, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SyncQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

// RecentSyncItems returns the newest outbox rows regardless of status, for
// diagnostics.
func (s *Store) RecentSyncItems(limit int) ([]SyncQueueItem, error) {
	rows, err := s.db.Query(`
		SELECT `+queueColumns+` FROM sync_queue
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SyncQueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

// GetSyncItem returns a single outbox row by queue id.
func (s *Store) GetSyncItem(id int64) (SyncQueueItem, error) {
	item, err := scanQueueItem(s.db.QueryRow("SELECT "+queueColumns+" FROM sync_queue WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return SyncQueueItem{}, ErrNotFound
	}
	return item, err
}

// UpdateSyncItemStatus transitions one queue row to the given status.
// Re-applying the same terminal status is a no-op, not an error.
func (s *Store) UpdateSyncItemStatus(id int64, status, errorMessage string) error {
	if status != QueueSuccess && status != QueueError && status != QueuePending {
		return fmt.Errorf("invalid queue status %q", status)
	}
	res, err := s.db.Exec(`
		UPDATE sync_queue SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, nullStr(errorMessage), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating queue item %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PendingSyncCount returns the number of pending outbox rows. Cheap enough
// for the UI badge to poll.
func (s *Store) PendingSyncCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM sync_queue WHERE status = ?", QueuePending).Scan(&count)
	return count, err
}
