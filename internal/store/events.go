package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// DapEvent is one recorded lifecycle transition.
type DapEvent struct {
	ID         int64
	Name       string
	Status     string
	InstanceID string
	Message    string
	CreatedAt  time.Time
}

// RecordDapEvent appends a lifecycle event for a dap.
func (s *Store) RecordDapEvent(ctx context.Context, name, status, instanceID, message string) error {
	return s.withWriteTx(ctx, "RecordDapEvent", func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339Nano)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO dap_events (name, status, instance_id, message, created_at) VALUES (?, ?, ?, ?, ?)`,
			name, status, instanceID, message, now,
		)
		if err != nil {
			return fmt.Errorf("insert dap event for %q: %w", name, err)
		}
		return nil
	})
}

// ListDapEvents returns recorded events newest first. An empty name selects
// all daps; limit <= 0 means no limit.
func (s *Store) ListDapEvents(ctx context.Context, name string, limit int) ([]DapEvent, error) {
	query := `SELECT id, name, status, instance_id, message, created_at FROM dap_events`
	args := make([]any, 0, 2)
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dap events: %w", err)
	}
	defer rows.Close()

	result := make([]DapEvent, 0)
	for rows.Next() {
		var evt DapEvent
		var createdAt string
		if err := rows.Scan(&evt.ID, &evt.Name, &evt.Status, &evt.InstanceID, &evt.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("scan dap event: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			evt.CreatedAt = t
		} else {
			log.Printf("[Store] dap event %d: invalid created_at %q", evt.ID, createdAt)
		}
		result = append(result, evt)
	}
	return result, rows.Err()
}

// DeleteDapEvents removes all recorded events for a dap. Returns
// NotFoundError when no events exist for that name.
func (s *Store) DeleteDapEvents(ctx context.Context, name string) error {
	return s.withWriteTx(ctx, "DeleteDapEvents", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM dap_events WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("delete dap events for %q: %w", name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete dap events for %q rows affected: %w", name, err)
		}
		if n == 0 {
			return NotFoundError{Entity: "dap events", Key: name}
		}
		return nil
	})
}
