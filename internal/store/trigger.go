package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/appointments/internal/model"
)

// TriggerStore persists scheduled reminder triggers, one row per appointment.
// Timestamps are stored as unix milliseconds.
type TriggerStore struct {
	db *sql.DB
}

func NewTriggerStore(db *sql.DB) *TriggerStore {
	return &TriggerStore{db: db}
}

const triggerColumns = `appointment_id, channel_id, title, body, fire_at, fired_at, created_at`

// Upsert stores t, replacing any trigger for the same appointment. A replaced
// trigger becomes pending again.
func (s *TriggerStore) Upsert(t model.ScheduledTrigger) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO scheduled_triggers (appointment_id, channel_id, title, body, fire_at, fired_at, created_at)
		 VALUES (?, ?, ?, ?, ?, NULL, ?)
		 ON CONFLICT(appointment_id) DO UPDATE SET
		   channel_id = excluded.channel_id, title = excluded.title, body = excluded.body,
		   fire_at = excluded.fire_at, fired_at = NULL, created_at = excluded.created_at`,
		t.AppointmentID, t.ChannelID, t.Title, t.Body, t.FireAt.UnixMilli(), t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert trigger: %w", err)
	}
	return nil
}

// GetByID returns the trigger for an appointment, or nil if there is none.
func (s *TriggerStore) GetByID(appointmentID string) (*model.ScheduledTrigger, error) {
	row := s.db.QueryRow(`SELECT `+triggerColumns+` FROM scheduled_triggers WHERE appointment_id = ?`, appointmentID)
	t, err := scanTrigger(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trigger: %w", err)
	}
	return t, nil
}

// ListPending returns triggers that have not fired, soonest first.
func (s *TriggerStore) ListPending() ([]model.ScheduledTrigger, error) {
	rows, err := s.db.Query(
		`SELECT ` + triggerColumns + ` FROM scheduled_triggers
		 WHERE fired_at IS NULL ORDER BY fire_at, appointment_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending triggers: %w", err)
	}
	defer rows.Close()
	return scanTriggers(rows)
}

// ListDue returns pending triggers whose fire time is at or before now.
func (s *TriggerStore) ListDue(now time.Time) ([]model.ScheduledTrigger, error) {
	rows, err := s.db.Query(
		`SELECT `+triggerColumns+` FROM scheduled_triggers
		 WHERE fired_at IS NULL AND fire_at <= ? ORDER BY fire_at, appointment_id`,
		now.UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("list due triggers: %w", err)
	}
	defer rows.Close()
	return scanTriggers(rows)
}

// MarkFired records that the trigger fired. It only applies while the row still
// holds the pending trigger due at fireAt, so a trigger replaced or cancelled
// after it was listed is left alone. The result reports whether a row changed.
func (s *TriggerStore) MarkFired(appointmentID string, fireAt, firedAt time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE scheduled_triggers SET fired_at = ?
		 WHERE appointment_id = ? AND fire_at = ? AND fired_at IS NULL`,
		firedAt.UnixMilli(), appointmentID, fireAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("mark trigger fired: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark trigger fired: %w", err)
	}
	return n > 0, nil
}

// Delete removes the trigger for an appointment. Deleting a missing row is not an error.
func (s *TriggerStore) Delete(appointmentID string) error {
	_, err := s.db.Exec(`DELETE FROM scheduled_triggers WHERE appointment_id = ?`, appointmentID)
	if err != nil {
		return fmt.Errorf("delete trigger: %w", err)
	}
	return nil
}

// DeleteAll removes every trigger and returns how many were removed.
func (s *TriggerStore) DeleteAll() (int64, error) {
	result, err := s.db.Exec(`DELETE FROM scheduled_triggers`)
	if err != nil {
		return 0, fmt.Errorf("delete all triggers: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// CleanupFired deletes fired triggers that fired before the given time.
func (s *TriggerStore) CleanupFired(before time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM scheduled_triggers WHERE fired_at IS NOT NULL AND fired_at < ?`,
		before.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup fired triggers: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrigger(row rowScanner) (*model.ScheduledTrigger, error) {
	var t model.ScheduledTrigger
	var fireAt, createdAt int64
	var firedAt sql.NullInt64
	if err := row.Scan(&t.AppointmentID, &t.ChannelID, &t.Title, &t.Body, &fireAt, &firedAt, &createdAt); err != nil {
		return nil, err
	}
	t.FireAt = time.UnixMilli(fireAt)
	t.CreatedAt = time.UnixMilli(createdAt)
	if firedAt.Valid {
		ft := time.UnixMilli(firedAt.Int64)
		t.FiredAt = &ft
	}
	return &t, nil
}

func scanTriggers(rows *sql.Rows) ([]model.ScheduledTrigger, error) {
	var triggers []model.ScheduledTrigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		triggers = append(triggers, *t)
	}
	return triggers, rows.Err()
}
