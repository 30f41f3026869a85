package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEventNotFound is returned when an event ID does not exist.
var ErrEventNotFound = errors.New("store: event not found")

// Event is one calendar event.
type Event struct {
	ID          string
	Title       string
	Description string
	Location    string
	StartsAt    time.Time
	EndsAt      time.Time
	Recurring   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventUpdate holds the fields of an event that may be modified. Nil fields
// are left unchanged.
type EventUpdate struct {
	Title       *string
	Description *string
	Location    *string
}

// Empty reports whether the update would change nothing.
func (u EventUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Location == nil
}

// CreateEvent inserts a new event, assigning it an ID when empty, and
// returns the stored record.
func (s *Store) CreateEvent(ctx context.Context, ev Event) (Event, error) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	now := time.Now()
	ev.CreatedAt = now
	ev.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_events (id, title, description, location, starts_at, ends_at, recurring, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Title, ev.Description, ev.Location, ev.StartsAt, ev.EndsAt, boolToInt(ev.Recurring), ev.CreatedAt, ev.UpdatedAt)
	if err != nil {
		return Event{}, fmt.Errorf("failed to create event: %w", err)
	}
	return ev, nil
}

// SearchEvents returns events whose title contains query (case-insensitive),
// ordered by start time.
func (s *Store) SearchEvents(ctx context.Context, query string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, location, starts_at, ends_at, recurring, created_at, updated_at
		FROM calendar_events
		WHERE title LIKE ? COLLATE NOCASE
		ORDER BY starts_at
		LIMIT 100
	`, "%"+strings.TrimSpace(query)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to search events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListEvents returns events overlapping the [from, to] interval, ordered by
// start time.
func (s *Store) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, location, starts_at, ends_at, recurring, created_at, updated_at
		FROM calendar_events
		WHERE starts_at <= ? AND ends_at >= ?
		ORDER BY starts_at
		LIMIT 200
	`, to, from)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ModifyEvent applies upd to the event with the given ID.
func (s *Store) ModifyEvent(ctx context.Context, id string, upd EventUpdate) error {
	if upd.Empty() {
		return nil
	}

	set := []string{"updated_at = ?"}
	args := []any{time.Now()}
	if upd.Title != nil {
		set = append(set, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Description != nil {
		set = append(set, "description = ?")
		args = append(args, *upd.Description)
	}
	if upd.Location != nil {
		set = append(set, "location = ?")
		args = append(args, *upd.Location)
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE calendar_events SET "+strings.Join(set, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to modify event: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return nil
}

// DeleteEvent removes the event with the given ID.
func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM calendar_events WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return nil
}

// scanEvents drains rows into a slice of events.
func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var ev Event
		var recurring int
		if err := rows.Scan(
			&ev.ID, &ev.Title, &ev.Description, &ev.Location,
			&ev.StartsAt, &ev.EndsAt, &recurring, &ev.CreatedAt, &ev.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Recurring = recurring != 0
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
