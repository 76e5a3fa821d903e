package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opencode-ai/reportsmith/internal/models"
)

// Event repository errors.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrInvalidEvent  = errors.New("invalid event")
)

const (
	eventColumns     = `id, timestamp, type, entity_type, entity_id, payload_json, metadata_json`
	defaultEventPage = 100
)

// EventRepository stores the append-only template audit log.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// EventQuery selects events in (timestamp, id) order. Nil filters match all.
type EventQuery struct {
	Type       *models.EventType
	EntityType *models.EntityType
	EntityID   *string
	Since      *time.Time // inclusive
	Until      *time.Time // exclusive
	Cursor     string     // ID of the last event already seen
	Limit      int
}

// EventPage is one page of a Query. NextCursor is empty on the last page.
type EventPage struct {
	Events     []*models.Event
	NextCursor string
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Create records a single event, filling in its ID and timestamp if unset.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	row, err := newEventRow(event)
	if err != nil {
		return err
	}
	return row.insert(ctx, r.db)
}

// Append records several events in one transaction. Nothing is written if
// any event is invalid.
func (r *EventRepository) Append(ctx context.Context, events ...*models.Event) error {
	rows := make([]eventRow, 0, len(events))
	for _, event := range events {
		row, err := newEventRow(event)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		if err := row.insert(ctx, tx); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

// Get retrieves an event by ID.
func (r *EventRepository) Get(ctx context.Context, id string) (*models.Event, error) {
	events, err := r.queryEvents(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrEventNotFound
	}
	return events[0], nil
}

// Query returns the page of events after q.Cursor that match q.
func (r *EventRepository) Query(ctx context.Context, q EventQuery) (*EventPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultEventPage
	}

	where, args := eventFilter(q)
	// fetch one extra row to learn whether another page exists
	events, err := r.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events`+where+` ORDER BY timestamp, id LIMIT ?`,
		append(args, limit+1)...)
	if err != nil {
		return nil, err
	}

	if len(events) <= limit {
		return &EventPage{Events: events}, nil
	}
	events = events[:limit]
	return &EventPage{Events: events, NextCursor: events[limit-1].ID}, nil
}

// ListByEntity returns an entity's history, newest first.
func (r *EventRepository) ListByEntity(ctx context.Context, entityType models.EntityType, entityID string, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = defaultEventPage
	}
	return r.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE entity_type = ? AND entity_id = ? ORDER BY timestamp DESC, id DESC LIMIT ?`,
		string(entityType), entityID, limit)
}

func eventFilter(q EventQuery) (string, []any) {
	where := ` WHERE 1=1`
	args := []any{}

	if q.Type != nil {
		where += ` AND type = ?`
		args = append(args, string(*q.Type))
	}
	if q.EntityType != nil {
		where += ` AND entity_type = ?`
		args = append(args, string(*q.EntityType))
	}
	if q.EntityID != nil {
		where += ` AND entity_id = ?`
		args = append(args, *q.EntityID)
	}
	if q.Since != nil {
		where += ` AND timestamp >= ?`
		args = append(args, formatTime(*q.Since))
	}
	if q.Until != nil {
		where += ` AND timestamp < ?`
		args = append(args, formatTime(*q.Until))
	}
	if q.Cursor != "" {
		where += ` AND (timestamp, id) > (SELECT timestamp, id FROM events WHERE id = ?)`
		args = append(args, q.Cursor)
	}

	return where, args
}

func (r *EventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]*models.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var row eventRow
		if err := rows.Scan(&row.id, &row.timestamp, &row.eventType, &row.entityType, &row.entityID, &row.payload, &row.metadata); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event := row.event()
		if row.metadata.Valid {
			if err := json.Unmarshal([]byte(row.metadata.String), &event.Metadata); err != nil {
				r.db.logger.Warn().Err(err).Str("event_id", event.ID).Msg("ignoring unreadable event metadata")
			}
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// eventRow is the stored form of an event.
type eventRow struct {
	id         string
	timestamp  string
	eventType  string
	entityType string
	entityID   string
	payload    sql.NullString
	metadata   sql.NullString
}

// newEventRow validates event, assigns its ID and timestamp when unset, and
// encodes it for storage.
func newEventRow(event *models.Event) (eventRow, error) {
	if event == nil {
		return eventRow{}, fmt.Errorf("%w: event is nil", ErrInvalidEvent)
	}
	if err := event.Validate(); err != nil {
		return eventRow{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Timestamp = event.Timestamp.UTC()

	row := eventRow{
		id:         event.ID,
		timestamp:  formatTime(event.Timestamp),
		eventType:  string(event.Type),
		entityType: string(event.EntityType),
		entityID:   event.EntityID,
	}
	if len(event.Payload) > 0 {
		row.payload = sql.NullString{String: string(event.Payload), Valid: true}
	}
	if event.Metadata != nil {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return eventRow{}, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		row.metadata = sql.NullString{String: string(data), Valid: true}
	}
	return row, nil
}

func (row eventRow) insert(ctx context.Context, exec execer) error {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		row.id, row.timestamp, row.eventType, row.entityType, row.entityID, row.payload, row.metadata)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", row.id, err)
	}
	return nil
}

func (row eventRow) event() *models.Event {
	event := &models.Event{
		ID:         row.id,
		Timestamp:  parseTime(row.timestamp),
		Type:       models.EventType(row.eventType),
		EntityType: models.EntityType(row.entityType),
		EntityID:   row.entityID,
	}
	if row.payload.Valid {
		event.Payload = json.RawMessage(row.payload.String)
	}
	return event
}
