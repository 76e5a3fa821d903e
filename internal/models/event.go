package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType categorizes events in the audit log.
type EventType string

const (
	// Template lifecycle events
	EventTypeTemplateCreated  EventType = "template.created"
	EventTypeTemplateUpdated  EventType = "template.updated"
	EventTypeTemplateDeleted  EventType = "template.deleted"
	EventTypeTemplateRestored EventType = "template.restored"

	// Render events
	EventTypeTemplateRendered     EventType = "template.rendered"
	EventTypeTemplateRenderFailed EventType = "template.render_failed"
)

// EntityType identifies the type of entity an event relates to.
type EntityType string

const (
	EntityTypeTemplate EntityType = "template"
	EntityTypeSystem   EntityType = "system"
)

// Event represents an append-only log entry.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// EntityType identifies what kind of entity this event relates to.
	EntityType EntityType `json:"entity_type"`

	// EntityID is the ID of the related entity.
	EntityID string `json:"entity_id"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Metadata contains additional context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate checks if the event is valid.
func (e *Event) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(string(e.Type)) == "" {
		validation.AddMessage("type", "event type is required")
	}
	if strings.TrimSpace(string(e.EntityType)) == "" {
		validation.AddMessage("entity_type", "entity_type is required")
	}
	if strings.TrimSpace(e.EntityID) == "" {
		validation.AddMessage("entity_id", "entity_id is required")
	}
	return validation.Err()
}

// TemplateChangedPayload is the payload for template lifecycle events.
type TemplateChangedPayload struct {
	UserID string   `json:"user_id"`
	Title  string   `json:"title"`
	Fields []string `json:"fields,omitempty"`
}

// TemplateRenderedPayload is the payload for template.rendered events.
type TemplateRenderedPayload struct {
	Variables   []string `json:"variables,omitempty"`
	OutputBytes int      `json:"output_bytes"`
	Duration    string   `json:"duration"`
}

// TemplateRenderFailedPayload is the payload for template.render_failed events.
type TemplateRenderFailedPayload struct {
	Kind    string `json:"kind"`
	Subject string `json:"subject,omitempty"`
	Error   string `json:"error"`
}
