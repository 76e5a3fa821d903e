// Package events provides helper functions for recording template events.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opencode-ai/reportsmith/internal/models"
	"github.com/opencode-ai/reportsmith/internal/render"
)

// Repository is the minimal interface needed to write events.
type Repository interface {
	Create(ctx context.Context, event *models.Event) error
}

// LogTemplateChanged records a lifecycle event (created, updated, deleted,
// restored) for a template.
func LogTemplateChanged(ctx context.Context, repo Repository, eventType models.EventType, tmpl *models.Template, fields []string) error {
	if tmpl == nil {
		return fmt.Errorf("template is required")
	}

	return logTemplateEvent(ctx, repo, eventType, tmpl.ID, models.TemplateChangedPayload{
		UserID: tmpl.UserID,
		Title:  tmpl.Title,
		Fields: fields,
	})
}

// LogTemplateRendered records a successful render.
func LogTemplateRendered(ctx context.Context, repo Repository, templateID string, variables []string, output string, elapsed time.Duration) error {
	return logTemplateEvent(ctx, repo, models.EventTypeTemplateRendered, templateID, models.TemplateRenderedPayload{
		Variables:   variables,
		OutputBytes: len(output),
		Duration:    elapsed.String(),
	})
}

// LogTemplateRenderFailed records a failed render together with the error
// kind, so failures can be grouped without parsing messages.
func LogTemplateRenderFailed(ctx context.Context, repo Repository, templateID string, renderErr error) error {
	if renderErr == nil {
		return fmt.Errorf("render error is required")
	}

	payload := models.TemplateRenderFailedPayload{
		Kind:  render.KindName(renderErr),
		Error: renderErr.Error(),
	}
	var rerr *render.Error
	if errors.As(renderErr, &rerr) {
		payload.Subject = rerr.Subject
	}

	return logTemplateEvent(ctx, repo, models.EventTypeTemplateRenderFailed, templateID, payload)
}

func logTemplateEvent(ctx context.Context, repo Repository, eventType models.EventType, templateID string, payload any) error {
	if repo == nil {
		return fmt.Errorf("event repository is required")
	}
	if templateID == "" {
		return fmt.Errorf("template id is required")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return repo.Create(ctx, &models.Event{
		Type:       eventType,
		EntityType: models.EntityTypeTemplate,
		EntityID:   templateID,
		Payload:    data,
	})
}
