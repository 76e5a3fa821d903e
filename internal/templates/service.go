package templates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opencode-ai/reportsmith/internal/db"
	"github.com/opencode-ai/reportsmith/internal/events"
	"github.com/opencode-ai/reportsmith/internal/logging"
	"github.com/opencode-ai/reportsmith/internal/models"
	"github.com/opencode-ai/reportsmith/internal/render"
	"github.com/rs/zerolog"
)

// Service errors.
var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrTemplateInactive = errors.New("template is inactive")
	ErrInvalidTemplate  = errors.New("invalid template")
)

// Service manages stored templates and renders them.
type Service struct {
	repo   *db.TemplateRepository
	events events.Repository
	logger zerolog.Logger
}

// NewService creates a new Service. eventRepo may be nil to skip the audit log.
func NewService(repo *db.TemplateRepository, eventRepo events.Repository) *Service {
	return &Service{
		repo:   repo,
		events: eventRepo,
		logger: logging.Component("templates"),
	}
}

// Create validates and stores a new template. The body must compile.
func (s *Service) Create(ctx context.Context, tmpl *models.Template) (*models.Template, error) {
	if err := tmpl.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	if _, err := render.Compile(tmpl.Body); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}

	if err := s.repo.Create(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	s.logger.Info().Str("template_id", tmpl.ID).Str("title", tmpl.Title).Msg("template created")
	s.recordChange(ctx, models.EventTypeTemplateCreated, tmpl, nil)
	return tmpl, nil
}

// Get returns a template by ID, whether or not it is active.
func (s *Service) Get(ctx context.Context, id string) (*models.Template, error) {
	tmpl, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return tmpl, nil
}

// Update applies a partial update. A new body must compile; on failure the
// stored template is left untouched.
func (s *Service) Update(ctx context.Context, id string, update models.TemplateUpdate) (*models.Template, error) {
	if update.Body != nil {
		if _, err := render.Compile(*update.Body); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
		}
	}

	tmpl, err := s.repo.Update(ctx, id, update)
	if err != nil {
		return nil, mapRepoError(err)
	}

	if !update.IsEmpty() {
		s.logger.Info().Str("template_id", id).Strs("fields", update.Fields()).Msg("template updated")
		s.recordChange(ctx, models.EventTypeTemplateUpdated, tmpl, update.Fields())
	}
	return tmpl, nil
}

// Delete soft-deletes a template.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return mapRepoError(err)
	}

	s.logger.Info().Str("template_id", id).Msg("template deleted")
	if tmpl, err := s.repo.Get(ctx, id); err == nil {
		s.recordChange(ctx, models.EventTypeTemplateDeleted, tmpl, nil)
	}
	return nil
}

// Restore reactivates a soft-deleted template.
func (s *Service) Restore(ctx context.Context, id string) (*models.Template, error) {
	tmpl, err := s.repo.SetActive(ctx, id, true)
	if err != nil {
		return nil, mapRepoError(err)
	}

	s.logger.Info().Str("template_id", id).Msg("template restored")
	s.recordChange(ctx, models.EventTypeTemplateRestored, tmpl, nil)
	return tmpl, nil
}

// ListResult is one page of templates plus the unpaged total.
type ListResult struct {
	Templates []*models.Template `json:"templates"`
	Total     int                `json:"total"`
	Page      int                `json:"page,omitempty"`
	PerPage   int                `json:"per_page,omitempty"`
}

// List returns templates matching opts.
func (s *Service) List(ctx context.Context, opts models.TemplateListOptions) (*ListResult, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	templates, err := s.repo.List(ctx, normalized)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.Count(ctx, normalized)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Templates: templates,
		Total:     total,
		Page:      normalized.Page,
		PerPage:   normalized.PerPage,
	}, nil
}

// Variables lists the free variable names a stored template needs.
func (s *Service) Variables(ctx context.Context, id string) ([]string, error) {
	tmpl, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return render.Variables(tmpl.Body)
}

// Render renders a stored, active template. The outcome is recorded in the
// event log.
func (s *Service) Render(ctx context.Context, id string, vars map[string]any) (string, error) {
	tmpl, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !tmpl.Active {
		return "", fmt.Errorf("%w: %s", ErrTemplateInactive, id)
	}

	start := time.Now()
	compiled, err := render.Compile(tmpl.Body)
	if err != nil {
		s.recordRenderFailure(ctx, id, err)
		return "", fmt.Errorf("render template %s: %w", id, err)
	}
	out, err := compiled.Execute(vars)
	if err != nil {
		s.recordRenderFailure(ctx, id, err)
		return "", fmt.Errorf("render template %s: %w", id, err)
	}
	elapsed := time.Since(start)

	s.logger.Debug().
		Str("template_id", id).
		Int("output_bytes", len(out)).
		Dur("elapsed", elapsed).
		Msg("template rendered")

	if s.events != nil {
		if err := events.LogTemplateRendered(ctx, s.events, id, compiled.Variables(), out, elapsed); err != nil {
			s.logger.Warn().Err(err).Str("template_id", id).Msg("failed to record render event")
		}
	}
	return out, nil
}

// RenderBody renders an unsaved body. Nothing is recorded.
func (s *Service) RenderBody(ctx context.Context, body string, vars map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return render.Render(body, vars)
}

// RenderDefinition renders a definition. Its sample variables fill in any
// name vars leaves unbound.
func RenderDefinition(def *Definition, vars map[string]any) (string, error) {
	if def == nil {
		return "", fmt.Errorf("definition is required")
	}
	out, err := render.Render(def.Body, MergeBindings(def.Variables, vars))
	if err != nil {
		return "", fmt.Errorf("render definition %q: %w", def.Title, err)
	}
	return out, nil
}

// ImportResult reports what Import did.
type ImportResult struct {
	Created []*models.Template `json:"created"`
	Skipped []string           `json:"skipped,omitempty"`
}

// Import stores each definition as a template owned by userID, skipping
// titles the user already has.
func (s *Service) Import(ctx context.Context, userID string, defs []*Definition) (*ImportResult, error) {
	existing, err := s.repo.List(ctx, models.TemplateListOptions{UserID: userID})
	if err != nil {
		return nil, err
	}
	titles := make(map[string]struct{}, len(existing))
	for _, tmpl := range existing {
		titles[tmpl.Title] = struct{}{}
	}

	result := &ImportResult{Created: []*models.Template{}}
	for _, def := range defs {
		if _, ok := titles[def.Title]; ok {
			result.Skipped = append(result.Skipped, def.Title)
			continue
		}
		tmpl, err := s.Create(ctx, &models.Template{
			UserID:       userID,
			Title:        def.Title,
			Body:         def.Body,
			Instructions: def.Instructions,
		})
		if err != nil {
			return result, fmt.Errorf("import %q: %w", def.Title, err)
		}
		titles[def.Title] = struct{}{}
		result.Created = append(result.Created, tmpl)
	}

	return result, nil
}

func (s *Service) recordChange(ctx context.Context, eventType models.EventType, tmpl *models.Template, fields []string) {
	if s.events == nil {
		return
	}
	if err := events.LogTemplateChanged(ctx, s.events, eventType, tmpl, fields); err != nil {
		s.logger.Warn().Err(err).Str("template_id", tmpl.ID).Msg("failed to record template event")
	}
}

func (s *Service) recordRenderFailure(ctx context.Context, id string, renderErr error) {
	s.logger.Debug().Err(renderErr).Str("template_id", id).Str("kind", render.KindName(renderErr)).Msg("render failed")
	if s.events == nil {
		return
	}
	if err := events.LogTemplateRenderFailed(ctx, s.events, id, renderErr); err != nil {
		s.logger.Warn().Err(err).Str("template_id", id).Msg("failed to record render event")
	}
}

func mapRepoError(err error) error {
	switch {
	case errors.Is(err, db.ErrTemplateNotFound):
		return ErrTemplateNotFound
	case errors.Is(err, db.ErrInvalidTemplate):
		return fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	default:
		return err
	}
}
