package templates

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/opencode-ai/reportsmith/internal/db"
	"github.com/opencode-ai/reportsmith/internal/models"
	"github.com/opencode-ai/reportsmith/internal/render"
	"github.com/stretchr/testify/require"
)

func setupService(t *testing.T) (*Service, *db.EventRepository) {
	t.Helper()

	database, err := db.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.Migrate(context.Background()))

	eventRepo := db.NewEventRepository(database)
	return NewService(db.NewTemplateRepository(database), eventRepo), eventRepo
}

func createTemplate(t *testing.T, svc *Service, body string) *models.Template {
	t.Helper()

	tmpl, err := svc.Create(context.Background(), &models.Template{
		UserID: "user-1",
		Title:  "Report",
		Body:   body,
	})
	require.NoError(t, err)
	return tmpl
}

func entityEvents(t *testing.T, repo *db.EventRepository, id string) []*models.Event {
	t.Helper()

	evts, err := repo.ListByEntity(context.Background(), models.EntityTypeTemplate, id, 100)
	require.NoError(t, err)
	return evts
}

func TestServiceCreateRejectsBadSyntax(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Create(context.Background(), &models.Template{
		UserID: "user-1",
		Title:  "Broken",
		Body:   "{% for x in xs %}unterminated",
	})
	require.ErrorIs(t, err, ErrInvalidTemplate)
	require.ErrorIs(t, err, render.ErrSyntax)

	_, err = svc.Create(context.Background(), &models.Template{Title: "No user", Body: "x"})
	require.ErrorIs(t, err, ErrInvalidTemplate)
}

func TestServiceRender(t *testing.T) {
	svc, eventRepo := setupService(t)
	ctx := context.Background()
	tmpl := createTemplate(t, svc, "Patient {{name}}{% if urgent %} (URGENT){% endif %}")

	out, err := svc.Render(ctx, tmpl.ID, map[string]any{"name": "Ann", "urgent": true})
	require.NoError(t, err)
	require.Equal(t, "Patient Ann (URGENT)", out)

	_, err = svc.Render(ctx, tmpl.ID, map[string]any{"urgent": false})
	require.ErrorIs(t, err, render.ErrUndefinedVariable)

	evts := entityEvents(t, eventRepo, tmpl.ID)
	types := make(map[models.EventType]int)
	for _, evt := range evts {
		types[evt.Type]++
	}
	require.Equal(t, 1, types[models.EventTypeTemplateCreated])
	require.Equal(t, 1, types[models.EventTypeTemplateRendered])
	require.Equal(t, 1, types[models.EventTypeTemplateRenderFailed])

	for _, evt := range evts {
		if evt.Type != models.EventTypeTemplateRenderFailed {
			continue
		}
		var payload models.TemplateRenderFailedPayload
		require.NoError(t, json.Unmarshal(evt.Payload, &payload))
		require.Equal(t, "undefined_variable", payload.Kind)
		require.Equal(t, "name", payload.Subject)
	}
}

func TestServiceRenderInactiveAndMissing(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	tmpl := createTemplate(t, svc, "static")

	require.NoError(t, svc.Delete(ctx, tmpl.ID))
	_, err := svc.Render(ctx, tmpl.ID, nil)
	require.ErrorIs(t, err, ErrTemplateInactive)

	restored, err := svc.Restore(ctx, tmpl.ID)
	require.NoError(t, err)
	require.True(t, restored.Active)

	out, err := svc.Render(ctx, tmpl.ID, nil)
	require.NoError(t, err)
	require.Equal(t, "static", out)

	_, err = svc.Render(ctx, "missing", nil)
	require.ErrorIs(t, err, ErrTemplateNotFound)
	require.ErrorIs(t, svc.Delete(ctx, "missing"), ErrTemplateNotFound)
}

func TestServiceUpdateKeepsStoredBodyOnSyntaxError(t *testing.T) {
	svc, eventRepo := setupService(t)
	ctx := context.Background()
	tmpl := createTemplate(t, svc, "Hello {{name}}")

	broken := "{% if x %}never closed"
	_, err := svc.Update(ctx, tmpl.ID, models.TemplateUpdate{Body: &broken})
	require.ErrorIs(t, err, ErrInvalidTemplate)

	got, err := svc.Get(ctx, tmpl.ID)
	require.NoError(t, err)
	require.Equal(t, "Hello {{name}}", got.Body)

	body := "Bye {{name}}"
	updated, err := svc.Update(ctx, tmpl.ID, models.TemplateUpdate{Body: &body})
	require.NoError(t, err)
	require.Equal(t, body, updated.Body)

	var changed *models.Event
	for _, evt := range entityEvents(t, eventRepo, tmpl.ID) {
		if evt.Type == models.EventTypeTemplateUpdated {
			changed = evt
		}
	}
	require.NotNil(t, changed)
	var payload models.TemplateChangedPayload
	require.NoError(t, json.Unmarshal(changed.Payload, &payload))
	require.Equal(t, []string{"body"}, payload.Fields)
}

func TestServiceListAndVariables(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	first := createTemplate(t, svc, "{% for f in findings %}{{f}} {{unit}}{% endfor %}{{name}}")
	second := createTemplate(t, svc, "other")
	require.NoError(t, svc.Delete(ctx, second.ID))

	result, err := svc.List(ctx, models.TemplateListOptions{ActiveOnly: true, Page: 1})
	require.NoError(t, err)
	require.Equal(t, 1, result.Total)
	require.Equal(t, 20, result.PerPage)
	require.Len(t, result.Templates, 1)
	require.Equal(t, first.ID, result.Templates[0].ID)

	_, err = svc.List(ctx, models.TemplateListOptions{SortOrder: "sideways"})
	require.Error(t, err)

	vars, err := svc.Variables(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"findings", "unit", "name"}, vars)
}

func TestServiceImport(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	createTemplate(t, svc, "already here")

	defs := []*Definition{
		{Title: "Report", Body: "duplicate"},
		{Title: "Knee MRI", Body: "Knee {{side}}", Instructions: "Laterality first"},
	}

	result, err := svc.Import(ctx, "user-1", defs)
	require.NoError(t, err)
	require.Equal(t, []string{"Report"}, result.Skipped)
	require.Len(t, result.Created, 1)
	require.Equal(t, "Knee MRI", result.Created[0].Title)
	require.Equal(t, "Laterality first", result.Created[0].Instructions)

	again, err := svc.Import(ctx, "user-1", defs)
	require.NoError(t, err)
	require.Empty(t, again.Created)
	require.Len(t, again.Skipped, 2)

	other, err := svc.Import(ctx, "user-2", defs)
	require.NoError(t, err)
	require.Len(t, other.Created, 2)
}

func TestServiceRenderBody(t *testing.T) {
	svc, _ := setupService(t)

	out, err := svc.RenderBody(context.Background(), "{{a}}-{{b}}", map[string]any{"a": 1, "b": 2.5})
	require.NoError(t, err)
	require.Equal(t, "1-2.5", out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = svc.RenderBody(ctx, "x", nil)
	require.ErrorIs(t, err, context.Canceled)
}
