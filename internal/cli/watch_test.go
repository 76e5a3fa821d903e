package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/opencode-ai/reportsmith/internal/db"
	"github.com/opencode-ai/reportsmith/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.OpenInMemory()
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background()))
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func createRenderedEvents(t *testing.T, repo *db.EventRepository, templateID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := repo.Create(context.Background(), &models.Event{
			Type:       models.EventTypeTemplateRendered,
			EntityType: models.EntityTypeTemplate,
			EntityID:   templateID,
			Payload:    json.RawMessage(fmt.Sprintf(`{"output_bytes":%d,"duration":"1ms"}`, i*10)),
		})
		require.NoError(t, err)
	}
}

func TestEventStreamer_WriteEvent(t *testing.T) {
	var buf bytes.Buffer
	streamer := NewEventStreamer(db.NewEventRepository(setupTestDB(t)), &buf, DefaultStreamConfig())

	event := &models.Event{
		ID:         "event-1",
		Timestamp:  time.Now().UTC(),
		Type:       models.EventTypeTemplateCreated,
		EntityType: models.EntityTypeTemplate,
		EntityID:   "tmpl-1",
	}
	require.NoError(t, streamer.writeEvent(event))

	var decoded models.Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, event.Type, decoded.Type)
	assert.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n")))
}

func TestEventStreamer_PollPaginates(t *testing.T) {
	repo := db.NewEventRepository(setupTestDB(t))
	createRenderedEvents(t, repo, "tmpl-1", 5)

	config := DefaultStreamConfig()
	config.BatchSize = 2
	streamer := NewEventStreamer(repo, &bytes.Buffer{}, config)

	ctx := context.Background()
	past := time.Now().Add(-time.Hour)

	seen := 0
	cursor := ""
	for range 3 {
		events, next, err := streamer.poll(ctx, cursor, &past)
		require.NoError(t, err)
		seen += len(events)
		cursor = next
	}
	assert.Equal(t, 5, seen)

	events, next, err := streamer.poll(ctx, cursor, &past)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, cursor, next)
}

func TestEventStreamer_Filters(t *testing.T) {
	repo := db.NewEventRepository(setupTestDB(t))
	ctx := context.Background()

	createRenderedEvents(t, repo, "tmpl-1", 1)
	createRenderedEvents(t, repo, "tmpl-2", 1)
	require.NoError(t, repo.Create(ctx, &models.Event{
		Type:       models.EventTypeTemplateRenderFailed,
		EntityType: models.EntityTypeTemplate,
		EntityID:   "tmpl-1",
	}))
	require.NoError(t, repo.Create(ctx, &models.Event{
		Type:       models.EventTypeTemplateUpdated,
		EntityType: models.EntityTypeSystem,
		EntityID:   "migrations",
	}))

	tests := []struct {
		name   string
		modify func(*StreamConfig)
		want   int
	}{
		{"no filter", func(*StreamConfig) {}, 4},
		{"entity type", func(c *StreamConfig) { c.EntityTypes = []models.EntityType{models.EntityTypeTemplate} }, 3},
		{"entity id", func(c *StreamConfig) { c.EntityID = "tmpl-1" }, 2},
		{"event types", func(c *StreamConfig) {
			c.EventTypes = []models.EventType{models.EventTypeTemplateRendered, models.EventTypeTemplateRenderFailed}
		}, 3},
		{"entity id and type", func(c *StreamConfig) {
			c.EntityID = "tmpl-1"
			c.EventTypes = []models.EventType{models.EventTypeTemplateRenderFailed}
		}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultStreamConfig()
			tt.modify(&config)
			streamer := NewEventStreamer(repo, &bytes.Buffer{}, config)

			past := time.Now().Add(-time.Hour)
			events, _, err := streamer.poll(ctx, "", &past)
			require.NoError(t, err)
			assert.Len(t, events, tt.want)
		})
	}
}

func TestEventStreamer_StreamReturnsOnCancel(t *testing.T) {
	config := DefaultStreamConfig()
	config.PollInterval = 10 * time.Millisecond
	streamer := NewEventStreamer(db.NewEventRepository(setupTestDB(t)), &bytes.Buffer{}, config)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.NoError(t, streamer.Stream(ctx))
}

func TestEventStreamer_IncludeExisting(t *testing.T) {
	repo := db.NewEventRepository(setupTestDB(t))
	createRenderedEvents(t, repo, "tmpl-1", 3)

	tests := []struct {
		name            string
		includeExisting bool
		wantLines       int
	}{
		{"replay history", true, 3},
		{"new events only", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			config := DefaultStreamConfig()
			config.PollInterval = 10 * time.Millisecond
			config.IncludeExisting = tt.includeExisting
			since := time.Now().Add(-time.Hour)
			config.Since = &since

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
			defer cancel()
			require.NoError(t, NewEventStreamer(repo, &buf, config).Stream(ctx))

			assert.Equal(t, tt.wantLines, bytes.Count(buf.Bytes(), []byte("\n")))
		})
	}
}

func TestEventStreamer_FollowsNewEvents(t *testing.T) {
	repo := db.NewEventRepository(setupTestDB(t))

	var mu sync.Mutex
	var buf bytes.Buffer
	out := writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	})

	config := DefaultStreamConfig()
	config.PollInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- NewEventStreamer(repo, out, config).Stream(ctx) }()

	time.Sleep(20 * time.Millisecond)
	createRenderedEvents(t, repo, "tmpl-9", 2)

	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
	assert.Contains(t, buf.String(), `"entity_id":"tmpl-9"`)
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestDefaultStreamConfig(t *testing.T) {
	config := DefaultStreamConfig()
	assert.Equal(t, 500*time.Millisecond, config.PollInterval)
	assert.Equal(t, 100, config.BatchSize)
	assert.False(t, config.IncludeExisting)

	reconnect := DefaultReconnectConfig()
	assert.True(t, reconnect.Enabled)
	assert.Zero(t, reconnect.MaxAttempts)
	assert.Equal(t, time.Second, reconnect.InitialBackoff)
	assert.Equal(t, 30*time.Second, reconnect.MaxBackoff)
	assert.Equal(t, 2.0, reconnect.BackoffMultiplier)
}

func TestMustBeJSONLForWatch(t *testing.T) {
	origWatch, origJSONL := watchMode, jsonlOutput
	t.Cleanup(func() { watchMode, jsonlOutput = origWatch, origJSONL })

	tests := []struct {
		name    string
		watch   bool
		jsonl   bool
		wantErr bool
	}{
		{"watch without jsonl", true, false, true},
		{"watch with jsonl", true, true, false},
		{"no watch", false, false, false},
		{"no watch with jsonl", false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			watchMode, jsonlOutput = tt.watch, tt.jsonl
			err := MustBeJSONLForWatch()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseSince(t *testing.T) {
	within := func(want time.Duration) func(*testing.T, *time.Time) {
		return func(t *testing.T, got *time.Time) {
			require.NotNil(t, got)
			assert.InDelta(t, want.Seconds(), time.Since(*got).Seconds(), 60)
		}
	}
	at := func(want time.Time) func(*testing.T, *time.Time) {
		return func(t *testing.T, got *time.Time) {
			require.NotNil(t, got)
			assert.True(t, got.Equal(want), "got %v, want %v", got, want)
		}
	}

	tests := []struct {
		name    string
		input   string
		wantErr bool
		check   func(*testing.T, *time.Time)
	}{
		{"empty", "", false, func(t *testing.T, got *time.Time) { assert.Nil(t, got) }},
		{"hours", "1h", false, within(time.Hour)},
		{"minutes", "30m", false, within(30 * time.Minute)},
		{"days", "7d", false, within(7 * 24 * time.Hour)},
		{"whitespace", "  1h  ", false, within(time.Hour)},
		{"rfc3339 utc", "2024-01-15T10:30:00Z", false, at(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))},
		{"rfc3339 offset", "2024-01-15T10:30:00-05:00", false, at(time.Date(2024, 1, 15, 15, 30, 0, 0, time.UTC))},
		{"date only", "2024-01-15", false, at(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))},
		{"local time", "2024-01-15T10:30:00", false, at(time.Date(2024, 1, 15, 10, 30, 0, 0, time.Local))},
		{"garbage", "not-a-time", true, nil},
		{"bad days", "xd", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSince(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}

func TestParseDurationWithDays(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"1d", 24 * time.Hour, false},
		{"0.5d", 12 * time.Hour, false},
		{"1h30m", 90 * time.Minute, false},
		{"invalid", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDurationWithDays(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventStreamer_StatusCallback(t *testing.T) {
	var mu sync.Mutex
	var statuses []ConnectionStatus

	config := DefaultStreamConfig()
	config.PollInterval = 10 * time.Millisecond
	config.Reconnect.OnStatusChange = func(status ConnectionStatus, _ int, _ time.Duration, _ error) {
		mu.Lock()
		statuses = append(statuses, status)
		mu.Unlock()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, NewEventStreamer(db.NewEventRepository(setupTestDB(t)), &bytes.Buffer{}, config).Stream(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(statuses), 2)
	assert.Equal(t, ConnectionStatusConnected, statuses[0])
	assert.Equal(t, ConnectionStatusDisconnected, statuses[len(statuses)-1])
}

func TestEventStreamer_CalculateBackoff(t *testing.T) {
	config := DefaultStreamConfig()
	config.Reconnect = ReconnectConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}
	streamer := NewEventStreamer(nil, &bytes.Buffer{}, config)

	tests := []struct {
		attempt int
		current time.Duration
		want    time.Duration
	}{
		{1, 0, 100 * time.Millisecond},
		{2, 100 * time.Millisecond, 200 * time.Millisecond},
		{4, 400 * time.Millisecond, 800 * time.Millisecond},
		{5, 800 * time.Millisecond, time.Second},
		{6, time.Second, time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, streamer.calculateBackoff(tt.attempt, tt.current), "attempt %d", tt.attempt)
	}
}

func TestEventStreamer_PollFailures(t *testing.T) {
	closedRepo := func(t *testing.T) *db.EventRepository {
		database := setupTestDB(t)
		require.NoError(t, database.Close())
		return db.NewEventRepository(database)
	}

	t.Run("reconnect disabled", func(t *testing.T) {
		config := DefaultStreamConfig()
		config.Reconnect.Enabled = false

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		err := NewEventStreamer(closedRepo(t), &bytes.Buffer{}, config).Stream(ctx)
		assert.ErrorContains(t, err, "event stream failed")
	})

	t.Run("max attempts", func(t *testing.T) {
		config := DefaultStreamConfig()
		config.Reconnect = ReconnectConfig{
			Enabled:           true,
			MaxAttempts:       3,
			InitialBackoff:    10 * time.Millisecond,
			MaxBackoff:        50 * time.Millisecond,
			BackoffMultiplier: 2.0,
		}

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		err := NewEventStreamer(closedRepo(t), &bytes.Buffer{}, config).Stream(ctx)
		assert.ErrorContains(t, err, "max reconnection attempts")
	})
}

func TestDescribeEvent(t *testing.T) {
	tests := []struct {
		name  string
		event *models.Event
		want  string
	}{
		{
			name: "rendered",
			event: &models.Event{
				Type:    models.EventTypeTemplateRendered,
				Payload: json.RawMessage(`{"output_bytes":42,"duration":"3ms"}`),
			},
			want: "42 bytes in 3ms",
		},
		{
			name: "render failed",
			event: &models.Event{
				Type:    models.EventTypeTemplateRenderFailed,
				Payload: json.RawMessage(`{"kind":"undefined_variable","error":"undefined variable \"name\""}`),
			},
			want: `undefined variable "name"`,
		},
		{
			name: "updated",
			event: &models.Event{
				Type:    models.EventTypeTemplateUpdated,
				Payload: json.RawMessage(`{"user_id":"u1","title":"Chest X-ray","fields":["body"]}`),
			},
			want: "Chest X-ray ([body])",
		},
		{
			name:  "no payload",
			event: &models.Event{Type: models.EventTypeTemplateDeleted},
			want:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeEvent(tt.event))
		})
	}
}
