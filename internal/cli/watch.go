package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/opencode-ai/reportsmith/internal/db"
	"github.com/opencode-ai/reportsmith/internal/logging"
	"github.com/opencode-ai/reportsmith/internal/models"
	"github.com/rs/zerolog"
)

// ConnectionStatus describes the streamer's connection to the event log.
type ConnectionStatus string

const (
	ConnectionStatusConnected    ConnectionStatus = "connected"
	ConnectionStatusReconnecting ConnectionStatus = "reconnecting"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)

// ReconnectConfig controls retries after a failed poll.
type ReconnectConfig struct {
	Enabled           bool
	MaxAttempts       int // 0 retries forever
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// OnStatusChange is called on every status transition.
	OnStatusChange func(status ConnectionStatus, attempt int, nextRetry time.Duration, err error)
}

// DefaultReconnectConfig retries forever with exponential backoff.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		Enabled:           true,
		MaxAttempts:       0,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// StreamConfig configures an EventStreamer.
type StreamConfig struct {
	PollInterval time.Duration
	BatchSize    int

	// IncludeExisting replays events from Since (or the beginning) before
	// following new ones. Otherwise only events after start are written.
	IncludeExisting bool
	Since           *time.Time

	EntityTypes []models.EntityType
	EventTypes  []models.EventType
	EntityID    string

	Reconnect ReconnectConfig
}

// DefaultStreamConfig returns the default streaming settings.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		PollInterval: 500 * time.Millisecond,
		BatchSize:    100,
		Reconnect:    DefaultReconnectConfig(),
	}
}

// EventStreamer follows the event log and writes each event as a JSON line.
type EventStreamer struct {
	repo   *db.EventRepository
	out    io.Writer
	config StreamConfig
	logger zerolog.Logger
}

// NewEventStreamer creates a streamer writing to out.
func NewEventStreamer(repo *db.EventRepository, out io.Writer, config StreamConfig) *EventStreamer {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultStreamConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultStreamConfig().BatchSize
	}
	return &EventStreamer{
		repo:   repo,
		out:    out,
		config: config,
		logger: logging.Component("events"),
	}
}

// Stream writes events until ctx is done. It returns nil on cancellation and
// an error only when polling fails and reconnection is off or exhausted.
func (s *EventStreamer) Stream(ctx context.Context) error {
	var since *time.Time
	if s.config.IncludeExisting {
		since = s.config.Since
	} else {
		now := time.Now().UTC()
		since = &now
	}

	cursor := ""
	attempt := 0
	backoff := time.Duration(0)
	s.setStatus(ConnectionStatusConnected, 0, 0, nil)

	for {
		events, next, err := s.poll(ctx, cursor, since)
		if err != nil {
			if ctx.Err() != nil {
				s.setStatus(ConnectionStatusDisconnected, attempt, 0, nil)
				return nil
			}
			if !s.config.Reconnect.Enabled {
				s.setStatus(ConnectionStatusDisconnected, attempt, 0, err)
				return fmt.Errorf("event stream failed: %w", err)
			}

			attempt++
			if limit := s.config.Reconnect.MaxAttempts; limit > 0 && attempt > limit {
				s.setStatus(ConnectionStatusDisconnected, attempt, 0, err)
				return fmt.Errorf("max reconnection attempts (%d) exceeded: %w", limit, err)
			}

			backoff = s.calculateBackoff(attempt, backoff)
			s.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", backoff).Msg("event poll failed")
			s.setStatus(ConnectionStatusReconnecting, attempt, backoff, err)

			if !sleepContext(ctx, backoff) {
				s.setStatus(ConnectionStatusDisconnected, attempt, 0, nil)
				return nil
			}
			continue
		}

		if attempt > 0 {
			attempt = 0
			backoff = 0
			s.setStatus(ConnectionStatusConnected, 0, 0, nil)
		}

		for _, event := range events {
			if err := s.writeEvent(event); err != nil {
				return fmt.Errorf("failed to write event: %w", err)
			}
		}
		cursor = next

		if len(events) >= s.config.BatchSize {
			continue
		}
		if !sleepContext(ctx, s.config.PollInterval) {
			s.setStatus(ConnectionStatusDisconnected, 0, 0, nil)
			return nil
		}
	}
}

// poll fetches the next batch after cursor and returns the matching events
// and the cursor to resume from.
func (s *EventStreamer) poll(ctx context.Context, cursor string, since *time.Time) ([]*models.Event, string, error) {
	query := db.EventQuery{
		Since:  since,
		Cursor: cursor,
		Limit:  s.config.BatchSize,
	}
	if len(s.config.EntityTypes) == 1 {
		query.EntityType = &s.config.EntityTypes[0]
	}
	if len(s.config.EventTypes) == 1 {
		query.Type = &s.config.EventTypes[0]
	}
	if s.config.EntityID != "" {
		query.EntityID = &s.config.EntityID
	}

	page, err := s.repo.Query(ctx, query)
	if err != nil {
		return nil, cursor, err
	}
	if len(page.Events) == 0 {
		return nil, cursor, nil
	}

	next := page.Events[len(page.Events)-1].ID
	matched := make([]*models.Event, 0, len(page.Events))
	for _, event := range page.Events {
		if s.matches(event) {
			matched = append(matched, event)
		}
	}
	return matched, next, nil
}

func (s *EventStreamer) matches(event *models.Event) bool {
	if len(s.config.EntityTypes) > 0 && !containsValue(s.config.EntityTypes, event.EntityType) {
		return false
	}
	if len(s.config.EventTypes) > 0 && !containsValue(s.config.EventTypes, event.Type) {
		return false
	}
	return true
}

func (s *EventStreamer) writeEvent(event *models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = s.out.Write(data)
	return err
}

func (s *EventStreamer) calculateBackoff(attempt int, current time.Duration) time.Duration {
	cfg := s.config.Reconnect
	if attempt <= 1 || current <= 0 {
		return cfg.InitialBackoff
	}
	next := time.Duration(float64(current) * cfg.BackoffMultiplier)
	if cfg.MaxBackoff > 0 && next > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return next
}

func (s *EventStreamer) setStatus(status ConnectionStatus, attempt int, nextRetry time.Duration, err error) {
	if s.config.Reconnect.OnStatusChange != nil {
		s.config.Reconnect.OnStatusChange(status, attempt, nextRetry, err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func containsValue[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// MustBeJSONLForWatch rejects --watch unless output is --jsonl.
func MustBeJSONLForWatch() error {
	if watchMode && !jsonlOutput {
		return fmt.Errorf("--watch requires --jsonl output")
	}
	return nil
}

// ParseSince parses a relative duration ("1h", "2d") or an absolute time
// (RFC3339, "2006-01-02T15:04:05" in local time, or "2006-01-02" in UTC).
func ParseSince(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	if d, err := parseDurationWithDays(value); err == nil {
		t := time.Now().UTC().Add(-d)
		return &t, nil
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		utc := t.UTC()
		return &utc, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", value, time.Local); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t, nil
	}

	return nil, fmt.Errorf("invalid --since %q: use a duration like 1h or 2d, or a timestamp like 2024-01-15T10:30:00Z", value)
}

func parseDurationWithDays(value string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(value, "d"); ok {
		n, err := strconv.ParseFloat(days, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid day count %q", value)
		}
		return time.Duration(n * float64(24*time.Hour)), nil
	}
	return time.ParseDuration(value)
}
