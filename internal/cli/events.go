package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/opencode-ai/reportsmith/internal/db"
	"github.com/opencode-ai/reportsmith/internal/models"
	"github.com/spf13/cobra"
)

var (
	eventsTemplate string
	eventsType     string
	eventsSince    string
	eventsLimit    int
	watchMode      bool
)

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().StringVar(&eventsTemplate, "template", "", "only events for this template ID")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "only events of this type (e.g. template.render_failed)")
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "only events after this time (1h, 2d, or RFC3339)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum events to list")
	eventsCmd.Flags().BoolVar(&watchMode, "watch", false, "follow new events (requires --jsonl)")
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the template audit log",
	Long: `Show template lifecycle and render events, oldest first.

With --watch, new events are streamed as JSON lines until interrupted.`,
	Example: `  reportsmith events --template 3f2a --since 1d
  reportsmith events --type template.render_failed --json
  reportsmith events --watch --jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := MustBeJSONLForWatch(); err != nil {
			return err
		}

		since, err := ParseSince(eventsSince)
		if err != nil {
			return err
		}

		database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		repo := db.NewEventRepository(database)

		if watchMode {
			config := DefaultStreamConfig()
			config.EntityID = eventsTemplate
			if eventsType != "" {
				config.EventTypes = []models.EventType{models.EventType(eventsType)}
			}
			if since != nil {
				config.Since = since
				config.IncludeExisting = true
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return NewEventStreamer(repo, os.Stdout, config).Stream(ctx)
		}

		query := db.EventQuery{Since: since, Limit: eventsLimit}
		if eventsTemplate != "" {
			query.EntityID = &eventsTemplate
		}
		if eventsType != "" {
			eventType := models.EventType(eventsType)
			query.Type = &eventType
		}

		page, err := repo.Query(context.Background(), query)
		if err != nil {
			return fmt.Errorf("failed to query events: %w", err)
		}

		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(os.Stdout, page.Events)
		}

		if len(page.Events) == 0 {
			fmt.Println("No events found")
			return nil
		}

		s := outputStyles()
		rows := make([][]string, 0, len(page.Events))
		for _, event := range page.Events {
			rows = append(rows, []string{
				event.Timestamp.Local().Format("2006-01-02 15:04:05"),
				formatEventType(s, event.Type),
				shortID(event.EntityID),
				truncate(describeEvent(event), 60),
			})
		}
		if err := writeTable(os.Stdout, s, []string{"TIME", "EVENT", "TEMPLATE", "DETAIL"}, rows); err != nil {
			return err
		}
		if page.NextCursor != "" {
			fmt.Println(s.Muted.Render(fmt.Sprintf("showing first %d events; narrow with --since or raise --limit", len(page.Events))))
		}
		return nil
	},
}

// describeEvent summarizes an event payload for table output.
func describeEvent(event *models.Event) string {
	switch event.Type {
	case models.EventTypeTemplateRendered:
		var p models.TemplateRenderedPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			return fmt.Sprintf("%d bytes in %s", p.OutputBytes, p.Duration)
		}
	case models.EventTypeTemplateRenderFailed:
		var p models.TemplateRenderFailedPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			return p.Error
		}
	default:
		var p models.TemplateChangedPayload
		if json.Unmarshal(event.Payload, &p) == nil {
			if len(p.Fields) > 0 {
				return fmt.Sprintf("%s (%v)", p.Title, p.Fields)
			}
			return p.Title
		}
	}
	return ""
}
