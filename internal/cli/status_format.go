package cli

import (
	"strings"

	"github.com/opencode-ai/reportsmith/internal/models"
	"github.com/opencode-ai/reportsmith/internal/styles"
)

func formatTemplateStatus(s styles.Styles, active bool) string {
	if active {
		return s.Active.Render("active")
	}
	return s.Inactive.Render("deleted")
}

func formatEventType(s styles.Styles, eventType models.EventType) string {
	label := strings.TrimPrefix(string(eventType), "template.")
	label = strings.ReplaceAll(label, "_", " ")

	switch eventType {
	case models.EventTypeTemplateRenderFailed:
		return s.Error.Render(label)
	case models.EventTypeTemplateRendered:
		return s.Success.Render(label)
	case models.EventTypeTemplateDeleted:
		return s.Warning.Render(label)
	default:
		return s.Info.Render(label)
	}
}
