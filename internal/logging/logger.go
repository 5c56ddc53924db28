package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithWidget returns a logger with widget context fields attached.
// Use this for all logging along a widget's update path.
func WithWidget(widgetID, widgetType string) *slog.Logger {
	return slog.With(
		"widget_id", widgetID,
		"widget_type", widgetType,
	)
}

// WithSession returns a logger scoped to a focused session.
func WithSession(sessionType, anchorID string) *slog.Logger {
	return slog.With(
		"session_type", sessionType,
		"anchor_id", anchorID,
	)
}
