// Package audit emits security relevant events as structured log records.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/senocak/authcore/internal/auth"
)

const (
	EventLoginSucceeded = "auth.login_succeeded"
	EventLoginFailed    = "auth.login_failed"
	EventRegistered     = "user.registered"
	EventProfileUpdated = "user.profile_updated"
	EventAccessDenied   = "auth.access_denied"
)

// Logger writes audit records. The zero value logs to slog.Default().
type Logger struct {
	l *slog.Logger
}

// New wraps l. A nil l falls back to slog.Default() at log time.
func New(l *slog.Logger) *Logger {
	return &Logger{l: l}
}

// LogEvent writes an audit entry enriched with the authenticated principal.
// Request and user ids are added by the context-aware handler when present.
func (a *Logger) LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	l := slog.Default()
	if a != nil && a.l != nil {
		l = a.l
	}
	attrs := []slog.Attr{
		slog.String("type", "audit"),
		slog.String("event", event),
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		attrs = append(attrs, slog.String("principal", p.Subject))
	}
	group := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		group = append(group, k, v)
	}
	attrs = append(attrs, slog.Group("fields", group...))
	l.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
	return nil
}
