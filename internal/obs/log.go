package obs

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5/middleware"
)

// ParseLevel maps LOG_LEVEL values to slog levels, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the JSON logger used across the service. Records logged
// with a request context carry request_id and user_id automatically.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})
	return slog.New(contextHandler{Handler: h})
}

type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	if rid := middleware.GetReqID(ctx); rid != "" {
		rec.AddAttrs(slog.String("request_id", rid))
	}
	if f := requestFieldsFrom(ctx); f != nil {
		if uid := f.UserID(); uid != "" {
			rec.AddAttrs(slog.String("user_id", uid))
		}
	}
	return h.Handler.Handle(ctx, rec)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}

type requestFieldsKey struct{}

// RequestFields is a mutable per-request bag shared between the outer
// logging middleware and handlers deeper in the chain.
type RequestFields struct {
	mu     sync.Mutex
	userID string
}

// WithRequestFields attaches a fresh RequestFields to ctx.
func WithRequestFields(ctx context.Context) (context.Context, *RequestFields) {
	f := &RequestFields{}
	return context.WithValue(ctx, requestFieldsKey{}, f), f
}

// TagUser records the authenticated user for the current request's log lines.
// It is a no-op when ctx carries no RequestFields.
func TagUser(ctx context.Context, userID string) {
	if f := requestFieldsFrom(ctx); f != nil {
		f.mu.Lock()
		f.userID = userID
		f.mu.Unlock()
	}
}

// UserID returns the tagged user id, if any.
func (f *RequestFields) UserID() string {
	if f == nil {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

func requestFieldsFrom(ctx context.Context) *RequestFields {
	if ctx == nil {
		return nil
	}
	f, _ := ctx.Value(requestFieldsKey{}).(*RequestFields)
	return f
}
