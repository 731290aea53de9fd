package log

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/fisgon/internal/model"
)

// SessionKey is the attribute that routes a record into a session's log.
const SessionKey = "session_id"

// Sink persists session log entries. database.Store implements it.
type Sink interface {
	AppendLog(ctx context.Context, entry *model.CrawlLog) error
}

// SessionHandler tees records carrying a SessionKey attribute into a
// Sink, at Info level and above, while passing every record to the
// wrapped handler unchanged. The session attribute may come from the
// record itself or from a logger built with With.
type SessionHandler struct {
	next      slog.Handler
	sink      Sink
	level     slog.Leveler
	attrs     []slog.Attr
	groups    []string
	onFailure func(error)
}

// SessionHandlerOption configures a SessionHandler.
type SessionHandlerOption func(*SessionHandler)

// WithSinkLevel sets the minimum level persisted to the sink.
func WithSinkLevel(level slog.Leveler) SessionHandlerOption {
	return func(h *SessionHandler) {
		h.level = level
	}
}

// WithSinkErrorHandler sets the callback for entries the sink rejected.
// By default they are dropped.
func WithSinkErrorHandler(fn func(error)) SessionHandlerOption {
	return func(h *SessionHandler) {
		h.onFailure = fn
	}
}

// NewSessionHandler wraps next. A nil next only feeds the sink.
func NewSessionHandler(next slog.Handler, sink Sink, opts ...SessionHandlerOption) *SessionHandler {
	h := &SessionHandler{
		next:      next,
		sink:      sink,
		level:     slog.LevelInfo,
		onFailure: func(error) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Enabled reports true when either the sink or the wrapped handler wants
// the level.
func (h *SessionHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.sink != nil && level >= h.level.Level() {
		return true
	}
	return h.next != nil && h.next.Enabled(ctx, level)
}

// Handle persists the record when it belongs to a session and forwards it.
func (h *SessionHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.sink != nil && r.Level >= h.level.Level() {
		if entry := h.entry(r); entry != nil {
			// A session log must outlive a cancelled crawl context.
			if err := h.sink.AppendLog(context.WithoutCancel(ctx), entry); err != nil {
				h.onFailure(fmt.Errorf("failed to persist session log: %w", err))
			}
		}
	}
	if h.next != nil && h.next.Enabled(ctx, r.Level) {
		return h.next.Handle(ctx, r)
	}
	return nil
}

// WithAttrs returns a handler that remembers attrs for the sink too.
func (h *SessionHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	c.attrs = append(c.attrs, qualify(h.groups, attrs)...)
	if h.next != nil {
		c.next = h.next.WithAttrs(attrs)
	}
	return c
}

// WithGroup returns a handler that nests later attrs under name.
func (h *SessionHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.groups = append(c.groups, name)
	if h.next != nil {
		c.next = h.next.WithGroup(name)
	}
	return c
}

func (h *SessionHandler) clone() *SessionHandler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	c.groups = append([]string(nil), h.groups...)
	return &c
}

// entry builds the log row of r, or nil when no session attribute is set.
// The session attribute is kept out of the details.
func (h *SessionHandler) entry(r slog.Record) *model.CrawlLog {
	var sessionID string
	details := make(map[string]any)

	collect := func(a slog.Attr) {
		a.Value = a.Value.Resolve()
		if a.Key == SessionKey && a.Value.Kind() == slog.KindString {
			sessionID = a.Value.String()
			return
		}
		a = sanitizeAttr(a)
		details[a.Key] = attrValue(a.Value)
	}
	for _, a := range h.attrs {
		collect(a)
	}
	recordAttrs := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		recordAttrs = append(recordAttrs, a)
		return true
	})
	for _, a := range qualify(h.groups, recordAttrs) {
		collect(a)
	}

	if sessionID == "" {
		return nil
	}
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	entry := &model.CrawlLog{
		SessionID: sessionID,
		Level:     model.LogLevelFromSlog(r.Level),
		Message:   r.Message,
		Timestamp: ts,
	}
	if len(details) > 0 {
		entry.Details = details
	}
	return entry
}

// qualify nests attrs under the open groups. The session attribute is
// only recognized at the top level.
func qualify(groups []string, attrs []slog.Attr) []slog.Attr {
	if len(groups) == 0 || len(attrs) == 0 {
		return attrs
	}
	anyAttrs := make([]any, len(attrs))
	for i, a := range attrs {
		anyAttrs[i] = a
	}
	g := slog.Group(groups[len(groups)-1], anyAttrs...)
	for i := len(groups) - 2; i >= 0; i-- {
		g = slog.Group(groups[i], g)
	}
	return []slog.Attr{g}
}

// attrValue converts a resolved slog value into a JSON friendly value.
func attrValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindGroup:
		m := make(map[string]any)
		for _, a := range v.Group() {
			m[a.Key] = attrValue(a.Value.Resolve())
		}
		return m
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.Any()
	}
}
