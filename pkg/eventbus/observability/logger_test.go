package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testHandler captures log records as JSON lines.
type testHandler struct {
	buf   *bytes.Buffer
	level slog.Level
	attrs []slog.Attr
}

func newTestHandler() *testHandler {
	return &testHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	for _, attr := range h.attrs {
		data[attr.Key] = attr.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := &testHandler{
		buf:   h.buf,
		level: h.level,
		attrs: make([]slog.Attr, len(h.attrs)+len(attrs)),
	}
	copy(newH.attrs, h.attrs)
	copy(newH.attrs[len(h.attrs):], attrs)
	return newH
}

func (h *testHandler) WithGroup(_ string) slog.Handler {
	return h
}

func (h *testHandler) records() []map[string]any {
	var out []map[string]any
	for _, line := range bytes.Split(h.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

func (h *testHandler) last() map[string]any {
	recs := h.records()
	if len(recs) == 0 {
		return nil
	}
	return recs[len(recs)-1]
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds bus identifier", func(t *testing.T) {
		h := newTestHandler()
		enriched := EnrichLogger(slog.New(h), "orders")
		enriched.Info("ready")

		record := h.last()
		require.NotNil(t, record)
		assert.Equal(t, "orders", record["bus"])
		assert.Equal(t, "ready", record["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "orders"))
	})
}

func TestLogHelpers(t *testing.T) {
	failure := errors.New("boom")

	tests := []struct {
		name   string
		log    func(*slog.Logger)
		level  string
		msg    string
		fields map[string]any
	}{
		{
			name:   "register",
			log:    func(l *slog.Logger) { LogRegister(l, "*main.Listener", 2) },
			level:  "DEBUG",
			msg:    "registrant added",
			fields: map[string]any{"target": "*main.Listener", "handlers": float64(2)},
		},
		{
			name:   "unregister",
			log:    func(l *slog.Logger) { LogUnregister(l, "*main.Listener", 2) },
			level:  "DEBUG",
			msg:    "registrant removed",
			fields: map[string]any{"handlers": float64(2)},
		},
		{
			name:   "delivery",
			log:    func(l *slog.Logger) { LogDelivery(l, "d-1", "string", 1, 3) },
			level:  "DEBUG",
			msg:    "delivering event",
			fields: map[string]any{"delivery_id": "d-1", "vetoers": float64(1), "handlers": float64(3)},
		},
		{
			name:   "veto",
			log:    func(l *slog.Logger) { LogVeto(l, "d-1", "string", "Guard.Check", failure) },
			level:  "INFO",
			msg:    "event vetoed",
			fields: map[string]any{"handler": "Guard.Check", "reason": "boom"},
		},
		{
			name:   "handler failure",
			log:    func(l *slog.Logger) { LogHandlerFailure(l, "d-1", "string", "C.On", failure) },
			level:  "ERROR",
			msg:    "handler failed",
			fields: map[string]any{"error": "boom", "event_type": "string"},
		},
		{
			name:   "callback failure",
			log:    func(l *slog.Logger) { LogCallbackFailure(l, "C.On", failure) },
			level:  "ERROR",
			msg:    "exception handler failed",
			fields: map[string]any{"handler": "C.On"},
		},
		{
			name:   "dead event",
			log:    func(l *slog.Logger) { LogDeadEvent(l, "int") },
			level:  "DEBUG",
			msg:    "no handlers matched, posting dead event",
			fields: map[string]any{"event_type": "int"},
		},
		{
			name:   "unhandled dead event",
			log:    func(l *slog.Logger) { LogUnhandledDeadEvent(l, "int") },
			level:  "DEBUG",
			msg:    "dead event dropped, no subscribers",
			fields: map[string]any{"event_type": "int"},
		},
		{
			name:   "dropped deliveries",
			log:    func(l *slog.Logger) { LogDroppedDeliveries(l, 3, failure) },
			level:  "WARN",
			msg:    "drain aborted, queued deliveries dropped",
			fields: map[string]any{"dropped": float64(3), "error": "boom"},
		},
		{
			name:   "async failure",
			log:    func(l *slog.Logger) { LogAsyncFailure(l, "d-2", failure) },
			level:  "ERROR",
			msg:    "asynchronous delivery failed",
			fields: map[string]any{"delivery_id": "d-2"},
		},
		{
			name:   "journal error",
			log:    func(l *slog.Logger) { LogJournalError(l, "veto", failure) },
			level:  "WARN",
			msg:    "journal write failed",
			fields: map[string]any{"kind": "veto"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler()
			tt.log(slog.New(h))

			record := h.last()
			require.NotNil(t, record)
			assert.Equal(t, tt.level, record["level"])
			assert.Equal(t, tt.msg, record["msg"])
			for k, v := range tt.fields {
				assert.Equal(t, v, record[k], "field %s", k)
			}
		})
	}
}

func TestLogHelpersNilLogger(t *testing.T) {
	err := errors.New("x")
	assert.NotPanics(t, func() {
		LogRegister(nil, "t", 1)
		LogUnregister(nil, "t", 1)
		LogDelivery(nil, "d", "e", 0, 0)
		LogVeto(nil, "d", "e", "h", err)
		LogHandlerFailure(nil, "d", "e", "h", err)
		LogCallbackFailure(nil, "h", err)
		LogDeadEvent(nil, "e")
		LogUnhandledDeadEvent(nil, "e")
		LogDroppedDeliveries(nil, 1, err)
		LogAsyncFailure(nil, "d", err)
		LogJournalError(nil, "veto", err)
	})
}

func TestLogDroppedDeliveriesSkipsZero(t *testing.T) {
	h := newTestHandler()
	LogDroppedDeliveries(slog.New(h), 0, nil)
	assert.Empty(t, h.records())
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), 5*time.Millisecond)
}
