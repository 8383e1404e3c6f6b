package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Test event types used across tests

// named is implemented by every test event.
type named interface {
	Name() string
}

// orderEvent is the main concrete event.
type orderEvent struct {
	ID    string
	Total int
}

func (e orderEvent) Name() string { return "order:" + e.ID }

// shipEvent shares only the named interface with orderEvent.
type shipEvent struct {
	ID string
}

func (e shipEvent) Name() string { return "ship:" + e.ID }

// pingEvent implements nothing.
type pingEvent struct{}

// trail records handler calls in order. Safe for concurrent use.
type trail struct {
	mu    sync.Mutex
	calls []string
}

func (t *trail) add(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, s)
}

func (t *trail) all() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.calls))
	copy(out, t.calls)
	return out
}

func (t *trail) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// Registrants

// orderCatcher receives orderEvent only.
type orderCatcher struct {
	_ Subscribe `subscribe:"OnOrder"`

	trail *trail
	tag   string
}

func (c *orderCatcher) OnOrder(e orderEvent) {
	c.trail.add(c.tag + e.Name())
}

// namedCatcher receives every named event.
type namedCatcher struct {
	_ Subscribe `subscribe:"OnNamed"`

	trail *trail
	tag   string
}

func (c *namedCatcher) OnNamed(e named) {
	c.trail.add(c.tag + e.Name())
}

// anyCatcher receives everything.
type anyCatcher struct {
	_ Subscribe `subscribe:"OnAny"`

	trail *trail
}

func (c *anyCatcher) OnAny(e any) {
	c.trail.add("any")
}

// deadCatcher receives dead events.
type deadCatcher struct {
	_ Subscribe `subscribe:"OnDead"`

	mu   sync.Mutex
	dead []DeadEvent
}

func (c *deadCatcher) OnDead(e DeadEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dead = append(c.dead, e)
}

func (c *deadCatcher) events() []DeadEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]DeadEvent(nil), c.dead...)
}

// totalGuard vetoes orders with a negative total.
type totalGuard struct {
	_ Subscribe `subscribe:"Check,veto"`

	trail *trail
}

func (g *totalGuard) Check(e orderEvent) *VetoError {
	g.trail.add("check:" + e.ID)
	if e.Total < 0 {
		return Veto("negative total %d", e.Total)
	}
	return nil
}

// failingHandler returns err for every orderEvent.
type failingHandler struct {
	_ Subscribe `subscribe:"OnOrder"`

	err   error
	trail *trail
}

func (f *failingHandler) OnOrder(e orderEvent) error {
	if f.trail != nil {
		f.trail.add("fail:" + e.ID)
	}
	return f.err
}

// testLogHandler captures log records for testing.
type testLogHandler struct {
	mu    sync.Mutex
	buf   *bytes.Buffer
	level slog.Level
}

func newTestLogHandler() *testLogHandler {
	return &testLogHandler{
		buf:   &bytes.Buffer{},
		level: slog.LevelDebug,
	}
}

func (h *testLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *testLogHandler) Handle(_ context.Context, r slog.Record) error {
	data := map[string]any{
		"level": r.Level.String(),
		"msg":   r.Message,
	}
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	defer h.mu.Unlock()
	return json.NewEncoder(h.buf).Encode(data)
}

func (h *testLogHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *testLogHandler) WithGroup(_ string) slog.Handler {
	return h
}

func (h *testLogHandler) getRecords() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()

	var records []map[string]any
	for _, line := range bytes.Split(h.buf.Bytes(), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(line, &m); err == nil {
			records = append(records, m)
		}
	}
	return records
}

// withMessage returns the records whose msg equals msg.
func (h *testLogHandler) withMessage(msg string) []map[string]any {
	var out []map[string]any
	for _, r := range h.getRecords() {
		if r["msg"] == msg {
			out = append(out, r)
		}
	}
	return out
}

// recordingExecutor queues work until run is called.
type recordingExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

func (e *recordingExecutor) Submit(work func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, work)
}

func (e *recordingExecutor) pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// runOne runs the oldest queued task and reports whether there was one.
func (e *recordingExecutor) runOne() bool {
	e.mu.Lock()
	if len(e.tasks) == 0 {
		e.mu.Unlock()
		return false
	}
	work := e.tasks[0]
	e.tasks = e.tasks[1:]
	e.mu.Unlock()

	work()
	return true
}

// runAll runs tasks, including ones submitted meanwhile, until none remain.
func (e *recordingExecutor) runAll() int {
	n := 0
	for e.runOne() {
		n++
	}
	return n
}

// fakeMetrics records calls to MetricsRecorder.
type fakeMetrics struct {
	mu         sync.Mutex
	deliveries []string
	handlers   []string
	failures   int
	vetoes     []string
	dead       []string
}

func (m *fakeMetrics) RecordDelivery(_ context.Context, eventType string, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = append(m.deliveries, eventType)
}

func (m *fakeMetrics) RecordHandler(_ context.Context, handler string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
	if err != nil {
		m.failures++
	}
}

func (m *fakeMetrics) RecordVeto(_ context.Context, _ string, handler string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vetoes = append(m.vetoes, handler)
}

func (m *fakeMetrics) RecordDeadEvent(_ context.Context, eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead = append(m.dead, eventType)
}

// fakeSpans records span lifecycle calls.
type fakeSpans struct {
	mu     sync.Mutex
	starts []string
	ends   []error
	events []string
}

func (s *fakeSpans) StartDeliverySpan(ctx context.Context, _, _, eventType string) (context.Context, trace.Span) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, "deliver:"+eventType)
	return ctx, noop.Span{}
}

func (s *fakeSpans) StartHandlerSpan(ctx context.Context, handler string, _ bool) (context.Context, trace.Span) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, "handler:"+handler)
	return ctx, noop.Span{}
}

func (s *fakeSpans) EndSpanWithError(_ trace.Span, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends = append(s.ends, err)
}

func (s *fakeSpans) AddSpanEvent(_ context.Context, name string, _ ...attribute.KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, name)
}

// recoverPanic runs fn and returns the recovered value, nil if fn returned.
func recoverPanic(fn func()) (recovered any) {
	defer func() {
		recovered = recover()
	}()
	fn()
	return nil
}
