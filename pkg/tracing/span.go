// Package tracing provides a lightweight span tree carried through contexts.
// A batch run opens one root span and a child per stage; the finished tree is
// logged via slog and summarised into per-stage timings for the run report.
package tracing

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span represents a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	Err       error
	mu        sync.Mutex
}

// StageTiming is the flattened duration of one span.
type StageTiming struct {
	Stage      string `json:"stage"`
	DurationMs int64  `json:"durationMs"`
	Error      string `json:"error,omitempty"`
}

// StartSpan creates a new root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan creates a child span linked to the parent in ctx. Without a
// parent the child is a detached root.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	child := newSpan(name, "")
	if parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey, child), child
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
}

// End records the span's end time and duration.
func (s *Span) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// Fail marks the span as failed with err. A nil err is ignored.
func (s *Span) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.Err = err
	s.mu.Unlock()
}

// SetAttr attaches a key-value attribute to the span.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

// Stages flattens the tree below s in start order.
func (s *Span) Stages() []StageTiming {
	var out []StageTiming
	s.walk(0, func(sp *Span, depth int) {
		if depth == 0 {
			return
		}
		t := StageTiming{Stage: sp.Name, DurationMs: sp.Duration.Milliseconds()}
		if sp.Err != nil {
			t.Error = sp.Err.Error()
		}
		out = append(out, t)
	})
	return out
}

// Log writes the span tree to logger, one record per span.
func (s *Span) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	s.walk(0, func(sp *Span, depth int) {
		attrs := []any{
			"trace_id", sp.TraceID,
			"span", sp.Name,
			"duration_ms", sp.Duration.Milliseconds(),
			"depth", depth,
		}
		keys := make([]string, 0, len(sp.Attrs))
		for k := range sp.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			attrs = append(attrs, k, sp.Attrs[k])
		}
		if sp.Err != nil {
			attrs = append(attrs, "error", sp.Err)
			logger.Warn("span", attrs...)
			return
		}
		logger.Info("span", attrs...)
	})
}

func (s *Span) walk(depth int, fn func(*Span, int)) {
	s.mu.Lock()
	children := make([]*Span, len(s.Children))
	copy(children, s.Children)
	s.mu.Unlock()

	fn(s, depth)
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].StartTime.Before(children[j].StartTime)
	})
	for _, c := range children {
		c.walk(depth+1, fn)
	}
}
