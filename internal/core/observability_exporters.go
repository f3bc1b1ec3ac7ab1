package core

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"faultcore/pkg/domain"
)

var expvarSeq uint64

// ExpvarMetricsRecorder publishes per-operation totals through expvar. Each
// operation owns a nested map with the success and error counts and the total
// duration in milliseconds.
type ExpvarMetricsRecorder struct {
	name string
	ops  *expvar.Map
	mu   sync.Mutex
}

// NewExpvarMetricsRecorder publishes a recorder under name. An empty name
// selects a unique generated one.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("faultcore_edit_metrics_%d", id)
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: new(expvar.Map).Init()}
	expvar.Publish(name, rec.ops)
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe records an operation outcome.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	op, ok := r.ops.Get(operation).(*expvar.Map)
	if !ok {
		op = new(expvar.Map).Init()
		r.ops.Set(operation, op)
	}
	r.mu.Unlock()
	status := "error"
	if success {
		status = "success"
	}
	op.Add(status, 1)
	op.AddFloat("duration_ms_total", float64(duration)/float64(time.Millisecond))
}

// Count returns the number of observations of operation with the given outcome.
func (r *ExpvarMetricsRecorder) Count(operation string, success bool) int64 {
	op, ok := r.ops.Get(operation).(*expvar.Map)
	if !ok {
		return 0
	}
	status := "error"
	if success {
		status = "success"
	}
	if v, ok := op.Get(status).(*expvar.Int); ok {
		return v.Value()
	}
	return 0
}

// PrometheusMetricsRecorder exports edit outcomes as Prometheus collectors.
type PrometheusMetricsRecorder struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewPrometheusMetricsRecorder registers the edit collectors with reg.
func NewPrometheusMetricsRecorder(reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	rec := &PrometheusMetricsRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faultcore",
			Subsystem: "edit",
			Name:      "operations_total",
			Help:      "Model edit operations by operation and status.",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "faultcore",
			Subsystem: "edit",
			Name:      "operation_duration_seconds",
			Help:      "Latency of model edit operations, validation included.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{rec.operations, rec.duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register edit metrics: %w", err)
		}
	}
	return rec, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Inc()
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// OtelTracer adapts an OpenTelemetry tracer to the Tracer interface.
type OtelTracer struct {
	tracer trace.Tracer
}

// NewOtelTracer wraps tracer.
func NewOtelTracer(tracer trace.Tracer) *OtelTracer {
	return &OtelTracer{tracer: tracer}
}

// Start implements Tracer.
func (t *OtelTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	ctx, span := t.tracer.Start(ctx, "faultcore."+operation,
		trace.WithAttributes(attribute.String("faultcore.operation", operation)))
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetAttributes(attribute.String("faultcore.error_code", string(domain.CodeOf(err))))
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// JSONTraceEntry is one span written by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	Code       string    `json:"code,omitempty"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer writes spans as JSON lines and retains them for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer writing to w. A nil writer only retains spans.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	t := &JSONTraceTracer{}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonTraceSpan{tracer: t, operation: operation, started: time.Now().UTC()}
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     "success",
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		StartedAt:  s.started,
		EndedAt:    ended,
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
		var derr *domain.Error
		if errors.As(err, &derr) {
			entry.Code = string(derr.Code)
		}
	}
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
}
