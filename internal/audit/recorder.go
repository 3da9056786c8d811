package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avapbx/internal/observability"
)

const redactedValue = "[REDACTED]"

// DefaultCloseTimeout bounds how long Close waits for the queue to
// drain.
const DefaultCloseTimeout = 5 * time.Second

// Recorder is the audit recording interface. Record never blocks the
// caller: events are enqueued and written asynchronously.
type Recorder interface {
	// Record enqueues an audit event.
	Record(ctx context.Context, event *Event)

	// Close drains the queue and releases resources.
	Close() error
}

// recorder implements the Recorder interface.
type recorder struct {
	config  *Config
	writer  io.Writer
	closer  io.Closer
	logger  observability.Logger
	metrics *Metrics

	mu     sync.Mutex
	queue  chan *Event
	closed bool

	done         chan struct{}
	closeTimeout time.Duration
}

// RecorderOption is a functional option for the recorder.
type RecorderOption func(*recorder)

// WithRecorderLogger sets the observability logger.
func WithRecorderLogger(logger observability.Logger) RecorderOption {
	return func(r *recorder) {
		r.logger = logger
	}
}

// WithRecorderMetrics sets the metrics.
func WithRecorderMetrics(metrics *Metrics) RecorderOption {
	return func(r *recorder) {
		r.metrics = metrics
	}
}

// WithRecorderWriter sets the output writer, overriding the configured
// destination.
func WithRecorderWriter(writer io.Writer) RecorderOption {
	return func(r *recorder) {
		r.writer = writer
	}
}

// WithCloseTimeout bounds the drain on Close.
func WithCloseTimeout(timeout time.Duration) RecorderOption {
	return func(r *recorder) {
		r.closeTimeout = timeout
	}
}

// NewRecorder creates a new audit recorder and starts its consumer.
func NewRecorder(config *Config, opts ...RecorderOption) (Recorder, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audit config: %w", err)
	}

	r := &recorder{
		config:       config,
		logger:       observability.NopLogger(),
		queue:        make(chan *Event, config.GetEffectiveQueueSize()),
		done:         make(chan struct{}),
		closeTimeout: DefaultCloseTimeout,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.metrics == nil {
		r.metrics = GetSharedMetrics()
	}

	if r.writer == nil {
		writer, closer, err := createWriter(config.GetEffectiveOutput())
		if err != nil {
			return nil, err
		}
		r.writer = writer
		r.closer = closer
	}

	go r.consume()

	return r, nil
}

// createWriter creates the output writer for a destination.
func createWriter(output string) (io.Writer, io.Closer, error) {
	switch output {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		//nolint:gosec // G304: path comes from trusted configuration
		file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit log file: %w", err)
		}
		return file, file, nil
	}
}

// Record enqueues an audit event. When the queue is full the oldest
// pending event is dropped to make room.
func (r *recorder) Record(ctx context.Context, event *Event) {
	if !r.config.Enabled || event == nil {
		return
	}

	if event.Resource != nil && r.config.ShouldSkipPath(event.Resource.Path) {
		return
	}

	if event.TraceID == "" {
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			event.TraceID = sc.TraceID().String()
			event.SpanID = sc.SpanID().String()
		}
	}

	r.redactEvent(event)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	for {
		select {
		case r.queue <- event:
			r.metrics.RecordEnqueued(event.Type, event.Outcome)
			return
		default:
		}

		// Queue full: drop the oldest pending event and retry.
		select {
		case dropped := <-r.queue:
			r.metrics.RecordDropped()
			r.logger.Warn("audit queue full, dropped oldest event",
				observability.String("dropped_id", dropped.ID),
				observability.String("dropped_type", string(dropped.Type)),
			)
		default:
		}
	}
}

// consume is the single writer goroutine.
func (r *recorder) consume() {
	for event := range r.queue {
		r.writeEvent(event)
	}
	close(r.done)
}

// writeEvent writes one event to the output.
func (r *recorder) writeEvent(event *Event) {
	var output []byte

	switch r.config.GetEffectiveFormat() {
	case formatText:
		output = []byte(formatTextEvent(event))
	default:
		marshaled, err := json.Marshal(event)
		if err != nil {
			r.logger.Error("failed to marshal audit event", observability.Error(err))
			return
		}
		output = append(marshaled, '\n')
	}

	if _, err := r.writer.Write(output); err != nil {
		r.metrics.RecordWriteError()
		r.logger.Error("failed to write audit event", observability.Error(err))
	}
}

// formatTextEvent renders an event as a single text line.
func formatTextEvent(event *Event) string {
	var sb strings.Builder

	sb.WriteString(event.Timestamp.Format(time.RFC3339))
	sb.WriteString(" ")
	sb.WriteString(string(event.Type))
	sb.WriteString(" ")
	sb.WriteString(string(event.Action))
	sb.WriteString(" ")
	sb.WriteString(string(event.Outcome))

	if event.Subject != nil {
		sb.WriteString(" subject=")
		sb.WriteString(event.Subject.ID)
	}
	if event.Resource != nil {
		sb.WriteString(" resource=")
		sb.WriteString(event.Resource.Path)
	}
	if event.Reason != "" {
		sb.WriteString(" reason=")
		sb.WriteString(event.Reason)
	}
	if event.RiskScore > 0 {
		sb.WriteString(fmt.Sprintf(" risk=%d", event.RiskScore))
	}
	if event.TraceID != "" {
		sb.WriteString(" trace_id=")
		sb.WriteString(event.TraceID)
	}

	sb.WriteString("\n")
	return sb.String()
}

// redactEvent redacts sensitive metadata fields.
func (r *recorder) redactEvent(event *Event) {
	if len(r.config.RedactFields) == 0 || event.Metadata == nil {
		return
	}

	for key := range event.Metadata {
		if r.shouldRedact(key) {
			event.Metadata[key] = redactedValue
		}
	}
}

func (r *recorder) shouldRedact(field string) bool {
	lowerField := strings.ToLower(field)
	for _, redactField := range r.config.RedactFields {
		if strings.Contains(lowerField, strings.ToLower(redactField)) {
			return true
		}
	}
	return false
}

// Close stops accepting events and drains the queue, bounded by the
// close timeout.
func (r *recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	select {
	case <-r.done:
	case <-time.After(r.closeTimeout):
		r.logger.Warn("audit queue drain timed out")
	}

	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// noopRecorder discards all events.
type noopRecorder struct{}

// NewNoopRecorder creates an audit recorder that discards everything.
func NewNoopRecorder() Recorder {
	return &noopRecorder{}
}

func (noopRecorder) Record(context.Context, *Event) {}
func (noopRecorder) Close() error                   { return nil }

// Ensure implementations satisfy the interface.
var (
	_ Recorder = (*recorder)(nil)
	_ Recorder = (*noopRecorder)(nil)
)
