package relaybus

import (
	"log/slog"
	"time"

	"github.com/relaybus/relaybus/pkg/relaybus/observability"
	"github.com/relaybus/relaybus/pkg/relaybus/schema"
	"github.com/relaybus/relaybus/pkg/relaybus/txstore"
)

// Options collects every construction-time tuning knob into a single
// configuration record with explicit defaults, rather than a dynamic map of
// settings.
type Options struct {
	Mode          DispatchMode
	MaxDepth      int
	Logger        *slog.Logger
	SchemaRegistry *schema.Registry

	Metrics observability.MetricsRecorder
	Tracing observability.SpanManager

	BufferSize  int
	Concurrency int

	TxStore           txstore.Store
	TxHandlerTimeout  time.Duration
	HandlerMaxRetries int
	HandlerBackoff    time.Duration

	TxRetention       time.Duration
	TxCleanupInterval time.Duration
}

// DefaultOptions returns the baseline configuration. Callers then layer
// Option functions on top via New.
func DefaultOptions() Options {
	return Options{
		Mode:              ModeUnlimited,
		MaxDepth:          20,
		Metrics:           observability.NoopMetrics{},
		Tracing:           observability.NoopSpanManager{},
		BufferSize:        1024,
		Concurrency:       4,
		TxHandlerTimeout:  10 * time.Second,
		HandlerMaxRetries: 3,
		HandlerBackoff:    time.Second,
		TxRetention:       7 * 24 * time.Hour,
		TxCleanupInterval: time.Hour,
	}
}

// Option customizes Options during New.
type Option func(*Options)

// WithMode selects the dispatch scheduling model.
func WithMode(mode DispatchMode) Option {
	return func(o *Options) { o.Mode = mode }
}

// WithMaxDepth bounds causation-path length for derived envelopes.
func WithMaxDepth(depth int) Option {
	return func(o *Options) { o.MaxDepth = depth }
}

// WithLogger installs a structured logger. Every call into it is wrapped so
// a logger failure can never propagate to the hot path.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithSchemaRegistry installs the schema registry. Required: New fails
// without one.
func WithSchemaRegistry(registry *schema.Registry) Option {
	return func(o *Options) { o.SchemaRegistry = registry }
}

// WithMetrics installs a metrics recorder. Use observability.NewMetricsRecorder()
// for OTel-backed metrics; the default is a no-op recorder.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithTracing installs a span manager. Use observability.NewSpanManager()
// for OTel-backed tracing; the default is a no-op span manager.
func WithTracing(s observability.SpanManager) Option {
	return func(o *Options) { o.Tracing = s }
}

// WithBufferSize sets the buffered-mode queue capacity.
func WithBufferSize(size int) Option {
	return func(o *Options) { o.BufferSize = size }
}

// WithConcurrency sets the buffered-mode worker pool size.
func WithConcurrency(n int) Option {
	return func(o *Options) { o.Concurrency = n }
}

// WithTxStore installs the durable transact backend. Omitting it means
// transact always fails with ErrKindNoTxStore.
func WithTxStore(store txstore.Store) Option {
	return func(o *Options) { o.TxStore = store }
}

// WithTxHandlerTimeout sets the per-handler deadline enforced by the tx
// worker.
func WithTxHandlerTimeout(d time.Duration) Option {
	return func(o *Options) { o.TxHandlerTimeout = d }
}

// WithHandlerMaxRetries sets how many attempts a retryable handler row gets
// before the tx worker marks it terminal.
func WithHandlerMaxRetries(n int) Option {
	return func(o *Options) { o.HandlerMaxRetries = n }
}

// WithHandlerBackoff sets the fixed delay added to next-at after a
// retryable failure.
func WithHandlerBackoff(d time.Duration) Option {
	return func(o *Options) { o.HandlerBackoff = d }
}

// WithTxRetention and WithTxCleanupInterval together enable the tx worker's
// periodic cleanup pass; both must be set (non-zero) for cleanup to run.
func WithTxRetention(d time.Duration) Option {
	return func(o *Options) { o.TxRetention = d }
}

func WithTxCleanupInterval(d time.Duration) Option {
	return func(o *Options) { o.TxCleanupInterval = d }
}
