package relaybus

import (
	"context"
	"time"

	"github.com/relaybus/relaybus/pkg/relaybus/observability"
)

// PublishOption customizes one Publish call.
type PublishOption func(*publishConfig)

type publishConfig struct {
	module         string
	schemaVersion  string
	correlationID  string
	parentEnvelope *Envelope
}

// WithModule sets the publishing component's symbolic tag. Required on
// every Publish call.
func WithModule(module string) PublishOption {
	return func(c *publishConfig) { c.module = module }
}

// WithPublishSchemaVersion overrides the default "1.0" schema version for
// this publish.
func WithPublishSchemaVersion(version string) PublishOption {
	return func(c *publishConfig) { c.schemaVersion = version }
}

// WithPublishCorrelationID pins the correlation id on a root envelope. Has
// no effect when WithParentEnvelope is also given, since a derived
// envelope always inherits its parent's correlation id.
func WithPublishCorrelationID(id string) PublishOption {
	return func(c *publishConfig) { c.correlationID = id }
}

// WithParentEnvelope derives the published envelope from parent instead of
// building a root envelope, extending its causation path.
func WithParentEnvelope(parent *Envelope) PublishOption {
	return func(c *publishConfig) { c.parentEnvelope = parent }
}

// Publish constructs an envelope for eventType/payload, validates it
// against the schema registry, and dispatches it to every registered
// listener. It returns the constructed envelope, not a handler count.
func (b *Bus) Publish(ctx context.Context, eventType string, payload any, opts ...PublishOption) (env *Envelope, err error) {
	if b.closed.Load() {
		return nil, newBusError(ErrKindClosed, "bus is closed")
	}

	cfg := publishConfig{schemaVersion: "1.0"}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.module == "" {
		return nil, newBusError(ErrKindInvalidArgument, "module is required")
	}

	ctx, span := b.opts.Tracing.StartPublishSpan(ctx, eventType, cfg.correlationID)
	defer func() { b.opts.Tracing.EndSpanWithError(span, err) }()

	env, err = b.buildEnvelope(eventType, cfg, payload)
	if err != nil {
		return nil, err
	}

	if err = b.validatePublish(env); err != nil {
		return nil, err
	}

	observability.LogEventPublished(b.opts.Logger, eventType, env.MessageID(), b.listeners.count(eventType))

	for _, entry := range b.listeners.snapshot(eventType) {
		entry := entry
		if entry.Schema != nil {
			if verr := entry.Schema.Validate(env.Payload()); verr != nil {
				observability.LogSchemaValidationFailed(b.opts.Logger, eventType, verr)
				continue
			}
		}

		handlerID := entry.HandlerID
		submitErr := b.executor.submit(task{
			eventType: eventType,
			handlerID: handlerID,
			fn: func() {
				b.invokeHandler(ctx, entry, env)
			},
		})
		if submitErr != nil {
			err = submitErr
			return nil, err
		}
	}

	return env, nil
}

func (b *Bus) buildEnvelope(eventType string, cfg publishConfig, payload any) (*Envelope, error) {
	envOpts := []EnvelopeOption{WithSchemaVersion(cfg.schemaVersion)}

	if cfg.parentEnvelope != nil {
		return DeriveEnvelope(cfg.parentEnvelope, eventType, cfg.module, b.opts.MaxDepth, payload, envOpts...)
	}

	if cfg.correlationID != "" {
		envOpts = append(envOpts, WithCorrelationID(cfg.correlationID))
	}
	return NewEnvelope(eventType, cfg.module, payload, envOpts...)
}

func (b *Bus) validatePublish(env *Envelope) error {
	if b.opts.SchemaRegistry == nil {
		return nil
	}

	if !b.opts.SchemaRegistry.Has(env.MessageType(), env.SchemaVersion()) {
		observability.LogPublishSchemaMissing(b.opts.Logger, env.MessageType(), env.SchemaVersion())
		return newBusError(ErrKindMissingSchema, "no schema registered for "+env.MessageType()+"/"+env.SchemaVersion())
	}

	if err := b.opts.SchemaRegistry.Validate(env.MessageType(), env.SchemaVersion(), env.Payload()); err != nil {
		observability.LogPublishSchemaValidationFailed(b.opts.Logger, env.MessageType(), err)
		return wrapBusError(ErrKindSchemaValidation, "payload failed schema validation", err)
	}
	return nil
}

// invokeHandler runs one listener's handler and logs the outcome. Errors
// and non-true returns here never surface to the publisher: the task
// wrapper (executor.run) already guards against panics, and this logs the
// ordinary failure case.
func (b *Bus) invokeHandler(ctx context.Context, entry *ListenerEntry, env *Envelope) {
	ctx, span := b.opts.Tracing.StartHandlerSpan(ctx, env.MessageType(), entry.HandlerID)
	start := time.Now()

	ok, err := entry.Handler(ctx, b, env)
	duration := time.Since(start)

	if err != nil || !ok {
		failErr := err
		if failErr == nil {
			failErr = newBusError(ErrKindHandlerReturnedFalse, "handler returned false")
		}
		observability.LogHandlerFailed(b.opts.Logger, entry.HandlerID, "", failErr)
		b.opts.Metrics.RecordHandlerExecution(ctx, env.MessageType(), entry.HandlerID, duration, failErr)
		b.opts.Tracing.EndSpanWithError(span, failErr)
		return
	}

	b.opts.Metrics.RecordHandlerExecution(ctx, env.MessageType(), entry.HandlerID, duration, nil)
	b.opts.Tracing.EndSpanWithError(span, nil)
}
