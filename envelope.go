package relaybus

import (
	"time"

	"github.com/google/uuid"
)

// CausationLink records one ancestor hop in an envelope's derivation chain:
// the module that published the parent event, and the parent's event type.
type CausationLink struct {
	Module      string `json:"module"`
	MessageType string `json:"message_type"`
}

// Envelope is an immutable message value carrying identity, causality, and
// payload. Once constructed it is never mutated; deriving a child envelope
// always produces a new value.
type Envelope struct {
	messageID     string
	correlationID string
	causationPath []CausationLink
	messageType   string
	module        string
	schemaVersion string
	payload       any
	createdAt     time.Time
}

// MessageID returns the envelope's own unique identifier.
func (e *Envelope) MessageID() string { return e.messageID }

// CorrelationID returns the identifier shared by every envelope in this
// causal chain.
func (e *Envelope) CorrelationID() string { return e.correlationID }

// CausationPath returns the ordered ancestry of (module, message-type)
// pairs recorded at each derivation. The returned slice is a copy; callers
// may not mutate the envelope through it.
func (e *Envelope) CausationPath() []CausationLink {
	out := make([]CausationLink, len(e.causationPath))
	copy(out, e.causationPath)
	return out
}

// MessageType returns the envelope's event-type tag.
func (e *Envelope) MessageType() string { return e.messageType }

// Module returns the symbolic tag of the publishing component.
func (e *Envelope) Module() string { return e.module }

// SchemaVersion returns the schema version the payload was validated
// against.
func (e *Envelope) SchemaVersion() string { return e.schemaVersion }

// Payload returns the opaque message body.
func (e *Envelope) Payload() any { return e.payload }

// CreatedAt returns when the envelope was constructed.
func (e *Envelope) CreatedAt() time.Time { return e.createdAt }

// EnvelopeOption customizes envelope construction.
type EnvelopeOption func(*envelopeConfig)

type envelopeConfig struct {
	correlationID string
	schemaVersion string
}

// WithCorrelationID pins the envelope's correlation id instead of generating
// a fresh one. Only meaningful on a root envelope; derived envelopes always
// inherit the parent's correlation id.
func WithCorrelationID(id string) EnvelopeOption {
	return func(c *envelopeConfig) { c.correlationID = id }
}

// WithSchemaVersion overrides the default "1.0" schema version.
func WithSchemaVersion(version string) EnvelopeOption {
	return func(c *envelopeConfig) { c.schemaVersion = version }
}

// NewEnvelope builds a root envelope for messageType with the given module
// and payload. module must be non-empty.
func NewEnvelope(messageType, module string, payload any, opts ...EnvelopeOption) (*Envelope, error) {
	if module == "" {
		return nil, &BusError{Kind: ErrKindInvalidArgument, Message: "module is required"}
	}
	if messageType == "" {
		return nil, &BusError{Kind: ErrKindInvalidArgument, Message: "message-type is required"}
	}

	cfg := envelopeConfig{schemaVersion: "1.0"}
	for _, opt := range opts {
		opt(&cfg)
	}

	correlationID := cfg.correlationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	return &Envelope{
		messageID:     uuid.NewString(),
		correlationID: correlationID,
		causationPath: nil,
		messageType:   messageType,
		module:        module,
		schemaVersion: cfg.schemaVersion,
		payload:       payload,
		createdAt:     time.Now(),
	}, nil
}

// DeriveEnvelope builds a new envelope caused by parent, appending
// parent's (module, message-type) to the causation path. The cycle check
// runs before the depth check; both gate construction before any side
// effect occurs. maxDepth of zero means unbounded.
func DeriveEnvelope(parent *Envelope, messageType, module string, maxDepth int, payload any, opts ...EnvelopeOption) (*Envelope, error) {
	if parent == nil {
		return nil, &BusError{Kind: ErrKindInvalidArgument, Message: "parent envelope is required"}
	}
	if module == "" {
		return nil, &BusError{Kind: ErrKindInvalidArgument, Message: "module is required"}
	}
	if messageType == "" {
		return nil, &BusError{Kind: ErrKindInvalidArgument, Message: "message-type is required"}
	}

	cfg := envelopeConfig{schemaVersion: "1.0"}
	for _, opt := range opts {
		opt(&cfg)
	}

	newPath := make([]CausationLink, len(parent.causationPath), len(parent.causationPath)+1)
	copy(newPath, parent.causationPath)
	newPath = append(newPath, CausationLink{Module: parent.module, MessageType: parent.messageType})

	candidate := CausationLink{Module: module, MessageType: messageType}
	for _, link := range newPath {
		if link == candidate {
			return nil, &BusError{
				Kind:    ErrKindCycleDetected,
				Message: "cycle detected: " + module + "/" + messageType + " already present in causation path",
			}
		}
	}

	if maxDepth > 0 && len(newPath) > maxDepth {
		return nil, &BusError{
			Kind:    ErrKindMaxDepthExceeded,
			Message: "causation path exceeds max depth",
		}
	}

	return &Envelope{
		messageID:     uuid.NewString(),
		correlationID: parent.correlationID,
		causationPath: newPath,
		messageType:   messageType,
		module:        module,
		schemaVersion: cfg.schemaVersion,
		payload:       payload,
		createdAt:     time.Now(),
	}, nil
}
