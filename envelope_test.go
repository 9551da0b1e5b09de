package relaybus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeDefaults(t *testing.T) {
	env, err := NewEnvelope("order.created", "orders", map[string]any{"id": 1})
	require.NoError(t, err)
	assert.NotEmpty(t, env.MessageID())
	assert.NotEmpty(t, env.CorrelationID())
	assert.Equal(t, "1.0", env.SchemaVersion())
	assert.Empty(t, env.CausationPath())
	assert.Equal(t, "order.created", env.MessageType())
	assert.Equal(t, "orders", env.Module())
}

func TestNewEnvelopeRequiresModuleAndMessageType(t *testing.T) {
	_, err := NewEnvelope("order.created", "", nil)
	require.Error(t, err)
	var busErr *BusError
	require.True(t, errors.As(err, &busErr))
	assert.Equal(t, ErrKindInvalidArgument, busErr.Kind)

	_, err = NewEnvelope("", "orders", nil)
	require.Error(t, err)
}

func TestNewEnvelopeWithOptions(t *testing.T) {
	env, err := NewEnvelope("order.created", "orders", nil,
		WithCorrelationID("fixed-id"),
		WithSchemaVersion("2.0"),
	)
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", env.CorrelationID())
	assert.Equal(t, "2.0", env.SchemaVersion())
}

func TestDeriveEnvelopeAppendsCausationPath(t *testing.T) {
	parent, err := NewEnvelope("order.created", "orders", nil)
	require.NoError(t, err)

	child, err := DeriveEnvelope(parent, "invoice.created", "billing", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, parent.CorrelationID(), child.CorrelationID())
	require.Len(t, child.CausationPath(), 1)
	assert.Equal(t, CausationLink{Module: "orders", MessageType: "order.created"}, child.CausationPath()[0])
}

func TestDeriveEnvelopeDetectsCycle(t *testing.T) {
	root, err := NewEnvelope("order.created", "orders", nil)
	require.NoError(t, err)

	mid, err := DeriveEnvelope(root, "invoice.created", "billing", 0, nil)
	require.NoError(t, err)

	_, err = DeriveEnvelope(mid, "order.created", "orders", 0, nil)
	require.Error(t, err)
	var busErr *BusError
	require.True(t, errors.As(err, &busErr))
	assert.Equal(t, ErrKindCycleDetected, busErr.Kind)
}

func TestDeriveEnvelopeEnforcesMaxDepth(t *testing.T) {
	env, err := NewEnvelope("step.0", "mod0", nil)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		env, err = DeriveEnvelope(env, eventTypeForStep(i), moduleForStep(i), 2, nil)
		require.NoError(t, err)
	}

	_, err = DeriveEnvelope(env, eventTypeForStep(3), moduleForStep(3), 2, nil)
	require.Error(t, err)
	var busErr *BusError
	require.True(t, errors.As(err, &busErr))
	assert.Equal(t, ErrKindMaxDepthExceeded, busErr.Kind)
}

func TestDeriveEnvelopeRequiresParent(t *testing.T) {
	_, err := DeriveEnvelope(nil, "order.created", "orders", 0, nil)
	require.Error(t, err)
}

func eventTypeForStep(i int) string {
	return []string{"", "step.1", "step.2", "step.3"}[i]
}

func moduleForStep(i int) string {
	return []string{"", "mod1", "mod2", "mod3"}[i]
}
