package relaybus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybus/relaybus/pkg/relaybus/schema"
)

func TestNewRequiresSchemaRegistry(t *testing.T) {
	_, err := New()
	require.Error(t, err)
}

func TestNewStartsTxWorkerOnlyWithStore(t *testing.T) {
	b, err := New(WithSchemaRegistry(schema.New()))
	require.NoError(t, err)
	defer b.Close(time.Second)

	assert.Nil(t, b.workerStop)
	assert.Nil(t, b.workerDone)
}

func TestBusCloseIsIdempotent(t *testing.T) {
	b, err := New(WithSchemaRegistry(schema.New()))
	require.NoError(t, err)

	b.Close(time.Second)
	assert.True(t, b.IsClosed())

	b.Close(time.Second) // second call must not panic or block
}

func TestBusIsClosedInitiallyFalse(t *testing.T) {
	b, err := New(WithSchemaRegistry(schema.New()))
	require.NoError(t, err)
	defer b.Close(time.Second)

	assert.False(t, b.IsClosed())
}
