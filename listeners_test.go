package relaybus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaybus/relaybus/pkg/relaybus/schema"
)

func noopHandler(ctx context.Context, bus *Bus, env *Envelope) (bool, error) {
	return true, nil
}

func TestListenerTableSubscribeAndSnapshot(t *testing.T) {
	lt := newListenerTable()
	id := lt.subscribe("order.created", noopHandler, nil, nil)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, lt.count("order.created"))

	entries := lt.snapshot("order.created")
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].HandlerID)
}

func TestListenerTableUnsubscribeByHandlerID(t *testing.T) {
	lt := newListenerTable()
	id1 := lt.subscribe("order.created", noopHandler, nil, nil)
	lt.subscribe("order.created", noopHandler, nil, nil)

	lt.unsubscribe("order.created", id1)
	assert.Equal(t, 1, lt.count("order.created"))

	_, ok := lt.byHandlerID("order.created", id1)
	assert.False(t, ok)
}

func TestListenerTableUnsubscribeByMeta(t *testing.T) {
	lt := newListenerTable()
	lt.subscribe("order.created", noopHandler, nil, "worker-a")
	lt.subscribe("order.created", noopHandler, nil, "worker-b")

	lt.unsubscribe("order.created", "worker-a")
	assert.Equal(t, 1, lt.count("order.created"))
}

func TestListenerTableClear(t *testing.T) {
	lt := newListenerTable()
	lt.subscribe("order.created", noopHandler, nil, nil)
	lt.subscribe("invoice.created", noopHandler, nil, nil)

	lt.clear("order.created")
	assert.Equal(t, 0, lt.count("order.created"))
	assert.Equal(t, 1, lt.count("invoice.created"))

	lt.clear("")
	assert.Equal(t, 0, lt.count(""))
}

func TestListenerTableCountTotal(t *testing.T) {
	lt := newListenerTable()
	lt.subscribe("order.created", noopHandler, nil, nil)
	lt.subscribe("invoice.created", noopHandler, nil, nil)
	assert.Equal(t, 2, lt.count(""))
}

func TestBusSubscribeAndUnsubscribe(t *testing.T) {
	b, err := New(WithSchemaRegistry(schema.New()))
	require.NoError(t, err)
	defer b.Close(time.Second)

	id, err := b.Subscribe("order.created", noopHandler)
	require.NoError(t, err)
	assert.Equal(t, 1, b.ListenerCount("order.created"))

	require.NoError(t, b.Unsubscribe("order.created", id))
	assert.Equal(t, 0, b.ListenerCount("order.created"))
}

func TestBusSubscribeFailsWhenClosed(t *testing.T) {
	b, err := New(WithSchemaRegistry(schema.New()))
	require.NoError(t, err)
	b.Close(time.Second)

	_, err = b.Subscribe("order.created", noopHandler)
	require.Error(t, err)
}

func TestBusClearListeners(t *testing.T) {
	b, err := New(WithSchemaRegistry(schema.New()))
	require.NoError(t, err)
	defer b.Close(time.Second)

	_, err = b.Subscribe("order.created", noopHandler)
	require.NoError(t, err)
	require.NoError(t, b.ClearListeners("order.created"))
	assert.Equal(t, 0, b.ListenerCount("order.created"))
}
