package benchmarks

import (
	"context"
	"testing"

	"github.com/relaybus/relaybus"
	"github.com/relaybus/relaybus/pkg/relaybus/schema"
	"github.com/relaybus/relaybus/pkg/relaybus/txstore"
)

// BenchmarkTransact_SingleEvent measures the durable path end to end: persist,
// dispatch, and drive a single-event transaction to completion.
func BenchmarkTransact_SingleEvent(b *testing.B) {
	bus := mustNewTxBus()
	defer bus.Close()
	_, _ = bus.Subscribe("bench.tx", noopListener)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handle, err := bus.Transact(ctx, []relaybus.TransactEvent{
			{EventType: "bench.tx", Module: "bench", Payload: i},
		})
		if err != nil {
			b.Fatal(err)
		}
		handle.Wait()
	}
}

// BenchmarkTransact_MultiEvent measures a three-event atomic transaction.
func BenchmarkTransact_MultiEvent(b *testing.B) {
	bus := mustNewTxBus()
	defer bus.Close()
	_, _ = bus.Subscribe("bench.tx", noopListener)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		handle, err := bus.Transact(ctx, []relaybus.TransactEvent{
			{EventType: "bench.tx", Module: "bench", Payload: i},
			{EventType: "bench.tx", Module: "bench", Payload: i},
			{EventType: "bench.tx", Module: "bench", Payload: i},
		})
		if err != nil {
			b.Fatal(err)
		}
		handle.Wait()
	}
}

func mustNewTxBus() *relaybus.Bus {
	registry := schema.New()
	registry.Register("bench.tx", "1.0", schema.AcceptAny)
	bus, err := relaybus.New(
		relaybus.WithSchemaRegistry(registry),
		relaybus.WithTxStore(txstore.NewMemoryStore()),
	)
	if err != nil {
		panic(err)
	}
	return bus
}
