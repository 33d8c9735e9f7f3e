package provider

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewEventBus()
	var mu sync.Mutex
	var a, b int

	bus.Subscribe(func(ev Event) { mu.Lock(); a++; mu.Unlock() })
	bus.Subscribe(func(ev Event) { mu.Lock(); b++; mu.Unlock() })

	bus.Publish(Event{Type: StreamTrade, Symbol: "BTCUSDT"})

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}

func TestEventBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewEventBus()
	count := 0
	unsub := bus.Subscribe(func(ev Event) { count++ })

	bus.Publish(Event{Type: StreamTrade})
	unsub()
	bus.Publish(Event{Type: StreamTrade})

	assert.Equal(t, 1, count)
}

func TestEventBusLegacySinkReplacementWarns(t *testing.T) {
	bus := NewEventBus()
	var last Event
	bus.SetLegacySink(func(ev Event) { last = ev })
	bus.SetLegacySink(func(ev Event) { last = ev }) // replacing logs a warning, does not panic

	bus.Publish(Event{Type: StreamKline, Symbol: "ETHUSDT"})
	require.Equal(t, "ETHUSDT", last.Symbol)
}

func TestEventBusDeliversBothSubscribersAndLegacySink(t *testing.T) {
	bus := NewEventBus()
	subscriberSaw := false
	legacySaw := false

	bus.Subscribe(func(ev Event) { subscriberSaw = true })
	bus.SetLegacySink(func(ev Event) { legacySaw = true })

	bus.Publish(Event{Type: StreamTicker})

	assert.True(t, subscriberSaw)
	assert.True(t, legacySaw)
}
