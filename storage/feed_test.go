package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m0rphed/stonks-bot/core"
)

func TestFeed_NewInstrumentFeed(t *testing.T) {
	feed := NewInstrumentFeed()
	require.NotEmpty(t, feed)
}

func TestFeed_Subscribe(t *testing.T) {
	feed := NewInstrumentFeed()
	called := make(chan InstrumentEvent, 1)

	feed.Subscribe(EventUpdate, func(event InstrumentEvent) {
		called <- event
	})

	feed.Start()
	feed.Publish(InstrumentEvent{
		Type:       EventUpdate,
		Instrument: core.Instrument{Symbol: "TSLA"},
	})

	event := <-called
	require.Equal(t, "TSLA", event.Instrument.Symbol)
}

func TestFeed_PublishWithoutSubscribers(t *testing.T) {
	feed := NewInstrumentFeed()

	// Must not panic or block
	feed.Publish(InstrumentEvent{Type: EventInsert})
}

func TestFeed_EventTypesAreIsolated(t *testing.T) {
	feed := NewInstrumentFeed()
	updates := make(chan InstrumentEvent, 2)

	feed.Subscribe(EventUpdate, func(event InstrumentEvent) {
		updates <- event
	})

	feed.Start()
	feed.Publish(InstrumentEvent{Type: EventInsert, Instrument: core.Instrument{Symbol: "A"}})
	feed.Publish(InstrumentEvent{Type: EventUpdate, Instrument: core.Instrument{Symbol: "B"}})

	event := <-updates
	require.Equal(t, "B", event.Instrument.Symbol)
}
