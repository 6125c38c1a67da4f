package storage

import (
	"sync"

	"github.com/m0rphed/stonks-bot/core"
)

// EventType identifies the row-level mutation kind carried by the feed.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
)

// InstrumentEvent is one row-level change on the instruments table.
type InstrumentEvent struct {
	Type       EventType
	Instrument core.Instrument
}

// FeedConsumer is a function type that processes instrument events.
type FeedConsumer func(event InstrumentEvent)

// InstrumentFeed fans instrument table changes out to subscribers, keyed by
// event type. Events for one instrument are delivered in publish order;
// nothing is guaranteed across different instruments.
type InstrumentFeed struct {
	mu            sync.RWMutex
	channels      map[EventType]chan InstrumentEvent
	subscriptions map[EventType][]FeedConsumer
}

// NewInstrumentFeed creates a new instrument change feed.
func NewInstrumentFeed() *InstrumentFeed {
	return &InstrumentFeed{
		channels:      make(map[EventType]chan InstrumentEvent),
		subscriptions: make(map[EventType][]FeedConsumer),
	}
}

// Subscribe registers a consumer for one event type. Call before Start.
func (f *InstrumentFeed) Subscribe(event EventType, consumer FeedConsumer) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.channels[event]; !ok {
		// Buffered so a slow consumer does not stall the writer
		f.channels[event] = make(chan InstrumentEvent, 100)
	}

	f.subscriptions[event] = append(f.subscriptions[event], consumer)
}

// Publish sends an event to all subscribers of its type. Publishing without
// subscribers, or after Stop, is a no-op.
func (f *InstrumentFeed) Publish(event InstrumentEvent) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	channel, ok := f.channels[event.Type]
	if !ok {
		return
	}

	select {
	case channel <- event:
	default:
		// Channel full; the refresher will produce the row again next pass
	}
}

// Start begins dispatching events for all registered subscriptions.
func (f *InstrumentFeed) Start() {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for event, channel := range f.channels {
		go f.process(event, channel)
	}
}

func (f *InstrumentFeed) process(event EventType, channel chan InstrumentEvent) {
	for inbound := range channel {
		f.mu.RLock()
		consumers := f.subscriptions[event]
		f.mu.RUnlock()

		for _, consumer := range consumers {
			consumer(inbound)
		}
	}
}

// Stop closes all feed channels; subsequent Publish calls are dropped.
func (f *InstrumentFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for event, channel := range f.channels {
		close(channel)
		delete(f.channels, event)
	}

	f.subscriptions = make(map[EventType][]FeedConsumer)
}
