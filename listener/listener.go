// Package listener turns instrument change events into user notifications.
// It subscribes to the instrument feed, resolves who tracks the changed row
// and fans messages out with per-recipient isolation.
package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m0rphed/stonks-bot/core"
	"github.com/m0rphed/stonks-bot/storage"
)

// Messenger delivers one notification text to one chat. Implementations
// must be safe for concurrent use.
type Messenger interface {
	Send(chatID int64, text string) error
}

// State is the listener lifecycle phase.
type State int32

const (
	StateOpen State = iota
	StateListening
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateListening:
		return "listening"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// ErrNotOpen is returned by Listen when the listener already ran or closed.
var ErrNotOpen = errors.New("listener is not open")

const drainTimeout = 10 * time.Second

// Listener consumes instrument updates and notifies every tracker of the
// changed row. A failed recipient never affects the others and never stops
// the event stream. Events are handled one at a time, so successive updates
// to the same instrument notify in commit order.
type Listener struct {
	storage   core.Storage
	messenger Messenger
	log       core.Logger

	state    atomic.Int32
	events   chan storage.InstrumentEvent
	done     chan struct{}
	inFlight sync.WaitGroup
}

// New creates a listener and subscribes it to instrument updates on the
// feed. Call before the feed starts dispatching.
func New(feed *storage.InstrumentFeed, store core.Storage, messenger Messenger, log core.Logger) *Listener {
	l := &Listener{
		storage:   store,
		messenger: messenger,
		log:       log,
		events:    make(chan storage.InstrumentEvent, 100),
		done:      make(chan struct{}),
	}

	// The events channel is never closed; shutdown is signalled through done
	// so the feed goroutine can never hit a closed channel.
	feed.Subscribe(storage.EventUpdate, func(event storage.InstrumentEvent) {
		select {
		case <-l.done:
		case l.events <- event:
		default:
			l.log.WithField("instrument", event.Instrument.Symbol).
				Warn("listener queue full, dropping update event")
		}
	})

	return l
}

// State returns the current lifecycle phase.
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Listen consumes events until ctx is cancelled or Close is called. It may
// be started exactly once.
func (l *Listener) Listen(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(StateOpen), int32(StateListening)) {
		return fmt.Errorf("%w: state %s", ErrNotOpen, l.State())
	}

	l.log.Info("listener started")
	for {
		select {
		case <-ctx.Done():
			l.shutdown()
			return ctx.Err()
		case <-l.done:
			return nil
		case event := <-l.events:
			l.inFlight.Add(1)
			l.process(ctx, event.Instrument)
			l.inFlight.Done()
		}
	}
}

// process runs one fan-out pass on a context detached from the listen
// context: cancellation stops event intake, but a notify already underway
// may finish its deliveries within the drain timeout.
func (l *Listener) process(ctx context.Context, instrument core.Instrument) {
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	l.notify(notifyCtx, instrument)
}

// Close stops the listener and waits up to a drain timeout for in-flight
// notifications.
func (l *Listener) Close() {
	l.shutdown()

	done := make(chan struct{})
	go func() {
		l.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		l.log.Warn("listener close timed out waiting for in-flight notifications")
	}
}

func (l *Listener) shutdown() {
	if l.state.Swap(int32(StateClosed)) != int32(StateClosed) {
		close(l.done)
		l.log.Info("listener stopped")
	}
}

// notify resolves the trackers of one changed instrument and messages each
// of them. Failures are logged per recipient and never propagate.
//
// TODO: batch trackings with NotifyDailyAt set into a daily digest instead
// of messaging on every change.
func (l *Listener) notify(ctx context.Context, instrument core.Instrument) {
	trackings, err := l.storage.Trackings(ctx, core.WithInstrumentID(instrument.ID))
	if err != nil {
		l.log.WithError(err).
			WithField("instrument", instrument.Symbol).
			Error("failed to resolve trackers of changed instrument")
		return
	}

	for _, tracking := range trackings {
		user, err := l.storage.UserByID(ctx, tracking.UserID)
		if err != nil {
			// A tracking without its user is a referential integrity breach;
			// skip the recipient, keep the rest of the fan-out alive.
			l.log.WithError(err).
				WithField("tracking", tracking.ID).
				Error("tracking references a missing user")
			continue
		}

		text := formatUpdate(instrument, tracking)
		if err := l.messenger.Send(user.TelegramID, text); err != nil {
			l.log.WithError(err).
				WithField("tg_user_id", user.TelegramID).
				WithField("instrument", instrument.Symbol).
				Error("failed to deliver notification")
		}
	}
}

// formatUpdate renders one notification text.
func formatUpdate(instrument core.Instrument, tracking *core.Tracking) string {
	value, _ := instrument.CurrentValue()

	var b strings.Builder
	if instrument.Type.IsPair() {
		from, to, _ := core.SplitPairSymbol(instrument.Symbol)
		fmt.Fprintf(&b, "📈 *%s → %s* rate changed: *%g*\n", from, to, value)
	} else {
		fmt.Fprintf(&b, "📈 *%s* price changed: *%g*\n", instrument.Symbol, value)
	}
	fmt.Fprintf(&b, "Your threshold: %g\n", tracking.Threshold())
	fmt.Fprintf(&b, "Updated: %s\n", instrument.UpdatedAt.Format(time.RFC822))
	fmt.Fprintf(&b, "Source: %s", instrument.DataProvider)
	return b.String()
}
