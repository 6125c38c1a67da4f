// Package refresher periodically re-quotes every stored instrument through
// its recorded data provider and persists changed values, which feeds the
// change listener.
package refresher

import (
	"context"
	"errors"
	"time"

	"github.com/jpillora/backoff"

	"github.com/m0rphed/stonks-bot/core"
	"github.com/m0rphed/stonks-bot/provider"
)

// Refresher drives the periodic instrument refresh loop.
type Refresher struct {
	storage  core.Storage
	registry *provider.Registry
	interval time.Duration
	log      core.Logger
}

// New creates a refresher ticking at the given interval.
func New(store core.Storage, registry *provider.Registry, interval time.Duration, log core.Logger) *Refresher {
	return &Refresher{
		storage:  store,
		registry: registry,
		interval: interval,
		log:      log,
	}
}

// Run executes refresh passes until ctx is cancelled. A pass hitting vendor
// unavailability backs off before the next one instead of hammering a
// throttled API.
func (r *Refresher) Run(ctx context.Context) error {
	r.log.WithField("interval", r.interval.String()).Info("refresher started")

	retry := &backoff.Backoff{
		Min:    r.interval,
		Max:    30 * time.Minute,
		Factor: 2,
		Jitter: true,
	}

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("refresher stopped")
			return ctx.Err()
		case <-timer.C:
			throttled := r.refreshAll(ctx)
			if throttled {
				timer.Reset(retry.Duration())
			} else {
				retry.Reset()
				timer.Reset(r.interval)
			}
		}
	}
}

// refreshAll re-quotes every instrument once. It reports whether any fetch
// hit vendor unavailability.
func (r *Refresher) refreshAll(ctx context.Context) (throttled bool) {
	instruments, err := r.storage.Instruments(ctx)
	if err != nil {
		r.log.WithError(err).Error("failed to list instruments for refresh")
		return false
	}

	for _, instrument := range instruments {
		if ctx.Err() != nil {
			return throttled
		}

		if err := r.refresh(ctx, instrument); err != nil {
			if core.IsProviderUnavailable(err) {
				throttled = true
			}
			r.log.WithError(err).
				WithField("instrument", instrument.Symbol).
				WithField("provider", instrument.DataProvider).
				Warn("failed to refresh instrument")
		}
	}
	return throttled
}

// refresh re-quotes one instrument and saves it only when the value moved.
// Unchanged values are not written, so tracking users are not re-notified
// about nothing.
func (r *Refresher) refresh(ctx context.Context, instrument *core.Instrument) error {
	fresh, err := r.fetchValue(ctx, instrument)
	if err != nil {
		return err
	}

	current, quoted := instrument.CurrentValue()
	if quoted && current == fresh {
		return nil
	}

	if instrument.Type.IsPair() {
		instrument.ExchangeRate = &fresh
	} else {
		instrument.Price = &fresh
	}
	return r.storage.UpdateInstrument(ctx, instrument)
}

// fetchValue queries the instrument's recorded provider for its current
// price or rate.
func (r *Refresher) fetchValue(ctx context.Context, instrument *core.Instrument) (float64, error) {
	switch instrument.Type {
	case core.InstrumentStockMarket:
		sm, err := r.registry.StockMarket(instrument.DataProvider)
		if err != nil {
			return 0, err
		}
		quote, err := sm.SecurityByTicker(ctx, instrument.Symbol)
		if err != nil {
			return 0, err
		}
		return quote.Price, nil

	case core.InstrumentCurrencyPair:
		from, to, ok := core.SplitPairSymbol(instrument.Symbol)
		if !ok {
			return 0, errors.New("malformed pair symbol " + instrument.Symbol)
		}
		fx, err := r.registry.CurrencyEx(instrument.DataProvider)
		if err != nil {
			return 0, err
		}
		rate, err := fx.CurrencyPair(ctx, from, to)
		if err != nil {
			return 0, err
		}
		return rate.Rate, nil

	case core.InstrumentCryptoPair:
		from, to, ok := core.SplitPairSymbol(instrument.Symbol)
		if !ok {
			return 0, errors.New("malformed pair symbol " + instrument.Symbol)
		}
		cx, err := r.registry.CryptoEx(instrument.DataProvider)
		if err != nil {
			return 0, err
		}
		rate, err := cx.CryptoPair(ctx, from, to)
		if err != nil {
			return 0, err
		}
		return rate.Rate, nil
	}

	return 0, errors.New("unknown instrument type " + string(instrument.Type))
}
