package tracker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	zl "github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/m0rphed/stonks-bot/core"
	zerologger "github.com/m0rphed/stonks-bot/logger/zerolog"
	"github.com/m0rphed/stonks-bot/provider"
	"github.com/m0rphed/stonks-bot/storage"
)

// fakeProvider is a universal provider with canned data and a fetch counter.
type fakeProvider struct {
	quotes  map[string]float64
	rates   map[string]float64
	fetches int
}

func (f *fakeProvider) ProviderName() string            { return "fake" }
func (f *fakeProvider) ProviderType() core.ProviderType { return core.ProviderUniversal }

func (f *fakeProvider) SearchStockMarket(_ context.Context, query string) ([]core.SearchResult, error) {
	if _, ok := f.quotes[query]; ok {
		return []core.SearchResult{{Symbol: query, Name: query + " Inc", DataProvider: "fake"}}, nil
	}
	return []core.SearchResult{}, nil
}

func (f *fakeProvider) SecurityByTicker(_ context.Context, ticker string) (core.StockQuote, error) {
	f.fetches++
	price, ok := f.quotes[ticker]
	if !ok {
		return core.StockQuote{}, fmt.Errorf("ticker %q: %w", ticker, core.ErrInstrumentNotFound)
	}
	return core.StockQuote{Symbol: ticker, Price: price, DataProvider: "fake"}, nil
}

func (f *fakeProvider) CurrencyPair(_ context.Context, from, to string) (core.PairRate, error) {
	return f.pair(from, to)
}

func (f *fakeProvider) CryptoPair(_ context.Context, from, to string) (core.PairRate, error) {
	return f.pair(from, to)
}

func (f *fakeProvider) pair(from, to string) (core.PairRate, error) {
	f.fetches++
	rate, ok := f.rates[core.PairSymbol(from, to)]
	if !ok {
		return core.PairRate{}, fmt.Errorf("pair %s/%s: %w", from, to, core.ErrInstrumentNotFound)
	}
	return core.PairRate{CodeFrom: from, CodeTo: to, Rate: rate, DataProvider: "fake"}, nil
}

func testLogger() core.Logger {
	nop := zl.Nop()
	return zerologger.NewAdapter(&nop)
}

func floatPtr(v float64) *float64 { return &v }

type fixture struct {
	controller *Controller
	store      *storage.SQLStore
	provider   *fakeProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.NewFromSQLite(":memory:", nil, testLogger(), storage.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pending, err := storage.NewPendingActions(":memory:", time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pending.Close() })

	fake := &fakeProvider{
		quotes: map[string]float64{"TSLA": 420.69, "AAPL": 180},
		rates:  map[string]float64{"USD_EUR": 0.92, "BTC_ETH": 15.5},
	}

	return &fixture{
		controller: New(store, provider.NewRegistry(fake), pending, testLogger()),
		store:      store,
		provider:   fake,
	}
}

// signIn signs the user in and points every category at the fake provider.
func (f *fixture) signIn(t *testing.T, tgID int64) {
	t.Helper()
	ctx := context.Background()

	_, _, err := f.controller.SignIn(ctx, tgID)
	require.NoError(t, err)
	_, err = f.controller.SetProvider(ctx, tgID, core.ProviderUniversal, "fake")
	require.NoError(t, err)
}

func TestSignIn_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.controller.SignIn(ctx, 42)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := f.controller.SignIn(ctx, 42)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
}

func TestSetProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.controller.SignIn(ctx, 42)
	require.NoError(t, err)

	settings, err := f.controller.SetProvider(ctx, 42, core.ProviderCrypto, "fake")
	require.NoError(t, err)
	require.Equal(t, "fake", settings.ProviderCrypto.Name)
	require.Nil(t, settings.ProviderStockMarket)

	_, err = f.controller.SetProvider(ctx, 42, core.ProviderCrypto, "bloomberg")
	require.ErrorIs(t, err, core.ErrProviderNotFound)

	// Selection must survive a reload
	reloaded, err := f.controller.Settings(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, "fake", reloaded.ProviderCrypto.Name)
}

func TestTrack_NoProviderConfigured(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.controller.SignIn(ctx, 42)
	require.NoError(t, err)

	_, err = f.controller.Track(ctx, 42, TrackRequest{
		Type:    core.InstrumentStockMarket,
		Symbol:  "TSLA",
		OnPrice: floatPtr(500),
	})
	require.ErrorIs(t, err, core.ErrProviderNotSet)
}

func TestTrack_Stock(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, 42)
	ctx := context.Background()

	confirmation, err := f.controller.Track(ctx, 42, TrackRequest{
		Type:    core.InstrumentStockMarket,
		Symbol:  "tsla",
		OnPrice: floatPtr(500),
	})
	require.NoError(t, err)
	require.Equal(t, "TSLA", confirmation.Instrument.Symbol)
	require.Equal(t, 420.69, *confirmation.Instrument.Price)
	require.Equal(t, 500.0, confirmation.Tracking.Threshold())
}

func TestTrack_UnknownTicker(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, 42)

	_, err := f.controller.Track(context.Background(), 42, TrackRequest{
		Type:    core.InstrumentStockMarket,
		Symbol:  "NOPE",
		OnPrice: floatPtr(1),
	})
	require.ErrorIs(t, err, core.ErrInstrumentNotFound)
}

func TestTrack_InstrumentIsShared(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, 1)
	f.signIn(t, 2)
	ctx := context.Background()

	first, err := f.controller.Track(ctx, 1, TrackRequest{
		Type:     core.InstrumentCryptoPair,
		CodeFrom: "BTC",
		CodeTo:   "ETH",
		OnRate:   floatPtr(20),
	})
	require.NoError(t, err)

	second, err := f.controller.Track(ctx, 2, TrackRequest{
		Type:     core.InstrumentCryptoPair,
		CodeFrom: "BTC",
		CodeTo:   "ETH",
		OnRate:   floatPtr(10),
	})
	require.NoError(t, err)

	// One shared instrument row, one fetch, two trackings
	require.Equal(t, first.Instrument.ID, second.Instrument.ID)
	require.Equal(t, 1, f.provider.fetches)

	trackings, err := f.store.Trackings(ctx, core.WithInstrumentID(first.Instrument.ID))
	require.NoError(t, err)
	require.Len(t, trackings, 2)
}

func TestTrackRequest_Validate(t *testing.T) {
	valid := TrackRequest{Type: core.InstrumentStockMarket, Symbol: "TSLA", OnPrice: floatPtr(1)}
	require.NoError(t, valid.Validate())

	both := TrackRequest{Type: core.InstrumentStockMarket, Symbol: "TSLA", OnPrice: floatPtr(1), OnRate: floatPtr(2)}
	require.ErrorIs(t, both.Validate(), core.ErrThresholdExclusive)

	wrongThreshold := TrackRequest{Type: core.InstrumentCryptoPair, CodeFrom: "BTC", CodeTo: "ETH", OnPrice: floatPtr(1)}
	require.ErrorIs(t, wrongThreshold.Validate(), core.ErrThresholdExclusive)

	missingCodes := TrackRequest{Type: core.InstrumentCurrencyPair, OnRate: floatPtr(1)}
	require.Error(t, missingCodes.Validate())

	unknownType := TrackRequest{Type: "bond", OnPrice: floatPtr(1)}
	require.Error(t, unknownType.Validate())
}

func TestProposeConfirmTracking(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, 42)
	ctx := context.Background()

	proposal, err := f.controller.ProposeTracking(ctx, 42, TrackRequest{
		Type:     core.InstrumentCurrencyPair,
		CodeFrom: "USD",
		CodeTo:   "EUR",
		OnRate:   floatPtr(0.95),
	})
	require.NoError(t, err)
	require.NotEmpty(t, proposal.Token)
	require.Equal(t, 0.92, proposal.Value)

	// Nothing persisted until confirmation
	trackings, err := f.store.Trackings(ctx)
	require.NoError(t, err)
	require.Empty(t, trackings)

	confirmation, err := f.controller.ConfirmTracking(ctx, proposal.Token)
	require.NoError(t, err)
	require.Equal(t, "USD_EUR", confirmation.Instrument.Symbol)

	// Tokens are single use
	_, err = f.controller.ConfirmTracking(ctx, proposal.Token)
	require.ErrorIs(t, err, core.ErrPendingNotFound)
}

func TestCancel_DiscardsProposal(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, 42)
	ctx := context.Background()

	proposal, err := f.controller.ProposeTracking(ctx, 42, TrackRequest{
		Type:    core.InstrumentStockMarket,
		Symbol:  "TSLA",
		OnPrice: floatPtr(500),
	})
	require.NoError(t, err)

	f.controller.Cancel(proposal.Token)
	// Cancelling twice is harmless
	f.controller.Cancel(proposal.Token)

	_, err = f.controller.ConfirmTracking(ctx, proposal.Token)
	require.ErrorIs(t, err, core.ErrPendingNotFound)
}

func TestConfirmTracking_WrongKindToken(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, 42)
	ctx := context.Background()

	token, err := f.controller.ProposeDeletion(ctx, 42)
	require.NoError(t, err)

	_, err = f.controller.ConfirmTracking(ctx, token)
	require.ErrorIs(t, err, core.ErrPendingNotFound)
}

// failingTrackingStore fails every CreateTracking call.
type failingTrackingStore struct {
	core.Storage
}

func (s *failingTrackingStore) CreateTracking(context.Context, *core.Tracking) error {
	return errors.New("disk full")
}

func TestTrack_PartialFailureKeepsInstrument(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, 42)
	ctx := context.Background()

	pending, err := storage.NewPendingActions(":memory:", time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pending.Close() })

	fake := &fakeProvider{quotes: map[string]float64{"TSLA": 420.69}}
	broken := New(&failingTrackingStore{Storage: f.store}, provider.NewRegistry(fake), pending, testLogger())

	_, err = broken.Track(ctx, 42, TrackRequest{
		Type:    core.InstrumentStockMarket,
		Symbol:  "TSLA",
		OnPrice: floatPtr(500),
	})

	var partial *core.PartialTrackError
	require.ErrorAs(t, err, &partial)
	require.NotEmpty(t, partial.InstrumentID)

	// The instrument row survived, so the retry skips the provider fetch
	instrument, err := f.store.FindInstrument(ctx, core.InstrumentStockMarket, "fake", "TSLA")
	require.NoError(t, err)
	require.Equal(t, partial.InstrumentID, instrument.ID)

	confirmation, err := f.controller.Track(ctx, 42, TrackRequest{
		Type:    core.InstrumentStockMarket,
		Symbol:  "TSLA",
		OnPrice: floatPtr(500),
	})
	require.NoError(t, err)
	require.Equal(t, instrument.ID, confirmation.Instrument.ID)
	require.Zero(t, f.provider.fetches)
}

func TestSearch_RequiresStockProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.controller.SignIn(ctx, 42)
	require.NoError(t, err)

	_, err = f.controller.Search(ctx, 42, "tesla")
	require.ErrorIs(t, err, core.ErrProviderNotSet)

	f.signIn(t, 42)
	results, err := f.controller.Search(ctx, 42, "TSLA")
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestDeleteTracking_OwnershipEnforced(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, 1)
	f.signIn(t, 2)
	ctx := context.Background()

	confirmation, err := f.controller.Track(ctx, 1, TrackRequest{
		Type:    core.InstrumentStockMarket,
		Symbol:  "TSLA",
		OnPrice: floatPtr(500),
	})
	require.NoError(t, err)

	err = f.controller.DeleteTracking(ctx, 2, confirmation.Tracking.ID)
	require.ErrorIs(t, err, core.ErrTrackingNotFound)

	require.NoError(t, f.controller.DeleteTracking(ctx, 1, confirmation.Tracking.ID))
}

func TestProposeConfirmDeletion(t *testing.T) {
	f := newFixture(t)
	f.signIn(t, 42)
	ctx := context.Background()

	_, err := f.controller.Track(ctx, 42, TrackRequest{
		Type:    core.InstrumentStockMarket,
		Symbol:  "TSLA",
		OnPrice: floatPtr(500),
	})
	require.NoError(t, err)

	token, err := f.controller.ProposeDeletion(ctx, 42)
	require.NoError(t, err)

	tgID, err := f.controller.ConfirmDeletion(ctx, token)
	require.NoError(t, err)
	require.Equal(t, int64(42), tgID)

	_, _, err = f.controller.SignIn(ctx, 42)
	require.NoError(t, err)
	trackings, err := f.controller.Trackings(ctx, 42)
	require.NoError(t, err)
	require.Empty(t, trackings)
}

func TestProposeDeletion_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.controller.ProposeDeletion(context.Background(), 404)
	require.ErrorIs(t, err, core.ErrUserNotFound)
}
