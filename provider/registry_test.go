package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m0rphed/stonks-bot/core"
)

type fakeCryptoProvider struct{ name string }

func (f *fakeCryptoProvider) ProviderName() string             { return f.name }
func (f *fakeCryptoProvider) ProviderType() core.ProviderType  { return core.ProviderCrypto }
func (f *fakeCryptoProvider) CryptoPair(context.Context, string, string) (core.PairRate, error) {
	return core.PairRate{}, nil
}

type fakeUniversalProvider struct{ name string }

func (f *fakeUniversalProvider) ProviderName() string            { return f.name }
func (f *fakeUniversalProvider) ProviderType() core.ProviderType { return core.ProviderUniversal }
func (f *fakeUniversalProvider) SearchStockMarket(context.Context, string) ([]core.SearchResult, error) {
	return nil, nil
}
func (f *fakeUniversalProvider) SecurityByTicker(context.Context, string) (core.StockQuote, error) {
	return core.StockQuote{}, nil
}
func (f *fakeUniversalProvider) CurrencyPair(context.Context, string, string) (core.PairRate, error) {
	return core.PairRate{}, nil
}
func (f *fakeUniversalProvider) CryptoPair(context.Context, string, string) (core.PairRate, error) {
	return core.PairRate{}, nil
}

func TestRegistry_ByName(t *testing.T) {
	registry := NewRegistry(
		&fakeUniversalProvider{name: "alpha_vantage"},
		&fakeCryptoProvider{name: "binance"},
	)

	prov, err := registry.ByName("binance")
	require.NoError(t, err)
	require.Equal(t, core.ProviderCrypto, prov.ProviderType())

	_, err = registry.ByName("bloomberg")
	require.ErrorIs(t, err, core.ErrProviderNotFound)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestRegistry_ByType(t *testing.T) {
	registry := NewRegistry(
		&fakeUniversalProvider{name: "alpha_vantage"},
		&fakeCryptoProvider{name: "binance"},
	)

	crypto := registry.ByType(core.ProviderCrypto)
	require.Len(t, crypto, 1)
	require.Equal(t, "binance", crypto[0].ProviderName())

	require.Empty(t, registry.ByType(core.ProviderForex))
	require.Len(t, registry.All(), 2)
}

func TestRegistry_CapabilityChecks(t *testing.T) {
	registry := NewRegistry(
		&fakeUniversalProvider{name: "alpha_vantage"},
		&fakeCryptoProvider{name: "binance"},
	)

	_, err := registry.CryptoEx("binance")
	require.NoError(t, err)

	_, err = registry.StockMarket("binance")
	require.ErrorIs(t, err, core.ErrCapabilityMissing)

	_, err = registry.CurrencyEx("binance")
	require.ErrorIs(t, err, core.ErrCapabilityMissing)

	_, err = registry.StockMarket("alpha_vantage")
	require.NoError(t, err)
}

func TestRegistry_StockMarketProviders(t *testing.T) {
	registry := NewRegistry(
		&fakeUniversalProvider{name: "alpha_vantage"},
		&fakeCryptoProvider{name: "binance"},
	)

	stockCapable := registry.StockMarketProviders()
	require.Len(t, stockCapable, 1)
	require.Equal(t, "alpha_vantage", stockCapable[0].ProviderName())
}
