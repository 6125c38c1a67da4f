// Package provider holds the registry of configured market-data sources and
// answers capability queries against the core provider interfaces.
package provider

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/m0rphed/stonks-bot/core"
)

// Registry is the read-mostly set of providers the bot was started with.
type Registry struct {
	providers []core.DataProvider
}

// NewRegistry builds a registry from the given providers.
func NewRegistry(providers ...core.DataProvider) *Registry {
	return &Registry{providers: providers}
}

// All returns every configured provider.
func (r *Registry) All() []core.DataProvider {
	return r.providers
}

// ByName finds a provider by its unique name.
func (r *Registry) ByName(name string) (core.DataProvider, error) {
	for _, prov := range r.providers {
		if prov.ProviderName() == name {
			return prov, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, core.ErrProviderNotFound)
}

// ByType returns all providers of the given category.
func (r *Registry) ByType(t core.ProviderType) []core.DataProvider {
	return lo.Filter(r.providers, func(prov core.DataProvider, _ int) bool {
		return prov.ProviderType() == t
	})
}

// StockMarket resolves a named provider and requires the stock market
// capability from it.
func (r *Registry) StockMarket(name string) (core.StockMarketProvider, error) {
	prov, err := r.ByName(name)
	if err != nil {
		return nil, err
	}
	sm, ok := prov.(core.StockMarketProvider)
	if !ok {
		return nil, fmt.Errorf("%q (stock market): %w", name, core.ErrCapabilityMissing)
	}
	return sm, nil
}

// CurrencyEx resolves a named provider and requires the forex capability.
func (r *Registry) CurrencyEx(name string) (core.CurrencyExProvider, error) {
	prov, err := r.ByName(name)
	if err != nil {
		return nil, err
	}
	fx, ok := prov.(core.CurrencyExProvider)
	if !ok {
		return nil, fmt.Errorf("%q (currency exchange): %w", name, core.ErrCapabilityMissing)
	}
	return fx, nil
}

// CryptoEx resolves a named provider and requires the crypto capability.
func (r *Registry) CryptoEx(name string) (core.CryptoExProvider, error) {
	prov, err := r.ByName(name)
	if err != nil {
		return nil, err
	}
	cx, ok := prov.(core.CryptoExProvider)
	if !ok {
		return nil, fmt.Errorf("%q (crypto exchange): %w", name, core.ErrCapabilityMissing)
	}
	return cx, nil
}

// StockMarketProviders returns every provider implementing the stock market
// capability, regardless of declared category.
func (r *Registry) StockMarketProviders() []core.StockMarketProvider {
	return lo.FilterMap(r.providers, func(prov core.DataProvider, _ int) (core.StockMarketProvider, bool) {
		sm, ok := prov.(core.StockMarketProvider)
		return sm, ok
	})
}
