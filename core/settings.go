package core

import "fmt"

// ProviderConfig selects a named provider for one data category.
// UserCredentials marks configs where the user supplied their own vendor
// key instead of using the bot's.
type ProviderConfig struct {
	Name            string       `json:"name"`
	Type            ProviderType `json:"type"`
	UserCredentials bool         `json:"user_credentials"`
}

// UserSettings holds per-category provider selection. A nil slot means the
// category is unset. This replaces the free-form settings document of older
// schema versions; it is validated at the store boundary instead of trusted.
type UserSettings struct {
	ProviderStockMarket *ProviderConfig `json:"provider_stock_market"`
	ProviderCurrency    *ProviderConfig `json:"provider_currency"`
	ProviderCrypto      *ProviderConfig `json:"provider_crypto"`
}

// AllProvidersUnset reports whether no category has a provider configured.
func (s *UserSettings) AllProvidersUnset() bool {
	return s.ProviderStockMarket == nil &&
		s.ProviderCurrency == nil &&
		s.ProviderCrypto == nil
}

// ProviderFor returns the config of the given category, nil when unset.
func (s *UserSettings) ProviderFor(category ProviderType) *ProviderConfig {
	switch category {
	case ProviderStockMarket:
		return s.ProviderStockMarket
	case ProviderForex:
		return s.ProviderCurrency
	case ProviderCrypto:
		return s.ProviderCrypto
	}
	return nil
}

// SetProviderFor assigns conf to the given category. Setting the universal
// category fills all three slots at once and requires a universal provider.
func (s *UserSettings) SetProviderFor(category ProviderType, conf ProviderConfig) error {
	if !category.Valid() {
		return fmt.Errorf("unknown provider category %q", category)
	}
	if !conf.Type.Covers(category) {
		return fmt.Errorf(
			"provider %q serves %s data, cannot set it for category %q",
			conf.Name, conf.Type.Short(), category,
		)
	}

	switch category {
	case ProviderUniversal:
		s.ProviderStockMarket = &conf
		s.ProviderCurrency = &conf
		s.ProviderCrypto = &conf
	case ProviderStockMarket:
		s.ProviderStockMarket = &conf
	case ProviderForex:
		s.ProviderCurrency = &conf
	case ProviderCrypto:
		s.ProviderCrypto = &conf
	}
	return nil
}

// Validate checks every set slot references a provider type that covers its
// category.
func (s *UserSettings) Validate() error {
	slots := map[ProviderType]*ProviderConfig{
		ProviderStockMarket: s.ProviderStockMarket,
		ProviderForex:       s.ProviderCurrency,
		ProviderCrypto:      s.ProviderCrypto,
	}
	for category, conf := range slots {
		if conf == nil {
			continue
		}
		if conf.Name == "" {
			return fmt.Errorf("settings slot %q has an empty provider name", category)
		}
		if !conf.Type.Covers(category) {
			return fmt.Errorf(
				"settings slot %q holds a %s provider %q",
				category, conf.Type.Short(), conf.Name,
			)
		}
	}
	return nil
}
