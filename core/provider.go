package core

import "context"

// ProviderType is the data category a provider serves.
type ProviderType string

const (
	ProviderStockMarket ProviderType = "sm"
	ProviderForex       ProviderType = "frx"
	ProviderCrypto      ProviderType = "crp"
	ProviderUniversal   ProviderType = "uni"
)

// Valid reports whether t is one of the known provider categories.
func (t ProviderType) Valid() bool {
	switch t {
	case ProviderStockMarket, ProviderForex, ProviderCrypto, ProviderUniversal:
		return true
	}
	return false
}

// Covers reports whether a provider of this type can serve the given
// category. Universal providers cover everything; a universal slot can only
// be filled by a universal provider.
func (t ProviderType) Covers(category ProviderType) bool {
	return t == ProviderUniversal || t == category
}

// Description is the long human-readable category text.
func (t ProviderType) Description() string {
	switch t {
	case ProviderUniversal:
		return "universal data provider: stocks, forex, crypto"
	case ProviderStockMarket:
		return "stock market data provider: stocks, bonds, etc"
	case ProviderForex:
		return "foreign currency data provider: exchange rates"
	case ProviderCrypto:
		return "crypto currency data provider: crypto exchange rates"
	}
	return "unknown data provider type"
}

// Short is the compact category text used in settings listings.
func (t ProviderType) Short() string {
	switch t {
	case ProviderUniversal:
		return "universal"
	case ProviderStockMarket:
		return "stock market only"
	case ProviderForex:
		return "foreign currencies only"
	case ProviderCrypto:
		return "cryptocurrencies only"
	}
	return "unknown"
}

// SearchResult is one normalized hit of a free-text instrument search.
type SearchResult struct {
	Symbol         string
	Name           string
	InstrumentType string
	Region         string
	Currency       string
	DataProvider   string
}

// StockQuote is a normalized point-in-time security quote.
type StockQuote struct {
	Symbol       string
	Price        float64
	Exchange     string
	DataProvider string
}

// PairRate is a normalized fiat or crypto exchange rate.
//
// Rate is the vendor mid rate; vendors quoting only bid/ask contribute the
// ask (the rate a user would actually pay).
type PairRate struct {
	CodeFrom     string
	CodeTo       string
	Rate         float64
	NameFrom     string
	NameTo       string
	Exchange     string
	DataProvider string
}

// DataProvider is the base contract every market-data source implements.
// Capabilities are declared by additionally implementing any subset of
// StockMarketProvider, CurrencyExProvider and CryptoExProvider.
type DataProvider interface {
	ProviderName() string
	ProviderType() ProviderType
}

// StockMarketProvider serves security search and quotes.
type StockMarketProvider interface {
	DataProvider

	// SearchStockMarket returns an empty slice when nothing matches,
	// never a not-found error.
	SearchStockMarket(ctx context.Context, query string) ([]SearchResult, error)

	// SecurityByTicker fails with ErrInstrumentNotFound when the vendor
	// reports no such ticker and with *ProviderError on transport or
	// auth failures.
	SecurityByTicker(ctx context.Context, ticker string) (StockQuote, error)
}

// CurrencyExProvider serves foreign currency exchange rates.
type CurrencyExProvider interface {
	DataProvider
	CurrencyPair(ctx context.Context, from, to string) (PairRate, error)
}

// CryptoExProvider serves crypto-to-crypto exchange rates.
type CryptoExProvider interface {
	DataProvider
	CryptoPair(ctx context.Context, from, to string) (PairRate, error)
}
