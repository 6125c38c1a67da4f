// Package alphavantage implements the universal data provider backed by the
// Alpha Vantage REST API: stock search and quotes, foreign exchange rates
// and crypto exchange rates from a single endpoint and one API key.
package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/m0rphed/stonks-bot/core"
)

const (
	// Name is the unique provider tag stored on instruments.
	Name = "alpha_vantage"

	defaultBaseURL = "https://www.alphavantage.co/query"
	defaultTimeout = 15 * time.Second
)

// errVendorRejected marks requests the vendor refused as invalid; point
// lookups translate it into a not-found for the user.
var errVendorRejected = errors.New("vendor rejected the request")

// Client is the Alpha Vantage provider. It is stateless aside from its
// credential; every call runs one scoped HTTP request whose body is closed
// on all exit paths.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint; used by tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates an Alpha Vantage client with the given API key.
func New(apiKey string, options ...Option) *Client {
	client := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// Compile-time capability declarations.
var (
	_ core.StockMarketProvider = (*Client)(nil)
	_ core.CurrencyExProvider  = (*Client)(nil)
	_ core.CryptoExProvider    = (*Client)(nil)
)

func (c *Client) ProviderName() string { return Name }

func (c *Client) ProviderType() core.ProviderType { return core.ProviderUniversal }

// SearchStockMarket runs a free-text symbol search. No match yields an
// empty slice, not an error.
func (c *Client) SearchStockMarket(ctx context.Context, query string) ([]core.SearchResult, error) {
	params := url.Values{
		"function": {"SYMBOL_SEARCH"},
		"keywords": {query},
	}

	var payload searchResponse
	if err := c.get(ctx, params, &payload); err != nil {
		if errors.Is(err, errVendorRejected) {
			return []core.SearchResult{}, nil
		}
		return nil, err
	}

	results := make([]core.SearchResult, 0, len(payload.BestMatches))
	for _, match := range payload.BestMatches {
		results = append(results, match.toSearchResult())
	}
	return results, nil
}

// SecurityByTicker fetches the latest quote of one security.
func (c *Client) SecurityByTicker(ctx context.Context, ticker string) (core.StockQuote, error) {
	params := url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {strings.ToUpper(ticker)},
	}

	var payload globalQuoteResponse
	if err := c.get(ctx, params, &payload); err != nil {
		if errors.Is(err, errVendorRejected) {
			return core.StockQuote{}, fmt.Errorf("ticker %q: %w", ticker, core.ErrInstrumentNotFound)
		}
		return core.StockQuote{}, err
	}

	// Unknown tickers come back as an empty quote object, not an error
	if payload.GlobalQuote.Symbol == "" {
		return core.StockQuote{}, fmt.Errorf("ticker %q: %w", ticker, core.ErrInstrumentNotFound)
	}

	quote, err := payload.GlobalQuote.toStockQuote()
	if err != nil {
		return core.StockQuote{}, &core.ProviderError{Provider: Name, Op: "GLOBAL_QUOTE", Err: err}
	}
	return quote, nil
}

// CurrencyPair fetches a foreign currency exchange rate.
func (c *Client) CurrencyPair(ctx context.Context, from, to string) (core.PairRate, error) {
	return c.exchangeRate(ctx, from, to)
}

// CryptoPair fetches a crypto exchange rate. Alpha Vantage serves digital
// currencies through the same realtime exchange rate function.
func (c *Client) CryptoPair(ctx context.Context, from, to string) (core.PairRate, error) {
	return c.exchangeRate(ctx, from, to)
}

func (c *Client) exchangeRate(ctx context.Context, from, to string) (core.PairRate, error) {
	params := url.Values{
		"function":      {"CURRENCY_EXCHANGE_RATE"},
		"from_currency": {strings.ToUpper(from)},
		"to_currency":   {strings.ToUpper(to)},
	}

	var payload exchangeRateResponse
	if err := c.get(ctx, params, &payload); err != nil {
		if errors.Is(err, errVendorRejected) {
			return core.PairRate{}, fmt.Errorf("pair %s/%s: %w", from, to, core.ErrInstrumentNotFound)
		}
		return core.PairRate{}, err
	}

	if payload.ExchangeRate.FromCode == "" {
		return core.PairRate{}, fmt.Errorf("pair %s/%s: %w", from, to, core.ErrInstrumentNotFound)
	}

	rate, err := payload.ExchangeRate.toPairRate()
	if err != nil {
		return core.PairRate{}, &core.ProviderError{Provider: Name, Op: "CURRENCY_EXCHANGE_RATE", Err: err}
	}
	return rate, nil
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	op := params.Get("function")
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return &core.ProviderError{Provider: Name, Op: op, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &core.ProviderError{Provider: Name, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &core.ProviderError{
			Provider: Name,
			Op:       op,
			Err:      fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &core.ProviderError{Provider: Name, Op: op, Err: err}
	}

	// The vendor reports auth and throttling problems inside a 200 body
	var failure failureResponse
	if err := json.Unmarshal(body, &failure); err == nil {
		if failure.ErrorMessage != "" {
			return fmt.Errorf("%w: %s", errVendorRejected, failure.ErrorMessage)
		}
		if failure.Note != "" || failure.Information != "" {
			return &core.ProviderError{
				Provider: Name,
				Op:       op,
				Err:      fmt.Errorf("throttled: %s%s", failure.Note, failure.Information),
			}
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &core.ProviderError{Provider: Name, Op: op, Err: err}
	}
	return nil
}
