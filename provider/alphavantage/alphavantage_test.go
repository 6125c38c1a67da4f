package alphavantage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m0rphed/stonks-bot/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New("test-key", WithBaseURL(server.URL), WithHTTPClient(server.Client()))
}

func TestSearchStockMarket(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "SYMBOL_SEARCH", r.URL.Query().Get("function"))
		require.Equal(t, "tesla", r.URL.Query().Get("keywords"))
		require.Equal(t, "test-key", r.URL.Query().Get("apikey"))

		w.Write([]byte(`{"bestMatches": [
			{"1. symbol": "TSLA", "2. name": "Tesla Inc", "3. type": "Equity", "4. region": "United States", "8. currency": "USD"}
		]}`))
	})

	results, err := client.SearchStockMarket(context.Background(), "tesla")
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "TSLA", results[0].Symbol)
	require.Equal(t, "Tesla Inc", results[0].Name)
	require.Equal(t, Name, results[0].DataProvider)
}

func TestSearchStockMarket_NoMatches(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"bestMatches": []}`))
	})

	results, err := client.SearchStockMarket(context.Background(), "nothing")
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestSecurityByTicker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		require.Equal(t, "TSLA", r.URL.Query().Get("symbol"))

		w.Write([]byte(`{"Global Quote": {"01. symbol": "TSLA", "05. price": "420.6900", "07. latest trading day": "2024-01-02"}}`))
	})

	quote, err := client.SecurityByTicker(context.Background(), "tsla")
	require.NoError(t, err)
	require.Equal(t, "TSLA", quote.Symbol)
	require.Equal(t, 420.69, quote.Price)
}

func TestSecurityByTicker_EmptyQuoteIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"Global Quote": {}}`))
	})

	_, err := client.SecurityByTicker(context.Background(), "NOPE")
	require.ErrorIs(t, err, core.ErrInstrumentNotFound)
}

func TestSecurityByTicker_VendorRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"Error Message": "Invalid API call."}`))
	})

	_, err := client.SecurityByTicker(context.Background(), "NOPE")
	require.ErrorIs(t, err, core.ErrInstrumentNotFound)
}

func TestCurrencyPair(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "CURRENCY_EXCHANGE_RATE", r.URL.Query().Get("function"))
		require.Equal(t, "USD", r.URL.Query().Get("from_currency"))
		require.Equal(t, "EUR", r.URL.Query().Get("to_currency"))

		w.Write([]byte(`{"Realtime Currency Exchange Rate": {
			"1. From_Currency Code": "USD",
			"2. From_Currency Name": "United States Dollar",
			"3. To_Currency Code": "EUR",
			"4. To_Currency Name": "Euro",
			"5. Exchange Rate": "0.92150000"
		}}`))
	})

	rate, err := client.CurrencyPair(context.Background(), "usd", "eur")
	require.NoError(t, err)
	require.Equal(t, "USD", rate.CodeFrom)
	require.Equal(t, "EUR", rate.CodeTo)
	require.Equal(t, 0.9215, rate.Rate)
}

func TestCryptoPair_FallsBackToAsk(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"Realtime Currency Exchange Rate": {
			"1. From_Currency Code": "BTC",
			"3. To_Currency Code": "ETH",
			"8. Bid Price": "15.40",
			"9. Ask Price": "15.60"
		}}`))
	})

	rate, err := client.CryptoPair(context.Background(), "btc", "eth")
	require.NoError(t, err)
	require.Equal(t, 15.6, rate.Rate)
}

func TestPairNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"Realtime Currency Exchange Rate": {}}`))
	})

	_, err := client.CurrencyPair(context.Background(), "XXX", "YYY")
	require.ErrorIs(t, err, core.ErrInstrumentNotFound)
}

func TestThrottlingIsProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`))
	})

	_, err := client.SecurityByTicker(context.Background(), "TSLA")
	require.True(t, core.IsProviderUnavailable(err))
	require.NotErrorIs(t, err, core.ErrInstrumentNotFound)
}

func TestServerErrorIsProviderError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.SecurityByTicker(context.Background(), "TSLA")
	require.True(t, core.IsProviderUnavailable(err))
}
