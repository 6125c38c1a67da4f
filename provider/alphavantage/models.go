package alphavantage

import (
	"strconv"

	"github.com/m0rphed/stonks-bot/core"
)

// Alpha Vantage prefixes every JSON key with an ordinal, so the wire models
// exist only to strip that quirk before the data leaves this package.

type searchResponse struct {
	BestMatches []searchMatch `json:"bestMatches"`
}

type searchMatch struct {
	Symbol   string `json:"1. symbol"`
	Name     string `json:"2. name"`
	Type     string `json:"3. type"`
	Region   string `json:"4. region"`
	Currency string `json:"8. currency"`
}

func (m searchMatch) toSearchResult() core.SearchResult {
	return core.SearchResult{
		Symbol:         m.Symbol,
		Name:           m.Name,
		InstrumentType: m.Type,
		Region:         m.Region,
		Currency:       m.Currency,
		DataProvider:   Name,
	}
}

type globalQuoteResponse struct {
	GlobalQuote globalQuote `json:"Global Quote"`
}

type globalQuote struct {
	Symbol           string `json:"01. symbol"`
	Price            string `json:"05. price"`
	LatestTradingDay string `json:"07. latest trading day"`
}

func (q globalQuote) toStockQuote() (core.StockQuote, error) {
	price, err := strconv.ParseFloat(q.Price, 64)
	if err != nil {
		return core.StockQuote{}, err
	}
	return core.StockQuote{
		Symbol:       q.Symbol,
		Price:        price,
		DataProvider: Name,
	}, nil
}

type exchangeRateResponse struct {
	ExchangeRate exchangeRate `json:"Realtime Currency Exchange Rate"`
}

type exchangeRate struct {
	FromCode string `json:"1. From_Currency Code"`
	FromName string `json:"2. From_Currency Name"`
	ToCode   string `json:"3. To_Currency Code"`
	ToName   string `json:"4. To_Currency Name"`
	Rate     string `json:"5. Exchange Rate"`
	BidPrice string `json:"8. Bid Price"`
	AskPrice string `json:"9. Ask Price"`
}

func (r exchangeRate) toPairRate() (core.PairRate, error) {
	// The vendor mid rate is preferred; fall back to the ask when only
	// bid/ask are quoted.
	raw := r.Rate
	if raw == "" {
		raw = r.AskPrice
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return core.PairRate{}, err
	}
	return core.PairRate{
		CodeFrom:     r.FromCode,
		CodeTo:       r.ToCode,
		Rate:         rate,
		NameFrom:     r.FromName,
		NameTo:       r.ToName,
		DataProvider: Name,
	}, nil
}

// failureResponse covers vendor errors reported inside a 200 body.
type failureResponse struct {
	ErrorMessage string `json:"Error Message"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
}
