// Package binance implements a crypto-only data provider on the Binance
// spot market. It deliberately covers a single capability: Binance has no
// stock market or fiat forex data to offer.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"github.com/m0rphed/stonks-bot/core"
)

// Name is the unique provider tag stored on instruments.
const Name = "binance"

// Binance error code for an unknown trading symbol.
const codeInvalidSymbol = -1121

// Provider serves crypto pair rates from Binance spot tickers.
type Provider struct {
	client *binance.Client
}

// New creates a Binance provider. Public ticker data needs no credentials;
// pass empty strings when no key is configured.
func New(apiKey, apiSecret string) *Provider {
	return &Provider{client: binance.NewClient(apiKey, apiSecret)}
}

var _ core.CryptoExProvider = (*Provider)(nil)

func (p *Provider) ProviderName() string { return Name }

func (p *Provider) ProviderType() core.ProviderType { return core.ProviderCrypto }

// CryptoPair returns the last traded price of the FROM/TO spot symbol.
func (p *Provider) CryptoPair(ctx context.Context, from, to string) (core.PairRate, error) {
	symbol := strings.ToUpper(from + to)

	prices, err := p.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeInvalidSymbol {
			return core.PairRate{}, fmt.Errorf("pair %s/%s: %w", from, to, core.ErrInstrumentNotFound)
		}
		return core.PairRate{}, &core.ProviderError{Provider: Name, Op: "list prices", Err: err}
	}
	if len(prices) == 0 {
		return core.PairRate{}, fmt.Errorf("pair %s/%s: %w", from, to, core.ErrInstrumentNotFound)
	}

	rate, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return core.PairRate{}, &core.ProviderError{Provider: Name, Op: "parse price", Err: err}
	}

	return core.PairRate{
		CodeFrom:     strings.ToUpper(from),
		CodeTo:       strings.ToUpper(to),
		Rate:         rate,
		Exchange:     "Binance",
		DataProvider: Name,
	}, nil
}
