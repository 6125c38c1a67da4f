package notification

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m0rphed/stonks-bot/core"
)

func TestUserFacing(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{core.ErrUserNotFound, "/sign_in"},
		{core.ErrProviderNotSet, "/set_provider"},
		{core.ErrProviderNotFound, "/providers"},
		{core.ErrCapabilityMissing, "/providers"},
		{core.ErrInstrumentNotFound, "could not find"},
		{core.ErrPendingNotFound, "expired"},
		{core.ErrThresholdExclusive, "exactly one threshold"},
		{&core.ProviderError{Provider: "x", Op: "y", Err: errors.New("boom")}, "unavailable"},
		{&core.PartialTrackError{InstrumentID: "i", Err: errors.New("disk full")}, "run /track again"},
		{errors.New("boom"), "Something went wrong"},
	}

	for _, tc := range cases {
		require.Contains(t, userFacing(tc.err), tc.want, "for error %v", tc.err)
	}
}

func TestUserFacing_PartialTrackIsNotGenericFailure(t *testing.T) {
	cause := errors.New("disk full")
	partial := &core.PartialTrackError{InstrumentID: "i", Err: cause}
	require.NotEqual(t, userFacing(cause), userFacing(partial))
}

func TestUserFacing_NeverLeaksInternals(t *testing.T) {
	err := errors.New("dial tcp 10.0.0.5:5432: connection refused")
	require.NotContains(t, userFacing(err), "10.0.0.5")
}

func TestFormatSettings(t *testing.T) {
	require.Contains(t, formatSettings(nil), "/set_provider")
	require.Contains(t, formatSettings(&core.UserSettings{}), "/set_provider")

	settings := &core.UserSettings{
		ProviderCrypto: &core.ProviderConfig{Name: "binance", Type: core.ProviderCrypto},
	}
	text := formatSettings(settings)
	require.Contains(t, text, "binance")
	require.Contains(t, text, "not set")
}

func TestCommandRegexps(t *testing.T) {
	require.NotNil(t, trackStockRegexp.FindStringSubmatch("/track TSLA 420.69"))
	require.NotNil(t, trackStockRegexp.FindStringSubmatch("/track BRK.B 300"))
	require.Nil(t, trackStockRegexp.FindStringSubmatch("/track TSLA"))

	match := trackCurrencyRegexp.FindStringSubmatch("/track_currency USD EUR 0.92")
	require.NotNil(t, match)
	params := extractCommandParams(trackCurrencyRegexp, match)
	require.Equal(t, "USD", params["from"])
	require.Equal(t, "EUR", params["to"])
	require.Equal(t, "0.92", params["rate"])

	require.NotNil(t, trackCryptoRegexp.FindStringSubmatch("/track_crypto BTC ETH 15.5"))
	require.NotNil(t, setProviderRegexp.FindStringSubmatch("/set_provider uni alpha_vantage"))
	require.Nil(t, setProviderRegexp.FindStringSubmatch("/set_provider uni"))
}
