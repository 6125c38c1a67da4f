package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InstrumentType classifies trackable financial instruments.
//
// A currency pair covers foreign-currency conversions (including fiat to
// crypto, e.g. CNY => BTC); a crypto pair is crypto-to-crypto only. Reverse
// order is a different pair, rates are not symmetric.
type InstrumentType string

const (
	InstrumentStockMarket  InstrumentType = "stock_market_instrument"
	InstrumentCurrencyPair InstrumentType = "currency_exchange_pair"
	InstrumentCryptoPair   InstrumentType = "crypto_exchange_pair"
)

// Valid reports whether t is one of the known instrument types.
func (t InstrumentType) Valid() bool {
	switch t {
	case InstrumentStockMarket, InstrumentCurrencyPair, InstrumentCryptoPair:
		return true
	}
	return false
}

// IsPair reports whether instruments of this type carry an exchange rate
// rather than a price.
func (t InstrumentType) IsPair() bool {
	return t == InstrumentCurrencyPair || t == InstrumentCryptoPair
}

// PairSymbol builds the stored symbol of an exchange pair, e.g. "BTC_ETH".
func PairSymbol(from, to string) string {
	return strings.ToUpper(from) + "_" + strings.ToUpper(to)
}

// SplitPairSymbol is the inverse of PairSymbol.
func SplitPairSymbol(symbol string) (from, to string, ok bool) {
	return strings.Cut(symbol, "_")
}

// User is a bot user identified by their Telegram account.
type User struct {
	ID         string        `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt  time.Time     `json:"created_at"`
	TelegramID int64         `gorm:"uniqueIndex" json:"tg_user_id"`
	Settings   *UserSettings `gorm:"serializer:json" json:"settings"`
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Instrument is any trackable financial entity: a stock market security or a
// fiat/crypto exchange pair. Rows are shared between users and deduplicated
// by (Type, DataProvider, Symbol); Price is set for stock instruments,
// ExchangeRate for pairs.
type Instrument struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Symbol       string         `gorm:"uniqueIndex:idx_instrument_identity" json:"symbol"`
	FigiCode     *string        `json:"figi_code"`
	Price        *float64       `json:"price"`
	ExchangeRate *float64       `json:"exchange_rate"`
	DataProvider string         `gorm:"uniqueIndex:idx_instrument_identity" json:"data_provider_code"`
	Type         InstrumentType `gorm:"uniqueIndex:idx_instrument_identity" json:"type"`
}

func (i *Instrument) BeforeCreate(_ *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// CurrentValue returns the price for stock instruments and the rate for
// pairs. ok is false when the instrument has never been quoted.
func (i *Instrument) CurrentValue() (value float64, ok bool) {
	if i.Type.IsPair() {
		if i.ExchangeRate == nil {
			return 0, false
		}
		return *i.ExchangeRate, true
	}
	if i.Price == nil {
		return 0, false
	}
	return *i.Price, true
}

// Tracking is a standing request from one user to be notified about one
// instrument. Exactly one of OnPrice/OnRate must be set: stock instruments
// use a price threshold, pairs use a rate threshold.
type Tracking struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt     time.Time  `json:"created_at"`
	InstrumentID  string     `gorm:"index;size:36" json:"instrument"`
	UserID        string     `gorm:"index;size:36" json:"tracked_by"`
	OnPrice       *float64   `json:"on_price"`
	OnRate        *float64   `json:"on_rate"`
	NotifyDailyAt *time.Time `json:"notify_daily_at"`

	Instrument *Instrument `gorm:"foreignKey:InstrumentID;constraint:OnDelete:CASCADE" json:"-"`
	User       *User       `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

// Validate enforces threshold exclusivity.
func (t *Tracking) Validate() error {
	if (t.OnPrice == nil) == (t.OnRate == nil) {
		return ErrThresholdExclusive
	}
	return nil
}

func (t *Tracking) BeforeCreate(_ *gorm.DB) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// Threshold returns whichever threshold the tracking carries.
func (t *Tracking) Threshold() float64 {
	if t.OnPrice != nil {
		return *t.OnPrice
	}
	if t.OnRate != nil {
		return *t.OnRate
	}
	return 0
}
