// Package tracker orchestrates the tracking lifecycle: user sign-in and
// provider selection, instrument search and resolution, and the two-phase
// propose/confirm flow for trackings and account deletion.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/m0rphed/stonks-bot/core"
	"github.com/m0rphed/stonks-bot/provider"
	"github.com/m0rphed/stonks-bot/storage"
)

// TrackRequest describes one tracking a user asked for. Stock requests set
// Symbol and OnPrice; pair requests set CodeFrom/CodeTo and OnRate.
type TrackRequest struct {
	Type     core.InstrumentType `json:"type"`
	Symbol   string              `json:"symbol,omitempty"`
	CodeFrom string              `json:"code_from,omitempty"`
	CodeTo   string              `json:"code_to,omitempty"`
	OnPrice  *float64            `json:"on_price,omitempty"`
	OnRate   *float64            `json:"on_rate,omitempty"`
}

// Validate checks the request is internally consistent before any provider
// or storage work happens.
func (r *TrackRequest) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("unknown instrument type %q", r.Type)
	}
	if (r.OnPrice == nil) == (r.OnRate == nil) {
		return core.ErrThresholdExclusive
	}

	if r.Type.IsPair() {
		if r.CodeFrom == "" || r.CodeTo == "" {
			return errors.New("pair request needs both currency codes")
		}
		if r.OnRate == nil {
			return fmt.Errorf("%s tracks a rate threshold: %w", r.Type, core.ErrThresholdExclusive)
		}
		return nil
	}

	if r.Symbol == "" {
		return errors.New("stock request needs a ticker symbol")
	}
	if r.OnPrice == nil {
		return fmt.Errorf("%s tracks a price threshold: %w", r.Type, core.ErrThresholdExclusive)
	}
	return nil
}

// Threshold returns whichever threshold the request carries.
func (r *TrackRequest) Threshold() float64 {
	if r.OnPrice != nil {
		return *r.OnPrice
	}
	if r.OnRate != nil {
		return *r.OnRate
	}
	return 0
}

// StoredSymbol is the instrument symbol the request resolves to.
func (r *TrackRequest) StoredSymbol() string {
	if r.Type.IsPair() {
		return core.PairSymbol(r.CodeFrom, r.CodeTo)
	}
	return strings.ToUpper(r.Symbol)
}

// category maps the instrument type to the provider category serving it.
func (r *TrackRequest) category() core.ProviderType {
	switch r.Type {
	case core.InstrumentCurrencyPair:
		return core.ProviderForex
	case core.InstrumentCryptoPair:
		return core.ProviderCrypto
	default:
		return core.ProviderStockMarket
	}
}

// Confirmation is the result of a confirmed track: the resolved instrument
// and the stored tracking.
type Confirmation struct {
	Instrument *core.Instrument
	Tracking   *core.Tracking
}

// Proposal is a fetched preview awaiting user confirmation.
type Proposal struct {
	Token   string
	Request TrackRequest
	Value   float64
}

// Controller wires storage, the provider registry and the pending-action
// store into the tracking use cases.
type Controller struct {
	storage  core.Storage
	registry *provider.Registry
	pending  *storage.PendingActions
	log      core.Logger
}

// New creates a tracking controller.
func New(store core.Storage, registry *provider.Registry, pending *storage.PendingActions, log core.Logger) *Controller {
	return &Controller{
		storage:  store,
		registry: registry,
		pending:  pending,
		log:      log,
	}
}

// Providers lists every registered data provider.
func (c *Controller) Providers() []core.DataProvider {
	return c.registry.All()
}

// SignIn returns the user for the Telegram account, creating them on first
// contact. created reports whether this call made the row. A lost creation
// race is resolved by re-reading the winner's row.
func (c *Controller) SignIn(ctx context.Context, tgID int64) (user *core.User, created bool, err error) {
	user, err = c.storage.UserByTelegramID(ctx, tgID)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, core.ErrUserNotFound) {
		return nil, false, err
	}

	user = &core.User{TelegramID: tgID, Settings: &core.UserSettings{}}
	if err := c.storage.CreateUser(ctx, user); err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			user, err = c.storage.UserByTelegramID(ctx, tgID)
			return user, false, err
		}
		return nil, false, err
	}

	c.log.WithField("tg_user_id", tgID).Info("new user signed in")
	return user, true, nil
}

// SetProvider assigns a named provider to a category in the user's settings.
// The provider must be registered and its type must cover the category;
// setting the universal category requires a universal provider and fills
// every slot.
func (c *Controller) SetProvider(ctx context.Context, tgID int64, category core.ProviderType, name string) (*core.UserSettings, error) {
	prov, err := c.registry.ByName(name)
	if err != nil {
		return nil, err
	}

	user, err := c.storage.UserByTelegramID(ctx, tgID)
	if err != nil {
		return nil, err
	}

	settings := user.Settings
	if settings == nil {
		settings = &core.UserSettings{}
	}

	conf := core.ProviderConfig{Name: prov.ProviderName(), Type: prov.ProviderType()}
	if err := settings.SetProviderFor(category, conf); err != nil {
		return nil, err
	}

	if err := c.storage.UpdateUserSettings(ctx, tgID, settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Settings returns the user's current settings.
func (c *Controller) Settings(ctx context.Context, tgID int64) (*core.UserSettings, error) {
	user, err := c.storage.UserByTelegramID(ctx, tgID)
	if err != nil {
		return nil, err
	}
	if user.Settings == nil {
		return &core.UserSettings{}, nil
	}
	return user.Settings, nil
}

// Trackings lists the user's trackings with their instruments attached.
func (c *Controller) Trackings(ctx context.Context, tgID int64) ([]*core.Tracking, error) {
	user, err := c.storage.UserByTelegramID(ctx, tgID)
	if err != nil {
		return nil, err
	}
	return c.storage.Trackings(ctx, core.WithUserID(user.ID))
}

// Search runs a free-text instrument search through the user's stock market
// provider.
func (c *Controller) Search(ctx context.Context, tgID int64, query string) ([]core.SearchResult, error) {
	sm, err := c.stockProvider(ctx, tgID)
	if err != nil {
		return nil, err
	}
	return sm.SearchStockMarket(ctx, query)
}

// ProposeTracking fetches a preview value for the request and stores the
// request under a single-use token. Nothing is persisted until the token is
// confirmed.
func (c *Controller) ProposeTracking(ctx context.Context, tgID int64, req TrackRequest) (*Proposal, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := c.storage.UserByTelegramID(ctx, tgID)
	if err != nil {
		return nil, err
	}

	instrument, err := c.fetch(ctx, user, req)
	if err != nil {
		return nil, err
	}
	value, _ := instrument.CurrentValue()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal track request: %w", err)
	}

	token, err := c.pending.Put(storage.PendingAction{
		Kind:       storage.ActionTrack,
		TelegramID: tgID,
		Payload:    payload,
	})
	if err != nil {
		return nil, err
	}

	return &Proposal{Token: token, Request: req, Value: value}, nil
}

// ConfirmTracking consumes a proposal token and persists the tracking. An
// unknown, reused or expired token fails with core.ErrPendingNotFound.
func (c *Controller) ConfirmTracking(ctx context.Context, token string) (*Confirmation, error) {
	action, err := c.pending.Pop(token)
	if err != nil {
		return nil, err
	}
	if action.Kind != storage.ActionTrack {
		return nil, fmt.Errorf("token holds a %q action: %w", action.Kind, core.ErrPendingNotFound)
	}

	var req TrackRequest
	if err := json.Unmarshal(action.Payload, &req); err != nil {
		return nil, fmt.Errorf("failed to decode pending track request: %w", err)
	}

	return c.Track(ctx, action.TelegramID, req)
}

// Track resolves the requested instrument and stores a tracking for it.
//
// Instruments are deduplicated on (type, provider, symbol): the provider is
// only queried when no row exists yet, and a creation race lost to a
// concurrent tracker is resolved by re-reading the winner's row. A failure
// after the instrument row exists is reported as *core.PartialTrackError so
// callers know a retry will be cheap.
func (c *Controller) Track(ctx context.Context, tgID int64, req TrackRequest) (*Confirmation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	user, err := c.storage.UserByTelegramID(ctx, tgID)
	if err != nil {
		return nil, err
	}

	instrument, err := c.resolveInstrument(ctx, user, req)
	if err != nil {
		return nil, err
	}

	tracking := &core.Tracking{
		InstrumentID: instrument.ID,
		UserID:       user.ID,
		OnPrice:      req.OnPrice,
		OnRate:       req.OnRate,
	}
	if err := c.storage.CreateTracking(ctx, tracking); err != nil {
		return nil, &core.PartialTrackError{InstrumentID: instrument.ID, Err: err}
	}

	c.log.WithFields(map[string]any{
		"tg_user_id": tgID,
		"instrument": instrument.Symbol,
		"provider":   instrument.DataProvider,
	}).Info("tracking created")

	return &Confirmation{Instrument: instrument, Tracking: tracking}, nil
}

// resolveInstrument finds the shared instrument row or creates it from a
// fresh provider fetch.
func (c *Controller) resolveInstrument(ctx context.Context, user *core.User, req TrackRequest) (*core.Instrument, error) {
	providerName, err := c.providerNameFor(user, req.category())
	if err != nil {
		return nil, err
	}

	symbol := req.StoredSymbol()
	instrument, err := c.storage.FindInstrument(ctx, req.Type, providerName, symbol)
	if err == nil {
		return instrument, nil
	}
	if !errors.Is(err, core.ErrInstrumentNotFound) {
		return nil, err
	}

	instrument, err = c.fetch(ctx, user, req)
	if err != nil {
		return nil, err
	}

	if err := c.storage.CreateInstrument(ctx, instrument); err != nil {
		if errors.Is(err, core.ErrAlreadyExists) {
			return c.storage.FindInstrument(ctx, req.Type, providerName, symbol)
		}
		return nil, err
	}
	return instrument, nil
}

// fetch queries the user's provider for the request and builds an unsaved
// instrument row from the response.
func (c *Controller) fetch(ctx context.Context, user *core.User, req TrackRequest) (*core.Instrument, error) {
	providerName, err := c.providerNameFor(user, req.category())
	if err != nil {
		return nil, err
	}

	switch req.Type {
	case core.InstrumentStockMarket:
		sm, err := c.registry.StockMarket(providerName)
		if err != nil {
			return nil, err
		}
		quote, err := sm.SecurityByTicker(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
		return &core.Instrument{
			Symbol:       strings.ToUpper(quote.Symbol),
			Price:        &quote.Price,
			DataProvider: quote.DataProvider,
			Type:         core.InstrumentStockMarket,
		}, nil

	case core.InstrumentCurrencyPair:
		fx, err := c.registry.CurrencyEx(providerName)
		if err != nil {
			return nil, err
		}
		rate, err := fx.CurrencyPair(ctx, req.CodeFrom, req.CodeTo)
		if err != nil {
			return nil, err
		}
		return pairInstrument(rate, core.InstrumentCurrencyPair), nil

	case core.InstrumentCryptoPair:
		cx, err := c.registry.CryptoEx(providerName)
		if err != nil {
			return nil, err
		}
		rate, err := cx.CryptoPair(ctx, req.CodeFrom, req.CodeTo)
		if err != nil {
			return nil, err
		}
		return pairInstrument(rate, core.InstrumentCryptoPair), nil
	}

	return nil, fmt.Errorf("unknown instrument type %q", req.Type)
}

func pairInstrument(rate core.PairRate, typ core.InstrumentType) *core.Instrument {
	return &core.Instrument{
		Symbol:       core.PairSymbol(rate.CodeFrom, rate.CodeTo),
		ExchangeRate: &rate.Rate,
		DataProvider: rate.DataProvider,
		Type:         typ,
	}
}

// providerNameFor reads the user's provider selection for a category.
func (c *Controller) providerNameFor(user *core.User, category core.ProviderType) (string, error) {
	if user.Settings == nil {
		return "", core.ErrProviderNotSet
	}
	conf := user.Settings.ProviderFor(category)
	if conf == nil {
		return "", core.ErrProviderNotSet
	}
	return conf.Name, nil
}

func (c *Controller) stockProvider(ctx context.Context, tgID int64) (core.StockMarketProvider, error) {
	user, err := c.storage.UserByTelegramID(ctx, tgID)
	if err != nil {
		return nil, err
	}
	name, err := c.providerNameFor(user, core.ProviderStockMarket)
	if err != nil {
		return nil, err
	}
	return c.registry.StockMarket(name)
}

// ProposeDeletion stores a pending account-deletion action and returns its
// confirmation token.
func (c *Controller) ProposeDeletion(ctx context.Context, tgID int64) (string, error) {
	if _, err := c.storage.UserByTelegramID(ctx, tgID); err != nil {
		return "", err
	}
	return c.pending.Put(storage.PendingAction{
		Kind:       storage.ActionDeleteAccount,
		TelegramID: tgID,
	})
}

// ConfirmDeletion consumes a deletion token and removes the account.
func (c *Controller) ConfirmDeletion(ctx context.Context, token string) (int64, error) {
	action, err := c.pending.Pop(token)
	if err != nil {
		return 0, err
	}
	if action.Kind != storage.ActionDeleteAccount {
		return 0, fmt.Errorf("token holds a %q action: %w", action.Kind, core.ErrPendingNotFound)
	}

	if err := c.DeleteAccount(ctx, action.TelegramID); err != nil {
		return 0, err
	}
	return action.TelegramID, nil
}

// DeleteAccount removes the account with all of its trackings. Shared
// instrument rows stay behind.
func (c *Controller) DeleteAccount(ctx context.Context, tgID int64) error {
	if err := c.storage.DeleteUser(ctx, tgID); err != nil {
		return err
	}
	c.log.WithField("tg_user_id", tgID).Info("account deleted")
	return nil
}

// Cancel discards a pending proposal so its token cannot be confirmed later.
// An already-expired token is not an error to the caller.
func (c *Controller) Cancel(token string) {
	if _, err := c.pending.Pop(token); err != nil && !errors.Is(err, core.ErrPendingNotFound) {
		c.log.WithError(err).Warn("failed to discard pending action")
	}
}

// DeleteTracking removes one of the user's trackings. It refuses to touch a
// tracking owned by someone else.
func (c *Controller) DeleteTracking(ctx context.Context, tgID int64, trackingID string) error {
	user, err := c.storage.UserByTelegramID(ctx, tgID)
	if err != nil {
		return err
	}

	owned, err := c.storage.Trackings(ctx, core.WithUserID(user.ID))
	if err != nil {
		return err
	}
	for _, tracking := range owned {
		if tracking.ID == trackingID {
			return c.storage.DeleteTracking(ctx, trackingID)
		}
	}
	return core.ErrTrackingNotFound
}
