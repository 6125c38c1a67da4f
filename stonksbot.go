// Package stonksbot assembles the tracking bot: storage, the instrument
// change feed, data providers, the Telegram front end and the background
// refresher, run together under one context.
package stonksbot

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/m0rphed/stonks-bot/config"
	"github.com/m0rphed/stonks-bot/core"
	"github.com/m0rphed/stonks-bot/listener"
	"github.com/m0rphed/stonks-bot/notification"
	"github.com/m0rphed/stonks-bot/provider"
	"github.com/m0rphed/stonks-bot/provider/alphavantage"
	"github.com/m0rphed/stonks-bot/provider/binance"
	"github.com/m0rphed/stonks-bot/refresher"
	"github.com/m0rphed/stonks-bot/storage"
	"github.com/m0rphed/stonks-bot/tracker"
)

// Bot is the assembled application.
type Bot struct {
	cfg *config.Config
	log core.Logger

	storage   core.Storage
	feed      *storage.InstrumentFeed
	pending   *storage.PendingActions
	registry  *provider.Registry
	telegram  *notification.Telegram
	listener  *listener.Listener
	refresher *refresher.Refresher
}

// NewBot wires the application from configuration. Options override the
// default components before the dependent ones are built.
func NewBot(cfg *config.Config, log core.Logger, options ...Option) (*Bot, error) {
	bot := &Bot{
		cfg: cfg,
		log: log,
	}

	for _, option := range options {
		option(bot)
	}

	if bot.feed == nil {
		bot.feed = storage.NewInstrumentFeed()
	}

	if bot.storage == nil {
		store, err := storage.NewFromSQLite(cfg.Database.Path, bot.feed, log, storage.DefaultConfig())
		if err != nil {
			return nil, err
		}
		bot.storage = store
	}

	if bot.pending == nil {
		pending, err := storage.NewPendingActions(cfg.Database.PendingPath, cfg.PendingTTL())
		if err != nil {
			return nil, err
		}
		bot.pending = pending
	}

	if bot.registry == nil {
		bot.registry = defaultRegistry(cfg)
	}

	controller := tracker.New(bot.storage, bot.registry, bot.pending, log)

	telegram, err := notification.NewTelegram(cfg.Telegram.Token, controller, log)
	if err != nil {
		return nil, err
	}
	bot.telegram = telegram

	bot.listener = listener.New(bot.feed, bot.storage, telegram, log)
	bot.refresher = refresher.New(bot.storage, bot.registry, cfg.RefreshInterval(), log)

	return bot, nil
}

// defaultRegistry builds the provider set from configured credentials.
func defaultRegistry(cfg *config.Config) *provider.Registry {
	var providers []core.DataProvider
	if cfg.Providers.AlphaVantage.APIKey != "" {
		providers = append(providers, alphavantage.New(cfg.Providers.AlphaVantage.APIKey))
	}
	// Binance public ticker data works without credentials
	providers = append(providers, binance.New(
		cfg.Providers.Binance.APIKey,
		cfg.Providers.Binance.APISecret,
	))
	return provider.NewRegistry(providers...)
}

// Run starts every component and blocks until ctx is cancelled or one of
// them fails. Shutdown is orderly: polling stops, the listener drains its
// in-flight notifications, then the stores close.
func (b *Bot) Run(ctx context.Context) error {
	b.feed.Start()
	defer b.feed.Stop()
	defer b.closeStores()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return ignoreCancel(b.listener.Listen(groupCtx))
	})

	group.Go(func() error {
		return ignoreCancel(b.refresher.Run(groupCtx))
	})

	group.Go(func() error {
		go func() {
			<-groupCtx.Done()
			b.telegram.Stop()
		}()
		b.telegram.Start()
		return nil
	})

	b.log.Info("bot is up")
	err := group.Wait()
	b.listener.Close()
	return err
}

func (b *Bot) closeStores() {
	if closer, ok := b.storage.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			b.log.WithError(err).Error("failed to close storage")
		}
	}
	if b.pending != nil {
		if err := b.pending.Close(); err != nil {
			b.log.WithError(err).Error("failed to close pending store")
		}
	}
}

// ignoreCancel treats context cancellation as a clean exit.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
