package stonksbot

import (
	"github.com/m0rphed/stonks-bot/core"
	"github.com/m0rphed/stonks-bot/provider"
	"github.com/m0rphed/stonks-bot/storage"
)

// Option is a functional option for configuring a Bot instance
type Option func(*Bot)

// WithStorage overrides the default SQLite storage.
func WithStorage(store core.Storage) Option {
	return func(bot *Bot) {
		bot.storage = store
	}
}

// WithFeed overrides the default instrument change feed.
func WithFeed(feed *storage.InstrumentFeed) Option {
	return func(bot *Bot) {
		bot.feed = feed
	}
}

// WithPendingStore overrides the default pending-action store.
func WithPendingStore(pending *storage.PendingActions) Option {
	return func(bot *Bot) {
		bot.pending = pending
	}
}

// WithProviders overrides the default provider registry built from the
// configured credentials.
func WithProviders(registry *provider.Registry) Option {
	return func(bot *Bot) {
		bot.registry = registry
	}
}
