// Package notification implements the Telegram front end: command handling,
// two-step confirmation keyboards and outbound notification delivery.
package notification

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/m0rphed/stonks-bot/core"
	"github.com/m0rphed/stonks-bot/tracker"
)

const pollingTimeout = 10 * time.Second

var (
	setProviderRegexp   = regexp.MustCompile(`/set_provider\s+(?P<category>\w+)\s+(?P<name>\w+)`)
	trackStockRegexp    = regexp.MustCompile(`/track\s+(?P<ticker>[\w.\-]+)\s+(?P<price>\d+(?:\.\d+)?)`)
	trackCurrencyRegexp = regexp.MustCompile(`/track_currency\s+(?P<from>\w+)\s+(?P<to>\w+)\s+(?P<rate>\d+(?:\.\d+)?)`)
	trackCryptoRegexp   = regexp.MustCompile(`/track_crypto\s+(?P<from>\w+)\s+(?P<to>\w+)\s+(?P<rate>\d+(?:\.\d+)?)`)
)

// Telegram runs the bot conversation and implements listener.Messenger for
// outbound change notifications.
type Telegram struct {
	controller *tracker.Controller
	client     *tb.Bot
	log        core.Logger
}

// Option configures a Telegram instance.
type Option func(telegram *Telegram)

// WithClient overrides the telebot client; used by tests.
func WithClient(client *tb.Bot) Option {
	return func(t *Telegram) {
		t.client = client
	}
}

// NewTelegram creates and initializes the Telegram front end.
func NewTelegram(token string, controller *tracker.Controller, log core.Logger, options ...Option) (*Telegram, error) {
	bot := &Telegram{
		controller: controller,
		log:        log,
	}

	for _, option := range options {
		option(bot)
	}

	if bot.client == nil {
		client, err := tb.NewBot(tb.Settings{
			ParseMode: tb.ModeMarkdown,
			Token:     token,
			Poller:    &tb.LongPoller{Timeout: pollingTimeout},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram bot: %w", err)
		}
		bot.client = client
	}

	if err := setupCommands(bot.client); err != nil {
		return nil, fmt.Errorf("failed to set commands: %w", err)
	}

	registerHandlers(bot.client, bot)

	return bot, nil
}

// setupCommands publishes the command list shown in the Telegram client.
func setupCommands(client *tb.Bot) error {
	return client.SetCommands([]tb.Command{
		{Text: "/start", Description: "Sign in and show instructions"},
		{Text: "/help", Description: "Display help instructions"},
		{Text: "/sign_in", Description: "Create your account"},
		{Text: "/providers", Description: "List available data providers"},
		{Text: "/set_provider", Description: "Choose a provider for a category"},
		{Text: "/settings", Description: "Show your current settings"},
		{Text: "/search", Description: "Search stock market instruments"},
		{Text: "/track", Description: "Track a stock by ticker and price"},
		{Text: "/track_currency", Description: "Track a currency exchange rate"},
		{Text: "/track_crypto", Description: "Track a crypto exchange rate"},
		{Text: "/my", Description: "List your trackings"},
		{Text: "/delete_me", Description: "Delete your account and trackings"},
	})
}

// registerHandlers wires all command and callback handlers.
func registerHandlers(client *tb.Bot, bot *Telegram) {
	client.Handle("/start", bot.StartHandle)
	client.Handle("/help", bot.HelpHandle)
	client.Handle("/sign_in", bot.SignInHandle)
	client.Handle("/providers", bot.ProvidersHandle)
	client.Handle("/set_provider", bot.SetProviderHandle)
	client.Handle("/settings", bot.SettingsHandle)
	client.Handle("/search", bot.SearchHandle)
	client.Handle("/track", bot.TrackStockHandle)
	client.Handle("/track_currency", bot.TrackCurrencyHandle)
	client.Handle("/track_crypto", bot.TrackCryptoHandle)
	client.Handle("/my", bot.MyTrackingsHandle)
	client.Handle("/delete_me", bot.DeleteMeHandle)

	client.Handle(&confirmTrackBtn, bot.ConfirmTrackCallback)
	client.Handle(&confirmDeleteBtn, bot.ConfirmDeleteCallback)
	client.Handle(&cancelBtn, bot.CancelCallback)
}

// Inline confirmation buttons. Data carries the pending-action token.
var (
	confirmTrackBtn  = tb.InlineButton{Unique: "track_ok", Text: "✅ Confirm tracking"}
	confirmDeleteBtn = tb.InlineButton{Unique: "delete_ok", Text: "🗑 Yes, delete everything"}
	cancelBtn        = tb.InlineButton{Unique: "cancel", Text: "❌ Cancel"}
)

// Start begins long polling. It blocks until Stop is called.
func (t *Telegram) Start() {
	t.client.Start()
}

// Stop terminates long polling.
func (t *Telegram) Stop() {
	t.client.Stop()
}

// Send implements listener.Messenger.
func (t *Telegram) Send(chatID int64, text string) error {
	_, err := t.client.Send(&tb.User{ID: chatID}, text)
	return err
}

func (t *Telegram) sendMessage(to *tb.User, text string, options ...any) {
	if _, err := t.client.Send(to, text, options...); err != nil {
		t.log.WithError(err).Error("failed to send message")
	}
}

// Command handlers
// ----------------

// StartHandle signs the sender in and greets them.
func (t *Telegram) StartHandle(m *tb.Message) {
	t.SignInHandle(m)
	t.sendMessage(m.Sender,
		"I watch stock prices and exchange rates for you.\n"+
			"Pick a data provider with /set_provider, then /track what you care about.\n"+
			"Full command list: /help")
}

// HelpHandle displays available commands.
func (t *Telegram) HelpHandle(m *tb.Message) {
	commands, err := t.client.GetCommands()
	if err != nil {
		t.log.WithError(err).Error("failed to get commands")
		t.sendMessage(m.Sender, "Could not load the command list, try again later.")
		return
	}

	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		lines = append(lines, fmt.Sprintf("%s - %s", command.Text, command.Description))
	}
	t.sendMessage(m.Sender, strings.Join(lines, "\n"))
}

// SignInHandle creates the sender's account if needed.
func (t *Telegram) SignInHandle(m *tb.Message) {
	_, created, err := t.controller.SignIn(context.Background(), m.Sender.ID)
	if err != nil {
		t.replyError(m.Sender, err)
		return
	}
	if created {
		t.sendMessage(m.Sender, "Welcome! Your account is ready. Configure a provider with /set_provider.")
		return
	}
	t.sendMessage(m.Sender, "You are already signed in.")
}

// ProvidersHandle lists every configured data provider.
func (t *Telegram) ProvidersHandle(m *tb.Message) {
	var b strings.Builder
	b.WriteString("*Available data providers*\n")
	for _, prov := range t.controller.Providers() {
		fmt.Fprintf(&b, "`%s` - %s\n", prov.ProviderName(), prov.ProviderType().Description())
	}
	b.WriteString("\nAssign one with `/set_provider <sm|frx|crp|uni> <name>`")
	t.sendMessage(m.Sender, b.String())
}

// SetProviderHandle assigns a provider to a category.
func (t *Telegram) SetProviderHandle(m *tb.Message) {
	match := setProviderRegexp.FindStringSubmatch(m.Text)
	if len(match) == 0 {
		t.sendMessage(m.Sender,
			"Invalid command.\nExample of usage:\n`/set_provider uni alpha_vantage`\n\n`/set_provider crp binance`")
		return
	}
	params := extractCommandParams(setProviderRegexp, match)

	category := core.ProviderType(params["category"])
	settings, err := t.controller.SetProvider(context.Background(), m.Sender.ID, category, params["name"])
	if err != nil {
		t.replyError(m.Sender, err)
		return
	}

	t.sendMessage(m.Sender, "Provider saved.\n\n"+formatSettings(settings))
}

// SettingsHandle shows the sender's settings.
func (t *Telegram) SettingsHandle(m *tb.Message) {
	settings, err := t.controller.Settings(context.Background(), m.Sender.ID)
	if err != nil {
		t.replyError(m.Sender, err)
		return
	}
	t.sendMessage(m.Sender, formatSettings(settings))
}

// SearchHandle runs a free-text stock market search.
func (t *Telegram) SearchHandle(m *tb.Message) {
	query := strings.TrimSpace(m.Payload)
	if query == "" {
		t.sendMessage(m.Sender, "Invalid command.\nExample of usage:\n`/search tesla`")
		return
	}

	results, err := t.controller.Search(context.Background(), m.Sender.ID, query)
	if err != nil {
		t.replyError(m.Sender, err)
		return
	}
	if len(results) == 0 {
		t.sendMessage(m.Sender, fmt.Sprintf("Nothing found for `%s`.", query))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Results for* `%s`:\n", query)
	for _, result := range results {
		fmt.Fprintf(&b, "`%s` - %s (%s, %s)\n", result.Symbol, result.Name, result.Region, result.Currency)
	}
	b.WriteString("\nTrack one with `/track <ticker> <price>`")
	t.sendMessage(m.Sender, b.String())
}

// TrackStockHandle proposes a stock price tracking.
func (t *Telegram) TrackStockHandle(m *tb.Message) {
	match := trackStockRegexp.FindStringSubmatch(m.Text)
	if len(match) == 0 {
		t.sendMessage(m.Sender, "Invalid command.\nExample of usage:\n`/track TSLA 420.69`")
		return
	}
	params := extractCommandParams(trackStockRegexp, match)

	price, err := strconv.ParseFloat(params["price"], 64)
	if err != nil || price <= 0 {
		t.sendMessage(m.Sender, "Invalid price threshold.")
		return
	}

	t.proposeTracking(m.Sender, tracker.TrackRequest{
		Type:    core.InstrumentStockMarket,
		Symbol:  params["ticker"],
		OnPrice: &price,
	})
}

// TrackCurrencyHandle proposes a currency pair tracking.
func (t *Telegram) TrackCurrencyHandle(m *tb.Message) {
	t.trackPair(m, trackCurrencyRegexp, core.InstrumentCurrencyPair,
		"Invalid command.\nExample of usage:\n`/track_currency USD EUR 0.92`")
}

// TrackCryptoHandle proposes a crypto pair tracking.
func (t *Telegram) TrackCryptoHandle(m *tb.Message) {
	t.trackPair(m, trackCryptoRegexp, core.InstrumentCryptoPair,
		"Invalid command.\nExample of usage:\n`/track_crypto BTC ETH 15.5`")
}

func (t *Telegram) trackPair(m *tb.Message, re *regexp.Regexp, typ core.InstrumentType, usage string) {
	match := re.FindStringSubmatch(m.Text)
	if len(match) == 0 {
		t.sendMessage(m.Sender, usage)
		return
	}
	params := extractCommandParams(re, match)

	rate, err := strconv.ParseFloat(params["rate"], 64)
	if err != nil || rate <= 0 {
		t.sendMessage(m.Sender, "Invalid rate threshold.")
		return
	}

	t.proposeTracking(m.Sender, tracker.TrackRequest{
		Type:     typ,
		CodeFrom: params["from"],
		CodeTo:   params["to"],
		OnRate:   &rate,
	})
}

// proposeTracking fetches a preview and asks the sender to confirm it.
func (t *Telegram) proposeTracking(sender *tb.User, req tracker.TrackRequest) {
	proposal, err := t.controller.ProposeTracking(context.Background(), sender.ID, req)
	if err != nil {
		t.replyError(sender, err)
		return
	}

	confirm := confirmTrackBtn
	confirm.Data = proposal.Token
	cancel := cancelBtn
	cancel.Data = proposal.Token
	keyboard := &tb.ReplyMarkup{
		InlineKeyboard: [][]tb.InlineButton{{confirm, cancel}},
	}

	text := fmt.Sprintf(
		"*%s* is currently at *%g*.\nNotify you when it crosses *%g*?",
		proposal.Request.StoredSymbol(), proposal.Value, req.Threshold(),
	)
	t.sendMessage(sender, text, keyboard)
}

// ConfirmTrackCallback persists a proposed tracking.
func (t *Telegram) ConfirmTrackCallback(c *tb.Callback) {
	confirmation, err := t.controller.ConfirmTracking(context.Background(), c.Data)
	if err != nil {
		t.respond(c, userFacing(err))
		return
	}

	t.respond(c, "Tracking saved ✅")
	t.sendMessage(c.Sender, fmt.Sprintf(
		"Now tracking *%s*. I will message you when it crosses *%g*.",
		confirmation.Instrument.Symbol, confirmation.Tracking.Threshold(),
	))
}

// MyTrackingsHandle lists the sender's trackings.
func (t *Telegram) MyTrackingsHandle(m *tb.Message) {
	trackings, err := t.controller.Trackings(context.Background(), m.Sender.ID)
	if err != nil {
		t.replyError(m.Sender, err)
		return
	}
	if len(trackings) == 0 {
		t.sendMessage(m.Sender, "You track nothing yet. Start with /track.")
		return
	}

	var b strings.Builder
	b.WriteString("*Your trackings*\n")
	for _, tracking := range trackings {
		fmt.Fprintf(&b, "`%s` threshold *%g* (since %s)\n",
			tracking.InstrumentID, tracking.Threshold(), tracking.CreatedAt.Format("2006-01-02"))
	}
	t.sendMessage(m.Sender, b.String())
}

// DeleteMeHandle asks for confirmation before wiping the account.
func (t *Telegram) DeleteMeHandle(m *tb.Message) {
	token, err := t.controller.ProposeDeletion(context.Background(), m.Sender.ID)
	if err != nil {
		t.replyError(m.Sender, err)
		return
	}

	confirm := confirmDeleteBtn
	confirm.Data = token
	cancel := cancelBtn
	cancel.Data = token
	keyboard := &tb.ReplyMarkup{
		InlineKeyboard: [][]tb.InlineButton{{confirm, cancel}},
	}
	t.sendMessage(m.Sender,
		"This removes your account and every tracking you created. There is no undo.",
		keyboard)
}

// ConfirmDeleteCallback performs the confirmed account deletion.
func (t *Telegram) ConfirmDeleteCallback(c *tb.Callback) {
	if _, err := t.controller.ConfirmDeletion(context.Background(), c.Data); err != nil {
		t.respond(c, userFacing(err))
		return
	}
	t.respond(c, "Account deleted")
	t.sendMessage(c.Sender, "Your account and trackings are gone. /sign_in starts over.")
}

// CancelCallback discards whichever pending action the button carried.
func (t *Telegram) CancelCallback(c *tb.Callback) {
	t.controller.Cancel(c.Data)
	t.respond(c, "Cancelled")
}

func (t *Telegram) respond(c *tb.Callback, text string) {
	if err := t.client.Respond(c, &tb.CallbackResponse{Text: text}); err != nil {
		t.log.WithError(err).Error("failed to answer callback")
	}
}

// replyError logs err and sends its user-facing rendering to the sender.
func (t *Telegram) replyError(sender *tb.User, err error) {
	t.log.WithError(err).WithField("tg_user_id", sender.ID).Warn("command failed")
	t.sendMessage(sender, userFacing(err))
}

// userFacing maps internal errors to texts safe to show in chat.
func userFacing(err error) string {
	var partialErr *core.PartialTrackError
	switch {
	case errors.As(err, &partialErr):
		return "The instrument was saved but your tracking was not stored. Just run /track again."
	case errors.Is(err, core.ErrUserNotFound):
		return "You are not signed in yet. Use /sign_in first."
	case errors.Is(err, core.ErrProviderNotSet):
		return "No data provider configured for that category. Use /set_provider."
	case errors.Is(err, core.ErrProviderNotFound):
		return "Unknown provider name. See /providers for the list."
	case errors.Is(err, core.ErrCapabilityMissing):
		return "That provider does not serve this kind of data. See /providers."
	case errors.Is(err, core.ErrInstrumentNotFound):
		return "I could not find that instrument. Check the symbol and try again."
	case errors.Is(err, core.ErrPendingNotFound):
		return "This confirmation expired or was already used. Start over."
	case errors.Is(err, core.ErrThresholdExclusive):
		return "Set exactly one threshold: a price for stocks, a rate for pairs."
	case core.IsProviderUnavailable(err):
		return "The data provider is unavailable right now, try again in a minute."
	default:
		return "Something went wrong. Try again later."
	}
}

// formatSettings renders user settings for chat.
func formatSettings(settings *core.UserSettings) string {
	if settings == nil || settings.AllProvidersUnset() {
		return "No providers configured yet. Use /set_provider to pick one."
	}

	var b strings.Builder
	b.WriteString("*Your settings*\n")
	slot := func(label string, conf *core.ProviderConfig) {
		if conf == nil {
			fmt.Fprintf(&b, "%s: not set\n", label)
			return
		}
		fmt.Fprintf(&b, "%s: `%s` (%s)\n", label, conf.Name, conf.Type.Short())
	}
	slot("Stock market", settings.ProviderStockMarket)
	slot("Currencies", settings.ProviderCurrency)
	slot("Crypto", settings.ProviderCrypto)
	return b.String()
}

// Helper function to extract named groups from regex matches
func extractCommandParams(regex *regexp.Regexp, match []string) map[string]string {
	command := make(map[string]string)
	for i, name := range regex.SubexpNames() {
		if i != 0 && name != "" {
			command[name] = match[i]
		}
	}
	return command
}
