// Package bot routes inbound Telegram updates: staff button presses and
// chat commands.
package bot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.uber.org/zap"

	"github.com/xenking/merchshop/internal/domain/notification"
	"github.com/xenking/merchshop/internal/telegram"
)

const healthTimeout = 5 * time.Second

// API is the part of the Bot API the router and poller use.
type API interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	GetWebhookInfo(ctx context.Context) (*telegram.WebhookInfo, error)
	DeleteWebhook(ctx context.Context) error
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// CallbackHandler processes staff button presses.
type CallbackHandler interface {
	Handle(ctx context.Context, q *telegram.CallbackQuery)
}

// StatsSource reports notification delivery counters.
type StatsSource interface {
	Stats(ctx context.Context) (notification.Stats, error)
}

// Config is the static bot configuration.
type Config struct {
	Channel    telegram.ChannelConfig
	MiniAppURL string
	// PublicURL is where /health reaches this service's API.
	PublicURL string
}

// Router dispatches updates to the callback processor or a command.
type Router struct {
	cfg       Config
	api       API
	callbacks CallbackHandler
	stats     StatsSource
	http      *http.Client
	lg        *zap.Logger
}

// NewRouter returns a Router. A nil client uses http.DefaultClient.
func NewRouter(cfg Config, api API, callbacks CallbackHandler, stats StatsSource, client *http.Client, lg *zap.Logger) *Router {
	if client == nil {
		client = http.DefaultClient
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Router{
		cfg:       cfg,
		api:       api,
		callbacks: callbacks,
		stats:     stats,
		http:      client,
		lg:        lg,
	}
}

// HandleUpdate processes one update. Callback failures are handled by the
// processor; the returned error only reports a failed command reply.
func (r *Router) HandleUpdate(ctx context.Context, u telegram.Update) error {
	lg := r.lg.With(zap.Int64("update_id", u.UpdateID))

	switch {
	case u.CallbackQuery != nil:
		r.callbacks.Handle(ctx, u.CallbackQuery)
		return nil
	case u.Message != nil && strings.HasPrefix(u.Message.Text, "/"):
		return r.command(ctx, lg, u.Message)
	case u.Message != nil:
		lg.Debug("Ignoring plain message", zap.Int64("chat_id", u.Message.Chat.ID))
		return nil
	default:
		lg.Debug("Unhandled update type")
		return nil
	}
}

// commandName strips arguments and the "@botname" suffix: "/start@shop x" is
// "/start".
func commandName(text string) string {
	name, _, _ := strings.Cut(text, " ")
	name, _, _ = strings.Cut(name, "@")
	return strings.ToLower(name)
}

func (r *Router) command(ctx context.Context, lg *zap.Logger, m *telegram.Message) error {
	name := commandName(m.Text)
	lg.Info("Command", zap.String("command", name), zap.Int64("chat_id", m.Chat.ID))

	var reply telegram.SendMessageRequest
	switch name {
	case "/start":
		reply = r.start()
	case "/help":
		reply = telegram.SendMessageRequest{Text: helpText, ParseMode: telegram.ParseModeHTML}
	case "/status":
		reply = r.status(ctx, lg)
	case "/health":
		reply = r.health(ctx, lg)
	default:
		reply = telegram.SendMessageRequest{Text: unknownText}
	}

	reply.ChatID = fmt.Sprint(m.Chat.ID)
	if _, err := r.api.SendMessage(ctx, reply); err != nil {
		return errors.Wrapf(err, "reply to %s", name)
	}
	return nil
}

const (
	welcomeText = "👋 Welcome to MDIST WEAR!\n" +
		"The official merchandise project of MDIS Tashkent.\n\n" +
		"Here you can browse, order, and represent your university with style.\n\n"
	helpText = "📋 <b>Available commands:</b>\n\n" +
		"/start - Start\n" +
		"/help - Help\n" +
		"/status - Bot status\n" +
		"/health - API connectivity check"
	unknownText = "❓ Unknown command. Use /help for the list of commands."
)

func (r *Router) start() telegram.SendMessageRequest {
	if r.cfg.MiniAppURL == "" {
		return telegram.SendMessageRequest{
			Text: welcomeText + "Mini App is currently being set up. Please check back later!",
		}
	}
	return telegram.SendMessageRequest{
		Text: welcomeText + "Please click the button below to open our shop👇",
		ReplyMarkup: &telegram.InlineKeyboardMarkup{Rows: [][]telegram.InlineKeyboardButton{{
			{Text: "🛍️ Open Shop", URL: r.cfg.MiniAppURL},
		}}},
	}
}

func activeText(active bool) string {
	if active {
		return "✅ Active"
	}
	return "❌ Inactive"
}

func (r *Router) status(ctx context.Context, lg *zap.Logger) telegram.SendMessageRequest {
	if !r.cfg.Channel.Configured() {
		return telegram.SendMessageRequest{Text: "❌ Bot is not configured!"}
	}

	info, err := r.api.GetWebhookInfo(ctx)
	if err != nil {
		lg.Warn("Get webhook info", zap.Error(err))
		info = &telegram.WebhookInfo{}
	}
	webhook := "⚠️ Not set"
	if info.URL != "" {
		webhook = "✅ Set"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🤖 <b>BOT STATUS</b>\n━━━━━━━━━━━━━━━━\n\n")
	fmt.Fprintf(&b, "🔌 <b>Bot:</b> %s\n", activeText(r.cfg.Channel.Enabled))
	fmt.Fprintf(&b, "📡 <b>Webhook:</b> %s\n", webhook)
	fmt.Fprintf(&b, "📢 <b>Group ID:</b> <code>%s</code>\n\n", r.cfg.Channel.ChatID)
	if info.URL != "" {
		fmt.Fprintf(&b, "🌐 <b>URL:</b> %s\n", info.URL)
		fmt.Fprintf(&b, "📬 <b>Pending:</b> %d\n", info.PendingUpdateCount)
	}
	return telegram.SendMessageRequest{Text: b.String(), ParseMode: telegram.ParseModeHTML}
}

func (r *Router) health(ctx context.Context, lg *zap.Logger) telegram.SendMessageRequest {
	apiStatus, timestamp := r.checkAPI(ctx, lg)

	stats, err := r.stats.Stats(ctx)
	if err != nil {
		lg.Warn("Notification stats", zap.Error(err))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🏥 <b>HEALTH CHECK</b>\n━━━━━━━━━━━━━━━━\n\n")
	fmt.Fprintf(&b, "🤖 <b>Bot:</b> %s\n", activeText(r.cfg.Channel.Configured() && r.cfg.Channel.Enabled))
	fmt.Fprintf(&b, "🌐 <b>API:</b> %s\n\n", apiStatus)
	fmt.Fprintf(&b, "📊 <b>Notification stats:</b>\n")
	fmt.Fprintf(&b, "  • Total: %d\n", stats.Total)
	fmt.Fprintf(&b, "  • Sent: %d\n", stats.Sent)
	fmt.Fprintf(&b, "  • Failed: %d\n\n", stats.Failed)
	if timestamp != "" {
		fmt.Fprintf(&b, "⏰ API Time: %s\n", timestamp)
	}
	return telegram.SendMessageRequest{Text: b.String(), ParseMode: telegram.ParseModeHTML}
}

// checkAPI calls the public health endpoint and returns a status line and
// the server timestamp, if any.
func (r *Router) checkAPI(ctx context.Context, lg *zap.Logger) (string, string) {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	url := strings.TrimRight(r.cfg.PublicURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		lg.Warn("Build health request", zap.Error(err))
		return "❌ Unavailable", ""
	}
	resp, err := r.http.Do(req)
	if err != nil {
		lg.Warn("API health check", zap.Error(err))
		return "❌ Unavailable", ""
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Sprintf("❌ Error %d", resp.StatusCode), ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "✅ OK", ""
	}
	var timestamp string
	_ = jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "timestamp" {
			return d.Skip()
		}
		v, err := d.Str()
		timestamp = v
		return err
	})
	return "✅ OK", timestamp
}
