// Package callback applies staff button presses to orders.
package callback

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/merchshop/internal/domain/order"
	"github.com/xenking/merchshop/internal/lock"
	"github.com/xenking/merchshop/internal/money"
	"github.com/xenking/merchshop/internal/telegram"
)

// Answers shown to the staff member who pressed a button.
const (
	AnswerConfirmed    = "✅ Order closed successfully!"
	AnswerCanceled     = "❌ Order canceled and deleted!"
	AnswerNotFound     = "❌ Order not found"
	AnswerUnknown      = "❓ Unknown command"
	AnswerConfirmError = "❌ Error while closing the order"
	AnswerCancelError  = "❌ Error while canceling the order"
	AnswerError        = "❌ An error occurred while processing the command"
)

// Orders applies the two terminal staff actions.
type Orders interface {
	Confirm(ctx context.Context, id int64) (*order.Order, error)
	Cancel(ctx context.Context, id int64) (*order.Order, error)
}

// Messenger edits the staff message and acknowledges the button press.
type Messenger interface {
	EditMessageText(ctx context.Context, req telegram.EditMessageTextRequest) error
	AnswerCallbackQuery(ctx context.Context, queryID, text string) error
}

// Processor handles callback queries from the staff group. It never returns
// errors to the transport: every outcome ends in a best-effort answer.
type Processor struct {
	cfg     telegram.ChannelConfig
	orders  Orders
	msg     Messenger
	locker  lock.Locker
	lg      *zap.Logger
	timeout time.Duration
	actions metric.Int64Counter
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger used for every callback.
func WithLogger(lg *zap.Logger) Option {
	return func(p *Processor) { p.lg = lg }
}

// WithTimeout bounds each call to the messaging channel.
func WithTimeout(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithMeterProvider records button presses on mp. If the counter cannot be
// created, presses are not counted.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Processor) {
		actions, err := mp.Meter("merchshop/callback").Int64Counter("merch.callback.actions",
			metric.WithDescription("Staff button presses by action and result"),
		)
		if err != nil {
			actions = noop.Int64Counter{}
		}
		p.actions = actions
	}
}

// NewProcessor returns a Processor. Actions on the same order are serialized
// with locker.
func NewProcessor(cfg telegram.ChannelConfig, orders Orders, msg Messenger, locker lock.Locker, opts ...Option) *Processor {
	p := &Processor{
		cfg:     cfg,
		orders:  orders,
		msg:     msg,
		locker:  locker,
		lg:      zap.NewNop(),
		timeout: 5 * time.Second,
	}
	WithMeterProvider(noop.NewMeterProvider())(p)
	for _, o := range opts {
		o(p)
	}
	return p
}

// Handle processes one callback query.
func (p *Processor) Handle(ctx context.Context, q *telegram.CallbackQuery) {
	lg := p.lg.With(zap.String("callback_data", q.Data), zap.Int64("user_id", q.From.ID))

	answer := AnswerError
	defer func() {
		if r := recover(); r != nil {
			lg.Error("Callback panic", zap.Any("panic", r), zap.Stack("stack"))
			answer = AnswerError
		}
		p.answer(ctx, lg, q.ID, answer)
	}()

	answer = p.process(ctx, lg, q)
}

func (p *Processor) process(ctx context.Context, lg *zap.Logger, q *telegram.CallbackQuery) string {
	action, orderID, err := ParseToken(q.Data)
	if err != nil {
		lg.Info("Unknown callback")
		p.count(ctx, "unknown", "ignored")
		return AnswerUnknown
	}
	if !p.fromStaffChat(q) {
		lg.Warn("Callback from a foreign chat", zap.Int64("chat_id", q.Message.Chat.ID))
		p.count(ctx, string(action), "ignored")
		return AnswerUnknown
	}
	lg = lg.With(zap.String("action", string(action)), zap.Int64("order_id", orderID))

	release, err := p.locker.Acquire(ctx, "order:"+strconv.FormatInt(orderID, 10))
	if err != nil {
		lg.Error("Acquire order lock", zap.Error(err))
		p.count(ctx, string(action), "error")
		return AnswerError
	}
	defer release()

	switch action {
	case ActionSuccess:
		o, err := p.orders.Confirm(ctx, orderID)
		if answer, done := p.failed(ctx, lg, action, err, AnswerConfirmError); done {
			return answer
		}
		p.edit(ctx, lg, q, ConfirmedText(o))
		lg.Info("Order confirmed from staff chat")
		p.count(ctx, string(action), "ok")
		return AnswerConfirmed
	case ActionCancel:
		o, err := p.orders.Cancel(ctx, orderID)
		if answer, done := p.failed(ctx, lg, action, err, AnswerCancelError); done {
			return answer
		}
		p.edit(ctx, lg, q, CanceledText(o))
		lg.Info("Order canceled from staff chat")
		p.count(ctx, string(action), "ok")
		return AnswerCanceled
	default:
		return AnswerUnknown
	}
}

// failed maps an action error to its answer. A missing order is a normal
// outcome: it was already canceled or removed by staff.
func (p *Processor) failed(ctx context.Context, lg *zap.Logger, action Action, err error, answer string) (string, bool) {
	switch {
	case err == nil:
		return "", false
	case errors.Is(err, order.ErrNotFound):
		lg.Info("Callback order not found")
		p.count(ctx, string(action), "not_found")
		return AnswerNotFound, true
	default:
		lg.Error("Apply callback action", zap.Error(err))
		p.count(ctx, string(action), "error")
		return answer, true
	}
}

func (p *Processor) fromStaffChat(q *telegram.CallbackQuery) bool {
	want, err := strconv.ParseInt(p.cfg.ChatID, 10, 64)
	if err != nil || q.Message == nil {
		// Channel usernames cannot be compared to numeric chat ids.
		return true
	}
	return q.Message.Chat.ID == want
}

func (p *Processor) edit(ctx context.Context, lg *zap.Logger, q *telegram.CallbackQuery, text string) {
	if q.Message == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.msg.EditMessageText(ctx, telegram.EditMessageTextRequest{
		ChatID:    strconv.FormatInt(q.Message.Chat.ID, 10),
		MessageID: q.Message.MessageID,
		Text:      text,
		ParseMode: telegram.ParseModeHTML,
	})
	if err != nil {
		lg.Warn("Edit staff message", zap.Error(err))
	}
}

func (p *Processor) answer(ctx context.Context, lg *zap.Logger, queryID, text string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	if err := p.msg.AnswerCallbackQuery(ctx, queryID, text); err != nil {
		lg.Warn("Answer callback query", zap.Error(err))
	}
}

func (p *Processor) count(ctx context.Context, action, result string) {
	p.actions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("result", result),
	))
}

// ConfirmedText replaces the staff message after an order was confirmed.
func ConfirmedText(o *order.Order) string {
	return fmt.Sprintf("✅ <b>ORDER #%d SUCCESSFULLY CLOSED</b>\n\n"+
		"Status: <b>%s</b>\n"+
		"Client: %s\n"+
		"Sum: %s UZS",
		o.ID, o.Status.Label(), html.EscapeString(o.FullName), money.Display(o.Total))
}

// CanceledText replaces the staff message after an order was deleted.
func CanceledText(o *order.Order) string {
	return fmt.Sprintf("❌ <b>ORDER CANCELED AND DELETED</b>\n\n"+
		"Order #%d\n"+
		"Client: %s\n"+
		"Sum: %s UZS\n\n"+
		"⚠️ The order was removed from the database",
		o.ID, html.EscapeString(o.FullName), money.Display(o.Total))
}
