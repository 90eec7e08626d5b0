// Package notify sends new-order messages to the staff group.
package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/merchshop/internal/domain/notification"
	"github.com/xenking/merchshop/internal/domain/order"
	"github.com/xenking/merchshop/internal/telegram"
)

const (
	defaultWorkers        = 4
	defaultQueueSize      = 256
	defaultMaxAttempts    = 1
	defaultRetryBaseDelay = 500 * time.Millisecond
	defaultSendTimeout    = 5 * time.Second
)

var (
	// ErrNotConfigured is recorded when no bot token or group chat is set.
	ErrNotConfigured = errors.New("telegram bot is not configured")
	// ErrDisabled is recorded when notifications are switched off.
	ErrDisabled = errors.New("telegram bot is not active")
	// ErrQueueFull is recorded when an order could not be queued.
	ErrQueueFull = errors.New("notification queue is full")
)

// Sender posts messages to the messaging channel.
type Sender interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
}

// OrderReader loads an order with its items.
type OrderReader interface {
	Get(ctx context.Context, id int64) (*order.Order, error)
}

// Options configures a Dispatcher.
type Options struct {
	Logger         *zap.Logger
	MeterProvider  metric.MeterProvider
	Workers        int
	QueueSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	SendTimeout    time.Duration
	AdminURLPrefix string
}

// Option configures a Dispatcher.
type Option func(*Options)

// WithLogger sets the logger for workers and delivery outcomes.
func WithLogger(lg *zap.Logger) Option {
	return func(o *Options) { o.Logger = lg }
}

// WithMeterProvider sets where delivery results are counted.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *Options) { o.MeterProvider = mp }
}

// WithWorkers sets the number of concurrent senders.
func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

// WithQueueSize bounds the number of orders waiting to be sent.
func WithQueueSize(n int) Option {
	return func(o *Options) { o.QueueSize = n }
}

// WithMaxAttempts sets how many times a send is tried. 1 disables retries.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithRetryBaseDelay sets the base of the exponential backoff between
// attempts.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(o *Options) { o.RetryBaseDelay = d }
}

// WithSendTimeout bounds each call to the channel.
func WithSendTimeout(d time.Duration) Option {
	return func(o *Options) { o.SendTimeout = d }
}

// WithAdminURLPrefix sets the base of the management link in messages.
func WithAdminURLPrefix(prefix string) Option {
	return func(o *Options) { o.AdminURLPrefix = prefix }
}

// Dispatcher records and sends one group notification per committed order.
// Failures are logged and recorded, never returned to the order creator.
type Dispatcher struct {
	cfg           telegram.ChannelConfig
	sender        Sender
	orders        OrderReader
	notifications notification.Repository
	lg            *zap.Logger
	opts          Options
	queue         chan int64

	results metric.Int64Counter
}

// NewDispatcher creates a Dispatcher. Call Run to start its workers.
func NewDispatcher(
	cfg telegram.ChannelConfig,
	sender Sender,
	orders OrderReader,
	notifications notification.Repository,
	options ...Option,
) (*Dispatcher, error) {
	opts := Options{
		Workers:        defaultWorkers,
		QueueSize:      defaultQueueSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
		SendTimeout:    defaultSendTimeout,
	}
	for _, o := range options {
		o(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = noop.NewMeterProvider()
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}

	results, err := opts.MeterProvider.Meter("merchshop/notify").Int64Counter("merch.notify.results",
		metric.WithDescription("Group notifications by final status"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create counter")
	}

	return &Dispatcher{
		cfg:           cfg,
		sender:        sender,
		orders:        orders,
		notifications: notifications,
		lg:            opts.Logger,
		opts:          opts,
		queue:         make(chan int64, opts.QueueSize),
		results:       results,
	}, nil
}

// Enqueue schedules a notification for a committed order without blocking.
// Its signature matches order.CommitHook.
func (d *Dispatcher) Enqueue(ctx context.Context, o *order.Order) {
	select {
	case d.queue <- o.ID:
		return
	default:
	}

	lg := d.lg.With(zap.Int64("order_id", o.ID))
	lg.Warn("Notification queue is full")

	// The request may already be finished.
	ctx = context.WithoutCancel(ctx)
	n := &notification.GroupNotification{OrderID: o.ID}
	if err := d.notifications.Create(ctx, n); err != nil {
		lg.Error("Record notification", zap.Error(err))
		return
	}
	d.finish(ctx, lg, n, "", ErrQueueFull)
}

// Run starts the workers and blocks until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.lg.Info("Starting notification workers",
		zap.Int("workers", d.opts.Workers),
		zap.Int("queue_size", d.opts.QueueSize),
		zap.Bool("configured", d.cfg.Configured()),
		zap.Bool("enabled", d.cfg.Enabled),
	)

	g, ctx := errgroup.WithContext(ctx)
	for range d.opts.Workers {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case id := <-d.queue:
					_, _ = d.Dispatch(ctx, id)
				}
			}
		})
	}
	err := g.Wait()
	if left := len(d.queue); left > 0 {
		d.lg.Warn("Notifications left unsent on shutdown", zap.Int("count", left))
	}
	return err
}

// Dispatch performs one notification for orderID synchronously and returns
// the recorded notification. The returned error is the delivery failure,
// already logged and recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, orderID int64) (*notification.GroupNotification, error) {
	lg := d.lg.With(zap.Int64("order_id", orderID))

	n := &notification.GroupNotification{OrderID: orderID}
	if err := d.notifications.Create(ctx, n); err != nil {
		lg.Error("Record notification", zap.Error(err))
		return nil, errors.Wrap(err, "create notification")
	}

	// State changes are written even when ctx is canceled mid-send.
	finishCtx := context.WithoutCancel(ctx)

	switch {
	case !d.cfg.Configured():
		return n, d.finish(finishCtx, lg, n, "", ErrNotConfigured)
	case !d.cfg.Enabled:
		return n, d.finish(finishCtx, lg, n, "", ErrDisabled)
	}

	o, err := d.orders.Get(ctx, orderID)
	if err != nil {
		return n, d.finish(finishCtx, lg, n, "", errors.Wrap(err, "load order"))
	}

	req := telegram.SendMessageRequest{
		ChatID:      d.cfg.ChatID,
		Text:        FormatOrder(o, d.opts.AdminURLPrefix),
		ParseMode:   telegram.ParseModeHTML,
		ReplyMarkup: Keyboard(o.ID),
	}
	msg, err := d.sendWithRetry(ctx, lg, req)
	if err != nil {
		return n, d.finish(finishCtx, lg, n, "", err)
	}
	return n, d.finish(finishCtx, lg, n, strconv.FormatInt(msg.MessageID, 10), nil)
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, lg *zap.Logger, req telegram.SendMessageRequest) (*telegram.Message, error) {
	var lastErr error
	for attempt := 1; attempt <= d.opts.MaxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
		msg, err := d.sender.SendMessage(sendCtx, req)
		cancel()
		if err == nil {
			return msg, nil
		}
		lastErr = err

		if attempt == d.opts.MaxAttempts {
			break
		}
		delay := d.opts.RetryBaseDelay * time.Duration(1<<(attempt-1))
		lg.Warn("Send failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, lastErr
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// finish moves n to its final state. A nil sendErr means sent.
func (d *Dispatcher) finish(ctx context.Context, lg *zap.Logger, n *notification.GroupNotification, messageID string, sendErr error) error {
	if sendErr == nil {
		if err := d.notifications.MarkSent(ctx, n.ID, messageID); err != nil {
			lg.Error("Mark notification sent", zap.Error(err))
		}
		n.Status = notification.StatusSent
		n.MessageID = messageID
		d.results.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(notification.StatusSent))))
		lg.Info("Order notification sent", zap.String("message_id", messageID))
		return nil
	}

	if err := d.notifications.MarkFailed(ctx, n.ID, sendErr.Error()); err != nil {
		lg.Error("Mark notification failed", zap.Error(err))
	}
	n.Status = notification.StatusFailed
	n.ErrorMessage = sendErr.Error()
	d.results.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(notification.StatusFailed))))
	lg.Error("Order notification failed", zap.Error(sendErr))
	return sendErr
}

// Stats returns aggregate notification outcomes.
func (d *Dispatcher) Stats(ctx context.Context) (notification.Stats, error) {
	return d.notifications.Stats(ctx)
}

// Channel returns the channel configuration the dispatcher was built with.
func (d *Dispatcher) Channel() telegram.ChannelConfig {
	return d.cfg
}

// QueueLen reports how many committed orders wait for a worker.
func (d *Dispatcher) QueueLen() int {
	return len(d.queue)
}
