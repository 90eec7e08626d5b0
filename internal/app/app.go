// Package app wires the merch shop service together.
package app

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/merchshop/internal/bot"
	"github.com/xenking/merchshop/internal/callback"
	"github.com/xenking/merchshop/internal/domain/notification"
	"github.com/xenking/merchshop/internal/domain/order"
	"github.com/xenking/merchshop/internal/domain/product"
	"github.com/xenking/merchshop/internal/domain/promo"
	"github.com/xenking/merchshop/internal/handler"
	"github.com/xenking/merchshop/internal/lock"
	"github.com/xenking/merchshop/internal/notify"
	"github.com/xenking/merchshop/internal/storage/memory"
	"github.com/xenking/merchshop/internal/storage/postgres"
	"github.com/xenking/merchshop/internal/storage/seed"
	"github.com/xenking/merchshop/internal/telegram"
	"github.com/xenking/merchshop/pkg/health"
	"github.com/xenking/merchshop/pkg/httpmiddleware"
)

// Telemetry provides the tracer and meter providers, see app.Telemetry.
type Telemetry interface {
	TracerProvider() trace.TracerProvider
	MeterProvider() metric.MeterProvider
}

var _ Telemetry = (*app.Telemetry)(nil)

// WebhookPath receives Telegram updates in webhook mode.
const WebhookPath = "/telegram/webhook"

type storage struct {
	products      product.Repository
	promos        promo.Repository
	orders        order.Repository
	notifications notification.Repository
	tx            order.Transactor
	close         func()
}

func openStorage(ctx context.Context, lg *zap.Logger, cfg *Config, h *health.Health) (*storage, error) {
	if cfg.DatabaseURL == "" {
		lg.Warn("No database configured, using the in-memory store; data is lost on restart")
		s := memory.NewStore()
		if cfg.SeedFile != "" {
			data, err := os.ReadFile(cfg.SeedFile)
			if err != nil {
				return nil, errors.Wrap(err, "read seed file")
			}
			products, err := seed.Products(data)
			if err != nil {
				return nil, errors.Wrapf(err, "parse %s", cfg.SeedFile)
			}
			if err := seed.Load(ctx, s, products, seed.Promos()); err != nil {
				return nil, errors.Wrap(err, "seed store")
			}
			lg.Info("Seeded in-memory store", zap.Int("products", len(products)))
		}
		return &storage{
			products:      s.Products(),
			promos:        s.Promos(),
			orders:        s.Orders(),
			notifications: s.Notifications(),
			tx:            s,
			close:         func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	h.Add(health.Readiness, "postgres", 5*time.Second, health.PingCheck(pool))

	return &storage{
		products:      postgres.NewProductRepository(pool),
		promos:        postgres.NewPromoRepository(pool),
		orders:        postgres.NewOrderRepository(pool),
		notifications: postgres.NewNotificationRepository(pool),
		tx:            postgres.NewTransactor(pool),
		close:         pool.Close,
	}, nil
}

func openLocker(lg *zap.Logger, cfg *Config, h *health.Health) (lock.Locker, func()) {
	if cfg.RedisAddr == "" {
		return lock.NewLocal(), func() {}
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	h.Add(health.Readiness, "redis", 2*time.Second, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	lg.Info("Using Redis order locks", zap.String("addr", cfg.RedisAddr))
	return lock.NewRedis(rdb, "merch:lock:", cfg.Lock.TTL, lg.Named("lock")), func() {
		_ = rdb.Close()
	}
}

// Run creates all dependencies, starts the HTTP server, notification workers
// and the bot, and handles graceful shutdown. It is the single wiring point
// for the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("telegram_mode", cfg.Telegram.Mode),
	)

	healthSvc := health.New(lg.Named("health"))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	store, err := openStorage(ctx, lg, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer store.close()

	locker, closeLocker := openLocker(lg, cfg, healthSvc)
	defer closeLocker()

	// Domain services.
	pricer := order.NewPricer(store.products, promo.NewValidator(store.promos))
	orderService := order.NewService(pricer, store.orders, store.tx)

	// Telegram channel.
	channel := telegram.ChannelConfig{
		Token:   cfg.Telegram.Token,
		ChatID:  cfg.Telegram.GroupChatID,
		Enabled: cfg.Telegram.Enabled,
	}
	if !channel.Configured() {
		lg.Warn("Telegram channel is not configured, notifications will be recorded as failed")
	}
	tg := telegram.New(cfg.Telegram.Token,
		telegram.WithAPIURL(cfg.Telegram.APIURL),
		telegram.WithTelemetry(m.TracerProvider(), m.MeterProvider()),
	)

	dispatcher, err := notify.NewDispatcher(channel, tg, orderService, store.notifications,
		notify.WithLogger(lg.Named("notify")),
		notify.WithMeterProvider(m.MeterProvider()),
		notify.WithWorkers(cfg.Notify.Workers),
		notify.WithQueueSize(cfg.Notify.QueueSize),
		notify.WithMaxAttempts(cfg.Notify.MaxAttempts),
		notify.WithRetryBaseDelay(cfg.Notify.RetryBaseDelay),
		notify.WithSendTimeout(cfg.Telegram.Timeout),
		notify.WithAdminURLPrefix(cfg.AdminURLPrefix),
	)
	if err != nil {
		return errors.Wrap(err, "create dispatcher")
	}
	orderService.OnCommit(dispatcher.Enqueue)
	healthSvc.Add(health.Liveness, "notify_queue", time.Second,
		health.QueueDepthCheck(dispatcher.QueueLen, cfg.Notify.QueueSize-1))

	processor := callback.NewProcessor(channel, orderService, tg, locker,
		callback.WithLogger(lg.Named("callback")),
		callback.WithTimeout(cfg.Telegram.Timeout),
		callback.WithMeterProvider(m.MeterProvider()),
	)
	router := bot.NewRouter(bot.Config{
		Channel:    channel,
		MiniAppURL: cfg.Telegram.MiniAppURL,
		PublicURL:  cfg.PublicURL,
	}, tg, processor, dispatcher, nil, lg.Named("bot"))

	// HTTP.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.New(orderService).Register(mux)
	if cfg.Telegram.Mode == ModeWebhook {
		mux.Handle("POST "+WebhookPath, bot.Webhook(router, cfg.Telegram.WebhookSecret))
	}

	routeFinder := httpmiddleware.MakeRouteFinder(mux)
	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
				Skip:   func(r *http.Request) bool { return r.URL.Path == WebhookPath },
			}),
			httpmiddleware.Instrument("merch-api", routeFinder, m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()
	healthSvc.SetReady(true)

	g, gCtx := errgroup.WithContext(ctx)
	// Workers outlive the HTTP drain so orders accepted while shutting down
	// still get their notification.
	dispatchCtx, stopDispatch := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDispatch()
	g.Go(func() error {
		return dispatcher.Run(dispatchCtx)
	})
	switch cfg.Telegram.Mode {
	case ModePolling:
		poller := bot.NewPoller(tg, router, cfg.Telegram.PollTimeout, lg.Named("poller"))
		g.Go(func() error {
			return poller.Run(gCtx)
		})
	case ModeWebhook:
		if cfg.Telegram.WebhookURL != "" && cfg.Telegram.Token != "" {
			if err := tg.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
				// The API keeps serving orders; staff buttons stay dead until fixed.
				lg.Error("Register webhook", zap.Error(err))
			} else {
				lg.Info("Webhook registered", zap.String("url", cfg.Telegram.WebhookURL))
			}
		}
	}

	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		err := server.Shutdown(shutdownCtx)
		stopDispatch()
		return err
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})

	return g.Wait()
}
