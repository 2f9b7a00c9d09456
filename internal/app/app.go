// Package app wires configuration into the long-lived services of the bot:
// the fixture pipeline, subscription store, payment watchers and HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lflhelper/fixtures-bot/internal/api"
	"github.com/lflhelper/fixtures-bot/internal/clock/system"
	"github.com/lflhelper/fixtures-bot/internal/config"
	"github.com/lflhelper/fixtures-bot/internal/dispatcher"
	collyfetcher "github.com/lflhelper/fixtures-bot/internal/fetcher/colly"
	"github.com/lflhelper/fixtures-bot/internal/fixtures"
	"github.com/lflhelper/fixtures-bot/internal/id/uuid"
	"github.com/lflhelper/fixtures-bot/internal/metrics"
	"github.com/lflhelper/fixtures-bot/internal/notify"
	"github.com/lflhelper/fixtures-bot/internal/payment"
	"github.com/lflhelper/fixtures-bot/internal/policy/ratelimit"
	queueMemory "github.com/lflhelper/fixtures-bot/internal/queue/memory"
	"github.com/lflhelper/fixtures-bot/internal/render"
	memoryStorage "github.com/lflhelper/fixtures-bot/internal/storage/memory"
	pgstore "github.com/lflhelper/fixtures-bot/internal/storage/postgres"
	"github.com/lflhelper/fixtures-bot/internal/subscription"
	"github.com/lflhelper/fixtures-bot/internal/worker"
)

type userStore interface {
	subscription.Store
	Ping(ctx context.Context) error
}

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	formatter render.Formatter
	pipeline  *fixtures.Pipeline
	subs      *subscription.Service
	store     userStore
	pgStore   *pgstore.UserStore
	provider  payment.Provider
	messenger worker.Messenger
	queue     *queueMemory.Queue
	dispatch  *dispatcher.Dispatcher
	apiServer *api.Server
}

// Option overrides a collaborator New would otherwise build from config.
type Option func(*App)

// WithPaymentProvider replaces the configured payment provider.
func WithPaymentProvider(p payment.Provider) Option {
	return func(a *App) {
		a.provider = p
	}
}

// WithMessenger replaces the configured chat messenger.
func WithMessenger(m worker.Messenger) Option {
	return func(a *App) {
		a.messenger = m
	}
}

// New builds the application graph from cfg. It connects to Postgres when the
// postgres driver is selected.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("site", cfg.Site.BaseURL),
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("payment_provider", cfg.Payment.Provider),
	)

	a := &App{cfg: cfg, logger: logger, formatter: render.New(cfg.RenderOffset())}
	for _, opt := range opts {
		opt(a)
	}

	a.pipeline = NewPipeline(cfg, logger)

	if err := a.initStore(ctx); err != nil {
		return nil, err
	}
	a.subs = subscription.NewService(a.store, system.New(), cfg.SubscriptionDuration(), logger)

	ids := uuid.New()
	if err := a.initProvider(ids); err != nil {
		a.closeStore()
		return nil, err
	}
	if err := a.initMessenger(); err != nil {
		a.closeStore()
		return nil, err
	}
	mailer, err := a.buildMailer()
	if err != nil {
		a.closeStore()
		return nil, err
	}

	a.queue = queueMemory.NewQueue(cfg.Watcher.QueueDepth)
	var runners []dispatcher.Runner
	if a.provider != nil {
		backoff := payment.Backoff{
			InitialDelay:   time.Duration(cfg.Watcher.InitialDelayMs) * time.Millisecond,
			Step:           time.Duration(cfg.Watcher.StepMs) * time.Millisecond,
			MaxDelay:       time.Duration(cfg.Watcher.MaxDelayMs) * time.Millisecond,
			MaxAttempts:    cfg.Watcher.MaxAttempts,
			JitterFraction: cfg.Watcher.Jitter,
		}
		for range cfg.Watcher.Workers {
			runners = append(runners,
				worker.New(a.queue, a.provider, a.subs, a.messenger, a.formatter, backoff, logger,
					worker.WithMaxInFlight(cfg.Watcher.QueueDepth)))
		}
	}
	a.dispatch = dispatcher.New(a.queue, runners, ids, logger)

	deps := api.Deps{
		Fixtures:      a.pipeline,
		Subscriptions: a.subs,
		Payments:      a.provider,
		Watcher:       a.dispatch,
		Ready:         a.store,
		Formatter:     a.formatter,
		Logger:        logger,
	}
	if mailer != nil {
		deps.Mailer = mailer
	}
	apiOpts := api.Options{
		Product: api.Product{
			Amount:      payment.Amount{Value: cfg.Payment.Price, Currency: cfg.Payment.Currency},
			Description: cfg.Payment.Description,
			ItemName:    cfg.Payment.ItemName,
			ReturnURL:   cfg.Payment.ReturnURL,
		},
	}
	if cfg.Auth.Enabled {
		apiOpts.APIKey = cfg.Auth.APIKey
	}
	a.apiServer = api.NewServer(deps, apiOpts)

	logger.Info("application created", zap.Int("payment_watchers", len(runners)))
	return a, nil
}

// NewPipeline builds the fixture pipeline over a throttled colly fetcher.
func NewPipeline(cfg config.Config, logger *zap.Logger) *fixtures.Pipeline {
	headers := http.Header{}
	if cfg.HTTP.AcceptLanguage != "" {
		headers.Set("Accept-Language", cfg.HTTP.AcceptLanguage)
	}
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.RateLimit.RPS,
		DefaultBurst: cfg.RateLimit.Burst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.HTTP.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
		Headers:       headers,
	}, collyfetcher.WithLimiter(limiter))
	return fixtures.NewSitePipeline(fetcher, fixtures.Site{
		BaseURL:            cfg.Site.BaseURL,
		SearchItemSelector: cfg.Site.SearchItemSelector,
		PayloadScriptID:    cfg.Site.PayloadScriptID,
	}, logger)
}

func (a *App) initStore(ctx context.Context) error {
	switch a.cfg.DB.Driver {
	case config.DriverPostgres:
		store, err := pgstore.NewUserStore(ctx, pgstore.UserStoreConfig{
			DSN:      a.cfg.DB.DSN,
			Table:    a.cfg.DB.Table,
			MaxConns: a.cfg.DB.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("init user store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return fmt.Errorf("ensure user schema: %w", err)
		}
		a.pgStore = store
		a.store = store
	default:
		a.store = memoryStorage.NewUserStore()
	}
	return nil
}

func (a *App) initProvider(keys payment.KeyGenerator) error {
	if a.provider != nil || a.cfg.Payment.Provider != config.ProviderYooKassa {
		return nil
	}
	yk, err := payment.NewYooKassa(payment.YooKassaConfig{
		BaseURL:   a.cfg.Payment.BaseURL,
		ShopID:    a.cfg.Payment.ShopID,
		SecretKey: a.cfg.Payment.SecretKey,
		Timeout:   time.Duration(a.cfg.Payment.TimeoutSeconds) * time.Second,
		VATCode:   a.cfg.Payment.VATCode,
	}, keys)
	if err != nil {
		return fmt.Errorf("init payment provider: %w", err)
	}
	a.provider = yk
	return nil
}

func (a *App) initMessenger() error {
	if a.messenger != nil {
		return nil
	}
	if a.cfg.Messenger.Kind != config.MessengerWebhook {
		a.messenger = notify.NewLogMessenger(a.logger)
		return nil
	}
	m, err := notify.NewWebhookMessenger(notify.WebhookConfig{
		URL:     a.cfg.Messenger.URL,
		Token:   a.cfg.Messenger.Token,
		Timeout: time.Duration(a.cfg.Messenger.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init messenger: %w", err)
	}
	a.messenger = m
	return nil
}

func (a *App) buildMailer() (*notify.Mailer, error) {
	if !a.cfg.SMTP.Enabled {
		return nil, nil
	}
	m, err := notify.NewMailer(notify.SMTPConfig{
		Host:     a.cfg.SMTP.Host,
		Port:     a.cfg.SMTP.Port,
		Username: a.cfg.SMTP.Username,
		Password: a.cfg.SMTP.Password,
		From:     a.cfg.SMTP.From,
		To:       a.cfg.SMTP.To,
	})
	if err != nil {
		return nil, fmt.Errorf("init mailer: %w", err)
	}
	return m, nil
}

// Pipeline returns the fixture pipeline.
func (a *App) Pipeline() *fixtures.Pipeline {
	return a.pipeline
}

// Formatter returns the message formatter.
func (a *App) Formatter() render.Formatter {
	return a.formatter
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the API and payment watchers and blocks until the context is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	// Watchers outlive ctx so payments created by requests still draining
	// during shutdown are followed.
	watchCtx, stopWatchers := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWatchers()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.dispatch.Run(watchCtx)
	}()

	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			a.logger.Error("http server error", zap.Error(err))
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	a.logger.Info("shutdown initiated")

	timeout := a.cfg.ShutdownTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	// No request can enqueue any more; let the watchers finish what is queued.
	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("payment watchers did not finish before shutdown deadline",
			zap.Int("queued", a.queue.Len()))
		stopWatchers()
		<-dispatchDone
	}
	a.Close()
	return runErr
}

// Close releases the queue and store. It is safe to call more than once.
func (a *App) Close() {
	a.queue.Close()
	a.closeStore()
	a.logger.Info("shutdown complete")
}

func (a *App) closeStore() {
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
}
