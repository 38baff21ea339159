package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/shestoi/payrelay/internal/api/http"
	"github.com/shestoi/payrelay/internal/config"
	eventkafka "github.com/shestoi/payrelay/internal/event/kafka"
	"github.com/shestoi/payrelay/internal/journal"
	"github.com/shestoi/payrelay/internal/logfile"
	"github.com/shestoi/payrelay/internal/metrics"
	"github.com/shestoi/payrelay/internal/notifier"
	"github.com/shestoi/payrelay/internal/paypal"
	"github.com/shestoi/payrelay/internal/ratelimit"
	"github.com/shestoi/payrelay/internal/service"
	"github.com/shestoi/payrelay/internal/telegram"
	"github.com/shestoi/payrelay/internal/templates"
	platformhealth "github.com/shestoi/payrelay/platform/health/http"
	platformlogging "github.com/shestoi/payrelay/platform/logging"
	platformobservability "github.com/shestoi/payrelay/platform/observability"
	platformshutdown "github.com/shestoi/payrelay/platform/shutdown"
)

// Version версия сборки, подставляется через -ldflags
var Version = "dev"

// App содержит все зависимости для запуска и корректного shutdown payrelay
type App struct {
	logger      *zap.Logger
	server      *http.Server
	shutdownMgr *platformshutdown.Manager
}

// NewLogger логгер процесса по конфигурации
func NewLogger(cfg config.Config) (*zap.Logger, error) {
	return platformlogging.New(platformlogging.Config{
		ServiceName: cfg.ServiceName,
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
	})
}

// Build создаёт и настраивает все зависимости payrelay.
// При ошибке уже созданные ресурсы закрываются.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	const op = "app.Build"

	logger = logger.With(zap.String("op", op))
	logger.Info("Building payrelay", zap.String("version", Version))

	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)
	fail := func(err error) (*App, error) {
		shutdownMgr.Shutdown()
		return nil, err
	}

	// OpenTelemetry
	otelShutdown, err := platformobservability.Init(ctx, platformobservability.Config{
		Enabled:               cfg.OTelEnabled,
		OTLPEndpoint:          cfg.OTelEndpoint,
		SamplingRatio:         cfg.OTelSamplingRatio,
		ServiceName:           cfg.ServiceName,
		DeploymentEnvironment: string(cfg.AppEnv),
		ServiceVersion:        Version,
	})
	if err != nil {
		return fail(fmt.Errorf("init observability: %w", err))
	}
	shutdownMgr.Add("observability", otelShutdown)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	// Хранилище платежей
	storage, err := OpenStorage(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	shutdownMgr.Add("storage", storage.Close)
	healthChecks := []platformhealth.Check{storage.Health}

	// Rate limit
	var store ratelimit.Store
	switch cfg.RateLimitStore {
	case config.RateLimitStoreMemory:
		store = ratelimit.NewMemoryStore()
	case config.RateLimitStoreSQLite:
		if storage.SQLiteDB == nil {
			return fail(fmt.Errorf("RATE_LIMIT_STORE=sqlite requires STORAGE_DRIVER=sqlite"))
		}
		store = ratelimit.NewSQLiteStore(storage.SQLiteDB)
	case config.RateLimitStoreRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		shutdownMgr.Add("redis", platformshutdown.CloseCloser(rdb))

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fail(fmt.Errorf("ping redis: %w", err))
		}
		logger.Info("Redis connection established", zap.String("addr", cfg.RedisAddr))

		store = ratelimit.NewRedisStore(rdb)
		healthChecks = append(healthChecks, platformhealth.Check{
			Name: "redis",
			Fn:   func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	default:
		return fail(fmt.Errorf("unsupported RATE_LIMIT_STORE %q", cfg.RateLimitStore))
	}
	limiter, err := ratelimit.New(store, ratelimit.Config{
		Window:      cfg.RateLimitWindow,
		MaxRequests: cfg.RateLimitMaxRequests,
	})
	if err != nil {
		return fail(err)
	}

	// Проверка подписи PayPal
	paypalClient := &http.Client{Timeout: cfg.PayPalVerifyTimeout}
	var checker paypal.SignatureChecker
	switch cfg.PayPalVerifyMode {
	case config.VerifyModeCert:
		checker = paypal.NewCertChecker(logger.Named("paypal"), paypalClient, nil)
	default:
		checker = paypal.NewAPIChecker(logger.Named("paypal"), cfg.PayPalAPIBase, cfg.PayPalClientID, cfg.PayPalClientSecret, paypalClient)
	}
	verifier := paypal.NewVerifier(paypal.VerifierConfig{
		WebhookID:          cfg.PayPalWebhookID,
		MaxTransmissionAge: cfg.PayPalMaxTransmissionAge,
		CertHosts:          cfg.PayPalCertHosts,
	}, checker)
	logger.Info("PayPal verifier configured", zap.String("mode", cfg.PayPalVerifyMode))

	// Telegram sender
	var sender telegram.Sender
	if cfg.TelegramEnabled {
		sender = telegram.NewTelegramSender(logger, cfg.TelegramBotToken)
		logger.Info("Telegram sender enabled", zap.String("chat_id", cfg.TelegramChatID))
	} else {
		sender = telegram.NewNoOpSender(logger)
		logger.Warn("Telegram disabled, using no-op sender")
	}

	renderer, err := templates.NewRenderer(logger, cfg.TemplatesDir)
	if err != nil {
		return fail(fmt.Errorf("failed to create template renderer: %w", err))
	}

	// DLQ для потерянных уведомлений
	var lost notifier.LostPublisher
	if cfg.Kafka.Enabled {
		dlqPublisher := eventkafka.NewDLQPublisher(logger, cfg.Kafka)
		shutdownMgr.Add("dlq_publisher", func(ctx context.Context) error {
			return dlqPublisher.Close()
		})
		lost = dlqPublisher
		logger.Info("Notification DLQ enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.DLQTopic),
		)
	}

	paymentNotifier := notifier.New(logger, sender, renderer, lost, notifier.Config{
		ServiceName: cfg.ServiceName,
		ChatID:      cfg.TelegramChatID,
		MaxAttempts: cfg.TelegramRetryMaxAttempts,
		BackoffBase: cfg.TelegramRetryBackoffBase,
	})

	// Журнал webhook с ротацией по размеру
	journalFile, err := logfile.Open(cfg.LogFilePath(), cfg.LogMaxSize, logfile.WithOnRotate(m.LogRotated))
	if err != nil {
		return fail(fmt.Errorf("open webhook journal: %w", err))
	}
	shutdownMgr.Add("webhook_journal", platformshutdown.CloseCloser(journalFile))
	webhookJournal, err := journal.New(journalFile, cfg.ServiceName, string(cfg.AppEnv))
	if err != nil {
		return fail(fmt.Errorf("create webhook journal: %w", err))
	}

	serviceCfg := service.Config{
		VerifyTimeout:  cfg.PayPalVerifyTimeout,
		PersistTimeout: service.DefaultConfig().PersistTimeout,
		NotifyTimeout:  service.DefaultConfig().NotifyTimeout,
	}
	webhookService := service.NewWebhookService(
		logger,
		limiter,
		verifier,
		storage.Repo,
		paymentNotifier,
		webhookJournal,
		m,
		serviceCfg,
	)

	// HTTP
	deps := httpapi.RouterDeps{
		ServiceName: cfg.ServiceName,
		Logger:      logger,
		Webhook: httpapi.NewHandler(
			logger,
			webhookService,
			httpapi.NewClientKeyFunc(cfg.RateLimitScope, cfg.RateLimitTrustProxy),
			cfg.MaxBodyBytes,
		),
		HealthChecks: healthChecks,
	}
	if m != nil {
		deps.Metrics = m.Handler()
	}
	if cfg.AlertTelegramChatID != "" {
		deps.Alerts = httpapi.NewAlertHandler(logger, sender, cfg.AlertTelegramChatID)
		logger.Info("Alertmanager relay enabled", zap.String("chat_id", cfg.AlertTelegramChatID))
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// ответ уходит только после verify, записи и уведомления
		WriteTimeout: serviceCfg.VerifyTimeout + serviceCfg.PersistTimeout + serviceCfg.NotifyTimeout + 10*time.Second,
	}
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(server))

	return &App{
		logger:      logger,
		server:      server,
		shutdownMgr: shutdownMgr,
	}, nil
}

// Handler корневой HTTP handler (тесты)
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Shutdown останавливает приложение без ожидания сигнала
func (a *App) Shutdown() {
	a.shutdownMgr.Shutdown()
}

// Run запускает HTTP сервер и блокируется до SIGINT/SIGTERM, отмены ctx или падения сервера
func (a *App) Run(ctx context.Context) error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("Starting payrelay", zap.String("addr", a.server.Addr))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		a.shutdownMgr.Wait(gctx)
		return nil
	})

	err := g.Wait()
	if err != nil {
		a.logger.Error("payrelay stopped with error", zap.Error(err))
		return err
	}
	a.logger.Info("payrelay stopped")
	return nil
}
