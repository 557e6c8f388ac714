package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/akmatori/incidentd/internal/config"
	"github.com/akmatori/incidentd/internal/database"
	"github.com/akmatori/incidentd/internal/decision"
	"github.com/akmatori/incidentd/internal/escalation"
	"github.com/akmatori/incidentd/internal/handlers"
	"github.com/akmatori/incidentd/internal/jobs"
	"github.com/akmatori/incidentd/internal/notify"
	"github.com/akmatori/incidentd/internal/oncall"
	"github.com/akmatori/incidentd/internal/queue"
	"github.com/akmatori/incidentd/internal/services"
	slackmirror "github.com/akmatori/incidentd/internal/slack"
	"github.com/akmatori/incidentd/internal/workers"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	var corsOrigins []string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and all workers until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := withSignals()
			defer stop()
			return serve(ctx, cfg, log, corsOrigins)
		},
	}
	cmd.Flags().StringSliceVar(&corsOrigins, "cors-origin", nil, "allowed CORS origin (repeatable)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger, corsOrigins []string) error {
	log.Info("Starting incidentd", zap.Int("port", cfg.HTTPPort))

	db, err := database.Connect(cfg.DatabaseURL, logger.Warn, log)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()
	if err := database.AutoMigrate(db, log); err != nil {
		return err
	}

	redisClient, err := queue.NewClient(ctx, cfg.RedisURL, log)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()

	queues := queue.NewSet(redisClient)
	due := escalation.NewDueQueue(redisClient.Redis())
	provider, stopProvider, err := newOnCallProvider(cfg, log)
	if err != nil {
		return err
	}
	defer stopProvider()
	links := services.NewLinks(cfg.PublicBaseURL)

	incidentService := services.NewIncidentService(db)
	alertService := services.NewAlertService(db)
	lifecycle := services.NewLifecycleService(incidentService, queues.Notifications, provider, links, log)

	loop := workers.LoopConfig{PopTimeout: cfg.QueuePopTimeout, ErrorDelay: cfg.WorkerRetryDelay}
	engine := decision.NewEngine(incidentService, decision.Rules{
		DedupWindow:             cfg.DedupWindow,
		StormWindow:             cfg.StormWindow,
		StormThreshold:          cfg.StormThreshold,
		FiringDurationThreshold: cfg.FiringDurationThreshold,
	})

	dispatcher, err := newDispatcher(cfg, log)
	if err != nil {
		return err
	}

	processor := workers.NewAlertProcessor(queues, cfg.NormalizationMaxRetries, loop, log)
	runners := []func(context.Context){
		processor.Run,
		workers.NewRetryWorker(queues, cfg.NormalizationRetryDelay, loop, log).Run,
		workers.NewAlertConsumer(queues, alertService, incidentService, engine, loop, log).Run,
		workers.NewIncidentWorker(queues, incidentService, provider, due, links, workers.IncidentWorkerConfig{
			MaxRetries:        cfg.WorkerMaxRetries,
			EscalationTimeout: cfg.EscalationTimeout,
			Loop:              loop,
		}, log).Run,
		workers.NewNotificationWorker(queues, dispatcher, workers.NotificationWorkerConfig{
			RetryAttempts: cfg.NotificationRetryAttempts,
			RetryDelay:    cfg.NotificationRetryDelay,
			Loop:          loop,
		}, log).Run,
	}

	monitor := jobs.NewEscalationMonitor(due, incidentService, queues, provider, links, cfg.EscalationTimeout, log)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()
	var wg sync.WaitGroup
	for _, run := range runners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(workerCtx)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.Start(workerCtx, cfg.EscalationCheckInterval)
	}()

	httpHandler := handlers.NewHTTPHandler(
		handlers.NewAlertHandler(processor, alertService, log),
		handlers.NewIncidentHandler(incidentService, lifecycle, queues.Incidents, links, log),
		queues,
		log,
		handlers.HealthCheck{Name: "database", Check: pingDB(db)},
		handlers.HealthCheck{Name: "redis", Check: redisClient.Ping},
	)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.HTTPPort),
		Handler:           httpHandler.Handler(corsOrigins...),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var listenErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case listenErr = <-serverErr:
		if listenErr != nil {
			log.Error("HTTP server failed", zap.Error(listenErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}

	cancelWorkers()
	wg.Wait()
	log.Info("Shutdown complete")

	if listenErr != nil {
		return fmt.Errorf("http server: %w", listenErr)
	}
	return nil
}

// newOnCallProvider prefers the on-call service, then the roster file.
// Without either every incident stays unassigned.
func newOnCallProvider(cfg *config.Config, log *zap.Logger) (oncall.Provider, func(), error) {
	noop := func() {}
	switch {
	case cfg.OnCallServiceURL != "":
		log.Info("Using on-call service", zap.String("url", cfg.OnCallServiceURL))
		provider := oncall.Provider(oncall.NewHTTPProvider(cfg.OnCallServiceURL, log))
		if cfg.OnCallCacheTTL <= 0 {
			return provider, noop, nil
		}
		cached := oncall.NewCachingProvider(provider, cfg.OnCallCacheTTL, cfg.OnCallCacheTTL)
		return cached, cached.Stop, nil
	case cfg.OnCallFile != "":
		provider, err := oncall.LoadRoster(cfg.OnCallFile)
		if err != nil {
			return nil, nil, err
		}
		log.Info("Using on-call roster file", zap.String("path", cfg.OnCallFile))
		return provider, noop, nil
	default:
		log.Warn("No on-call source configured; incidents will not be assigned")
		return oncall.NewStaticProvider(nil), noop, nil
	}
}

func newDispatcher(cfg *config.Config, log *zap.Logger) (*notify.Dispatcher, error) {
	var email notify.Sender = notify.NewLogSender(log.Named("email"))
	if cfg.SMTPAddr != "" {
		mode, err := notify.ParseTLSMode(cfg.SMTPTLSMode)
		if err != nil {
			return nil, err
		}
		email = notify.NewSMTPSender(cfg.SMTPAddr, cfg.EmailFrom, cfg.SMTPUser, cfg.SMTPPassword, mode)
		log.Info("Email delivery via SMTP", zap.String("addr", cfg.SMTPAddr), zap.String("tls_mode", string(mode)))
	}
	sms := notify.NewLogSender(log.Named("sms"))

	var mirror notify.Mirror
	if cfg.SlackBotToken != "" {
		mirror = slackmirror.NewNotifier(cfg.SlackBotToken, cfg.SlackChannel, log)
	}
	return notify.NewDispatcher(email, sms, mirror, log), nil
}

func pingDB(db *gorm.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
