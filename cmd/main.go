// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server and workers.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shivanand-hulikatti/event-admission/internal/admission"
	"github.com/Shivanand-hulikatti/event-admission/internal/config"
	"github.com/Shivanand-hulikatti/event-admission/internal/database"
	"github.com/Shivanand-hulikatti/event-admission/internal/handler"
	"github.com/Shivanand-hulikatti/event-admission/internal/logger"
	"github.com/Shivanand-hulikatti/event-admission/internal/metrics"
	"github.com/Shivanand-hulikatti/event-admission/internal/notify"
	"github.com/Shivanand-hulikatti/event-admission/internal/repository"
	"github.com/Shivanand-hulikatti/event-admission/internal/service"
	"github.com/Shivanand-hulikatti/event-admission/internal/worker"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Environment: cfg.Env,
	})

	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("service stopped with error")
	}
	log.Info("service stopped")
}

func run(cfg *config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Connect to PostgreSQL ──────────────────────────────────────────
	pool, err := database.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema applied")
	}

	// ── 2. Notifications and metrics ─────────────────────────────────────
	m := metrics.New()
	sender, err := newSender(ctx, cfg.Notify, log)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	dispatcher := notify.NewDispatcher(sender, log, m)
	defer func() {
		if err := dispatcher.Close(); err != nil {
			log.WithError(err).Warn("closing notification sender")
		}
	}()

	// ── 3. Wire up layers ────────────────────────────────────────────────
	store := repository.NewPGStore(pool)
	deps := admission.Deps{
		Store:    store,
		Notifier: dispatcher,
		Log:      log,
		Metrics:  m,
		Retry: admission.RetryPolicy{
			MaxAttempts: cfg.Admission.MaxAttempts,
			BaseDelay:   cfg.Admission.RetryBase,
		},
	}
	gate := admission.NewCapacityGate(deps, nil)
	queue := admission.NewWaitlistQueue(deps, gate)
	ledger := admission.NewInvitationLedger(deps, gate, queue, cfg.Admission.InvitationTTL)

	promoter := worker.NewPromoter(queue, log.WithField("worker", "promoter"),
		cfg.Worker.PromotionQueueSize, cfg.Worker.PromotionMaxAttempts)
	sweeper := worker.NewSweeper(ledger, store, promoter, log.WithField("worker", "sweeper"),
		cfg.Worker.SweepInterval, cfg.Worker.SweepBatch).
		WithOfferLapse(queue, cfg.Admission.OfferTTL)

	svc := service.NewAdmissionService(service.Dependencies{
		Store:     store,
		Gate:      gate,
		Queue:     queue,
		Ledger:    ledger,
		Notifier:  dispatcher,
		Scheduler: promoter,
		Log:       log,
	})
	router := handler.NewRouter(handler.NewAdmissionHandler(svc, log), log, handler.RouterConfig{
		Metrics:        m.Handler(),
		TokenLimiter:   handler.NewKeyedLimiter(cfg.HTTP.TokenRateRPS, cfg.HTTP.TokenRateBurst),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	// ── 4. Start server and workers with graceful shutdown ───────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return promoter.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func newSender(ctx context.Context, cfg config.NotifyConfig, log logrus.FieldLogger) (notify.Sender, error) {
	switch cfg.Driver {
	case config.NotifyRedis:
		s, err := notify.NewRedisSender(ctx, notify.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Key:      cfg.RedisKey,
		})
		if err != nil {
			return nil, err
		}
		log.WithField("addr", cfg.RedisAddr).Info("notifications go to redis")
		return s, nil
	case config.NotifyKafka:
		log.WithField("topic", cfg.KafkaTopic).Info("notifications go to kafka")
		return notify.NewKafkaSender(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	default:
		return notify.NewLogSender(log), nil
	}
}
