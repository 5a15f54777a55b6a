package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"custody/internal/audit/cache"
	"custody/internal/audit/handler"
	"custody/internal/audit/interceptor"
	auditmetrics "custody/internal/audit/metrics"
	"custody/internal/audit/service"
	jwttoken "custody/internal/jwt_token"
	"custody/internal/platform/config"
	"custody/internal/platform/httpserver"
	"custody/internal/platform/kafka"
	"custody/internal/platform/logger"
	"custody/internal/platform/metrics"
	"custody/internal/platform/postgres"
	"custody/internal/platform/redis"
	httptransport "custody/internal/transport/http"
	audit "custody/pkg/platform/audit"
	"custody/pkg/platform/audit/publishers/stream"
	"custody/pkg/platform/audit/store/memory"
	pgstore "custody/pkg/platform/audit/store/postgres"
	"custody/pkg/platform/audit/worker"
	"custody/pkg/platform/audit/writer"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("custody audit server stopped", "error", err)
		os.Exit(1)
	}
}

// closer releases one resource during shutdown.
type closer struct {
	name string
	fn   func(context.Context) error
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	mode, err := interceptor.ParseMode(cfg.Audit.Mode)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var closers []closer
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		// Release in reverse order of acquisition.
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(shutdownCtx); err != nil {
				log.Warn("shutdown step failed", "resource", closers[i].name, "error", err)
			}
		}
	}()

	healthChecks := map[string]httptransport.HealthCheck{}

	if cfg.Server.TracingEnabled {
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		closers = append(closers, closer{"tracer", tp.Shutdown})
	}

	store, db, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	if db != nil {
		closers = append(closers, closer{"postgres", func(context.Context) error { return db.Close() }})
		healthChecks["postgres"] = db.PingContext
	}

	writerMetrics := writer.NewMetrics(reg)
	recovery := writer.NewRingBuffer(cfg.Audit.RecoveryCapacity)
	writerOpts := []writer.Option{
		writer.WithMetrics(writerMetrics),
		writer.WithCircuitBreaker(writer.NewCircuitBreaker(cfg.Audit.BreakerThreshold, cfg.Audit.BreakerCooldown)),
		writer.WithRecoveryBuffer(recovery),
		writer.WithWriteTimeout(cfg.Audit.WriteTimeout),
	}

	if len(cfg.Kafka.Brokers) > 0 {
		client, err := openKafka(ctx, cfg.Kafka)
		if err != nil {
			return err
		}
		closers = append(closers, closer{"kafka", func(context.Context) error { client.Close(); return nil }})
		publisher := stream.NewPublisher(client, cfg.Kafka.Topic, log,
			stream.WithErrorHook(func(error) { writerMetrics.IncSinkFailures() }),
		)
		closers = append(closers, closer{"audit stream", publisher.Close})
		writerOpts = append(writerOpts, writer.WithSink(publisher))
		log.Info("audit stream mirror enabled", "topic", cfg.Kafka.Topic)
	}

	auditWriter := writer.New(store, log, writerOpts...)
	closers = append(closers, closer{"audit writer", auditWriter.Close})

	serviceOpts := []service.Option{service.WithMetrics(auditmetrics.New(reg))}
	if cfg.Server.TracingEnabled {
		serviceOpts = append(serviceOpts, service.WithTracerProvider(otel.GetTracerProvider()))
	}
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		closers = append(closers, closer{"redis", func(context.Context) error { return redisClient.Close() }})
		healthChecks["redis"] = redisClient.Health
		serviceOpts = append(serviceOpts, service.WithSummaryCache(cache.NewRedisSummaryCache(redisClient.Client, cfg.Redis.SummaryTTL)))
	}
	auditService := service.New(store, log, serviceOpts...)

	replayer := worker.NewWorker(auditWriter, recovery, log,
		worker.WithInterval(cfg.Audit.RetryInterval),
		worker.WithBatchSize(cfg.Audit.RetryBatchSize),
		worker.WithMetrics(writerMetrics),
	)

	auditInterceptor := interceptor.New(auditWriter, log, interceptor.Config{
		ExcludedPaths: cfg.Audit.ExcludedPaths,
		Mode:          mode,
		MaxBodyBytes:  cfg.Audit.MaxBodyBytes,
	})
	jwtService := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	router := httptransport.NewRouter(httptransport.Dependencies{
		Logger:         log,
		Audit:          handler.New(auditService, log),
		Recovery:       handler.NewRecoveryHandler(recovery, replayer, auditWriter, log),
		Interceptor:    auditInterceptor,
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		ReportingRoles: cfg.Auth.ReportingRoles,
		AdminToken:     cfg.Server.AdminToken,
		Metrics:        metrics.New(reg),
		Gatherer:       reg,
		HealthChecks:   healthChecks,
		TracingEnabled: cfg.Server.TracingEnabled,
	})
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting custody audit server", "addr", cfg.Server.Addr, "audit_mode", string(mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if cfg.Audit.RetryEnabled {
		g.Go(func() error {
			log.Info("audit replay worker started", "interval", cfg.Audit.RetryInterval.String())
			if err := replayer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down custody audit server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openStore returns the PostgreSQL store when a database URL is configured,
// otherwise the in-memory store. db is nil for the in-memory store.
func openStore(ctx context.Context, cfg config.Database, log *slog.Logger) (audit.Store, *sql.DB, error) {
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set, audit events are kept in memory only")
		return memory.NewInMemoryStore(), nil, nil
	}

	db, err := postgres.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	store := pgstore.New(db)
	if cfg.Migrate {
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
	}
	return store, db, nil
}

func openKafka(ctx context.Context, cfg config.KafkaConfig) (*kgo.Client, error) {
	kcfg := kafka.Config{
		Brokers:           cfg.Brokers,
		ClientID:          cfg.ClientID,
		Topic:             cfg.Topic,
		Partitions:        cfg.Partitions,
		ReplicationFactor: cfg.ReplicationFactor,
		Linger:            cfg.Linger,
	}
	client, err := kafka.NewClient(kcfg)
	if err != nil {
		return nil, err
	}
	if err := kafka.EnsureTopic(ctx, client, kcfg); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
