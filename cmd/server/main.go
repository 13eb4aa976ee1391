package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"serialregistry/internal/audit"
	auditkafka "serialregistry/internal/audit/kafka"
	auditmemory "serialregistry/internal/audit/store/memory"
	auditpostgres "serialregistry/internal/audit/store/postgres"
	"serialregistry/internal/platform/config"
	"serialregistry/internal/platform/httpserver"
	"serialregistry/internal/platform/logger"
	"serialregistry/internal/registry"
	"serialregistry/internal/registry/allocator"
	"serialregistry/internal/registry/code"
	"serialregistry/internal/registry/metrics"
	"serialregistry/internal/registry/service"
	"serialregistry/internal/registry/store/counter"
	"serialregistry/internal/registry/store/record"
	"serialregistry/internal/registry/store/reservation"
	"serialregistry/internal/registry/sweeper"
)

// main wires dependencies and keeps the process lifecycle small. Business
// logic lives in the internal service packages. Without a Postgres DSN the
// service runs fully in memory, which is how local development works.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	codec, err := code.NewCodec(cfg.SequenceWidth)
	if err != nil {
		log.Error("invalid sequence width", "error", err)
		os.Exit(1)
	}

	var (
		records      service.RecordStore      = record.NewInMemory()
		reservations service.ReservationStore = reservation.NewInMemory()
		counterStore allocator.Store          = counter.NewInMemory()
		auditStore   audit.Store              = auditmemory.New()
	)

	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		records = record.NewPostgres(db)
		reservations = reservation.NewPostgres(db)
		counterStore = counter.NewPostgres(db)
		auditStore = auditpostgres.New(db)
	}

	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		counterStore = redisCounter{counter.NewRedis(client)}
	}

	auditOpts := []audit.Option{audit.WithLogger(log)}
	if cfg.KafkaBrokers != "" {
		sink, err := auditkafka.Dial(strings.Split(cfg.KafkaBrokers, ","), cfg.AuditTopic)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		auditOpts = append(auditOpts, audit.WithSink(sink))
	}
	publisher := audit.NewPublisher(auditStore, auditOpts...)

	svc := registry.NewService(
		records,
		reservations,
		allocator.New(counterStore, codec, allocator.WithLogger(log)),
		codec,
		service.WithLogger(log),
		service.WithAuditLog(publisher),
		service.WithMetrics(metrics.New()),
		service.WithReservationTTL(cfg.ReservationTTL),
	)

	router := chi.NewRouter()
	registry.NewHandler(svc, log).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)
	sweep := sweeper.New(svc, cfg.SweepInterval, sweeper.WithLogger(log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting serial code registry", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := sweep.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// redisCounter adapts the increment-only Redis store to the allocator's
// Store interface. The allocator detects the Increment upgrade and never
// calls the compare-and-swap path.
type redisCounter struct {
	*counter.Redis
}

func (redisCounter) Get(context.Context, code.Scope) (uint64, uint64, error) {
	return 0, 0, errors.New("redis counter store is increment-only")
}

func (redisCounter) CreateIfAbsent(context.Context, code.Scope) error {
	return nil
}

func (redisCounter) CompareAndSwap(context.Context, code.Scope, uint64, uint64) error {
	return errors.New("redis counter store is increment-only")
}
