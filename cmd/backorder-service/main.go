package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/hub-backorders/internal/backorder/application"
	"github.com/dmehra2102/hub-backorders/internal/backorder/infrastructure/catalog"
	backorderhttp "github.com/dmehra2102/hub-backorders/internal/backorder/infrastructure/http"
	backorderkafka "github.com/dmehra2102/hub-backorders/internal/backorder/infrastructure/kafka"
	backorderpg "github.com/dmehra2102/hub-backorders/internal/backorder/infrastructure/postgres"
	backorderredis "github.com/dmehra2102/hub-backorders/internal/backorder/infrastructure/redis"
	"github.com/dmehra2102/hub-backorders/internal/config"
	inventorypg "github.com/dmehra2102/hub-backorders/internal/inventory/infrastructure/postgres"
	orderhttp "github.com/dmehra2102/hub-backorders/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/hub-backorders/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/hub-backorders/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/hub-backorders/pkg/consumer"
	"github.com/dmehra2102/hub-backorders/pkg/idempotency"
	"github.com/dmehra2102/hub-backorders/pkg/logging"
	"github.com/dmehra2102/hub-backorders/pkg/outbox"
	"github.com/dmehra2102/hub-backorders/pkg/shutdown"
	"github.com/dmehra2102/hub-backorders/pkg/tracing"
)

const (
	serviceName   = "backorder-service"
	consumerGroup = "backorder-service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, serviceName, cfg.OTLPURL, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	// Postgres Setup
	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis connect failed", "err", err)
		os.Exit(1)
	}

	writer := backorderkafka.NewWriter(log, cfg.KafkaBrokers)

	// Adapters
	orders := orderpg.NewRepository(log, pool)
	links := backorderpg.NewLinks(log, pool, cfg.FinalizeLease)
	ports := application.Ports{
		Variants: inventorypg.NewDirectory(log, pool),
		Remote:   catalog.NewClient(log, cfg.CatalogURL, cfg.CatalogToken, cfg.RemoteTimeout),
		Ledger:   inventorypg.NewLedger(log, pool),
		Demand:   orders,
		Links:    links,
		Lock:     backorderredis.NewOrderLock(log, rdb, cfg.LockTTL, cfg.LockWait),
		Notifier: backorderpg.NewNotifier(log, pool),
	}
	reconciler := application.NewReconciler(log, ports)
	finalizer := application.NewFinalizer(log, ports)

	// Outbox relay
	hostname, _ := os.Hostname()
	dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
	relay := outbox.NewRelay(log, backorderpg.NewOutboxStore(log, pool), dispatch, serviceName+"-"+hostname)

	// Consumers
	idem := idempotency.NewStore(rdb, consumerGroup, cfg.IdempotencyTTL)
	orderConsumer := consumer.New(log, "order-events",
		consumer.NewReader(cfg.KafkaBrokers, cfg.OrderTopic, consumerGroup),
		idem, orderkafka.NewOrderEvents(log, reconciler))
	cycleConsumer := consumer.New(log, "order-cycle-events",
		consumer.NewReader(cfg.KafkaBrokers, cfg.OrderCycleTopic, consumerGroup),
		idem, backorderkafka.NewOrderCycleEvents(log, links, finalizer))

	// HTTP server
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Mount("/backorders", backorderhttp.NewHandler(log, links, finalizer).Routes())
	r.Mount("/orders", orderhttp.NewHandler(log, orders, reconciler).Routes())
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.RemoteTimeout + cfg.LockWait + 10*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return orderConsumer.Run(gctx) })
	g.Go(func() error { return cycleConsumer.Run(gctx) })
	g.Go(func() error {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("backorder-service stopped with error", "err", err)
	}

	shutdown.Run(log, 10*time.Second,
		shutdown.Hook{Name: "kafka-writer", Close: func(context.Context) error { return writer.Close() }},
		shutdown.Hook{Name: "redis", Close: func(context.Context) error { return rdb.Close() }},
		shutdown.Hook{Name: "tracer", Close: tp.Shutdown},
	)
	log.Info("backorder-service shutdown complete")
}
