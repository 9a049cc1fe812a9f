package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tableflow/api/internal/config"
	"github.com/tableflow/api/internal/database"
	"github.com/tableflow/api/internal/notify"
	"github.com/tableflow/api/internal/printer"
	"github.com/tableflow/api/internal/router"
	"github.com/tableflow/api/internal/sequence"
	"github.com/tableflow/api/internal/transport"
	"github.com/tableflow/api/internal/ws"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		log.Println("Migrations applied")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	queries := database.New(pool)

	seq, closeSeq, err := newSequencer(ctx, cfg, queries)
	if err != nil {
		return err
	}
	defer closeSeq()

	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return fmt.Errorf("snowflake node: %w", err)
	}

	transportPolicy := transport.Policy{
		MaxRetries: cfg.TransportMaxRetries,
		Timeout:    cfg.TransportTimeout,
		Backoff:    transport.DefaultPolicy().Backoff,
	}
	device, closeDevice, err := newPrintDevice(cfg, transportPolicy)
	if err != nil {
		return err
	}
	defer closeDevice()

	policy := printer.DefaultPolicy()
	policy.MaxAttempts = int32(cfg.PrinterMaxAttempts)
	policy.PollInterval = cfg.PrinterPollInterval
	if cfg.PrinterDriver == "http" {
		policy = policy.WithDeviceBudget(transportPolicy.Budget())
	}
	worker := printer.NewWorker(queries, device, policy)

	hub := ws.NewHub()
	listener := notify.NewListener(notify.Dial(cfg.DatabaseURL), hub, node)

	r, err := router.New(cfg, queries, pool, hub, seq)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return listener.Run(gctx) })
	g.Go(func() error { return worker.Run(gctx) })
	g.Go(func() error {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newSequencer uses Redis when configured so invoice counters are shared
// across nodes, and an in-process counter otherwise. Both resume above the
// highest invoice already stored.
func newSequencer(ctx context.Context, cfg *config.Config, queries *database.Queries) (sequence.Sequencer, func(), error) {
	floor := func(ctx context.Context, tenantID uuid.UUID, day string) (int64, error) {
		return queries.GetMaxInvoiceSequence(ctx, database.GetMaxInvoiceSequenceParams{TenantID: tenantID, Day: day})
	}

	if cfg.RedisURL == "" {
		log.Println("WARNING: REDIS_URL not set, invoice numbers are sequenced in-process")
		return sequence.NewLocalSequencer(floor), func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return sequence.NewRedisSequencer(rdb, floor), func() { rdb.Close() }, nil
}

func newPrintDevice(cfg *config.Config, tp transport.Policy) (printer.Device, func(), error) {
	switch cfg.PrinterDriver {
	case "log":
		return printer.LogDevice{}, func() {}, nil
	case "http":
		client := transport.New(&http.Client{}, tp)
		return printer.NewHTTPDevice(client, cfg.PrinterBridgeURL), func() {}, nil
	case "amqp":
		d := printer.NewAMQPDevice(cfg.AMQPURL)
		return d, func() {
			if err := d.Close(); err != nil {
				log.Printf("WARNING: close amqp device: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown printer driver %q", cfg.PrinterDriver)
	}
}
