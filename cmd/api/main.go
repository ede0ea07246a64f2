package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"golang.org/x/sync/errgroup"

	"github.com/watchcoin/backend/internal/config"
	"github.com/watchcoin/backend/internal/db"
	"github.com/watchcoin/backend/internal/execution"
	"github.com/watchcoin/backend/internal/logging"
)

const usage = `usage: watchcoin [serve|migrate|status]

  serve    apply migrations and run the API and job workers (default)
  migrate  apply pending schema migrations and exit
  status   list schema migrations and whether they are applied`

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		fmt.Println(usage)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Cannot reach the database. Ensure Postgres or CockroachDB is running", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, pool, logger)
	case "migrate":
		_, err = db.Migrate(ctx, pool, logger)
	case "status":
		err = printStatus(ctx, pool)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("Command failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func printStatus(ctx context.Context, pool *pgxpool.Pool) error {
	list, err := db.Status(ctx, pool)
	if err != nil {
		return err
	}
	for _, m := range list {
		state := "pending"
		if m.Applied {
			state = "applied"
		}
		fmt.Printf("%-8s %s\n", state, m.Name)
	}
	return nil
}

func serve(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, logger *slog.Logger) error {
	if _, err := db.Migrate(ctx, pool, logger); err != nil {
		return fmt.Errorf("schema migrations: %w", err)
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	slog.Info("River migrations applied")

	// Services enqueue through riverClient, which needs the workers built from
	// those services. The closures read it once it is set below.
	var riverClient *river.Client[pgx.Tx]
	insert := func(ctx context.Context, args river.JobArgs) error {
		if riverClient == nil {
			return errors.New("job queue not started")
		}
		_, err := riverClient.Insert(ctx, args, nil)
		return err
	}

	app, err := build(ctx, cfg, pool, logger, insert)
	if err != nil {
		return err
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, execution.NewConfirmPaymentWorker(app.payments, logger))
	river.AddWorker(workers, execution.NewSweepStaleWorker(app.queue))
	river.AddWorker(workers, execution.NewBroadcastNotificationWorker(app.notifications))

	riverClient, err = river.NewClient(riverpgxv5.New(pool), &river.Config{
		Logger: logger,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.Watch.SweepInterval),
				func() (river.JobArgs, *river.InsertOpts) { return execution.SweepStaleArgs{}, nil },
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		return fmt.Errorf("create river client: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := riverClient.Start(gctx); err != nil {
			return fmt.Errorf("start river: %w", err)
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return riverClient.Stop(stopCtx)
	})
	g.Go(func() error {
		slog.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
