package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tripnest/tripnest/internal/setup"
	"github.com/tripnest/tripnest/internal/setup/telemetry"
	"github.com/tripnest/tripnest/internal/worker/reconcile"
	"github.com/tripnest/tripnest/pkg/utils"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// WorkerLogDir specifies where worker log files are stored.
	WorkerLogDir = "logs/worker_logs"

	// ReconcileWorker pushes fast counters into durable storage.
	ReconcileWorker = "reconcile"

	// restartDelay is the pause before a crashed worker is restarted.
	restartDelay = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "worker",
		Usage: "Start a tripnest background worker",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "auto-migrate",
				Usage: "Apply pending database migrations on startup",
			},
			&cli.StringFlag{
				Name:  "worker-id",
				Usage: "Identifier used to separate this worker's log directory",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  ReconcileWorker,
				Usage: "Start the counter reconciliation worker",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runReconcile(ctx, c.Bool("auto-migrate"), c.String("worker-id"))
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx, os.Args)
}

// runReconcile bootstraps the application and runs the reconcile worker
// until the process is signalled.
func runReconcile(ctx context.Context, autoMigrate bool, workerID string) error {
	app, err := setup.InitializeApp(ctx, setup.Options{
		ServiceType: telemetry.ServiceWorker,
		LogDir:      WorkerLogDir,
		WorkerID:    workerID,
		AutoMigrate: autoMigrate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup(context.WithoutCancel(ctx))

	logger := app.Logger.Named(ReconcileWorker)
	newWorker := func() startable { return reconcile.New(app, logger) }

	log.Printf("Started %s worker", ReconcileWorker)
	runWorker(ctx, newWorker, logger)
	log.Println("Worker has finished. Exiting.")

	return nil
}

type startable interface {
	Start(ctx context.Context)
}

// runWorker runs a single worker in a loop with error recovery. Each restart
// gets a fresh worker so its heartbeat reporter starts again.
func runWorker(ctx context.Context, newWorker func() startable, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Context cancelled, stopping worker")
			return
		default:
			w := newWorker()

			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("Worker execution failed",
							zap.String("worker_type", fmt.Sprintf("%T", w)),
							zap.Any("panic", r),
						)
						logger.Info("Restarting worker", zap.Duration("delay", restartDelay))
					}
				}()

				logger.Info("Starting worker")
				w.Start(ctx)
			}()

			if ctx.Err() != nil {
				continue
			}

			logger.Warn("Worker stopped unexpectedly",
				zap.String("worker_type", fmt.Sprintf("%T", w)),
			)

			utils.ErrorSleep(ctx, restartDelay, logger, fmt.Sprintf("%T", w))
		}
	}
}
