// Package reconcile runs the background loop that keeps the fast counters
// and the durable summary table in agreement.
package reconcile

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/tripnest/tripnest/internal/counter"
	"github.com/tripnest/tripnest/internal/setup"
	"github.com/tripnest/tripnest/internal/worker/core"
	"github.com/tripnest/tripnest/pkg/utils"
	"go.uber.org/zap"
)

// WorkerType identifies reconciliation workers in status reports.
const WorkerType = "reconcile"

const (
	// DefaultPushInterval is used when the configured interval is not positive.
	DefaultPushInterval = time.Minute

	// shutdownTimeout bounds the final push after the worker is cancelled.
	shutdownTimeout = 30 * time.Second

	// maxLoggedFailures caps the post IDs listed in one failure log.
	maxLoggedFailures = 20
)

// Syncer is the reconciliation side of the counter service.
type Syncer interface {
	SyncFromDurable(ctx context.Context, postIDs ...int64) (*counter.SyncReport, error)
	SyncToDurable(ctx context.Context) (*counter.SyncReport, error)
}

// Options tunes the worker loop.
type Options struct {
	PushInterval time.Duration
	PullOnStart  bool
	StartupDelay time.Duration
}

// Worker periodically pushes fast counters into durable storage.
type Worker struct {
	syncer   Syncer
	reporter *core.StatusReporter
	opts     Options
	logger   *zap.Logger
}

// New creates a reconciliation worker from the application services.
func New(app *setup.App, logger *zap.Logger) *Worker {
	cfg := app.Config.Worker

	return NewWorker(
		app.Counters,
		core.NewStatusReporter(app.StatusClient, WorkerType, logger),
		Options{
			PushInterval: time.Duration(cfg.PushInterval) * time.Second,
			PullOnStart:  cfg.PullOnStart,
			StartupDelay: time.Duration(cfg.StartupDelay) * time.Millisecond,
		},
		logger,
	)
}

// NewWorker creates a worker around an explicit syncer and reporter.
func NewWorker(syncer Syncer, reporter *core.StatusReporter, opts Options, logger *zap.Logger) *Worker {
	if opts.PushInterval <= 0 {
		opts.PushInterval = DefaultPushInterval
	}

	return &Worker{
		syncer:   syncer,
		reporter: reporter,
		opts:     opts,
		logger:   logger.Named("reconcile_worker"),
	}
}

// Start runs the worker until ctx is cancelled. A final push runs on the way
// out so counts accumulated since the last tick are not left behind.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Reconcile Worker started",
		zap.String("workerID", w.reporter.GetWorkerID()),
		zap.Duration("pushInterval", w.opts.PushInterval),
		zap.Bool("pullOnStart", w.opts.PullOnStart))

	w.reporter.Start(ctx)
	defer w.reporter.Stop()

	if w.opts.StartupDelay > 0 {
		w.reporter.UpdateStatus("Waiting for startup delay", 0)
		if utils.ContextSleepWithLog(ctx, w.opts.StartupDelay, w.logger,
			"Context cancelled during startup delay") == utils.SleepCancelled {
			return
		}
	}

	if w.opts.PullOnStart {
		w.pull(ctx)
	}

	ticker := time.NewTicker(w.opts.PushInterval)
	defer ticker.Stop()

	w.reporter.UpdateStatus("Idle", 0)

	for {
		select {
		case <-ticker.C:
			w.push(ctx)
		case <-ctx.Done():
			w.logger.Info("Reconcile Worker stopping, running final push")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			w.push(shutdownCtx)
			w.reporter.Stop()
			w.reporter.Flush(shutdownCtx)
			cancel()
			return
		}
	}
}

// pull restores fast counters from durable storage.
func (w *Worker) pull(ctx context.Context) {
	w.reporter.UpdateStatus("Pulling counters", 0)

	report, err := w.syncer.SyncFromDurable(ctx)
	w.record("pull", report, err)

	w.reporter.UpdateStatus("Pulled counters", 100)
}

// push writes fast counters into the summary table.
func (w *Worker) push(ctx context.Context) {
	w.reporter.UpdateStatus("Pushing counters", 0)

	report, err := w.syncer.SyncToDurable(ctx)
	w.record("push", report, err)

	w.reporter.UpdateStatus("Idle", 100)
}

func (w *Worker) record(direction string, report *counter.SyncReport, err error) {
	if err != nil {
		w.logger.Error("Counter sync failed", zap.String("direction", direction), zap.Error(err))
		w.reporter.SetHealthy(false)
		return
	}

	w.reporter.RecordSync(report.Synced, len(report.Failed))
	w.reporter.SetHealthy(len(report.Failed) == 0)

	if len(report.Failed) > 0 {
		failedIDs := slices.Sorted(maps.Keys(report.Failed))
		if len(failedIDs) > maxLoggedFailures {
			failedIDs = failedIDs[:maxLoggedFailures]
		}

		w.logger.Warn("Counter sync left posts unsynced",
			zap.String("direction", direction),
			zap.Int("synced", report.Synced),
			zap.Int("failed", len(report.Failed)),
			zap.Int64s("failedIDs", failedIDs),
			zap.Error(report.Failed[failedIDs[0]]))
		return
	}

	w.logger.Debug("Counter sync completed",
		zap.String("direction", direction),
		zap.Int("synced", report.Synced))
}
