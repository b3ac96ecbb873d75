package core_test

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/tripnest/internal/worker/core"
	"go.uber.org/zap/zaptest"
)

func newClient(t *testing.T) (rueidis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client, mr
}

func TestMonitorRoundTrip(t *testing.T) {
	t.Parallel()
	client, mr := newClient(t)
	monitor := core.NewMonitor(client, zaptest.NewLogger(t))

	for _, id := range []string{"a", "b"} {
		err := monitor.ReportStatus(t.Context(), core.Status{
			WorkerID:    id,
			WorkerType:  "reconcile",
			CurrentTask: "Pushing counters",
			IsHealthy:   true,
			LastSynced:  3,
		})
		require.NoError(t, err)
	}

	// Unrelated and corrupt entries are ignored
	require.NoError(t, mr.Set("worker:reconcile:broken", "{not json"))
	require.NoError(t, mr.Set("other:key", "{}"))

	statuses, err := monitor.GetAllStatuses(t.Context())
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	for _, status := range statuses {
		assert.Equal(t, "reconcile", status.WorkerType)
		assert.Equal(t, 3, status.LastSynced)
		assert.False(t, status.IsStale(time.Now()))
	}

	assert.Equal(t, core.HeartbeatTTL, mr.TTL("worker:reconcile:a"))
}

func TestStatusIsStale(t *testing.T) {
	t.Parallel()

	now := time.Now()
	assert.False(t, core.Status{LastSeen: now.Add(-30 * time.Second)}.IsStale(now))
	assert.True(t, core.Status{LastSeen: now.Add(-2 * time.Minute)}.IsStale(now))
}

func TestReporterPublishesUpdates(t *testing.T) {
	t.Parallel()
	client, _ := newClient(t)
	logger := zaptest.NewLogger(t)

	reporter := core.NewStatusReporter(client, "reconcile", logger)
	reporter.UpdateStatus("Pulling counters", 50)
	reporter.RecordSync(7, 1)
	reporter.SetHealthy(false)
	reporter.Flush(t.Context())

	statuses, err := core.NewMonitor(client, logger).GetAllStatuses(t.Context())
	require.NoError(t, err)
	require.Len(t, statuses, 1)

	status := statuses[0]
	assert.Equal(t, reporter.GetWorkerID(), status.WorkerID)
	assert.Equal(t, "Pulling counters", status.CurrentTask)
	assert.Equal(t, 50, status.Progress)
	assert.Equal(t, 7, status.LastSynced)
	assert.Equal(t, 1, status.LastFailed)
	assert.False(t, status.IsHealthy)
}

func TestReporterStartReportsImmediately(t *testing.T) {
	t.Parallel()
	client, _ := newClient(t)
	logger := zaptest.NewLogger(t)

	reporter := core.NewStatusReporter(client, "reconcile", logger)
	reporter.Start(t.Context())
	defer reporter.Stop()

	monitor := core.NewMonitor(client, logger)
	assert.Eventually(t, func() bool {
		statuses, err := monitor.GetAllStatuses(t.Context())
		return err == nil && len(statuses) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReporterStopIsIdempotent(t *testing.T) {
	t.Parallel()
	client, _ := newClient(t)

	reporter := core.NewStatusReporter(client, "reconcile", zaptest.NewLogger(t))
	reporter.Stop()
	reporter.Stop()

	// Start after Stop is a no-op
	reporter.Start(t.Context())
}
