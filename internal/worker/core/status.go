// Package core reports worker heartbeats to Redis so operators can see which
// reconciliation workers are alive and what they are doing.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"github.com/tripnest/tripnest/internal/cache"
	"go.uber.org/zap"
)

const (
	// HeartbeatInterval is how often workers should report their status.
	HeartbeatInterval = 10 * time.Second

	// HeartbeatTTL is how long a worker's status remains valid.
	HeartbeatTTL = 10 * time.Minute

	// StaleThreshold is how long before a worker is considered offline.
	StaleThreshold = 1 * time.Minute

	statusKeyPrefix = "worker:"
)

// Status represents a worker's current state.
type Status struct {
	WorkerID    string    `json:"workerId"`
	WorkerType  string    `json:"workerType"`
	LastSeen    time.Time `json:"lastSeen"`
	CurrentTask string    `json:"currentTask,omitempty"`
	Progress    int       `json:"progress"`
	IsHealthy   bool      `json:"isHealthy"`
	// LastSynced counts the posts written by the latest reconciliation.
	LastSynced int `json:"lastSynced"`
	// LastFailed counts the posts the latest reconciliation could not write.
	LastFailed int `json:"lastFailed"`
}

// IsStale reports whether the worker has missed its heartbeats.
func (s Status) IsStale(now time.Time) bool {
	return now.Sub(s.LastSeen) > StaleThreshold
}

// Monitor handles worker status reporting and querying.
type Monitor struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewMonitor creates a new worker status monitor.
func NewMonitor(client rueidis.Client, logger *zap.Logger) *Monitor {
	return &Monitor{
		client: client,
		logger: logger.Named("worker_monitor"),
	}
}

// ReportStatus stores the worker status with a heartbeat expiry.
func (m *Monitor) ReportStatus(ctx context.Context, status Status) error {
	status.LastSeen = time.Now()

	data, err := sonic.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}

	key := statusKey(status.WorkerType, status.WorkerID)
	err = m.client.Do(ctx, m.client.B().Set().Key(key).Value(string(data)).Ex(HeartbeatTTL).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to store status: %w", err)
	}

	return nil
}

// GetAllStatuses retrieves the status of every worker that reported within
// the heartbeat TTL. Unreadable entries are logged and skipped.
func (m *Monitor) GetAllStatuses(ctx context.Context) ([]Status, error) {
	var statuses []Status

	err := cache.ScanPrefix(ctx, m.client, statusKeyPrefix, func(keys []string) error {
		cmds := make(rueidis.Commands, 0, len(keys))
		for _, key := range keys {
			cmds = append(cmds, m.client.B().Get().Key(key).Build())
		}

		for i, resp := range m.client.DoMulti(ctx, cmds...) {
			data, err := resp.AsBytes()
			if err != nil {
				if !rueidis.IsRedisNil(err) {
					m.logger.Error("Failed to get worker status", zap.String("key", keys[i]), zap.Error(err))
				}
				continue
			}

			var status Status
			if err := sonic.Unmarshal(data, &status); err != nil {
				m.logger.Error("Failed to unmarshal worker status", zap.String("key", keys[i]), zap.Error(err))
				continue
			}

			statuses = append(statuses, status)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get worker statuses: %w", err)
	}

	return statuses, nil
}

func statusKey(workerType, workerID string) string {
	return fmt.Sprintf("%s%s:%s", statusKeyPrefix, workerType, workerID)
}
