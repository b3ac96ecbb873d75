package redis

import (
	"fmt"
	"sync"
	"time"

	"github.com/redis/rueidis"
	"github.com/tripnest/tripnest/internal/setup/config"
	"go.uber.org/zap"
)

const (
	// ViewCacheDBIndex stores serialized view objects (feed pages, post details,
	// route lookups) in database 0 so they can be flushed without touching counters.
	ViewCacheDBIndex = 0

	// CounterDBIndex dedicates database 1 to like/view counters and view dedup
	// markers. Counters are not TTL caches and must survive a view cache flush.
	CounterDBIndex = 1

	// WorkerStatusDBIndex uses database 4 for tracking worker heartbeats and status
	// to monitor worker health and activity.
	WorkerStatusDBIndex = 4
)

// defaultCommandTimeout bounds a single round trip when the config leaves it unset.
const defaultCommandTimeout = 2 * time.Second

// Manager maintains a thread-safe mapping of database indices to Redis clients.
// Each database index gets its own dedicated connection pool through rueidis.
type Manager struct {
	clients map[int]rueidis.Client
	config  *config.Redis
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewManager initializes the Redis connection manager with an empty client pool.
// Actual client connections are created lazily when first requested.
func NewManager(config *config.Redis, logger *zap.Logger) *Manager {
	return &Manager{
		clients: make(map[int]rueidis.Client),
		config:  config,
		logger:  logger.Named("redis"),
	}
}

// GetClient retrieves or creates a Redis client for the specified database index.
func (m *Manager) GetClient(dbIndex int) (rueidis.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, exists := m.clients[dbIndex]; exists {
		return client, nil
	}

	timeout := defaultCommandTimeout
	if m.config.CommandTimeout > 0 {
		timeout = time.Duration(m.config.CommandTimeout) * time.Millisecond
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:         []string{fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)},
		Username:            m.config.Username,
		Password:            m.config.Password,
		SelectDB:            dbIndex,
		ClientName:          "tripnest",
		ConnWriteTimeout:    timeout,
		DisableCache:        m.config.DisableClientCache,
		ReadBufferEachConn:  1 << 20,
		WriteBufferEachConn: 1 << 20,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client for DB %d: %w", dbIndex, err)
	}

	m.clients[dbIndex] = client
	m.logger.Info("Created new Redis client", zap.Int("dbIndex", dbIndex))

	return client, nil
}

// Close gracefully shuts down all active Redis clients in the pool.
// Safe to call multiple times as it cleans up only existing connections.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for dbIndex, client := range m.clients {
		client.Close()
		delete(m.clients, dbIndex)
		m.logger.Info("Closed Redis client", zap.Int("dbIndex", dbIndex))
	}
}
