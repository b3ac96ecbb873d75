package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// RepositoryVersion is the repository version tag for config file references.
const RepositoryVersion = "v0.4.0"

// Current version of the config file.
const (
	CurrentCommonVersion = 1
	CurrentWorkerVersion = 1
)

// Config represents the entire application configuration.
type Config struct {
	Common CommonConfig
	Worker WorkerConfig
}

// CommonConfig contains configuration shared between the worker and admin tools.
type CommonConfig struct {
	// Version of the common config.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Cache      Cache      `koanf:"cache"`
	Counter    Counter    `koanf:"counter"`
	Telemetry  Telemetry  `koanf:"telemetry"`
}

// WorkerConfig contains reconciliation worker configuration.
type WorkerConfig struct {
	// Version of the worker config.
	Version int `koanf:"version"`
	// Startup delay in milliseconds.
	StartupDelay int `koanf:"startup_delay"`
	// Interval between pushes of fast counters into the summary table, in seconds.
	PushInterval int `koanf:"push_interval"`
	// Pull like counters from durable storage once on startup.
	PullOnStart bool `koanf:"pull_on_start"`
	// Number of subjects written per summary upsert.
	ChunkSize int `koanf:"chunk_size"`
	// Maximum number of chunks written concurrently.
	Concurrency int `koanf:"concurrency"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
	// Maximum log sessions to keep.
	MaxLogsToKeep int `koanf:"max_logs_to_keep"`
	// Maximum lines kept in each log file, 0 for no limit.
	MaxLogLines int `koanf:"max_log_lines"`
	// Also write logs to stderr.
	Console bool `koanf:"console"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
	// Per-command timeout in milliseconds.
	CommandTimeout int `koanf:"command_timeout"`
	// Disable rueidis client-side caching (required by servers without CLIENT TRACKING).
	DisableClientCache bool `koanf:"disable_client_cache"`
}

// Cache overrides the default TTL of each view cache. Values are in seconds;
// zero keeps the built-in default.
type Cache struct {
	FeedTTL        int `koanf:"feed_ttl"`
	PostDetailTTL  int `koanf:"post_detail_ttl"`
	UserProfileTTL int `koanf:"user_profile_ttl"`
	SearchTTL      int `koanf:"search_ttl"`
	CommentsTTL    int `koanf:"comments_ttl"`
	TripListTTL    int `koanf:"trip_list_ttl"`
}

// Counter contains like/view counter configuration.
type Counter struct {
	// View dedup window in hours.
	ViewDedupWindow int `koanf:"view_dedup_window"`
}

// Telemetry contains OpenTelemetry export configuration.
type Telemetry struct {
	// Uptrace DSN, telemetry export is disabled when empty.
	UptraceDSN string `koanf:"uptrace_dsn"`
	// Deployment environment reported with every signal.
	Environment string `koanf:"environment"`
}

// Seconds converts a seconds setting into a duration, using fallback when unset.
func Seconds(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}

// LoadConfig loads the configuration from the specified file.
// Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".tripnest",
		homeDir + "/.tripnest/config",
		"/etc/tripnest/config",
		"/app/config",
		"config",
		".",
	}

	// Each file is loaded on its own since both carry a version key
	var (
		config         Config
		usedConfigPath string
	)

	configFiles := []struct {
		name   string
		target any
	}{
		{"common", &config.Common},
		{"worker", &config.Worker},
	}
	for _, configFile := range configFiles {
		k := koanf.New(".")
		configLoaded := false

		for _, path := range configPaths {
			configPath := fmt.Sprintf("%s/%s.toml", path, configFile.name)
			if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
				configLoaded = true

				if usedConfigPath == "" {
					usedConfigPath = path
				}

				break
			}
		}

		if !configLoaded {
			return nil, "", fmt.Errorf("%w: %s.toml", ErrConfigFileNotFound, configFile.name)
		}

		if err := k.Unmarshal("", configFile.target); err != nil {
			return nil, "", fmt.Errorf("error unmarshaling %s.toml: %w", configFile.name, err)
		}
	}

	// Check versions for each config file
	if err := checkConfigVersion("common", config.Common.Version, CurrentCommonVersion); err != nil {
		return nil, "", err
	}

	if err := checkConfigVersion("worker", config.Worker.Version, CurrentWorkerVersion); err != nil {
		return nil, "", err
	}

	return &config, usedConfigPath, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(name string, current, expected int) error {
	if current == 0 {
		return fmt.Errorf("%w: %s.toml", ErrConfigVersionMissing, name)
	}

	if current != expected {
		return fmt.Errorf(
			"%w: %s.toml (got: %d, expected: %d)\n"+
				"Please update your config file from: https://github.com/tripnest/tripnest/tree/%s/config/%s.toml",
			ErrConfigVersionMismatch,
			name,
			current,
			expected,
			RepositoryVersion,
			name,
		)
	}

	return nil
}
