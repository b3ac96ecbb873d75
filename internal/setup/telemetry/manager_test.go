package telemetry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripnest/tripnest/internal/setup/config"
	"github.com/tripnest/tripnest/internal/setup/telemetry"
)

func TestGetLoggersWritesSessionFiles(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()
	manager := telemetry.NewManager(telemetry.ServiceWorker, logDir, &config.Debug{
		LogLevel:      "info",
		MaxLogsToKeep: 3,
		MaxLogLines:   100,
	}, false, "2")
	t.Cleanup(manager.Stop)

	mainLogger, dbLogger, err := manager.GetLoggers()
	require.NoError(t, err)

	mainLogger.Info("Worker started")
	dbLogger.Debug("Query executed")
	require.NoError(t, mainLogger.Sync())

	sessionDir := manager.GetCurrentSessionDir()
	assert.Equal(t, filepath.Join(logDir, "worker_2"), filepath.Dir(sessionDir))

	data, err := os.ReadFile(filepath.Join(sessionDir, "main.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Worker started")
	assert.Contains(t, string(data), manager.GetInstanceID())

	data, err = os.ReadFile(filepath.Join(sessionDir, "database.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Query executed", "debug entries are below the configured level")
}

func TestOldSessionsAreRotated(t *testing.T) {
	t.Parallel()

	logDir := t.TempDir()
	componentDir := filepath.Join(logDir, "admin")
	for _, name := range []string{"2025-01-01_00-00-00", "2025-01-02_00-00-00", "2025-01-03_00-00-00"} {
		require.NoError(t, os.MkdirAll(filepath.Join(componentDir, name), 0o755))
	}

	manager := telemetry.NewManager(telemetry.ServiceAdmin, logDir, &config.Debug{
		LogLevel:      "info",
		MaxLogsToKeep: 2,
	}, false, "")
	t.Cleanup(manager.Stop)

	_, _, err := manager.GetLoggers()
	require.NoError(t, err)

	entries, err := os.ReadDir(componentDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2025-01-03_00-00-00", entries[0].Name())
}

func TestGetLoggersRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	manager := telemetry.NewManager(telemetry.ServiceMigrate, t.TempDir(), &config.Debug{LogLevel: "loud"}, false, "")
	t.Cleanup(manager.Stop)

	_, _, err := manager.GetLoggers()
	require.Error(t, err)
}
