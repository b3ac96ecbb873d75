package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/tripnest/tripnest/internal/setup/config"
	"github.com/tripnest/tripnest/internal/setup/telemetry/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceType represents the type of service being initialized.
type ServiceType int

const (
	ServiceWorker ServiceType = iota
	ServiceAdmin
	ServiceMigrate
)

// String returns the component name used for log directories and telemetry.
func (s ServiceType) String() string {
	switch s {
	case ServiceWorker:
		return "worker"
	case ServiceAdmin:
		return "admin"
	case ServiceMigrate:
		return "db"
	default:
		return "unknown"
	}
}

// Manager handles the creation and management of log files and directories.
// Every run writes into its own timestamped session directory.
type Manager struct {
	instanceID        string   // Unique identifier for this program instance
	componentName     string   // Component identifier for this instance
	currentSessionDir string   // Path to the current session's log directory
	logDir            string   // Base directory for all logs
	level             string   // Logging level (debug, info, warn, error)
	console           bool     // Mirror logs to stderr
	exportErrors      bool     // Forward errors to OpenTelemetry
	maxLogsToKeep     int      // Maximum number of log sessions to retain
	maxLogLines       int      // Maximum number of lines to keep in each log file
	files             []*logger.CappedFile
}

// NewManager creates a new Manager instance. workerID distinguishes
// multiple workers sharing one log directory.
func NewManager(
	serviceType ServiceType, logDir string, debugCfg *config.Debug, exportErrors bool, workerID string,
) *Manager {
	componentName := serviceType.String()
	if workerID != "" {
		componentName = fmt.Sprintf("%s_%s", componentName, workerID)
	}

	return &Manager{
		instanceID:    uuid.New().String(),
		componentName: componentName,
		logDir:        filepath.Join(logDir, componentName),
		level:         debugCfg.LogLevel,
		console:       debugCfg.Console,
		exportErrors:  exportErrors,
		maxLogsToKeep: debugCfg.MaxLogsToKeep,
		maxLogLines:   debugCfg.MaxLogLines,
	}
}

// GetLoggers initializes the main and database loggers.
// Returns separate loggers for main application and database logging.
func (lm *Manager) GetLoggers() (*zap.Logger, *zap.Logger, error) {
	if err := lm.setupLogDirectories(); err != nil {
		return nil, nil, err
	}

	mainLogger, err := lm.initLogger(filepath.Join(lm.currentSessionDir, "main.log"), lm.console)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize main logger: %w", err)
	}

	// Query logs are too noisy for the console
	dbLogger, err := lm.initLogger(filepath.Join(lm.currentSessionDir, "database.log"), false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database logger: %w", err)
	}

	mainLogger = mainLogger.With(zap.String("instanceID", lm.instanceID))

	return mainLogger, dbLogger, nil
}

// GetInstanceID returns the unique instance identifier for this program run.
// This ID is used for both logging and worker status correlation.
func (lm *Manager) GetInstanceID() string {
	return lm.instanceID
}

// GetCurrentSessionDir returns the current session directory.
func (lm *Manager) GetCurrentSessionDir() string {
	return lm.currentSessionDir
}

// Stop closes every log file opened by the manager.
func (lm *Manager) Stop() {
	for _, file := range lm.files {
		_ = file.Sync()
		_ = file.Close()
	}
	lm.files = nil
}

// setupLogDirectories creates and manages the log directory structure.
// It ensures the base directory exists, rotates old logs, and creates a new session directory.
func (lm *Manager) setupLogDirectories() error {
	if err := os.MkdirAll(lm.logDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	if err := lm.rotateLogSessions(); err != nil {
		return fmt.Errorf("failed to rotate log sessions: %w", err)
	}

	lm.currentSessionDir = filepath.Join(lm.logDir, time.Now().Format("2006-01-02_15-04-05"))
	if err := os.MkdirAll(lm.currentSessionDir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	return nil
}

// initLogger creates a zap logger writing to path, and optionally to stderr
// and the OpenTelemetry error core.
func (lm *Manager) initLogger(path string, console bool) (*zap.Logger, error) {
	zapLevel, err := zapcore.ParseLevel(lm.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	file, err := logger.OpenCappedFile(path, lm.maxLogLines)
	if err != nil {
		return nil, err
	}
	lm.files = append(lm.files, file)

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(file), zapLevel),
	}

	if console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), zapLevel,
		))
	}

	if lm.exportErrors {
		cores = append(cores, NewCore(zapcore.ErrorLevel, lm.componentName))
	}

	return zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).Named(lm.componentName), nil
}

// rotateLogSessions maintains the log directory by removing old sessions.
// Keeps only the most recent sessions based on maxLogsToKeep, leaving room
// for the session about to be created.
func (lm *Manager) rotateLogSessions() error {
	sessions, err := filepath.Glob(filepath.Join(lm.logDir, "*"))
	if err != nil {
		return err
	}

	keep := max(lm.maxLogsToKeep-1, 0)
	if len(sessions) <= keep {
		return nil
	}

	// Session names are timestamps so lexical order is chronological
	slices.Sort(sessions)

	for _, session := range sessions[:len(sessions)-keep] {
		if err := os.RemoveAll(session); err != nil {
			return err
		}
	}

	return nil
}
