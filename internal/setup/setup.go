package setup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/rueidis"
	"github.com/tripnest/tripnest/internal/cache"
	"github.com/tripnest/tripnest/internal/counter"
	"github.com/tripnest/tripnest/internal/database"
	"github.com/tripnest/tripnest/internal/database/migrations"
	"github.com/tripnest/tripnest/internal/database/models"
	"github.com/tripnest/tripnest/internal/database/service"
	"github.com/tripnest/tripnest/internal/feed"
	"github.com/tripnest/tripnest/internal/invalidation"
	"github.com/tripnest/tripnest/internal/redis"
	"github.com/tripnest/tripnest/internal/setup/config"
	"github.com/tripnest/tripnest/internal/setup/telemetry"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// ErrPendingMigrations is returned when the schema is behind and automatic
// migration was not requested.
var ErrPendingMigrations = errors.New("database migrations are pending")

var (
	_ counter.LikeRepository    = (*models.LikeModel)(nil)
	_ counter.SummaryRepository = (*models.CounterModel)(nil)
	_ feed.Source               = (*service.FeedService)(nil)
)

// Options selects how the application is bootstrapped.
type Options struct {
	ServiceType telemetry.ServiceType
	LogDir      string
	// WorkerID distinguishes workers sharing a log directory.
	WorkerID string
	// AutoMigrate applies pending migrations instead of failing.
	AutoMigrate bool
}

// App bundles all core dependencies and services needed by the application.
// Each field represents a major subsystem that needs initialization and cleanup.
type App struct {
	Config        *config.Config     // Application configuration
	Logger        *zap.Logger        // Main application logger
	DBLogger      *zap.Logger        // Database-specific logger
	DB            database.Client    // Database connection pool
	RedisManager  *redis.Manager     // Redis connection manager
	CacheClient   rueidis.Client     // Redis client for view caches
	CounterClient rueidis.Client     // Redis client for counters and view markers
	StatusClient  rueidis.Client     // Redis client for worker status reporting
	Caches        *cache.Services    // Domain view caches
	Registry      *cache.Registry    // Admin access to view cache namespaces
	Counters      *counter.Service   // Like and view counters
	Bus           *invalidation.Bus  // Mutation to eviction policy
	Feed          *feed.Aggregator   // Feed page assembly
	LogManager    *telemetry.Manager // Log management system
	shutdownOTel  func(context.Context) error
}

// InitializeApp bootstraps all application dependencies in the correct order,
// ensuring each component has its required dependencies available.
func InitializeApp(ctx context.Context, opts Options) (*App, error) {
	// Load app configuration
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Telemetry export comes first so instruments bind to the real providers
	shutdownOTel := telemetry.ConfigureExport(&cfg.Common.Telemetry, opts.ServiceType, config.RepositoryVersion)

	// Logging system is initialized next to capture setup issues
	logManager := telemetry.NewManager(
		opts.ServiceType, opts.LogDir, &cfg.Common.Debug, cfg.Common.Telemetry.UptraceDSN != "", opts.WorkerID,
	)

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	// Initialize database with migration check
	db, err := checkAndRunMigrations(ctx, &cfg.Common.PostgreSQL, dbLogger, opts.AutoMigrate)
	if err != nil {
		logManager.Stop()
		return nil, err
	}

	// Redis manager provides connection pools for each database index
	redisManager := redis.NewManager(&cfg.Common.Redis, logger)

	app := &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger.Named("database"),
		DB:           db,
		RedisManager: redisManager,
		LogManager:   logManager,
		shutdownOTel: shutdownOTel,
	}

	if err := app.initServices(); err != nil {
		app.Cleanup(ctx)
		return nil, err
	}

	return app, nil
}

// initServices builds the cache, counter, invalidation and feed layers.
func (s *App) initServices() error {
	var err error

	s.CacheClient, err = s.RedisManager.GetClient(redis.ViewCacheDBIndex)
	if err != nil {
		return err
	}

	s.CounterClient, err = s.RedisManager.GetClient(redis.CounterDBIndex)
	if err != nil {
		return err
	}

	s.StatusClient, err = s.RedisManager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		return err
	}

	cacheMetrics, err := cache.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create cache metrics: %w", err)
	}

	counterMetrics, err := counter.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to create counter metrics: %w", err)
	}

	store := cache.NewRedisStore(s.CacheClient, s.Logger)
	s.Caches = cache.NewServices(store, cacheTTLs(&s.Config.Common.Cache), cacheMetrics, s.Logger)
	s.Registry = cache.NewRegistry(s.Caches.Namespaces()...)
	s.Bus = invalidation.NewDefaultBus(s.Caches, s.Logger)

	models := s.DB.Model()
	s.Counters = counter.NewService(s.CounterClient, models.Like(), models.Counter(), counter.Options{
		ViewDedupWindow: time.Duration(s.Config.Common.Counter.ViewDedupWindow) * time.Hour,
		ChunkSize:       s.Config.Worker.ChunkSize,
		Concurrency:     s.Config.Worker.Concurrency,
		OnLikeToggled: func(ctx context.Context, postID int64) {
			s.Bus.Fire(ctx, invalidation.Event{Type: invalidation.LikeToggled, PostID: postID})
		},
	}, counterMetrics, s.Logger)

	s.Feed = feed.NewAggregator(s.DB.Service().Feed(), s.Counters, s.Caches.Feed, s.Logger)

	return nil
}

// Cleanup ensures graceful shutdown of all components in reverse initialization order.
// Logs but does not fail on cleanup errors to ensure all components get cleanup attempts.
func (s *App) Cleanup(ctx context.Context) {
	// Sync buffered logs before shutdown
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	// Close database connections
	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Close Redis connections after the database as counters may still flush
	s.RedisManager.Close()

	// Flush telemetry before the log files close
	if err := s.shutdownOTel(ctx); err != nil {
		log.Printf("Failed to flush telemetry: %v", err)
	}

	s.LogManager.Stop()
}

// cacheTTLs applies the configured overrides to the default expiry policy.
func cacheTTLs(cfg *config.Cache) cache.TTLs {
	ttls := cache.DefaultTTLs()
	ttls.Feed = config.Seconds(cfg.FeedTTL, ttls.Feed)
	ttls.PostDetail = config.Seconds(cfg.PostDetailTTL, ttls.PostDetail)
	ttls.UserProfile = config.Seconds(cfg.UserProfileTTL, ttls.UserProfile)
	ttls.Search = config.Seconds(cfg.SearchTTL, ttls.Search)
	ttls.Comments = config.Seconds(cfg.CommentsTTL, ttls.Comments)
	ttls.TripList = config.Seconds(cfg.TripListTTL, ttls.TripList)
	return ttls
}

// checkAndRunMigrations connects to the database and makes sure the schema is current.
func checkAndRunMigrations(
	ctx context.Context, cfg *config.PostgreSQL, dbLogger *zap.Logger, autoMigrate bool,
) (database.Client, error) {
	db, err := database.NewConnection(ctx, cfg, dbLogger, false)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(db.DB(), migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	unapplied := ms.Unapplied()
	if len(unapplied) == 0 {
		return db, nil
	}

	if !autoMigrate {
		db.Close()
		return nil, fmt.Errorf("%w: %d unapplied, run the db migrate command", ErrPendingMigrations, len(unapplied))
	}

	if _, err := database.Migrate(ctx, migrator, dbLogger); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
