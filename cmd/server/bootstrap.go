package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rdychk/rdychk/internal/config"
	"github.com/rdychk/rdychk/internal/handlers"
	"github.com/rdychk/rdychk/internal/metrics"
	"github.com/rdychk/rdychk/internal/middleware"
	"github.com/rdychk/rdychk/internal/models"
	"github.com/rdychk/rdychk/internal/services"
	"github.com/rdychk/rdychk/internal/session"
	"github.com/rdychk/rdychk/internal/utils"
	"github.com/rdychk/rdychk/pkg/logger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// appServices holds all initialized services and handlers needed by the application.
type appServices struct {
	cfg             *config.Config
	db              *gorm.DB
	sessions        *session.Manager
	authz           *services.AuthzService
	notifier        services.Notifier
	taskQueue       services.TaskQueue
	worker          *services.Worker
	previewCleanup  *services.PreviewCleanup
	limiter         *middleware.RateLimiter
	groupHandler    *handlers.GroupHandler
	memberHandler   *handlers.MemberHandler
	locationHandler *handlers.LocationHandler
	previewHandler  *handlers.PreviewHandler
	healthHandler   *handlers.HealthHandler
}

// bootstrap initializes all application dependencies: database, services, schedulers.
func bootstrap(cfg *config.Config) (*appServices, error) {
	secret, insecure, err := cfg.ResolveSessionSecret()
	if err != nil {
		return nil, err
	}
	if insecure {
		logger.Warn().Msg("SESSION_SECRET is not set; using the built-in development secret. Never run like this in production.")
	}
	utils.SetJWTSecret(cfg.Auth.JWTSecret)

	if err := models.InitDB(&cfg.Database); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	db := models.GetDB()
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := metrics.RegisterDBStats(sqlDB); err != nil {
			logger.Warn().Err(err).Msg("Failed to register database metrics")
		}
	}

	notifier := newNotifier(&cfg.Redis)
	authz := services.NewAuthzService(db)
	members := services.NewMemberService(db, authz, notifier)
	groups := services.NewGroupService(db, notifier)
	previews := services.NewLinkPreviewService(db, services.NewURLGuard(nil), cfg.Preview)

	// Initialize task queue (uses Redis if enabled, otherwise sync mode)
	taskQueue := services.NewTaskQueue(cfg)
	if syncQueue, ok := taskQueue.(*services.SyncQueue); ok {
		syncQueue.SetProcessor(previews.Warm)
	}
	locations := services.NewLocationService(db, authz, notifier, taskQueue, cfg.Policy.LocationUpdate)

	// Start async worker if Redis is enabled
	var worker *services.Worker
	if taskQueue.IsAsync() {
		worker = services.NewWorker(&cfg.Redis)
		worker.SetProcessor(previews.Warm)
		if err := worker.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start preview worker")
			worker = nil
		}
	}

	previewCleanup := services.NewPreviewCleanup(previews, cfg.Preview.CleanupSpec, cfg.Preview.Retention)
	if err := previewCleanup.StartScheduler(); err != nil {
		return nil, fmt.Errorf("schedule preview cleanup: %w", err)
	}

	sessions := session.NewManager(
		session.NewSigner(secret),
		cfg.IsProduction(),
		time.Duration(cfg.Session.MaxAgeDays)*24*time.Hour,
	)

	return &appServices{
		cfg:             cfg,
		db:              db,
		sessions:        sessions,
		authz:           authz,
		notifier:        notifier,
		taskQueue:       taskQueue,
		worker:          worker,
		previewCleanup:  previewCleanup,
		limiter:         middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
		groupHandler:    handlers.NewGroupHandler(groups, members, authz, sessions),
		memberHandler:   handlers.NewMemberHandler(members, groups, sessions),
		locationHandler: handlers.NewLocationHandler(locations),
		previewHandler:  handlers.NewPreviewHandler(previews),
		healthHandler:   handlers.NewHealthHandler(db, taskQueue),
	}, nil
}

// newNotifier publishes change events on Redis when it is enabled and
// answering, and only logs them otherwise.
func newNotifier(cfg *config.RedisConfig) services.Notifier {
	if !cfg.Enabled {
		return services.LogNotifier{}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("Redis unavailable, change notifications will only be logged")
		client.Close()
		return services.LogNotifier{}
	}
	logger.Info().Str("addr", cfg.Addr).Msg("Publishing change notifications to Redis")
	return services.NewRedisNotifier(client)
}

// shutdown gracefully stops all services.
func (s *appServices) shutdown() {
	s.previewCleanup.StopScheduler()
	s.limiter.Stop()
	logger.Info().Msg("All schedulers stopped")

	if s.worker != nil {
		s.worker.Stop()
	}
	if s.taskQueue != nil {
		s.taskQueue.Close()
	}
	if s.notifier != nil {
		s.notifier.Close()
	}
	if sqlDB, err := s.db.DB(); err == nil {
		sqlDB.Close()
	}
}
