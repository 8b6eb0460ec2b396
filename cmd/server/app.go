package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/fablery/fable-api/internal/config"
	"github.com/fablery/fable-api/internal/jobs"
	"github.com/fablery/fable-api/internal/platform/postgres"
	"github.com/fablery/fable-api/internal/ratelimit"
	"github.com/fablery/fable-api/internal/service"
	"github.com/fablery/fable-api/internal/service/auth"
	"github.com/fablery/fable-api/internal/stream"
)

// application holds the fully wired dependency graph for the server. All
// construction happens in newApplication; handlers receive interfaces only.
type application struct {
	config *config.Config
	logger *slog.Logger

	db *sql.DB

	jwtService   auth.JWTService
	storyService service.StoryService
	limits       service.Limits
}

// newApplication constructs every component from configuration and the open
// database handle.
func newApplication(cfg *config.Config, db *sql.DB, log *slog.Logger) (*application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	taskStore := postgres.NewPostgresTaskStore(db, log)
	mappingStore := postgres.NewPostgresJobMappingStore(db, log)
	storyStore := postgres.NewPostgresStoryStore(db, log)
	rateStore := postgres.NewPostgresRateWindowStore(db, log)
	auditStore := postgres.NewPostgresAuditStore(db, log)

	limiter := ratelimit.NewLimiter(
		rateStore,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
		log,
	)

	jobClient := jobs.NewHTTPClient(cfg.Generation, log)

	limits := service.Limits{
		SubmitCeiling: cfg.RateLimit.SubmitCeiling,
		StatusCeiling: cfg.RateLimit.StatusCeiling,
	}

	storyService, err := service.NewStoryService(
		taskStore,
		mappingStore,
		storyStore,
		auditStore,
		limiter,
		jobClient,
		stream.NewReconciler(log),
		limits,
		time.Duration(cfg.Generation.StreamTimeoutSeconds)*time.Second,
		log,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create story service: %w", err)
	}

	return &application{
		config:       cfg,
		logger:       log,
		db:           db,
		jwtService:   jwtService,
		storyService: storyService,
		limits:       limits,
	}, nil
}
