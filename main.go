package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/ai"
	"github.com/benchlane/benchlane-engine/pkg/blob"
	"github.com/benchlane/benchlane-engine/pkg/config"
	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/handlers"
	"github.com/benchlane/benchlane-engine/pkg/ingestion"
	"github.com/benchlane/benchlane-engine/pkg/queue"
	"github.com/benchlane/benchlane-engine/pkg/repositories"
	"github.com/benchlane/benchlane-engine/pkg/resilience"
	"github.com/benchlane/benchlane-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck // flush on exit is best-effort

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Engine exited with error", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting benchlane-engine",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("database", fmt.Sprintf("%s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)),
		zap.String("redis", fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)))

	// Migrations run over database/sql; the pool below is pgx-native.
	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	if err := database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if err := migrationDB.Close(); err != nil {
		logger.Warn("Failed to close migration connection", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	cache, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	if cache == nil {
		return fmt.Errorf("redis is required for queues, rate limits, and circuit breakers")
	}
	defer cache.Close() //nolint:errcheck // teardown

	// One breaker per outbound collaborator, persisted in Redis so state
	// survives restarts and is shared across instances.
	blobBreaker := resilience.NewCircuitBreaker(cache, "blob", "file_storage", logger)
	embedBreaker := resilience.NewCircuitBreaker(cache, "embeddings", "ai_service", logger)
	llmBreaker := resilience.NewCircuitBreaker(cache, "summariser", "ai_service", logger)

	storage, err := blob.NewStorage(&cfg.Blob, blobBreaker, logger)
	if err != nil {
		return fmt.Errorf("create blob storage: %w", err)
	}

	// Repositories carry no state; tenant scope comes from context.
	auditRepo := repositories.NewAuditRepository()
	searchRepo := repositories.NewSearchRepository()
	consultantRepo := repositories.NewConsultantRepository()
	requirementRepo := repositories.NewRequirementRepository()
	skillRepo := repositories.NewSkillRepository()
	documentRepo := repositories.NewDocumentRepository()
	ingestionRepo := repositories.NewIngestionRepository()
	piiRepo := repositories.NewPIIRepository()
	identityRepo := repositories.NewIdentityRepository()
	matchRepo := repositories.NewMatchRepository()
	analyticsRepo := repositories.NewAnalyticsRepository()

	scopes := database.NewTenantScopeProvider(db)
	jobs := queue.NewQueue(cache, &cfg.Queue, logger)
	limiter := resilience.NewRateLimiter(cache, logger)

	embedder := ai.NewEmbedder(&cfg.Embedding, embedBreaker, logger)
	summarizer := ai.NewSummarizer(&cfg.Summariser, llmBreaker, logger)
	parser := ai.NewRequirementParser(&cfg.Summariser, llmBreaker, logger)
	pool := ai.NewWorkerPool(ai.DefaultWorkerPoolConfig(), logger)

	extractor := ingestion.NewExtractor(&ingestion.PlainTextExtractor{}, nil, logger)
	redactor, err := ingestion.NewRedactor(&cfg.PII, nil, logger)
	if err != nil {
		return fmt.Errorf("create redactor: %w", err)
	}

	auditService := services.NewAuditService(auditRepo, logger)
	indexService := services.NewIndexService(searchRepo, consultantRepo, requirementRepo, embedder, logger)
	searchService := services.NewSearchService(searchRepo, embedder, &cfg.Search, logger)
	matchService := services.NewMatchService(matchRepo, consultantRepo, requirementRepo,
		searchService, summarizer, pool, auditService, &cfg.Match, logger)
	evaluationService := services.NewEvaluationService(matchRepo, analyticsRepo, auditService, &cfg.Eval, logger)
	documentService := services.NewDocumentService(documentRepo, logger)
	dedupeService := services.NewDedupeService(identityRepo, logger)
	resumeService := services.NewResumeIngestionService(documentRepo, consultantRepo, skillRepo,
		identityRepo, piiRepo, storage, extractor, redactor, jobs, scopes, indexService, auditService, logger)
	requirementService := services.NewRequirementIngestionService(ingestionRepo, requirementRepo,
		skillRepo, parser, jobs, scopes, indexService, auditService, logger)

	workers := queue.NewWorkers(jobs, logger)
	workers.Register(queue.TypeResumeIngestion, resumeService.HandleJob)
	workers.Register(queue.TypeRequirementIngestion, requirementService.HandleJob)
	workers.Register(queue.TypeIndexRefresh, services.NewIndexRefreshHandler(indexService, scopes))
	workers.Register(queue.TypeEvaluation, services.NewEvaluationHandler(evaluationService, scopes))
	workers.Start(ctx)
	defer workers.Stop()

	poller, err := services.NewEmailPoller(&cfg.IMAP, resumeService, requirementService, scopes, logger)
	if err != nil {
		return fmt.Errorf("create email poller: %w", err)
	}
	poller.Start(ctx)
	defer poller.Stop()

	mux := http.NewServeMux()

	// The fronting gateway authenticates and stamps the tenant header; the
	// middleware still cross-checks it against the path tenant.
	resolver := database.TenantResolverFunc(func(r *http.Request) (uuid.UUID, error) {
		return uuid.Parse(r.Header.Get("X-Tenant-ID"))
	})
	pathTenant := func(r *http.Request) string { return r.PathValue("tid") }
	tenantMiddleware := func(next http.HandlerFunc) http.HandlerFunc {
		return handlers.RateLimit(limiter, logger)(
			handlers.WithActor(
				database.WithTenantContext(db, resolver, pathTenant, logger)(next)))
	}

	handlers.NewHealthHandler(cfg, db, cache, logger).RegisterRoutes(mux)
	handlers.NewIngestionHandler(resumeService, requirementService, dedupeService, documentService, storage, logger).RegisterRoutes(mux, tenantMiddleware)
	handlers.NewSearchHandler(searchService, logger).RegisterRoutes(mux, tenantMiddleware)
	handlers.NewMatchHandler(matchService, logger).RegisterRoutes(mux, tenantMiddleware)
	handlers.NewAnalyticsHandler(evaluationService, jobs, logger).RegisterRoutes(mux, tenantMiddleware)
	handlers.NewAuditHandler(auditService, logger).RegisterRoutes(mux, tenantMiddleware)
	handlers.NewOpsHandler(jobs, logger).RegisterRoutes(mux, tenantMiddleware)

	server := &http.Server{
		Addr:              cfg.BindAddr + ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	return nil
}
