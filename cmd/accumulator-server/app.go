package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/benefits/accumulator/internal/config"
	"github.com/benefits/accumulator/internal/domain/ingest"
	"github.com/benefits/accumulator/internal/domain/ledger"
	"github.com/benefits/accumulator/internal/domain/member"
	"github.com/benefits/accumulator/internal/domain/plan"
	"github.com/benefits/accumulator/internal/domain/query"
	"github.com/benefits/accumulator/internal/domain/snapshot"
	"github.com/benefits/accumulator/internal/domain/tenancy"
	"github.com/benefits/accumulator/internal/platform/audit"
	"github.com/benefits/accumulator/internal/platform/auth"
	"github.com/benefits/accumulator/internal/platform/db"
	"github.com/benefits/accumulator/internal/platform/metrics"
	"github.com/benefits/accumulator/internal/platform/middleware"
)

// app holds the wired stores and services shared by every command.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	pool     *pgxpool.Pool
	redis    *redis.Client
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	services ingest.Services
	facade   *query.Facade
	checks   map[string]db.Pinger
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		checks:   map[string]db.Pinger{},
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.NewMetrics(a.registry)

	var (
		plans   plan.Store
		members member.Registry
		claims  ledger.Ledger
		sink    audit.Sink
	)
	if cfg.UsesPostgres() {
		pool, err := db.NewPool(ctx, db.PoolOptions{
			URL:              cfg.DatabaseURL,
			MaxConns:         cfg.DBMaxConns,
			MinConns:         cfg.DBMinConns,
			StatementTimeout: cfg.QueryTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		a.pool = pool
		a.checks["database"] = pool
		plans = plan.NewStorePG(pool)
		members = member.NewRegistryPG(pool)
		claims = ledger.NewLedgerPG(pool)
		sink = audit.NewPGSink(pool)
		logger.Info().Msg("connected to database")
	} else {
		plans = plan.NewMemoryStore()
		members = member.NewMemoryRegistry()
		claims = ledger.NewMemoryLedger()
		sink = audit.NewMemorySink()
		logger.Warn().Msg("using in-memory stores; data is lost on restart")
	}

	if cfg.NeedsRedis() {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opt)
		a.redis = client
		a.checks["redis"] = db.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	var snapshots snapshot.Store = snapshot.NewMemoryStore()
	if cfg.CacheBackend == config.BackendRedis {
		snapshots = snapshot.NewRedisStore(a.redis, cfg.CacheTTL)
	}

	boundary := tenancy.NewBoundary(logger, a.metrics)
	plans = tenancy.GuardPlans(plans, boundary)
	members = tenancy.GuardMembers(members, boundary)
	claims = tenancy.GuardLedger(claims, boundary)

	a.services = ingest.Services{
		Plans:   plan.NewService(plans, logger),
		Members: member.NewService(members, logger),
		Claims:  ledger.NewService(claims, logger, a.metrics),
	}
	cache := snapshot.NewCache(snapshots, cfg.ReplayLockTimeout, logger, a.metrics)
	a.facade = query.NewFacade(query.Deps{
		Plans:    plans,
		Members:  members,
		Claims:   claims,
		Cache:    tenancy.GuardCache(cache, boundary),
		Boundary: boundary,
		Audit:    audit.NewRecorder(sink, logger, a.metrics),
	})
	a.services.Claims.OnAppend(func(ctx context.Context, e *ledger.ClaimEvent) {
		if err := a.facade.ClaimRecorded(ctx, e); err != nil {
			logger.Warn().Err(err).Str("tenant_id", e.TenantID).Str("claim_id", e.ClaimID).Msg("snapshot invalidation failed")
		}
	})
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// newServer builds the HTTP surface. Only /api/v1 requires authentication.
func (a *app) newServer() *echo.Echo {
	cfg := a.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.BulkBodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.TenantHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(a.pool, a.checks))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware(cfg.DefaultTenant))
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.RequestTimeout(cfg.QueryTimeout))

	plan.NewHandler(a.services.Plans).RegisterRoutes(apiV1)
	member.NewHandler(a.services.Members).RegisterRoutes(apiV1)
	ledger.NewHandler(a.services.Claims).RegisterRoutes(apiV1)
	ingest.NewHandler(a.services).RegisterRoutes(apiV1)
	query.NewHandler(a.facade).RegisterRoutes(apiV1)

	return e
}

// startConsumer runs the stream consumer until ctx ends. It does nothing
// when INGEST_STREAM is unset.
func (a *app) startConsumer(ctx context.Context) {
	if a.cfg.IngestStream == "" {
		return
	}
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "accumulator"
	}
	consumer := ingest.NewConsumer(a.redis, a.cfg.IngestStream, a.cfg.IngestGroup, name, a.services, a.logger, a.metrics)
	go func() {
		if err := consumer.Run(ctx); err != nil {
			a.logger.Error().Err(err).Msg("ingest consumer stopped")
		}
	}()
}
