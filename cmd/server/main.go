package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"custodian/internal/audit"
	audithandler "custodian/internal/audit/handler"
	"custodian/internal/audit/relay"
	auditmemory "custodian/internal/audit/store/memory"
	auditpostgres "custodian/internal/audit/store/postgres"
	"custodian/internal/capability/drive"
	"custodian/internal/execution"
	executionhandler "custodian/internal/execution/handler"
	executionmetrics "custodian/internal/execution/metrics"
	jwttoken "custodian/internal/jwt_token"
	"custodian/internal/platform/config"
	"custodian/internal/platform/httpserver"
	"custodian/internal/platform/logger"
	platformmetrics "custodian/internal/platform/metrics"
	platformredis "custodian/internal/platform/redis"
	"custodian/internal/workflow"
	workflowhandler "custodian/internal/workflow/handler"
	workflowmetrics "custodian/internal/workflow/metrics"
	"custodian/internal/workflow/service"
	"custodian/internal/workflow/store/cache"
	workflowmemory "custodian/internal/workflow/store/memory"
	workflowpostgres "custodian/internal/workflow/store/postgres"
	"custodian/pkg/platform/middleware/auth"
	"custodian/pkg/platform/middleware/request"
	"custodian/pkg/platform/middleware/requesttime"
)

const stalledRecoveryInterval = time.Minute
const stalledAfter = 10 * time.Minute

// main wires dependencies and owns the process lifecycle. Business logic
// lives in the internal feature packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage. Without DATABASE_URL the engine runs on in-memory stores,
	// which is enough for local development but loses state on restart.
	var (
		db            *sql.DB
		workflowStore workflow.Store
		storeTx       workflow.StoreTx
		auditStore    audit.Store
	)
	if cfg.Postgres.URL != "" {
		var err error
		db, err = sql.Open("pgx", cfg.Postgres.URL)
		if err != nil {
			log.Error("open database", "error", err)
			os.Exit(1)
		}
		db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		pgStore := workflowpostgres.New(db)
		workflowStore = pgStore
		storeTx = newActionPostgresTx(db, pgStore)
		auditStore = auditpostgres.New(db)
	} else {
		memStore := workflowmemory.New()
		workflowStore = memStore
		storeTx = service.NewMemoryTx(memStore)
		auditStore = auditmemory.New()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	auditService := audit.NewService(auditStore)

	// Optional Redis status cache.
	var statusCache workflow.StatusCache
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		statusCache = cache.New(redisClient.Client, log)
	}

	workflowService, err := service.New(workflowStore, storeTx, auditService,
		service.WithLogger(log),
		service.WithMetrics(workflowmetrics.New()),
		service.WithStatusCache(statusCache),
	)
	if err != nil {
		log.Error("build workflow service", "error", err)
		os.Exit(1)
	}

	driveOpts := []drive.Option{drive.WithLogger(log)}
	if cfg.Drive.BaseURL != "" {
		driveOpts = append(driveOpts, drive.WithBaseURL(cfg.Drive.BaseURL))
	}
	dispatcher, err := execution.New(workflowStore, storeTx, auditService, drive.New(driveOpts...),
		execution.WithLogger(log),
		execution.WithMetrics(executionmetrics.New()),
		execution.WithStatusCache(statusCache),
	)
	if err != nil {
		log.Error("build dispatcher", "error", err)
		os.Exit(1)
	}

	// HTTP surface.
	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	httpMetrics := platformmetrics.New()

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(request.Middleware)
	router.Use(requesttime.Middleware)
	router.Use(httpMetrics.Middleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(jwttoken.NewJWTServiceAdapter(jwtService), log))
		workflowhandler.New(workflowService, log).Register(r)
		executionhandler.New(dispatcher, log).Register(r)
		audithandler.New(auditService, log).Register(r)
	})

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting custodian", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// Audit relay: drains the outbox to Kafka. Requires both the durable
	// store (the outbox table) and configured brokers.
	if db != nil && len(cfg.Kafka.Brokers) > 0 {
		publisher, err := relay.NewKafkaPublisher(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		auditRelay := relay.New(auditpostgres.New(db), publisher, log,
			relay.WithPollInterval(cfg.Kafka.PollInterval),
		)
		group.Go(func() error {
			if err := auditRelay.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	// Crash repair: actions stuck in executing flip to failed after a grace
	// period so approvals and polling surfaces do not hang forever.
	group.Go(func() error {
		ticker := time.NewTicker(stalledRecoveryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				n, err := workflowService.RecoverStalled(groupCtx, stalledAfter)
				if err != nil {
					log.Error("stalled action recovery failed", "error", err)
					continue
				}
				if n > 0 {
					log.Warn("recovered stalled actions", "count", n)
				}
			}
		}
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
