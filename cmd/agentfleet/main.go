package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cfhttp "github.com/Strob0t/AgentFleet/internal/adapter/http"
	cfmcp "github.com/Strob0t/AgentFleet/internal/adapter/mcp"
	"github.com/Strob0t/AgentFleet/internal/adapter/memory"
	cfnats "github.com/Strob0t/AgentFleet/internal/adapter/nats"
	"github.com/Strob0t/AgentFleet/internal/adapter/natskv"
	cfotel "github.com/Strob0t/AgentFleet/internal/adapter/otel"
	"github.com/Strob0t/AgentFleet/internal/adapter/postgres"
	"github.com/Strob0t/AgentFleet/internal/adapter/ristretto"
	"github.com/Strob0t/AgentFleet/internal/adapter/tiered"
	"github.com/Strob0t/AgentFleet/internal/config"
	"github.com/Strob0t/AgentFleet/internal/logger"
	"github.com/Strob0t/AgentFleet/internal/middleware"
	"github.com/Strob0t/AgentFleet/internal/port/cache"
	"github.com/Strob0t/AgentFleet/internal/port/database"
	"github.com/Strob0t/AgentFleet/internal/port/messagequeue"
	"github.com/Strob0t/AgentFleet/internal/resilience"
	"github.com/Strob0t/AgentFleet/internal/secrets"
	"github.com/Strob0t/AgentFleet/internal/service"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			exitOn(runMigrate(os.Args[2:]))
			return
		case "admin":
			exitOn(runAdmin(os.Args[2:]))
			return
		case "version":
			fmt.Println(version)
			return
		}
	}

	exitOn(run(os.Args[1:]))
}

func exitOn(err error) {
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}
	cfg, cfgPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	defer logCloser.Close()
	slog.SetDefault(log)

	log.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Server.Port,
		"store", cfg.Store.Driver,
		"log_level", cfg.Logging.Level,
		"nats", cfg.NATS.URL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	otelShutdown, err := cfotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	// --- Infrastructure ---

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var (
		queue   messagequeue.Queue
		natsQ   *cfnats.Queue
		l2Cache cache.Cache
	)
	if cfg.NATS.URL != "" {
		natsQ, err = cfnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream, log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := natsQ.Drain(); err != nil {
				log.Warn("nats drain", "error", err)
			}
		}()
		queue = resilience.GuardQueue(natsQ, resilience.NewGuard("event-bus", resilience.DefaultPolicy, log))

		kv, err := natskv.Open(ctx, natsQ.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return fmt.Errorf("nats kv: %w", err)
		}
		l2Cache = kv
	}

	l1Cache, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1Cache.Close()

	var replayCache cache.Cache = l1Cache
	if l2Cache != nil {
		replayCache = tiered.New(l1Cache, l2Cache, time.Minute, log)
	}

	// --- Services ---

	agentSvc := service.NewAgentService(store, queue)
	taskSvc := service.NewTaskService(store, queue)
	telemetrySvc := service.NewTelemetryService(store)
	dashboardSvc := service.NewDashboardService(store)
	agentSvc.SetMetrics(metrics)
	taskSvc.SetMetrics(metrics)
	telemetrySvc.SetMetrics(metrics)
	dashboardSvc.SetMetrics(metrics)

	if queue != nil {
		cancelIngest, err := service.NewIngestor(queue, agentSvc, telemetrySvc).Start(ctx)
		if err != nil {
			return fmt.Errorf("telemetry ingestion: %w", err)
		}
		defer cancelIngest()
	}

	// --- HTTP ---

	handlers := &cfhttp.Handlers{
		Agents:    agentSvc,
		Tasks:     taskSvc,
		Telemetry: telemetrySvc,
		Dashboard: dashboardSvc,
		Limits:    cfhttp.Limits{MaxRequestBodySize: cfg.Server.MaxBodyBytes},
		Version:   version,
	}

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopCleanup()

	apiMiddleware := []func(http.Handler) http.Handler{limiter.Handler}
	if cfg.Idempotency.Enabled {
		apiMiddleware = append(apiMiddleware, middleware.Idempotency(replayCache, cfg.Idempotency.TTL, log))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.Logger)
	r.Use(cfotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.Server.RequestTimeout))

	cfhttp.MountRoutes(r, handlers, apiMiddleware...)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// --- MCP ---

	var mcpServer *cfmcp.Server
	if cfg.MCP.Enabled {
		vault, err := secrets.NewVault(secrets.ConfigLoader(cfgPath))
		if err != nil {
			return fmt.Errorf("secrets: %w", err)
		}
		go reloadOnHangup(ctx, vault, log)

		mcpServer = cfmcp.NewServer(cfmcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    "agentfleet",
			Version: version,
			APIKey:  vault.Getter(secrets.KeyMCPAPIKey),
		}, cfmcp.ServerDeps{
			Agents:    agentSvc,
			Tasks:     taskSvc,
			Telemetry: telemetrySvc,
			Dashboard: dashboardSvc,
		})
		if err := mcpServer.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if mcpServer != nil {
		if err := mcpServer.Stop(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// reloadOnHangup re-reads rotatable credentials on every SIGHUP until ctx ends.
func reloadOnHangup(ctx context.Context, vault *secrets.Vault, log *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := vault.Reload(); err != nil {
				log.Error("secret reload failed", "error", err)
				continue
			}
			log.Info("secrets reloaded", "mcp_api_key", vault.Redacted(secrets.KeyMCPAPIKey))
		}
	}
}

// openStore selects the repository for cfg.Store.Driver. The returned
// cleanup releases the connection pool, if any.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (database.Store, func(), error) {
	if cfg.Store.Driver == config.DriverMemory {
		log.Warn("using in-memory store; data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	log.Info("postgres connected", "max_conns", cfg.Postgres.MaxConns)

	if cfg.Postgres.AutoMigrate {
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrations: %w", err)
		}
		log.Info("migrations applied")
	}
	return postgres.NewStore(pool), pool.Close, nil
}
