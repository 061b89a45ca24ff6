package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"leaddecisions/internal/analytics"
	"leaddecisions/internal/config"
	"leaddecisions/internal/etl"
	"leaddecisions/internal/infrastructure"
	"leaddecisions/internal/metrics"
	custommw "leaddecisions/internal/middleware"
	"leaddecisions/internal/services"
	"leaddecisions/internal/store"
	transporthttp "leaddecisions/internal/transport/http"
	"leaddecisions/internal/websocket"
)

// Version is stamped at build time.
var Version = "dev"

// App owns every long-lived component and their shutdown order.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	otel    *infrastructure.OTelProviders
	metrics *metrics.Metrics
	store   *store.Store
	hub     *websocket.Hub
	router  chi.Router
	server  *http.Server
}

// New assembles the application from configuration. Nothing is started
// yet; Run does that.
func New(cfg *config.Config) (*App, error) {
	logger := infrastructure.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	m := metrics.New()

	otelProviders, err := infrastructure.InitializeOTel(m.Registry(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	st, err := store.Open(cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	hub := websocket.NewHub(logger)

	extractor := etl.NewExtractor(logger)
	engine := analytics.NewEngine(st, cfg.Analytics.StatisticalThreshold, logger)

	leadSvc := services.NewLeadService(extractor, st, hub, m, logger)
	reportSvc := services.NewReportService(engine, hub, m, logger)

	app := &App{
		cfg:     cfg,
		logger:  logger,
		otel:    otelProviders,
		metrics: m,
		store:   st,
		hub:     hub,
	}
	app.router = app.setupRouter(leadSvc, reportSvc)
	app.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      app.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return app, nil
}

// Router exposes the HTTP handler, mainly for tests.
func (a *App) Router() http.Handler {
	return a.router
}

func (a *App) setupRouter(leadSvc *services.LeadService, reportSvc *services.ReportService) chi.Router {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.StructuredLogger(a.logger))
	r.Use(custommw.Recoverer(a.logger))
	r.Use(custommw.SecurityHeaders)
	r.Use(a.metrics.Middleware)

	if a.cfg.Security.RateLimit.Enabled {
		limiter := custommw.NewRateLimiter(
			a.cfg.Security.RateLimit.RPS,
			a.cfg.Security.RateLimit.Burst,
			a.logger,
		)
		r.Use(limiter.Handler)
	}

	r.Route("/api", func(api chi.Router) {
		transporthttp.NewHealthHandler(Version).RegisterRoutes(api)

		api.Route("/etl", func(sub chi.Router) {
			transporthttp.NewUploadHandler(leadSvc, a.cfg.Import.MaxUploadBytes, a.logger).RegisterRoutes(sub)
		})
		api.Route("/analytics", func(sub chi.Router) {
			transporthttp.NewReportHandler(reportSvc, a.logger).RegisterRoutes(sub)
		})
	})

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		websocket.ServeWS(a.hub, a.logger, w, req)
	})

	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	return r
}

// Run starts the hub and the HTTP server and blocks until the context
// is cancelled or the server fails. Shutdown is graceful within the
// configured timeout.
func (a *App) Run(ctx context.Context) error {
	a.hub.Start()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("server listening",
			slog.String("addr", a.server.Addr),
			slog.String("version", Version))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", slog.String("error", err.Error()))
		}
		a.hub.Shutdown()
		if err := a.otel.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("telemetry shutdown failed", slog.String("error", err.Error()))
		}
		if err := a.store.Close(); err != nil {
			a.logger.Error("store close failed", slog.String("error", err.Error()))
		}
		return nil
	})

	return g.Wait()
}

// Shutdown releases resources for an App that was never Run. Run-driven
// shutdown goes through context cancellation instead.
func (a *App) Shutdown(ctx context.Context) {
	a.hub.Shutdown()
	if err := a.otel.Shutdown(ctx); err != nil {
		a.logger.Error("telemetry shutdown failed", slog.String("error", err.Error()))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("store close failed", slog.String("error", err.Error()))
	}
}

// WaitForReady polls the health endpoint until the server answers or
// the context expires.
func WaitForReady(ctx context.Context, addr string) error {
	client := &http.Client{Timeout: time.Second}
	url := fmt.Sprintf("http://%s/api/health", addr)

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}
