// Package server assembles the HTTP API: services over a graph store, the middleware chain and
// every route group.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/approval"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/catalog"
	"github.com/Ramsey-B/fern/pkg/chain"
	"github.com/Ramsey-B/fern/pkg/expressions"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/history"
	"github.com/Ramsey-B/fern/pkg/middleware"
	catalogroutes "github.com/Ramsey-B/fern/pkg/routes/catalog"
	eventroutes "github.com/Ramsey-B/fern/pkg/routes/event"
	reportroutes "github.com/Ramsey-B/fern/pkg/routes/report"
	subjectroutes "github.com/Ramsey-B/fern/pkg/routes/subject"
	systemroutes "github.com/Ramsey-B/fern/pkg/routes/system"
	workflowroutes "github.com/Ramsey-B/fern/pkg/routes/workflow"
	"github.com/Ramsey-B/fern/pkg/workflow"
)

// Services are the domain services behind the API, all sharing one store.
type Services struct {
	Catalog   *catalog.Service
	Chain     *chain.Service
	History   *history.Service
	Approval  *approval.Service
	Workflows *workflow.Registry
	Scanner   *audit.Scanner
}

func NewServices(store graph.Store, logger ectologger.Logger, opts ...approval.Option) *Services {
	return &Services{
		Catalog:   catalog.NewService(store, logger),
		Chain:     chain.NewService(store, logger),
		History:   history.NewService(store, logger),
		Approval:  approval.NewService(store, logger, opts...),
		Workflows: workflow.NewRegistry(store),
		Scanner:   audit.NewScanner(store, logger),
	}
}

// Options are the optional collaborators of the server.
type Options struct {
	// Verifier enables bearer authentication on the API group.
	Verifier middleware.TokenVerifier
	// Health is mounted under /api/v1/health when set.
	Health *health.Checker
}

type Server struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger ectologger.Logger
}

func New(cfg *config.Config, services *Services, logger ectologger.Logger, opts Options) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(logger)

	e.Use(echomiddleware.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	root := e.Group("/api/v1")
	if opts.Health != nil {
		opts.Health.Register(root)
	}

	api := e.Group("/api/v1")
	if opts.Verifier != nil {
		api.Use(middleware.Authentication(logger, opts.Verifier))
	}

	evaluator := expressions.NewEvaluator()

	catalogroutes.NewHandler(services.Catalog, logger).Register(api)
	reportroutes.NewHandler(services.History, logger).Register(api)
	subjectroutes.NewHandler(services.Catalog, services.Chain, services.History, services.Approval, logger).Register(api.Group("/subjects"))
	eventroutes.NewHandler(services.Chain, services.History, services.Approval, evaluator, logger).Register(api.Group("/events"))
	workflowroutes.NewHandler(services.Workflows, logger).Register(api.Group("/workflows"))
	systemroutes.NewHandler(services.Scanner, logger).Register(api.Group("/system"))

	return &Server{
		echo:   e,
		cfg:    cfg,
		logger: logger,
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		ReadTimeout:       time.Duration(s.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    s.cfg.MaxHeaderBytes,
	}

	s.logger.WithField("port", s.cfg.Port).Infof("Starting %s", s.cfg.AppName)
	if err := s.echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}
