// Package server provides the HTTP control surface for marketd: session
// control endpoints, the live event feed, and the log monitor.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/marketd/internal/chainlog"
	"github.com/fyrsmithlabs/marketd/internal/ledger"
	"github.com/fyrsmithlabs/marketd/internal/logging"
	"github.com/fyrsmithlabs/marketd/internal/marketplace"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// Asset and Accounts drive the balance monitor: Accounts maps a
	// display name to a ledger account.
	Asset    string
	Accounts map[string]string

	// MonitorInterval paces the raw log tail feed.
	MonitorInterval time.Duration
}

// Server provides HTTP endpoints for marketd.
type Server struct {
	echo    *echo.Echo
	orc     *marketplace.Orchestrator
	hub     *Hub
	metrics *Metrics
	log     chainlog.Log
	ledger  ledger.Ledger
	logger  *logging.Logger
	config  Config
}

// NewServer creates a new HTTP server. metrics may be nil to disable the
// /metrics endpoint.
func NewServer(orc *marketplace.Orchestrator, hub *Hub, metrics *Metrics, log chainlog.Log, led ledger.Ledger, logger *logging.Logger, cfg Config) (*Server, error) {
	if orc == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if hub == nil {
		return nil, fmt.Errorf("hub cannot be nil")
	}
	if log == nil {
		return nil, fmt.Errorf("log cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8787
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 5 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			logger.Zap().Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})
	if metrics != nil {
		e.Use(metrics.Middleware())
	}

	s := &Server{
		echo:    e,
		orc:     orc,
		hub:     hub,
		metrics: metrics,
		log:     log,
		ledger:  led,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := s.echo.Group("/api")
	api.GET("/status", s.handleStatus)

	market := api.Group("/marketplace")
	market.POST("/trigger", s.handleTrigger)
	market.POST("/reset", s.handleReset)
	market.POST("/bid-approval", s.handleBidApproval)
	market.POST("/review", s.handleReview)
	market.GET("/feed", s.handleFeed)

	monitor := api.Group("/monitor")
	monitor.GET("/feed", s.handleMonitorFeed)
	monitor.GET("/balances", s.handleBalances)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
