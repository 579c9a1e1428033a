package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askdb/askdb/config"
	"github.com/askdb/askdb/internal/agent"
	"github.com/askdb/askdb/internal/searchindex"
	"github.com/askdb/askdb/internal/store"
	"github.com/askdb/askdb/internal/telemetry"
)

// Runner starts an analysis run. Satisfied by agent.Orchestrator.
type Runner interface {
	Run(ctx context.Context, question string) (agent.RunResult, error)
}

// Server is the ops HTTP API around the orchestrator and its run history.
type Server struct {
	config *config.Config
	logger *log.Logger
	store  *store.Store
	index  *searchindex.Index // may be nil
	tel    *telemetry.Telemetry
	runner Runner
	secret []byte
}

// New wires the API server. The store and runner are required; the search
// index and telemetry are optional.
func New(cfg *config.Config, logger *log.Logger, st *store.Store, idx *searchindex.Index, tel *telemetry.Telemetry, runner Runner) (*Server, error) {
	if cfg.Server.JWTSecret == "" {
		return nil, errors.New("jwt secret not configured (server.jwt_secret)")
	}
	if st == nil {
		return nil, errors.New("store is required")
	}
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	return &Server{
		config: cfg,
		logger: logger,
		store:  st,
		index:  idx,
		tel:    tel,
		runner: runner,
		secret: []byte(cfg.Server.JWTSecret),
	}, nil
}

// Echo builds the routed echo instance.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.logger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.Use(authMiddleware(s.secret))
	api.POST("/ask", s.ask)
	api.GET("/runs", s.listRuns)
	api.GET("/runs/:id", s.getRun)
	api.GET("/runs/:id/report", s.getReport)
	api.GET("/search", s.search)
	api.GET("/stats", s.stats)
	api.POST("/schedules", s.createSchedule)
	api.GET("/schedules", s.listSchedules)
	return e
}

// Run serves the API until the listener fails.
func (s *Server) Run() error {
	addr := s.config.Server.Address
	if addr == "" {
		addr = ":8080"
	}
	s.logger.Printf("listening on %s", addr)
	return s.Echo().Start(addr)
}
