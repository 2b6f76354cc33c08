// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package web serves the risk dashboard and its JSON API.
package web

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/riskcrew/pkg/chat"
	"github.com/jllopis/riskcrew/pkg/core"
	"github.com/jllopis/riskcrew/pkg/crew"
	"github.com/jllopis/riskcrew/pkg/guardrails"
	"github.com/jllopis/riskcrew/pkg/riskdb"
	"github.com/jllopis/riskcrew/pkg/telemetry"
	"github.com/jllopis/riskcrew/pkg/tools"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Deps are the services behind the HTTP API.
type Deps struct {
	Repo       *riskdb.Repository
	Tools      *tools.Registry
	Crew       crew.Runner
	History    chat.History
	Health     core.HealthCheckProvider
	Categories []string
	Logger     *slog.Logger
	// Debug mounts the pprof handlers under /debug/pprof.
	Debug bool
	// Guard screens chat questions and answers. Nil disables screening.
	Guard *guardrails.Guard
	// MCP, when set, is mounted at /mcp.
	MCP http.Handler
}

// Server is the gin based web UI and API.
type Server struct {
	deps    Deps
	engine  *gin.Engine
	metrics *httpMetrics
	gather  prometheus.Gatherer
	tracer  trace.Tracer
	logger  *slog.Logger
	now     func() time.Time

	srv *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New builds the router. Each server owns its Prometheus registry.
func New(deps Deps, opts ...Option) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		deps:    deps,
		metrics: newHTTPMetrics(reg),
		gather:  reg,
		tracer:  telemetry.Tracer("riskcrew/web"),
		logger:  telemetry.Component(logger, "web"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(observe(s.tracer, s.metrics, s.logger))
	engine.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	engine.SetHTMLTemplate(template.Must(template.ParseFS(templatesFS, "templates/*.html")))
	s.engine = engine
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/", s.index)
	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{})))

	if s.deps.MCP != nil {
		r.Any("/mcp", gin.WrapH(s.deps.MCP))
	}
	if s.deps.Debug {
		pprof.Register(r)
	}

	api := r.Group("/api")
	{
		api.GET("/projects", s.projects)
		api.GET("/dashboard", s.dashboard)
		api.GET("/risks", s.risks)
		api.GET("/risks/export.csv", s.exportCSV)
		api.GET("/report", s.reportSummary)
		api.POST("/reports", s.generateReport)
		api.POST("/chat", s.chat)
		api.GET("/chat/history", s.chatHistory)
		api.DELETE("/chat/history", s.clearHistory)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "the requested resource was not found", "code": "NOT_FOUND"})
	})
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web.server.start", slog.String("addr", addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("web.server.shutdown")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
