// Package server hosts the webhook endpoint and the health probe.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/careline-tw/careline/engine/knowledge"
	"github.com/careline-tw/careline/engine/line"
	"github.com/careline-tw/careline/engine/pipeline"
	"github.com/careline-tw/careline/pkg/config"
	"github.com/careline-tw/careline/pkg/logger"
)

const shutdownGrace = 10 * time.Second

// Replier answers webhook events; satisfied by *line.Client.
type Replier interface {
	Reply(ctx context.Context, replyToken string, messages ...any) error
}

// Server owns the HTTP surface. All request-scoped work happens inside
// the per-request deadline from the configuration.
type Server struct {
	cfg      *config.Config
	log      logger.Logger
	pipeline *pipeline.Pipeline
	verifier *line.Verifier
	replier  Replier
	store    *knowledge.Store
	router   *gin.Engine
}

func New(
	cfg *config.Config,
	log logger.Logger,
	p *pipeline.Pipeline,
	verifier *line.Verifier,
	replier Replier,
	store *knowledge.Store,
) (*Server, error) {
	if cfg == nil || log == nil || p == nil || verifier == nil || replier == nil || store == nil {
		return nil, errors.New("server: all dependencies are required")
	}
	s := &Server{
		cfg:      cfg,
		log:      log,
		pipeline: p,
		verifier: verifier,
		replier:  replier,
		store:    store,
	}
	s.buildRouter()
	return s, nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Server.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	s.log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}

func (s *Server) buildRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.POST("/webhook", s.handleWebhook)
	r.GET("/healthz", s.handleHealthz)
	s.router = r
}

func (s *Server) handleHealthz(c *gin.Context) {
	counts := s.store.ModuleCounts()
	modules := make(map[string]int, len(counts))
	for id, n := range counts {
		modules[string(id)] = n
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"chunks":  s.store.Len(),
		"modules": modules,
	})
}
