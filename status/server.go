// Package status serves the read-only HTTP surface: health, the current
// session and Prometheus metrics.
package status

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rustyeddy/botcore/session"
)

const service = "botcore"

var endpoints = []string{"/api/health", "/api/status", "/metrics"}

// StateSource returns the last published session.
type StateSource interface {
	Load() session.Session
}

type Config struct {
	Addr    string
	Version string
	Symbol  string
	Mode    string
}

type Server struct {
	cfg    Config
	state  StateSource
	router *gin.Engine
	logger zerolog.Logger
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

func New(cfg Config, state StateSource) *Server {
	s := &Server{
		cfg:    cfg,
		state:  state,
		router: gin.New(),
		logger: log.With().Str("component", "status").Logger(),
	}
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealth)
		api.GET("/status", s.handleStatus)
	}
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":               fmt.Sprintf("route not found: %s %s", c.Request.Method, c.Request.URL.Path),
			"available_endpoints": endpoints,
		})
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": service,
		"version": s.cfg.Version,
	})
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status               string     `json:"status"`
	Version              string     `json:"version"`
	Symbol               string     `json:"symbol"`
	Mode                 string     `json:"mode"`
	Phase                string     `json:"phase"`
	SetupID              string     `json:"setup_id,omitempty"`
	ActivePosition       uint64     `json:"active_position,omitempty"`
	NextReviewAt         *time.Time `json:"next_review_at,omitempty"`
	LastCycleAt          *time.Time `json:"last_cycle_at,omitempty"`
	MonitoringTimeframes []string   `json:"monitoring_timeframes"`
}

func (s *Server) handleStatus(c *gin.Context) {
	sess := s.state.Load()

	resp := StatusResponse{
		Status:               "operational",
		Version:              s.cfg.Version,
		Symbol:               s.cfg.Symbol,
		Mode:                 s.cfg.Mode,
		Phase:                string(sess.Phase),
		SetupID:              sess.SetupID,
		ActivePosition:       uint64(sess.ActivePosition),
		NextReviewAt:         timePtr(sess.NextReviewAt),
		LastCycleAt:          timePtr(sess.LastCycleAt),
		MonitoringTimeframes: make([]string, 0, len(sess.MonitoringTimeframes)),
	}
	for _, tf := range sess.MonitoringTimeframes {
		resp.MonitoringTimeframes = append(resp.MonitoringTimeframes, string(tf))
	}
	c.JSON(http.StatusOK, resp)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("status server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
