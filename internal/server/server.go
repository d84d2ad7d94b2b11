package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carbonscope-lab/carbonscope/internal/analytics"
	core "github.com/carbonscope-lab/carbonscope/internal/core/analytics"
)

// RecordProvider hands out the latest upstream record set for ad-hoc queries.
type RecordProvider interface {
	Latest() []core.Transaction
}

type Server struct {
	Engine *gin.Engine
	Addr   string

	engine   *analytics.Engine
	provider RecordProvider
	hub      *Hub
}

// New builds the HTTP surface: dashboard stats endpoints, cache diagnostics
// and the live websocket feed. hub may be nil to disable the feed.
func New(addr string, engine *analytics.Engine, provider RecordProvider, hub *Hub, mode string) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	s := &Server{
		Engine:   r,
		Addr:     addr,
		engine:   engine,
		provider: provider,
		hub:      hub,
	}

	r.GET("/health", s.healthHandler)

	api := r.Group("/api/v1")
	api.GET("/stats/retirements", s.retirementStatsHandler)
	api.GET("/stats/projects", s.projectStatsHandler)
	api.GET("/timeseries", s.timeSeriesHandler)
	api.GET("/realtime", s.realTimeHandler)
	api.POST("/realtime", s.realTimeSamplesHandler)
	api.GET("/cache/stats", s.cacheStatsHandler)
	api.GET("/cache/validate", s.cacheValidateHandler)

	if hub != nil {
		r.GET("/ws/live", s.liveHandler)
	}

	return s
}

func (s *Server) healthHandler(c *gin.Context) {
	validation := s.engine.ValidateCache()
	status := "healthy"
	code := http.StatusOK
	if !validation.Healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":         status,
		"cache_warnings": len(validation.Warnings),
		"cache_errors":   len(validation.Errors),
	})
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr,
		Handler: s.Engine,
	}

	slog.Info("Starting HTTP Server...", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("Stopping HTTP Server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
