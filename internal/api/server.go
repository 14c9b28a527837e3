// Package api implements the HTTP API for the crawler service.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbeckner/civicrawl/internal/config"
	"github.com/mbeckner/civicrawl/internal/logger"
	"github.com/mbeckner/civicrawl/internal/progress"
	"github.com/mbeckner/civicrawl/internal/scheduler"
	"github.com/mbeckner/civicrawl/internal/store"
)

// SchedulerInterface is the scheduler surface the API needs.
type SchedulerInterface interface {
	RunNow(ctx context.Context, key string) (*scheduler.RunResult, error)
}

// Server wires the gin router and owns the http.Server lifecycle.
type Server struct {
	cfg    config.ServerConfig
	logger logger.Interface
	http   *http.Server
}

// Params holds the dependencies for creating a server.
type Params struct {
	Config     config.ServerConfig
	Logger     logger.Interface
	Modules    store.ModuleRepositoryInterface
	Runs       store.RunRepositoryInterface
	Hub        *progress.Hub
	Scheduler  SchedulerInterface
	Production bool
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(p Params) *gin.Engine {
	if p.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	modules := NewModulesHandler(p.Modules, p.Runs, p.Scheduler, p.Logger)
	prog := NewProgressHandler(p.Hub, p.Logger)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/modules", modules.List)
		v1.GET("/modules/:key", modules.Get)
		v1.PATCH("/modules/:key", modules.Update)
		v1.POST("/modules/:key/run", modules.Run)
		v1.GET("/modules/:key/runs", modules.ListRuns)
		v1.GET("/modules/:key/progress", prog.Stream)
	}
	return router
}

// NewServer creates the API server with all routes registered.
func NewServer(p Params) *Server {
	router := NewRouter(p)

	return &Server{
		cfg:    p.Config,
		logger: p.Logger.WithComponent("api"),
		http: &http.Server{
			Addr:         p.Config.Address,
			Handler:      router,
			ReadTimeout:  p.Config.ReadTimeout,
			WriteTimeout: p.Config.WriteTimeout,
			IdleTimeout:  p.Config.IdleTimeout,
		},
	}
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting http server", "address", s.cfg.Address)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping http server")
	return s.http.Shutdown(ctx)
}
