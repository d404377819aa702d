package serve

import (
	"context"
	"fmt"
	"net"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/config"
	"github.com/chirino/coaching-service/internal/core"
	"github.com/chirino/coaching-service/internal/metrics"
	routesystem "github.com/chirino/coaching-service/internal/plugin/route/system"
	registryroute "github.com/chirino/coaching-service/internal/registry/route"
	"github.com/gin-gonic/gin"
)

// Server holds the running core and its management listener.
type Server struct {
	Config *config.Config
	Core   *core.Core
	Router *gin.Engine
	// ManagementAddr is the bound management address; its port is real even when
	// the configured port was 0.
	ManagementAddr net.Addr

	stopTasks       context.CancelFunc
	tasksDone       chan struct{}
	closeManagement func(context.Context) error
}

// Shutdown stops the listener and the task processor, then releases the core.
// Tasks interrupted mid-run are picked up again once their lease expires.
func (s *Server) Shutdown(ctx context.Context) error {
	routesystem.MarkNotReady()
	var firstErr error
	if s.closeManagement != nil {
		firstErr = s.closeManagement(ctx)
	}
	s.stopTasks()
	select {
	case <-s.tasksDone:
	case <-ctx.Done():
		log.Warn("Task processor did not stop before the drain timeout")
	}
	if err := s.Core.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// StartServer builds the core, starts the background task processor and serves
// the management routes. Use ManagementListener.Port=0 for a random port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting coaching service",
		"managementPort", cfg.ManagementListener.Port,
		"db", cfg.DatastoreType,
		"cache", cfg.CacheType,
		"vector", cfg.VectorType,
		"embedding", cfg.EmbedType,
		"providers", cfg.Providers,
	)

	c, err := core.Build(config.WithContext(ctx, cfg))
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.ManagementAccessLog {
		router.Use(accessLogMiddleware())
	} else {
		router.Use(accessLogMiddleware("/health", "/ready", "/metrics"))
	}
	router.Use(metrics.MetricsMiddleware())
	for _, loader := range registryroute.Loaders() {
		if err := loader(router); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to load management routes: %w", err)
		}
	}

	addr, closeManagement, err := startManagementServer(cfg.ManagementListener, router)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to start management server: %w", err)
	}

	taskCtx, stopTasks := context.WithCancel(ctx)
	tasksDone := make(chan struct{})
	go func() {
		defer close(tasksDone)
		c.Tasks.Start(taskCtx)
	}()

	routesystem.MarkReady(c.Gateway.Models())
	return &Server{
		Config:          cfg,
		Core:            c,
		Router:          router,
		ManagementAddr:  addr,
		stopTasks:       stopTasks,
		tasksDone:       tasksDone,
		closeManagement: closeManagement,
	}, nil
}
