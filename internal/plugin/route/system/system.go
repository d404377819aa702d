// Package system serves the liveness, readiness and metrics endpoints.
package system

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	registryroute "github.com/chirino/coaching-service/internal/registry/route"
)

var (
	mu     sync.RWMutex
	ready  bool
	models []string
)

// MarkReady flags the service ready and records the completion models it can serve.
func MarkReady(loaded []string) {
	mu.Lock()
	defer mu.Unlock()
	ready = true
	models = append([]string(nil), loaded...)
}

// MarkNotReady flags the service as draining.
func MarkNotReady() {
	mu.Lock()
	defer mu.Unlock()
	ready = false
}

func init() {
	registryroute.Register(registryroute.Plugin{
		Order:  0,
		Loader: mount,
	})
}

func mount(r *gin.Engine) error {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		mu.RLock()
		defer mu.RUnlock()
		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "models": models})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return nil
}
