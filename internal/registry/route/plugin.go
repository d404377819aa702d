package route

import (
	"sort"

	"github.com/gin-gonic/gin"
)

// RouterLoader mounts routes on the management engine.
type RouterLoader func(r *gin.Engine) error

// Plugin is a set of management routes. Lower Order mounts first.
type Plugin struct {
	Order  int
	Loader RouterLoader
}

var plugins []Plugin

// Register adds a route plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Loaders returns the registered loaders sorted by Order.
func Loaders() []RouterLoader {
	sorted := make([]Plugin, len(plugins))
	copy(sorted, plugins)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	loaders := make([]RouterLoader, len(sorted))
	for i, p := range sorted {
		loaders[i] = p.Loader
	}
	return loaders
}
