package migrate

import (
	"context"
	"fmt"
	"sort"
)

// Migrator creates or updates the schema owned by one plugin. Migrators read the
// config from ctx and return nil when their plugin is not selected.
type Migrator interface {
	Name() string
	Migrate(ctx context.Context) error
}

// Plugin orders a migrator. Record stores use 100-199, vector indexes 200-299
// and external vector services 300+.
type Plugin struct {
	Order    int
	Migrator Migrator
}

var plugins []Plugin

// Register adds a migration plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

func sorted() []Plugin {
	out := make([]Plugin, len(plugins))
	copy(out, plugins)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Names returns the registered migrator names in execution order.
func Names() []string {
	var names []string
	for _, p := range sorted() {
		names = append(names, p.Migrator.Name())
	}
	return names
}

// RunAll executes every registered migrator in Order, stopping at the first error.
func RunAll(ctx context.Context) error {
	for _, p := range sorted() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("migration %s failed: %w", p.Migrator.Name(), err)
		}
	}
	return nil
}
