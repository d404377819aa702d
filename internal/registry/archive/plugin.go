// Package archive copies finished progress reports to long-term storage.
package archive

import (
	"context"
	"fmt"

	"github.com/chirino/coaching-service/internal/model"
)

// Archiver stores an immutable copy of a report. Archive returns the
// location the report was written to, or "" when archiving is disabled.
type Archiver interface {
	Archive(ctx context.Context, report *model.ProgressReport) (string, error)
	Name() string
}

// Loader creates an Archiver from config.
type Loader func(ctx context.Context) (Archiver, error)

// Plugin represents an archive plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds an archive plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered archive plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named archive plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown archive %q; valid: %v", name, Names())
}
