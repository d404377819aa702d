package provider

import (
	"context"
	"fmt"
	"sort"
)

// Role is the author of a prompt message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversational message of a prompt.
type Message struct {
	Role    Role
	Content string
}

// Prompt is a provider-neutral chat prompt: system instructions followed by
// messages in chronological order, the last of which is the one to answer.
type Prompt struct {
	System   string
	Messages []Message
}

// Options tune a single completion.
type Options struct {
	Temperature float64
	MaxTokens   int64
}

// Completion is the normalized response of every provider.
type Completion struct {
	Text         string
	FinishReason string
	Model        string
	TokensUsed   int
}

// Provider is a completion backend. Implementations return errors wrapped with
// retry.Transient when the failure is worth retrying and must not retry internally.
type Provider interface {
	Complete(ctx context.Context, prompt Prompt, opts Options) (*Completion, error)
	// Name is the provider id callers select it by.
	Name() string
	// Model is the upstream model the provider calls.
	Model() string
}

// Loader creates a Provider from config.
type Loader func(ctx context.Context) (Provider, error)

// Plugin represents a provider plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a provider plugin. Called from init() in plugin packages.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered provider ids, sorted.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	sort.Strings(names)
	return names
}

// Select returns the loader for the named provider plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown provider %q; valid: %v", name, Names())
}
