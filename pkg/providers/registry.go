// Package providers maps provider names to engine.Adapter factories.
package providers

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
	"github.com/cloudcycle/cloudcycle/pkg/providers/aws"
	"github.com/cloudcycle/cloudcycle/pkg/providers/memory"
	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

// Settings carries what a factory needs to build an adapter.
type Settings struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// Endpoint overrides the provider API endpoint, e.g. a LocalStack URL.
	Endpoint string

	// Memory tunes the simulated provider.
	Memory memory.Options

	Logger *telemetry.Logger
}

// Factory builds an adapter from settings.
type Factory func(ctx context.Context, s Settings) (engine.Adapter, error)

// Registry holds the known provider factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Default returns a registry with the aws and memory providers registered.
func Default() *Registry {
	r := NewRegistry()
	_ = r.Register("aws", newAWS)
	_ = r.Register("memory", newMemory)
	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("provider name is required")
	}
	if f == nil {
		return fmt.Errorf("provider %s has no factory", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("provider %s already registered", name)
	}
	r.factories[name] = f
	return nil
}

// New builds the adapter registered under name.
func (r *Registry) New(ctx context.Context, name string, s Settings) (engine.Adapter, error) {
	r.mu.RLock()
	f, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("provider %s not found", name)
	}

	adapter, err := f(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", name, err)
	}
	return adapter, nil
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newAWS(ctx context.Context, s Settings) (engine.Adapter, error) {
	return aws.New(ctx, aws.Options{
		Region:          s.Region,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
		SessionToken:    s.SessionToken,
		Endpoint:        s.Endpoint,
		Logger:          s.Logger,
	})
}

func newMemory(_ context.Context, s Settings) (engine.Adapter, error) {
	return memory.New(s.Memory), nil
}
