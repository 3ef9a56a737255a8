package provider

import (
	"fmt"
	"strings"

	"slumber/pkg/config"
	"slumber/pkg/deploy/docker"
	"slumber/pkg/image"
	"slumber/pkg/interfaces"
)

// RuntimeFactory builds a runtime adapter from configuration
type RuntimeFactory func(cfg *config.Config, pulls *image.PullCache) (interfaces.RuntimeAdapter, error)

var runtimeFactories = map[string]RuntimeFactory{}

// RegisterRuntime registers a runtime adapter factory under name
func RegisterRuntime(name string, factory RuntimeFactory) {
	if name == "" || factory == nil {
		return
	}
	runtimeFactories[strings.ToLower(name)] = factory
}

func init() {
	RegisterRuntime("docker", docker.NewRuntime)
}

// ProviderFactory provider factory
type ProviderFactory struct {
	cfg   *config.Config
	pulls *image.PullCache
}

// NewProviderFactory creates provider factory
func NewProviderFactory(cfg *config.Config, pulls *image.PullCache) *ProviderFactory {
	return &ProviderFactory{cfg: cfg, pulls: pulls}
}

// CreateRuntime creates the runtime adapter named by providerType
func (f *ProviderFactory) CreateRuntime(providerType string) (interfaces.RuntimeAdapter, error) {
	if len(runtimeFactories) == 0 {
		return nil, fmt.Errorf("no runtime providers registered")
	}
	if providerType == "" {
		providerType = "docker"
	}

	factory, ok := runtimeFactories[strings.ToLower(providerType)]
	if !ok {
		return nil, fmt.Errorf("unsupported runtime provider type: %s", providerType)
	}
	return factory(f.cfg, f.pulls)
}

// BusinessProviders business providers collection
type BusinessProviders struct {
	Runtime interfaces.RuntimeAdapter
}

// CreateBusinessProviders creates the providers named in configuration
func (f *ProviderFactory) CreateBusinessProviders() (*BusinessProviders, error) {
	rt, err := f.CreateRuntime(f.cfg.Runtime.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create runtime provider: %w", err)
	}
	return &BusinessProviders{Runtime: rt}, nil
}
