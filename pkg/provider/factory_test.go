package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slumber/pkg/config"
	"slumber/pkg/image"
	"slumber/pkg/interfaces"
)

type nopRuntime struct{ interfaces.RuntimeAdapter }

func TestProviderFactory_RegisteredRuntime(t *testing.T) {
	var gotCache *image.PullCache
	RegisterRuntime("Fake", func(cfg *config.Config, pulls *image.PullCache) (interfaces.RuntimeAdapter, error) {
		gotCache = pulls
		return nopRuntime{}, nil
	})
	t.Cleanup(func() { delete(runtimeFactories, "fake") })

	cache := image.NewPullCache(time.Minute)
	cfg := &config.Config{Runtime: config.RuntimeConfig{Provider: "fake"}}
	providers, err := NewProviderFactory(cfg, cache).CreateBusinessProviders()
	require.NoError(t, err)
	assert.IsType(t, nopRuntime{}, providers.Runtime)
	assert.Same(t, cache, gotCache)
}

func TestProviderFactory_UnknownRuntime(t *testing.T) {
	cfg := &config.Config{Runtime: config.RuntimeConfig{Provider: "podman"}}
	_, err := NewProviderFactory(cfg, nil).CreateRuntime("podman")
	assert.ErrorContains(t, err, "unsupported runtime provider type: podman")
}

func TestRegisterRuntime_IgnoresEmpty(t *testing.T) {
	before := len(runtimeFactories)
	RegisterRuntime("", nil)
	RegisterRuntime("x", nil)
	assert.Len(t, runtimeFactories, before)
	_, ok := runtimeFactories["docker"]
	assert.True(t, ok)
}
