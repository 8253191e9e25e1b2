// pkg/registry/registry_test.go
package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	cat := Default()

	assert.Equal(t, []string{"pricing", "sentiment", "forecast"}, cat.IDs())

	pricing, ok := cat.Get("pricing")
	require.True(t, ok)
	assert.True(t, pricing.Critical)
	assert.Equal(t, "pricing", pricing.CacheCategory)

	forecast, ok := cat.Get("forecast")
	require.True(t, ok)
	assert.False(t, forecast.Critical)
	assert.Equal(t, 45*time.Second, forecast.TimeoutDuration())

	_, ok = cat.Get("unknown")
	assert.False(t, ok)
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"version": "2.0",
		"agents": [
			{"id": "pricing", "cacheCategory": "pricing", "timeout": "10s", "critical": true}
		]
	}`), 0o644))

	cat, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2.0", cat.Version)
	assert.Equal(t, []string{"pricing"}, cat.IDs())

	spec, ok := cat.Get("pricing")
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, spec.TimeoutDuration())
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestDurationDefaults(t *testing.T) {
	spec := AgentSpec{Timeout: "bogus", EstimatedDuration: ""}
	assert.Equal(t, 30*time.Second, spec.TimeoutDuration())
	assert.Equal(t, 20*time.Second, spec.EstimateDuration())

	spec = AgentSpec{Timeout: "-5s"}
	assert.Equal(t, 30*time.Second, spec.TimeoutDuration())
}
