package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 10, cfg.Ingest.Concurrency)
	assert.Equal(t, 200*time.Millisecond, cfg.GetZakonOnlineInterval())
	assert.Equal(t, []string{"DECISION", "COURT_REASONING"}, cfg.Ingest.EmbedSections)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pravnyk.yaml")
	body := `
data_dir: /var/lib/pravnyk
embedding:
  provider: ollama
  dimensions: 768
ingest:
  concurrency: 4
adapters:
  zakononline:
    min_interval: 350ms
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/pravnyk", cfg.DataDir)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, 4, cfg.Ingest.Concurrency)
	assert.Equal(t, 350*time.Millisecond, cfg.GetZakonOnlineInterval())
	// Untouched sections keep defaults
	assert.Equal(t, ":8741", cfg.Server.Addr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ZAKONONLINE_APP_TOKEN", "tok-123")
	t.Setenv("PRAVNYK_EMBED_DIM", "3072")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "tok-123", cfg.Adapters.ZakonOnline.AppToken)
	assert.Equal(t, 3072, cfg.Embedding.Dimensions)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Provider = "weaviate"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Embedding.Provider = "ollama"
	cfg.Ingest.Concurrency = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Embedding.Provider = "ollama"
	assert.NoError(t, cfg.Validate())
}

func TestDerivedPaths(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.DataDir = "/var/lib/pravnyk"

	assert.Equal(t, filepath.Join(cfg.DataDir, "pravnyk.db"), cfg.DatabasePath())
	assert.Equal(t, filepath.Join(cfg.DataDir, "vectors.db"), cfg.VectorDatabasePath())
	assert.Equal(t, filepath.Join(cfg.DataDir, "fetch_cache.db"), cfg.CachePath())
}
