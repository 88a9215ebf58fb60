package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.TopK)
	assert.Equal(t, 3, cfg.MinExisting)
	assert.InDelta(t, 0.8, cfg.TrainRatio, 1e-9)
	assert.InDelta(t, 0.1, cfg.ValRatio, 1e-9)
	assert.Equal(t, int64(42), cfg.SplitSeed)
	assert.Equal(t, 5, cfg.AugmentReplicates)
	assert.Equal(t, 75, cfg.CropMargin)
	assert.Equal(t, 6, cfg.MaxWorkers)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TOP_K", "300")
	t.Setenv("SPLIT_SEED", "7")
	t.Setenv("WRITE_NPY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.TopK)
	assert.Equal(t, int64(7), cfg.SplitSeed)
	assert.True(t, cfg.WriteNPY)
}

func TestLoadFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("CATALOG_PATH=/data/catalog.json\nMANIFEST_DB=/data/runs.db\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("CATALOG_PATH")
		os.Unsetenv("MANIFEST_DB")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/catalog.json", cfg.CatalogPath)
	assert.Equal(t, "/data/runs.db", cfg.ManifestDB)
}

func TestLoadMissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{TopK: 10, MinExisting: 1, TrainRatio: 0.8, ValRatio: 0.1, AugmentReplicates: 1, MaxWorkers: 1}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero top k", mutate: func(c *Config) { c.TopK = 0 }, wantErr: true},
		{name: "zero min existing", mutate: func(c *Config) { c.MinExisting = 0 }, wantErr: true},
		{name: "ratio above one", mutate: func(c *Config) { c.TrainRatio = 1.5 }, wantErr: true},
		{name: "ratio sum above one", mutate: func(c *Config) { c.TrainRatio = 0.8; c.ValRatio = 0.3 }, wantErr: true},
		{name: "negative margin", mutate: func(c *Config) { c.CropMargin = -1 }, wantErr: true},
		{name: "no workers", mutate: func(c *Config) { c.MaxWorkers = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
