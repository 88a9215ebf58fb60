package main

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melody-ding/go-signprep/internal/config"
	"github.com/melody-ding/go-signprep/internal/manifest"
	"github.com/melody-ding/go-signprep/internal/pipeline"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		CatalogPath:    filepath.Join(dir, "catalog.json"),
		SourceVideoDir: filepath.Join(dir, "missing-videos"),
		OutputDir:      filepath.Join(dir, "WLASL2"),
		TopK:           2,
		MinExisting:    1,
		TrainRatio:     0.8,
		ValRatio:       0.1,
		SplitSeed:      42,
		ManifestDB:     filepath.Join(dir, "manifest.db"),
		LogLevel:       "error",
	}
}

func TestRunFailureClosesManifest(t *testing.T) {
	cfg := testConfig(t)

	err := run("build", cfg, shardArgs{})
	require.ErrorIs(t, err, pipeline.ErrSourceMissing)

	db, err := sql.Open("sqlite3", cfg.ManifestDB)
	require.NoError(t, err)
	defer db.Close()

	var kind, status string
	var finished sql.NullTime
	require.NoError(t, db.QueryRow(`SELECT kind, status, finished_at FROM runs`).Scan(&kind, &status, &finished))
	assert.Equal(t, manifest.KindBuild, kind)
	assert.Equal(t, manifest.StatusFailed, status)
	assert.True(t, finished.Valid)
}

func TestRunStatsMissingDir(t *testing.T) {
	cfg := testConfig(t)
	cfg.AugmentOutputDir = filepath.Join(t.TempDir(), "nope")

	err := run("stats", cfg, shardArgs{})
	assert.ErrorContains(t, err, "count videos")
}

func TestRunExtract(t *testing.T) {
	cfg := testConfig(t)
	tree := filepath.Join(t.TempDir(), "aug")
	require.NoError(t, os.MkdirAll(filepath.Join(tree, "hello"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tree, "hello", "v.1_AUG1_mirror_gray.mp4"), []byte("video"), 0o644))

	cfg.AugmentOutputDir = tree
	cfg.ShardSize = 5
	require.NoError(t, run("shard", cfg, shardArgs{}))

	restored := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, run("extract", cfg, shardArgs{
		extractDir: restored,
		shards:     []string{filepath.Join(tree+"_shards", "shard_00000.tar")},
	}))
	assert.FileExists(t, filepath.Join(restored, "hello", "v.1_AUG1_mirror_gray.mp4"))
}
