package sharding

import (
	"archive/tar"
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeTree(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for p, body := range files {
		require.NoError(t, afero.WriteFile(fs, p, []byte(body), 0o644))
	}
}

func classTree() map[string]string {
	return map[string]string{
		"aug/world/w1.mp4":        "w1",
		"aug/hello/h2.mp4":        "h2-video",
		"aug/hello/h1.mp4":        "h1",
		"aug/hello/h1.npy":        "h1-frames",
		"aug/hello/orphan.npy":    "no video",
		"aug/hello/.h3.mp4":       "hidden",
		"aug/hello/readme.txt":    "skip",
		"aug/.trash/gone.mp4":     "hidden class",
		"aug/thanks/t1_AUG1.MP4":  "t1",
		"aug/thanks/t1_AUG1.json": "{}",
		"aug/thanks/t1_AUG2.mp4":  "t2",
		"aug/thanks/t1_AUG3.mp4":  "t3",
		"aug/thanks/t1_AUG4.mp4":  "t4",
		"aug/thanks/t1_AUG5.mp4":  "t5",
	}
}

func TestCollectSamples(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, classTree())

	samples, classes, err := CollectSamples(fs, "aug")
	require.NoError(t, err)
	assert.Equal(t, []string{"hello", "thanks", "world"}, classes)
	require.Len(t, samples, 8)

	assert.Equal(t, "hello/h1", samples[0].Key())
	assert.Equal(t, []string{
		filepath.Join("aug", "hello", "h1.mp4"),
		filepath.Join("aug", "hello", "h1.npy"),
	}, samples[0].Files)
	assert.Equal(t, "hello/h2", samples[1].Key())
	assert.Equal(t, 1, samples[2].ClassIndex)
	assert.Len(t, samples[2].Files, 2)
	assert.Equal(t, "world/w1", samples[7].Key())
	assert.Equal(t, 2, samples[7].ClassIndex)
}

func TestCreateShardsAndReadIndex(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, classTree())

	report, err := CreateShards(fs, "aug", "shards", 3, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 8, report.Samples)
	require.Equal(t, []string{
		filepath.Join("shards", "shard_00000.tar"),
		filepath.Join("shards", "shard_00001.tar"),
		filepath.Join("shards", "shard_00002.tar"),
	}, report.Shards)

	first, err := ReadIndex(fs, report.Shards[0])
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, Entry{Key: "hello/h1", Class: "hello", ClassIndex: 0, Exts: []string{".mp4", ".npy"}, Size: 11}, first[0])
	assert.Equal(t, "thanks/t1_AUG1", first[2].Key)
	assert.Equal(t, []string{".mp4", ".json"}, first[2].Exts)
	assert.Equal(t, 1, first[2].ClassIndex)

	last, err := ReadIndex(fs, report.Shards[2])
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, Entry{Key: "world/w1", Class: "world", ClassIndex: 2, Exts: []string{".mp4"}, Size: 2}, last[1])

	total := 0
	for _, s := range report.Shards {
		entries, err := ReadIndex(fs, s)
		require.NoError(t, err)
		total += len(entries)
	}
	assert.Equal(t, report.Samples, total)
}

func TestCreateShardsRejectsBadSize(t *testing.T) {
	_, err := CreateShards(afero.NewMemMapFs(), "aug", "shards", 0, zap.NewNop())
	assert.Error(t, err)
}

func TestCreateShardsEmptyTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("aug", 0o755))

	report, err := CreateShards(fs, "aug", "shards", 10, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, report.Shards)
	assert.Zero(t, report.Samples)
}

func TestExtractRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, classTree())

	report, err := CreateShards(fs, "aug", "shards", 100, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, report.Shards, 1)

	n, err := Extract(fs, report.Shards[0], "restored")
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	data, err := afero.ReadFile(fs, "restored/hello/h1.npy")
	require.NoError(t, err)
	assert.Equal(t, "h1-frames", string(data))

	// extensions are lower-cased on the way in
	data, err = afero.ReadFile(fs, "restored/thanks/t1_AUG1.mp4")
	require.NoError(t, err)
	assert.Equal(t, "t1", string(data))

	ok, _ := afero.Exists(fs, "restored/hello/h1.cls")
	assert.False(t, ok)
}

func TestReadIndexSkipsAppleDouble(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, writeEntry(tw, "hello/a.mp4", []byte("dummy video data")))
	require.NoError(t, writeEntry(tw, "hello/._a.mp4", []byte("hidden file data")))
	require.NoError(t, writeEntry(tw, "hello/a.cls", []byte("4\n")))
	require.NoError(t, tw.Close())

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "s.tar", buf.Bytes(), 0o644))

	entries, err := ReadIndex(fs, "s.tar")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 4, entries[0].ClassIndex)
	assert.Equal(t, int64(16), entries[0].Size)
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	require.NoError(t, writeEntry(tw, "../../etc/evil.mp4", []byte("x")))
	require.NoError(t, tw.Close())

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "s.tar", buf.Bytes(), 0o644))

	_, err := Extract(fs, "s.tar", "restored")
	assert.Error(t, err)
}

func TestShardsKeepDottedStemsApart(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, map[string]string{
		"aug/hello/v.1_AUG1_mirror_zoom.mp4": "first",
		"aug/hello/v.1_AUG1_mirror_zoom.npy": "first-frames",
		"aug/hello/v.2_AUG1_mirror_zoom.mp4": "second",
	})

	report, err := CreateShards(fs, "aug", "shards", 10, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Samples)

	entries, err := ReadIndex(fs, report.Shards[0])
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Key: "hello/v.1_AUG1_mirror_zoom", Class: "hello", ClassIndex: 0, Exts: []string{".mp4", ".npy"}, Size: 17}, entries[0])
	assert.Equal(t, "hello/v.2_AUG1_mirror_zoom", entries[1].Key)
	assert.Equal(t, []string{".mp4"}, entries[1].Exts)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		name string
		key  string
		ext  string
	}{
		{"hello/a.mp4", "hello/a", ".mp4"},
		{"hello/v.1_AUG2.npy", "hello/v.1_AUG2", ".npy"},
		{"hello/v.1.cls", "hello/v.1", ".cls"},
		{"hello/a.seg.png", "hello/a", ".seg.png"},
		{"hello/noext", "hello/noext", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ext := splitName(tt.name)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestCreateLabeledShards(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTree(t, fs, classTree())
	names := []string{"world", "thanks", "hello"}
	label := func(class string) int {
		for i, n := range names {
			if n == class {
				return i
			}
		}
		return -1
	}

	report, err := CreateLabeledShards(fs, "aug", "shards", 100, label, zap.NewNop())
	require.NoError(t, err)

	entries, err := ReadIndex(fs, report.Shards[0])
	require.NoError(t, err)
	require.Len(t, entries, 8)
	assert.Equal(t, "hello/h1", entries[0].Key)
	assert.Equal(t, 2, entries[0].ClassIndex)
	assert.Equal(t, 0, entries[7].ClassIndex)

	_, err = CreateLabeledShards(fs, "aug", "shards2", 100, func(string) int { return -1 }, zap.NewNop())
	assert.ErrorContains(t, err, "has no label")
}
