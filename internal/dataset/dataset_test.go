package dataset

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/melody-ding/go-signprep/internal/catalog"
	"github.com/melody-ding/go-signprep/internal/types"
)

const (
	sourceDir = "/wlasl/videos"
	outputDir = "/out/WLASL"
)

// newCatalog builds a catalog with one entry per gloss holding count
// instances whose video ids are "<gloss>-<i>"
func newCatalog(glosses []string, counts []int) *catalog.Catalog {
	c := &catalog.Catalog{}
	for i, g := range glosses {
		e := types.Entry{Gloss: g}
		for j := 0; j < counts[i]; j++ {
			e.Instances = append(e.Instances, types.Instance{VideoID: videoID(g, j)})
		}
		c.Entries = append(c.Entries, e)
	}
	return c
}

func videoID(gloss string, i int) string {
	return gloss + "-" + string(rune('a'+i/26)) + string(rune('a'+i%26))
}

// writeSources creates the first n source videos of gloss
func writeSources(t *testing.T, fs afero.Fs, gloss string, n int) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(sourceDir, 0755))
	for i := 0; i < n; i++ {
		id := videoID(gloss, i)
		require.NoError(t, afero.WriteFile(fs, SourcePath(sourceDir, id), []byte("video "+id), 0644))
	}
}

// writeClass creates a class directory holding the named files
func writeClass(t *testing.T, fs afero.Fs, root, class string, names ...string) {
	t.Helper()
	dir := filepath.Join(root, class)
	require.NoError(t, fs.MkdirAll(dir, 0755))
	for _, n := range names {
		require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, n), []byte(class+"/"+n), 0644))
	}
}

type fileState struct {
	data    string
	modTime time.Time
}

// snapshot records every regular file under root
func snapshot(t *testing.T, fs afero.Fs, root string) map[string]fileState {
	t.Helper()
	out := make(map[string]fileState)
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		b, err := afero.ReadFile(fs, path)
		if err != nil {
			return err
		}
		out[path] = fileState{data: string(b), modTime: info.ModTime()}
		return nil
	})
	require.NoError(t, err)
	return out
}
