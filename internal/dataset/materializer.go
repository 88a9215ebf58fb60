package dataset

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/melody-ding/go-signprep/internal/catalog"
	"github.com/melody-ding/go-signprep/internal/metrics"
)

// MaterializeStats counts what happened to each instance of the selected classes
type MaterializeStats struct {
	Copied  int
	Missing int
	Present int
}

type Materializer struct {
	fs        afero.Fs
	sourceDir string
	outputDir string
	logger    *zap.Logger
}

func NewMaterializer(fs afero.Fs, sourceDir, outputDir string, logger *zap.Logger) *Materializer {
	return &Materializer{fs: fs, sourceDir: sourceDir, outputDir: outputDir, logger: logger}
}

// Materialize copies every existing source video of the given glosses to
// outputDir/<gloss>/<video_id>.mp4. Missing sources and destinations that
// already exist are skipped, so running it twice leaves the same tree.
func (m *Materializer) Materialize(c *catalog.Catalog, glosses []string) (MaterializeStats, error) {
	var stats MaterializeStats

	if err := m.fs.MkdirAll(m.outputDir, 0755); err != nil {
		return stats, fmt.Errorf("create output dir: %w", err)
	}

	wanted := make(map[string]bool, len(glosses))
	for _, g := range glosses {
		wanted[g] = true
	}

	for _, entry := range c.Entries {
		if !wanted[entry.Gloss] {
			continue
		}

		classDir := filepath.Join(m.outputDir, entry.Gloss)
		if err := m.fs.MkdirAll(classDir, 0755); err != nil {
			return stats, fmt.Errorf("create class dir %s: %w", entry.Gloss, err)
		}

		for _, inst := range entry.Instances {
			src := SourcePath(m.sourceDir, inst.VideoID)
			dst := filepath.Join(classDir, inst.VideoID+videoExt)

			if !isFile(m.fs, src) {
				stats.Missing++
				metrics.VideosMaterializedTotal.WithLabelValues("missing").Inc()
				continue
			}
			if isFile(m.fs, dst) {
				stats.Present++
				metrics.VideosMaterializedTotal.WithLabelValues("present").Inc()
				continue
			}

			if err := copyFile(m.fs, src, dst); err != nil {
				return stats, fmt.Errorf("copy %s: %w", inst.VideoID, err)
			}
			stats.Copied++
			metrics.VideosMaterializedTotal.WithLabelValues("copied").Inc()
		}
	}

	m.logger.Info("videos materialized",
		zap.String("output_dir", m.outputDir),
		zap.Int("copied", stats.Copied),
		zap.Int("missing", stats.Missing),
		zap.Int("already_present", stats.Present),
	)
	return stats, nil
}
