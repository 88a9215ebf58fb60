package dataset

import (
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/melody-ding/go-signprep/internal/catalog"
	"github.com/melody-ding/go-signprep/internal/metrics"
)

// Existence thresholds. A class needs MinExistingForSplit videos on disk so
// that each of train, val and test can receive at least one.
const (
	MinExistingSimple   = 1
	MinExistingForSplit = 3
)

// SourcePath returns where the source video of videoID lives
func SourcePath(sourceDir, videoID string) string {
	return filepath.Join(sourceDir, videoID+videoExt)
}

type Selector struct {
	fs          afero.Fs
	sourceDir   string
	minExisting int
	logger      *zap.Logger
}

func NewSelector(fs afero.Fs, sourceDir string, minExisting int, logger *zap.Logger) *Selector {
	if minExisting < 1 {
		minExisting = MinExistingSimple
	}
	return &Selector{fs: fs, sourceDir: sourceDir, minExisting: minExisting, logger: logger}
}

// Select walks the glosses by descending instance count (ties in first-seen
// catalog order) and returns up to k of them that have at least the
// configured number of source videos present. Returning fewer than k is
// not an error.
func (s *Selector) Select(c *catalog.Catalog, k int) []string {
	var selected []string
	if k <= 0 {
		return selected
	}

	ft := c.Frequencies()
	for _, gloss := range ft.Ranked() {
		if s.hasEnoughVideos(c, gloss) {
			selected = append(selected, gloss)
			if len(selected) >= k {
				break
			}
			continue
		}
		s.logger.Debug("class skipped, not enough source videos",
			zap.String("class", gloss),
			zap.Int("instances", ft.Counts[gloss]),
		)
	}

	metrics.ClassesSelectedTotal.Add(float64(len(selected)))
	if len(selected) < k {
		s.logger.Warn("fewer classes than requested have enough videos",
			zap.Int("requested", k),
			zap.Int("selected", len(selected)),
		)
	}
	return selected
}

func (s *Selector) hasEnoughVideos(c *catalog.Catalog, gloss string) bool {
	found := 0
	for _, inst := range c.Instances(gloss) {
		if !isFile(s.fs, SourcePath(s.sourceDir, inst.VideoID)) {
			continue
		}
		found++
		if found >= s.minExisting {
			return true
		}
	}
	return false
}
