package sharding

import (
	"archive/tar"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ShardPattern names shard files by their zero-based index
const ShardPattern = "shard_%05d.tar"

// sampleExts are the per-sample files packed next to each other. A sample
// is kept only when its .mp4 exists.
var sampleExts = []string{".mp4", ".npy", ".json"}

// Sample is one video of a class tree together with its sibling files
type Sample struct {
	Class      string
	ClassIndex int
	Stem       string
	Files      []string
}

// Key is the WebDataset sample key, "<class>/<stem>"
func (s Sample) Key() string {
	return s.Class + "/" + s.Stem
}

// ShardReport lists the shards written by CreateShards
type ShardReport struct {
	Shards  []string
	Samples int
	Classes []string
}

// CollectSamples walks root/<class>/ and returns every video sample in
// class then name order. Class indices follow the sorted class names.
func CollectSamples(fs afero.Fs, root string) ([]Sample, []string, error) {
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", root, err)
	}

	var classes []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			classes = append(classes, e.Name())
		}
	}
	sort.Strings(classes)

	var samples []Sample
	for idx, class := range classes {
		dir := filepath.Join(root, class)
		files, err := afero.ReadDir(fs, dir)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", dir, err)
		}

		byStem := map[string][]string{}
		var stems []string
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || strings.HasPrefix(name, ".") {
				continue
			}
			ext := strings.ToLower(filepath.Ext(name))
			if !knownExt(ext) {
				continue
			}
			stem := strings.TrimSuffix(name, filepath.Ext(name))
			if ext == ".mp4" {
				stems = append(stems, stem)
			}
			byStem[stem] = append(byStem[stem], filepath.Join(dir, name))
		}
		sort.Strings(stems)

		for _, stem := range stems {
			paths := byStem[stem]
			sort.Strings(paths)
			samples = append(samples, Sample{Class: class, ClassIndex: idx, Stem: stem, Files: paths})
		}
	}
	return samples, classes, nil
}

func knownExt(ext string) bool {
	for _, e := range sampleExts {
		if e == ext {
			return true
		}
	}
	return false
}

// Labeler maps a class name to the index written in its .cls entries, or
// -1 when the class has no label
type Labeler func(class string) int

// CreateShards packs the class tree under inputDir into tar shards of at
// most shardSize samples. Every sample contributes its files plus a .cls
// entry holding the class index.
func CreateShards(fs afero.Fs, inputDir, outputDir string, shardSize int, logger *zap.Logger) (ShardReport, error) {
	return CreateLabeledShards(fs, inputDir, outputDir, shardSize, nil, logger)
}

// CreateLabeledShards is CreateShards with class indices taken from label
// instead of the sorted class order. A nil label keeps the sorted order.
func CreateLabeledShards(fs afero.Fs, inputDir, outputDir string, shardSize int, label Labeler, logger *zap.Logger) (ShardReport, error) {
	if shardSize < 1 {
		return ShardReport{}, fmt.Errorf("shard size must be positive, got %d", shardSize)
	}

	samples, classes, err := CollectSamples(fs, inputDir)
	if err != nil {
		return ShardReport{}, err
	}
	if label != nil {
		for i := range samples {
			idx := label(samples[i].Class)
			if idx < 0 {
				return ShardReport{}, fmt.Errorf("class %q has no label", samples[i].Class)
			}
			samples[i].ClassIndex = idx
		}
	}
	report := ShardReport{Samples: len(samples), Classes: classes}

	if err := fs.MkdirAll(outputDir, 0o755); err != nil {
		return report, fmt.Errorf("create %s: %w", outputDir, err)
	}

	numShards := (len(samples) + shardSize - 1) / shardSize
	for i := 0; i < numShards; i++ {
		start := i * shardSize
		end := start + shardSize
		if end > len(samples) {
			end = len(samples)
		}

		shardPath := filepath.Join(outputDir, fmt.Sprintf(ShardPattern, i))
		if err := createShard(fs, shardPath, samples[start:end]); err != nil {
			return report, fmt.Errorf("create shard %d: %w", i, err)
		}
		report.Shards = append(report.Shards, shardPath)
		logger.Debug("shard written", zap.String("shard", shardPath), zap.Int("samples", end-start))
	}

	logger.Info("shards written",
		zap.Int("shards", len(report.Shards)),
		zap.Int("samples", report.Samples),
		zap.Int("classes", len(classes)),
	)
	return report, nil
}

func createShard(fs afero.Fs, shardPath string, samples []Sample) error {
	f, err := fs.Create(shardPath)
	if err != nil {
		return err
	}
	defer f.Close()

	tw := tar.NewWriter(f)
	for _, s := range samples {
		for _, path := range s.Files {
			data, err := afero.ReadFile(fs, path)
			if err != nil {
				return fmt.Errorf("read sample %s: %w", path, err)
			}
			name := s.Key() + strings.ToLower(filepath.Ext(path))
			if err := writeEntry(tw, name, data); err != nil {
				return err
			}
		}
		if err := writeEntry(tw, s.Key()+".cls", []byte(strconv.Itoa(s.ClassIndex))); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	return f.Close()
}

func writeEntry(tw *tar.Writer, name string, data []byte) error {
	header := &tar.Header{
		Name: name,
		Mode: 0o644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
