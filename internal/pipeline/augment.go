package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/melody-ding/go-signprep/internal/dataset"
	"github.com/melody-ding/go-signprep/internal/manifest"
	"github.com/melody-ding/go-signprep/internal/processor"
	"github.com/melody-ding/go-signprep/internal/sharding"
	"github.com/melody-ding/go-signprep/internal/types"
)

type AugmentOptions struct {
	InputDir   string
	OutputDir  string
	Replicates int
	MaxWorkers int
	// ShardSize > 0 also packs the output into <OutputDir>_shards
	ShardSize int
	// Progress receives the progress bar, nil keeps the default
	Progress io.Writer
}

type AugmentResult struct {
	RunID     string
	Report    processor.BatchReport
	Shards    *sharding.ShardReport
	Published int
}

// Augment runs runner over every video of InputDir/<class>/ and writes
// the replicates to OutputDir/<class>/. Failed videos are reported but do
// not fail the run.
func (p *Pipeline) Augment(ctx context.Context, runner processor.JobRunner, opts AugmentOptions) (res *AugmentResult, err error) {
	runID, err := p.startRun(manifest.KindAugment)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = p.finishRun(runID, err)
	}()
	res = &AugmentResult{RunID: runID}

	jobs, err := processor.DiscoverJobs(p.fs, opts.InputDir, opts.OutputDir, opts.Replicates)
	if err != nil {
		return nil, fmt.Errorf("discover videos: %w", err)
	}
	p.logger.Info("videos discovered", zap.String("input_dir", opts.InputDir), zap.Int("videos", len(jobs)))

	batch := processor.NewBatch(runner, opts.MaxWorkers, p.logger)
	if opts.Progress != nil {
		batch.SetProgressWriter(opts.Progress)
	}
	_ = stage("augment", func() error {
		res.Report = batch.Run(ctx, jobs)
		return nil
	})
	for _, f := range res.Report.Failures {
		p.logger.Warn("video not augmented", zap.String("video", f.Source), zap.Error(f.Err))
	}

	if p.recorder != nil {
		var outputs []types.ClipMetadata
		for _, r := range res.Report.Results {
			outputs = append(outputs, r.Outputs...)
		}
		if err := p.recorder.RecordAugmentations(runID, outputs); err != nil {
			return nil, fmt.Errorf("record augmentations: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	roots := []string{opts.OutputDir}
	if opts.ShardSize > 0 {
		shardDir := filepath.Clean(opts.OutputDir) + "_shards"
		err = stage("shard", func() error {
			report, err := p.Shard(ShardOptions{InputDir: opts.OutputDir, OutputDir: shardDir, Size: opts.ShardSize})
			res.Shards = report
			return err
		})
		if err != nil {
			return nil, err
		}
		roots = append(roots, shardDir)
	}

	err = stage("publish", func() error {
		n, err := p.publish(ctx, roots...)
		res.Published = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

type ShardOptions struct {
	InputDir  string
	OutputDir string
	Size      int
	// DescriptorDir, when set, holds the data.yaml whose class names give
	// the .cls indices. Otherwise classes are numbered in sorted order.
	DescriptorDir string
}

// Shard packs the class tree under InputDir into tar shards and reads each
// shard back to check that every sample landed with its label
func (p *Pipeline) Shard(opts ShardOptions) (*sharding.ShardReport, error) {
	var label sharding.Labeler
	if opts.DescriptorDir != "" {
		d, err := dataset.LoadDescriptor(p.fs, opts.DescriptorDir)
		if err != nil {
			return nil, fmt.Errorf("load descriptor: %w", err)
		}
		label = d.ClassIndex
	}

	report, err := sharding.CreateLabeledShards(p.fs, opts.InputDir, opts.OutputDir, opts.Size, label, p.logger)
	if err != nil {
		return nil, fmt.Errorf("create shards: %w", err)
	}

	indexed := 0
	for _, s := range report.Shards {
		entries, err := sharding.ReadIndex(p.fs, s)
		if err != nil {
			return nil, fmt.Errorf("verify %s: %w", s, err)
		}
		for _, e := range entries {
			if label != nil && e.ClassIndex != label(e.Class) {
				return nil, fmt.Errorf("verify %s: %s labeled %d, descriptor says %d", s, e.Key, e.ClassIndex, label(e.Class))
			}
		}
		indexed += len(entries)
	}
	if indexed != report.Samples {
		return nil, fmt.Errorf("shards hold %d samples, expected %d", indexed, report.Samples)
	}
	return &report, nil
}

// Extract unpacks the shards into outputDir/<class>/ and returns the number
// of samples and files restored
func (p *Pipeline) Extract(outputDir string, shards ...string) (samples, files int, err error) {
	err = stage("extract", func() error {
		for _, s := range shards {
			entries, err := sharding.ReadIndex(p.fs, s)
			if err != nil {
				return fmt.Errorf("index %s: %w", s, err)
			}
			n, err := sharding.Extract(p.fs, s, outputDir)
			if err != nil {
				return fmt.Errorf("extract %s: %w", s, err)
			}
			p.logger.Debug("shard extracted", zap.String("shard", s), zap.Int("samples", len(entries)), zap.Int("files", n))
			samples += len(entries)
			files += n
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	p.logger.Info("shards extracted", zap.String("output_dir", outputDir), zap.Int("samples", samples), zap.Int("files", files))
	return samples, files, nil
}
