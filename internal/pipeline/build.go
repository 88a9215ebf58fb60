package pipeline

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/melody-ding/go-signprep/internal/catalog"
	"github.com/melody-ding/go-signprep/internal/dataset"
	"github.com/melody-ding/go-signprep/internal/manifest"
)

type BuildOptions struct {
	CatalogPath string
	SourceDir   string
	OutputDir   string
	TopK        int
	MinExisting int
	Ratios      dataset.Ratios
	Seed        int64
}

type BuildResult struct {
	RunID        string
	Selected     []string
	Materialized dataset.MaterializeStats
	Split        *dataset.SplitReport
	Descriptor   dataset.Descriptor
	Published    int
}

// Build selects the top classes of the catalog, copies their videos into
// OutputDir/<class>/, writes the data.yaml descriptor and splits the tree
// into the _train, _val and _test siblings of OutputDir.
func (p *Pipeline) Build(ctx context.Context, opts BuildOptions) (res *BuildResult, err error) {
	runID, err := p.startRun(manifest.KindBuild)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = p.finishRun(runID, err)
	}()

	res = &BuildResult{RunID: runID}
	log := p.logger.With(zap.String("output_dir", opts.OutputDir))

	ok, err := afero.DirExists(p.fs, opts.SourceDir)
	if err != nil {
		return nil, fmt.Errorf("stat source directory: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, opts.SourceDir)
	}

	var cat *catalog.Catalog
	err = stage("select", func() error {
		var err error
		cat, err = catalog.Load(p.fs, opts.CatalogPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		sel := dataset.NewSelector(p.fs, opts.SourceDir, opts.MinExisting, p.logger)
		res.Selected = sel.Select(cat, opts.TopK)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info("classes selected", zap.Int("selected", len(res.Selected)), zap.Int("requested", opts.TopK))

	if p.recorder != nil {
		if err := p.recorder.RecordSelection(runID, res.Selected); err != nil {
			return nil, fmt.Errorf("record selection: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = stage("materialize", func() error {
		m := dataset.NewMaterializer(p.fs, opts.SourceDir, opts.OutputDir, p.logger)
		stats, err := m.Materialize(cat, res.Selected)
		res.Materialized = stats
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("materialize: %w", err)
	}

	roots := dataset.SplitRoots(opts.OutputDir)
	res.Descriptor = dataset.NewDescriptor(roots, res.Selected)
	if err := dataset.SaveDescriptor(p.fs, res.Descriptor, opts.OutputDir); err != nil {
		return nil, fmt.Errorf("write descriptor: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = stage("split", func() error {
		s := dataset.NewSplitter(p.fs, opts.OutputDir, roots, opts.Ratios, opts.Seed, p.logger)
		report, err := s.Run()
		res.Split = report
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}

	if p.recorder != nil {
		for _, cs := range res.Split.Classes {
			for _, split := range dataset.Splits {
				if err := p.recorder.RecordSplit(runID, cs.Class, string(split), cs.Files(split)); err != nil {
					return nil, fmt.Errorf("record split of %s: %w", cs.Class, err)
				}
			}
		}
	}

	err = stage("publish", func() error {
		n, err := p.publish(ctx, roots[dataset.SplitTrain], roots[dataset.SplitVal], roots[dataset.SplitTest])
		res.Published = n
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info("build complete",
		zap.Int("classes", len(res.Split.Classes)),
		zap.Int("copied", res.Materialized.Copied),
		zap.Int("train", res.Split.Totals[dataset.SplitTrain]),
		zap.Int("val", res.Split.Totals[dataset.SplitVal]),
		zap.Int("test", res.Split.Totals[dataset.SplitTest]),
	)
	return res, nil
}
