package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/melody-ding/go-signprep/internal/metrics"
	"github.com/melody-ding/go-signprep/internal/types"
)

// ErrSourceMissing is returned when the source video directory does not exist
var ErrSourceMissing = errors.New("source directory not found")

// Recorder stores what a run did. *manifest.Manifest implements it.
type Recorder interface {
	StartRun(kind string) (string, error)
	FinishRun(runID string, runErr error) error
	RecordSelection(runID string, glosses []string) error
	RecordSplit(runID, class, split string, files []string) error
	RecordAugmentations(runID string, outputs []types.ClipMetadata) error
}

// TreePublisher uploads a directory tree. *publish.Publisher implements it.
type TreePublisher interface {
	PublishTree(ctx context.Context, fs afero.Fs, root string) (int, error)
}

// Pipeline runs the dataset stages against one filesystem. The recorder
// and publisher are optional.
type Pipeline struct {
	fs        afero.Fs
	recorder  Recorder
	publisher TreePublisher
	logger    *zap.Logger
}

func New(fs afero.Fs, logger *zap.Logger) *Pipeline {
	return &Pipeline{fs: fs, logger: logger}
}

// WithRecorder records every run in r
func (p *Pipeline) WithRecorder(r Recorder) *Pipeline {
	p.recorder = r
	return p
}

// WithPublisher uploads the produced trees through pub
func (p *Pipeline) WithPublisher(pub TreePublisher) *Pipeline {
	p.publisher = pub
	return p
}

func (p *Pipeline) startRun(kind string) (string, error) {
	if p.recorder == nil {
		return "", nil
	}
	id, err := p.recorder.StartRun(kind)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	p.logger.Info("run started", zap.String("run_id", id), zap.String("kind", kind))
	return id, nil
}

func (p *Pipeline) finishRun(runID string, runErr error) error {
	if p.recorder == nil || runID == "" {
		return runErr
	}
	if err := p.recorder.FinishRun(runID, runErr); err != nil {
		return errors.Join(runErr, fmt.Errorf("finish run: %w", err))
	}
	return runErr
}

func (p *Pipeline) publish(ctx context.Context, roots ...string) (int, error) {
	if p.publisher == nil {
		return 0, nil
	}
	total := 0
	for _, root := range roots {
		n, err := p.publisher.PublishTree(ctx, p.fs, root)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// stage times fn under the given stage label
func stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}
