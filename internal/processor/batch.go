package processor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/melody-ding/go-signprep/internal/metrics"
	"github.com/melody-ding/go-signprep/internal/types"
)

// JobRunner processes one augmentation job. *Processor implements it.
type JobRunner interface {
	ProcessVideo(ctx context.Context, job types.Job) (*Result, error)
}

// JobFailure records a job that returned an error or panicked
type JobFailure struct {
	Source string
	Err    error
}

// BatchReport summarizes a batch run
type BatchReport struct {
	Total     int
	Processed int
	Failed    int
	Outputs   int
	Failures  []JobFailure
	Results   []*Result
}

// WorkerCount caps maxWorkers at the number of CPUs, never going below one
func WorkerCount(maxWorkers int) int {
	n := runtime.NumCPU()
	if maxWorkers > 0 && maxWorkers < n {
		n = maxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// DiscoverJobs lists inputRoot/<class>/*.mp4 in sorted order and creates
// outputRoot/<class> for every class found. Hidden entries are skipped.
func DiscoverJobs(fs afero.Fs, inputRoot, outputRoot string, replicates int) ([]types.Job, error) {
	entries, err := afero.ReadDir(fs, inputRoot)
	if err != nil {
		return nil, fmt.Errorf("read input root: %w", err)
	}

	var classes []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			classes = append(classes, e.Name())
		}
	}
	sort.Strings(classes)

	var jobs []types.Job
	for _, class := range classes {
		outDir := filepath.Join(outputRoot, class)
		if err := fs.MkdirAll(outDir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", outDir, err)
		}

		files, err := afero.ReadDir(fs, filepath.Join(inputRoot, class))
		if err != nil {
			return nil, fmt.Errorf("read class %s: %w", class, err)
		}
		var names []string
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".mp4") {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			jobs = append(jobs, types.Job{
				Source:     filepath.Join(inputRoot, class, name),
				OutputDir:  outDir,
				Replicates: replicates,
			})
		}
	}
	return jobs, nil
}

// Batch runs jobs across a fixed pool of workers
type Batch struct {
	runner   JobRunner
	workers  int
	logger   *zap.Logger
	progress io.Writer
}

// NewBatch builds a driver with WorkerCount(maxWorkers) workers. Progress
// is drawn on stderr until SetProgressWriter says otherwise.
func NewBatch(runner JobRunner, maxWorkers int, logger *zap.Logger) *Batch {
	return &Batch{
		runner:   runner,
		workers:  WorkerCount(maxWorkers),
		logger:   logger,
		progress: os.Stderr,
	}
}

// SetProgressWriter redirects the progress bar, io.Discard hides it
func (b *Batch) SetProgressWriter(w io.Writer) {
	b.progress = w
}

// Run processes every job. A failing job is logged and counted while the
// others carry on. Cancelling ctx stops dispatch; jobs already running finish.
func (b *Batch) Run(ctx context.Context, jobs []types.Job) BatchReport {
	report := BatchReport{Total: len(jobs)}
	if len(jobs) == 0 {
		return report
	}

	bar := progressbar.NewOptions(len(jobs),
		progressbar.OptionSetWriter(b.progress),
		progressbar.OptionSetDescription("Augmenting"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
	)

	b.logger.Info("starting worker pool",
		zap.Int("workers", b.workers),
		zap.Int("jobs", len(jobs)),
	)

	queue := make(chan types.Job)
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for i := 0; i < b.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			log := b.logger.With(zap.Int("worker_id", id))
			for job := range queue {
				res, err := b.runJob(ctx, job)

				mu.Lock()
				if err != nil {
					log.Warn("augmentation failed", zap.String("video", job.Source), zap.Error(err))
					report.Failed++
					report.Failures = append(report.Failures, JobFailure{Source: job.Source, Err: err})
					metrics.AugmentJobsTotal.WithLabelValues("failed").Inc()
				} else {
					report.Processed++
					report.Outputs += len(res.Outputs)
					report.Results = append(report.Results, res)
					metrics.AugmentJobsTotal.WithLabelValues("processed").Inc()
				}
				mu.Unlock()
				_ = bar.Add(1)
			}
		}(i)
	}

dispatch:
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case queue <- job:
		}
	}
	if ctx.Err() != nil {
		b.logger.Info("context cancelled, waiting for workers to finish")
	}
	close(queue)
	wg.Wait()
	_ = bar.Finish()

	// results arrive in completion order
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Source < report.Results[j].Source
	})
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Source < report.Failures[j].Source
	})

	b.logger.Info("augmentation finished",
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed),
		zap.Int("total", report.Total),
		zap.Int("outputs", report.Outputs),
	)
	return report
}

func (b *Batch) runJob(ctx context.Context, job types.Job) (res *Result, err error) {
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	res, err = b.runner.ProcessVideo(ctx, job)
	if err == nil && res == nil {
		res = &Result{Source: job.Source}
	}
	return res, err
}
