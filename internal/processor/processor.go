package processor

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/melody-ding/go-signprep/internal/metrics"
	"github.com/melody-ding/go-signprep/internal/numpy"
	"github.com/melody-ding/go-signprep/internal/types"
)

// Decoder reads a video file into a clip
type Decoder interface {
	Decode(ctx context.Context, path string) (types.Clip, error)
}

// Encoder writes a clip to a video file
type Encoder interface {
	Encode(ctx context.Context, clip types.Clip, path string) error
}

// Options tune the augmentation worker
type Options struct {
	CropMargin int
	Seed       int64
	Buckets    []Bucket
	Picks      int
	WriteNPY   bool
}

// DefaultOptions crops 75 pixels per side and mixes two of the default buckets
func DefaultOptions() Options {
	return Options{
		CropMargin: DefaultCropMargin,
		Seed:       42,
		Buckets:    DefaultBuckets,
		Picks:      DefaultPicks,
	}
}

// Result lists what one job wrote
type Result struct {
	Base    string
	Source  string
	Outputs []types.ClipMetadata
}

type Processor struct {
	decoder Decoder
	encoder Encoder
	opts    Options
	logger  *zap.Logger
}

func NewProcessor(decoder Decoder, encoder Encoder, opts Options, logger *zap.Logger) *Processor {
	if len(opts.Buckets) == 0 {
		opts.Buckets = DefaultBuckets
	}
	if opts.Picks <= 0 {
		opts.Picks = DefaultPicks
	}
	return &Processor{decoder: decoder, encoder: encoder, opts: opts, logger: logger}
}

// OutputName names replicate i (1-based) of stem after the tags in the
// order they were applied
func OutputName(stem string, i int, tags []string) string {
	return fmt.Sprintf("%s_AUG%d_%s.mp4", stem, i, strings.Join(tags, "_"))
}

// JobSeed derives the generator seed of a job from the run seed and the
// class-relative source path, so a job draws the same augmentations no
// matter which worker runs it or when
func JobSeed(seed int64, source string) int64 {
	h := fnv.New64a()
	h.Write([]byte(filepath.Base(filepath.Dir(source))))
	h.Write([]byte{'/'})
	h.Write([]byte(filepath.Base(source)))
	return seed ^ int64(h.Sum64())
}

// ProcessVideo decodes job.Source once, crops it once and writes
// job.Replicates augmented variants into job.OutputDir. A source without
// frames writes nothing and is not an error.
func (p *Processor) ProcessVideo(ctx context.Context, job types.Job) (*Result, error) {
	base := filepath.Base(job.Source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	result := &Result{Base: stem, Source: job.Source}
	log := p.logger.With(zap.String("video", job.Source))

	clip, err := p.decoder.Decode(ctx, job.Source)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", base, err)
	}
	if clip.Len() == 0 {
		log.Warn("video has no frames, nothing written")
		return result, nil
	}

	cropped, err := CropBorder(clip, p.opts.CropMargin)
	if err != nil {
		return nil, fmt.Errorf("crop %s: %w", base, err)
	}

	rng := rand.New(rand.NewSource(JobSeed(p.opts.Seed, job.Source)))
	sampler := NewSampler(p.opts.Buckets, p.opts.Picks, rng)

	for i := 1; i <= job.Replicates; i++ {
		tags := sampler.Sample()
		transforms := make([]Transform, len(tags))
		for j, tag := range tags {
			transforms[j] = FromTag(tag, rng)
		}

		// every replicate starts from the shared cropped frames
		out, err := ComposeTransforms(transforms...).Apply(cropped)
		if err != nil {
			return nil, fmt.Errorf("augment %s replicate %d: %w", base, i, err)
		}
		if out.Len() == 0 {
			log.Warn("replicate has no frames, skipping", zap.Int("replicate", i))
			continue
		}

		name := OutputName(stem, i, tags)
		path := filepath.Join(job.OutputDir, name)
		if err := p.encoder.Encode(ctx, out, path); err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		if p.opts.WriteNPY {
			if err := writeNPY(strings.TrimSuffix(path, ".mp4")+".npy", out); err != nil {
				return nil, err
			}
		}

		w, h := out.Size()
		result.Outputs = append(result.Outputs, types.ClipMetadata{
			Key:        strings.TrimSuffix(name, ".mp4"),
			Source:     job.Source,
			Path:       path,
			Replicate:  i,
			Transforms: tags,
			FPS:        out.FPS,
			FrameCount: out.Len(),
			Size:       []int{w, h},
		})
		metrics.AugmentedClipsTotal.Inc()
	}

	log.Debug("video augmented", zap.Int("outputs", len(result.Outputs)))
	return result, nil
}

func writeNPY(path string, clip types.Clip) error {
	w, err := numpy.NewWriter(path)
	if err != nil {
		return err
	}
	if err := w.WriteClip(clip); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return w.Close()
}
