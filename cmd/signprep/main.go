package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/melody-ding/go-signprep/internal/config"
	"github.com/melody-ding/go-signprep/internal/dataset"
	"github.com/melody-ding/go-signprep/internal/logger"
	"github.com/melody-ding/go-signprep/internal/manifest"
	"github.com/melody-ding/go-signprep/internal/metrics"
	"github.com/melody-ding/go-signprep/internal/pipeline"
	"github.com/melody-ding/go-signprep/internal/processor"
	"github.com/melody-ding/go-signprep/internal/publish"
	"github.com/melody-ding/go-signprep/internal/video"
)

const usage = `usage: signprep <command> [flags]

commands:
  build     select the top classes, copy their videos and split train/val/test
  augment   write augmented replicates of every video in a class tree
  stats     count the videos of each class in a class tree
  shard     pack a class tree into tar shards
  extract   unpack tar shards back into a class tree
`

// shardArgs holds the flags of the shard and extract commands that have no
// config counterpart
type shardArgs struct {
	descriptorDir string
	extractDir    string
	shards        []string
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	var sa shardArgs
	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "build":
		flags := flag.NewFlagSet("build", flag.ExitOnError)
		flags.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "path to the gloss catalog JSON")
		flags.StringVar(&cfg.SourceVideoDir, "videos", cfg.SourceVideoDir, "directory holding <video_id>.mp4 sources")
		flags.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "output root, split roots are its _train/_val/_test siblings")
		flags.IntVar(&cfg.TopK, "k", cfg.TopK, "number of classes to select")
		flags.IntVar(&cfg.MinExisting, "min-existing", cfg.MinExisting, "source videos a class needs on disk")
		flags.Float64Var(&cfg.TrainRatio, "train", cfg.TrainRatio, "train ratio")
		flags.Float64Var(&cfg.ValRatio, "val", cfg.ValRatio, "validation ratio")
		flags.Int64Var(&cfg.SplitSeed, "seed", cfg.SplitSeed, "split seed")
		flags.Parse(args)
	case "augment":
		flags := flag.NewFlagSet("augment", flag.ExitOnError)
		flags.StringVar(&cfg.AugmentInputDir, "in", cfg.AugmentInputDir, "class tree to augment")
		flags.StringVar(&cfg.AugmentOutputDir, "out", cfg.AugmentOutputDir, "where replicates are written")
		flags.IntVar(&cfg.AugmentReplicates, "n", cfg.AugmentReplicates, "replicates per video")
		flags.Int64Var(&cfg.AugmentSeed, "seed", cfg.AugmentSeed, "augmentation seed")
		flags.IntVar(&cfg.CropMargin, "crop", cfg.CropMargin, "pixels cropped from the left and right edges")
		flags.IntVar(&cfg.MaxWorkers, "workers", cfg.MaxWorkers, "maximum parallel workers")
		flags.BoolVar(&cfg.WriteNPY, "npy", cfg.WriteNPY, "also write each replicate as .npy")
		flags.IntVar(&cfg.ShardSize, "shard-size", cfg.ShardSize, "pack the output into shards of this many videos, 0 disables")
		flags.Parse(args)
	case "stats":
		flags := flag.NewFlagSet("stats", flag.ExitOnError)
		flags.StringVar(&cfg.AugmentOutputDir, "dir", cfg.AugmentOutputDir, "class tree to count")
		flags.Parse(args)
	case "shard":
		flags := flag.NewFlagSet("shard", flag.ExitOnError)
		flags.StringVar(&cfg.AugmentOutputDir, "in", cfg.AugmentOutputDir, "class tree to pack")
		flags.IntVar(&cfg.ShardSize, "size", cfg.ShardSize, "videos per shard")
		flags.StringVar(&sa.descriptorDir, "descriptor", "", "directory holding the data.yaml whose class order labels the shards")
		flags.Parse(args)
	case "extract":
		flags := flag.NewFlagSet("extract", flag.ExitOnError)
		flags.StringVar(&sa.extractDir, "out", "", "class tree to restore into")
		flags.Parse(args)
		sa.shards = flags.Args()
		if sa.extractDir == "" || len(sa.shards) == 0 {
			fmt.Fprintln(os.Stderr, "usage: signprep extract -out <dir> <shard.tar>...")
			os.Exit(2)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	fatalOnErr(cfg.Validate(), "invalid config")

	if err := run(cmd, cfg, sa); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		os.Exit(1)
	}
}

// run executes cmd. Deferred cleanup (manifest, logger, metrics server)
// runs before main exits with the returned error.
func run(cmd string, cfg *config.Config, sa shardArgs) error {
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info("received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.MetricsPort > 0 {
		srv := metrics.StartMetricsServer(ctx, cfg.MetricsPort, log)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	fs := afero.NewOsFs()
	p := pipeline.New(fs, log)

	if cfg.ManifestDB != "" {
		m, err := manifest.Open(cfg.ManifestDB)
		if err != nil {
			return fmt.Errorf("open manifest: %w", err)
		}
		defer m.Close()
		p.WithRecorder(m)
	}
	if cfg.S3Bucket != "" {
		pub, err := publish.NewPublisher(cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, log)
		if err != nil {
			return fmt.Errorf("create publisher: %w", err)
		}
		p.WithPublisher(pub)
	}

	switch cmd {
	case "build":
		res, err := p.Build(ctx, pipeline.BuildOptions{
			CatalogPath: cfg.CatalogPath,
			SourceDir:   cfg.SourceVideoDir,
			OutputDir:   cfg.OutputDir,
			TopK:        cfg.TopK,
			MinExisting: cfg.MinExisting,
			Ratios:      dataset.Ratios{Train: cfg.TrainRatio, Val: cfg.ValRatio},
			Seed:        cfg.SplitSeed,
		})
		if err != nil {
			return err
		}
		log.Info("build finished", zap.String("run_id", res.RunID), zap.Strings("classes", res.Selected))
		return printCounts(fs, cfg.OutputDir)

	case "augment":
		if err := video.CheckAvailable(); err != nil {
			return err
		}
		codec := video.NewCodec(log)
		proc := processor.NewProcessor(codec, codec, processor.Options{
			CropMargin: cfg.CropMargin,
			Seed:       cfg.AugmentSeed,
			WriteNPY:   cfg.WriteNPY,
		}, log)

		res, err := p.Augment(ctx, proc, pipeline.AugmentOptions{
			InputDir:   cfg.AugmentInputDir,
			OutputDir:  cfg.AugmentOutputDir,
			Replicates: cfg.AugmentReplicates,
			MaxWorkers: cfg.MaxWorkers,
			ShardSize:  cfg.ShardSize,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Processed %d/%d videos, %d failed, %d replicates written\n",
			res.Report.Processed, res.Report.Total, res.Report.Failed, res.Report.Outputs)
		return printCounts(fs, cfg.AugmentOutputDir)

	case "stats":
		return printCounts(fs, cfg.AugmentOutputDir)

	case "shard":
		if cfg.ShardSize < 1 {
			return fmt.Errorf("shard size must be positive, got %d", cfg.ShardSize)
		}
		report, err := p.Shard(pipeline.ShardOptions{
			InputDir:      cfg.AugmentOutputDir,
			OutputDir:     cfg.AugmentOutputDir + "_shards",
			Size:          cfg.ShardSize,
			DescriptorDir: sa.descriptorDir,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %d shards holding %d videos of %d classes\n",
			len(report.Shards), report.Samples, len(report.Classes))

	case "extract":
		samples, files, err := p.Extract(sa.extractDir, sa.shards...)
		if err != nil {
			return err
		}
		fmt.Printf("Restored %d videos (%d files) from %d shards\n", samples, files, len(sa.shards))
		return printCounts(fs, sa.extractDir)
	}
	return nil
}

func printCounts(fs afero.Fs, root string) error {
	counts, err := dataset.CountOutput(fs, root)
	if err != nil {
		return fmt.Errorf("count videos: %w", err)
	}

	fmt.Printf("%s:\n", root)
	for _, c := range counts {
		fmt.Printf("  %-24s %d\n", c.Class, c.Videos)
	}
	fmt.Printf("  %d classes, %d videos\n", len(counts), dataset.TotalVideos(counts))
	return nil
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}
