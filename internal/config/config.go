package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	CatalogPath    string `env:"CATALOG_PATH"     envDefault:"WLASL_v0.3.json"`
	SourceVideoDir string `env:"SOURCE_VIDEO_DIR" envDefault:"videos"`
	OutputDir      string `env:"OUTPUT_DIR"       envDefault:"WLASL100"`

	TopK        int     `env:"TOP_K"        envDefault:"100"`
	MinExisting int     `env:"MIN_EXISTING" envDefault:"3"`
	TrainRatio  float64 `env:"TRAIN_RATIO"  envDefault:"0.8"`
	ValRatio    float64 `env:"VAL_RATIO"    envDefault:"0.1"`
	SplitSeed   int64   `env:"SPLIT_SEED"   envDefault:"42"`

	AugmentInputDir   string `env:"AUGMENT_INPUT_DIR"  envDefault:"WLASL100_train"`
	AugmentOutputDir  string `env:"AUGMENT_OUTPUT_DIR" envDefault:"WLASL100_train_augmented"`
	AugmentReplicates int    `env:"AUGMENT_REPLICATES" envDefault:"5"`
	AugmentSeed       int64  `env:"AUGMENT_SEED"       envDefault:"42"`
	CropMargin        int    `env:"CROP_MARGIN"        envDefault:"75"`
	MaxWorkers        int    `env:"MAX_WORKERS"        envDefault:"6"`
	WriteNPY          bool   `env:"WRITE_NPY"          envDefault:"false"`

	ShardSize  int    `env:"SHARD_SIZE"  envDefault:"0"`
	ManifestDB string `env:"MANIFEST_DB" envDefault:""`

	S3Bucket  string `env:"S3_BUCKET"  envDefault:""`
	S3Prefix  string `env:"S3_PREFIX"  envDefault:""`
	AWSRegion string `env:"AWS_REGION" envDefault:"us-east-1"`

	MetricsPort int    `env:"METRICS_PORT" envDefault:"0"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return nil, fmt.Errorf("load env files: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the options the pipeline stages rely on
func (c *Config) Validate() error {
	var errs []error
	if c.TopK < 1 {
		errs = append(errs, fmt.Errorf("TOP_K must be at least 1, got %d", c.TopK))
	}
	if c.MinExisting < 1 {
		errs = append(errs, fmt.Errorf("MIN_EXISTING must be at least 1, got %d", c.MinExisting))
	}
	if c.TrainRatio < 0 || c.TrainRatio > 1 {
		errs = append(errs, fmt.Errorf("TRAIN_RATIO must be within [0,1], got %g", c.TrainRatio))
	}
	if c.ValRatio < 0 || c.ValRatio > 1 {
		errs = append(errs, fmt.Errorf("VAL_RATIO must be within [0,1], got %g", c.ValRatio))
	}
	if c.TrainRatio+c.ValRatio > 1 {
		errs = append(errs, fmt.Errorf("TRAIN_RATIO + VAL_RATIO must not exceed 1, got %g", c.TrainRatio+c.ValRatio))
	}
	if c.AugmentReplicates < 1 {
		errs = append(errs, fmt.Errorf("AUGMENT_REPLICATES must be at least 1, got %d", c.AugmentReplicates))
	}
	if c.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("MAX_WORKERS must be at least 1, got %d", c.MaxWorkers))
	}
	if c.CropMargin < 0 {
		errs = append(errs, fmt.Errorf("CROP_MARGIN must not be negative, got %d", c.CropMargin))
	}
	if c.ShardSize < 0 {
		errs = append(errs, fmt.Errorf("SHARD_SIZE must not be negative, got %d", c.ShardSize))
	}
	return errors.Join(errs...)
}
