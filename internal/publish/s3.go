package publish

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".npy":  "application/octet-stream",
	".tar":  "application/x-tar",
	".yaml": "application/yaml",
	".json": "application/json",
}

// Publisher uploads dataset trees to an S3 bucket
type Publisher struct {
	uploader s3manageriface.UploaderAPI
	bucket   string
	prefix   string
	logger   *zap.Logger
}

// NewPublisher builds a publisher from the default AWS credential chain
func NewPublisher(region, bucket, prefix string, logger *zap.Logger) (*Publisher, error) {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return NewPublisherWithUploader(s3manager.NewUploader(sess), bucket, prefix, logger), nil
}

func NewPublisherWithUploader(uploader s3manageriface.UploaderAPI, bucket, prefix string, logger *zap.Logger) *Publisher {
	return &Publisher{
		uploader: uploader,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		logger:   logger,
	}
}

// Key returns the object key for a file at rel inside a tree published as name
func (p *Publisher) Key(name, rel string) string {
	return path.Join(p.prefix, name, filepath.ToSlash(rel))
}

// PublishTree uploads every non-hidden file under root to
// <prefix>/<base of root>/<relative path> and returns how many were sent
func (p *Publisher) PublishTree(ctx context.Context, fs afero.Fs, root string) (int, error) {
	name := filepath.Base(filepath.Clean(root))
	uploaded := 0

	err := afero.Walk(fs, root, func(file string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if file != root && strings.HasPrefix(info.Name(), ".") {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, file)
		if err != nil {
			return err
		}
		if err := p.upload(ctx, fs, file, p.Key(name, rel)); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, fmt.Errorf("publish %s: %w", root, err)
	}

	p.logger.Info("tree published",
		zap.String("root", root),
		zap.String("bucket", p.bucket),
		zap.String("prefix", p.Key(name, "")),
		zap.Int("files", uploaded),
	)
	return uploaded, nil
}

func (p *Publisher) upload(ctx context.Context, fs afero.Fs, file, key string) error {
	f, err := fs.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	input := &s3manager.UploadInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(file))]; ok {
		input.ContentType = aws.String(ct)
	}

	if _, err := p.uploader.UploadWithContext(ctx, input); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	p.logger.Debug("object uploaded", zap.String("key", key))
	return nil
}
