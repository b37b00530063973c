package menu

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/zombor/menu-scan/internal/config"
)

// Archive keeps a copy of every uploaded menu image
type Archive interface {
	// Save stores data under key and returns where it ended up
	Save(ctx context.Context, key string, contentType string, data []byte) (string, error)
}

// OpenArchive builds the archive selected by cfg.Kind. It returns nil when
// archiving is disabled.
func OpenArchive(ctx context.Context, cfg config.Archive) (Archive, error) {
	switch cfg.Kind {
	case config.ArchiveNone:
		return nil, nil
	case config.ArchiveLocal:
		return NewLocalArchive(cfg.Dir)
	case config.ArchiveS3:
		return NewS3Archive(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown archive kind %q", cfg.Kind)
	}
}

// LocalArchive implements the Archive interface using the local filesystem
type LocalArchive struct {
	basePath string
}

// NewLocalArchive creates a new LocalArchive rooted at basePath
func NewLocalArchive(basePath string) (*LocalArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &LocalArchive{basePath: basePath}, nil
}

// Save writes the file below the archive directory, creating subdirectories
// named by the key
func (l *LocalArchive) Save(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	fullPath := filepath.Join(l.basePath, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return fullPath, nil
}

// S3Archive implements the Archive interface on an S3 compatible bucket
// (AWS, Cloudflare R2, MinIO)
type S3Archive struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Archive creates an S3 client from cfg. Static credentials are used
// when given, otherwise the default AWS credential chain.
func NewS3Archive(ctx context.Context, cfg config.Archive) (*S3Archive, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archive{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Save uploads data as one object
func (a *S3Archive) Save(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	objectKey := path.Join(a.prefix, key)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", objectKey, err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, objectKey), nil
}
