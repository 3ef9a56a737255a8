// Package backup uploads exported workload volumes to S3-compatible storage.
package backup

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"slumber/pkg/config"
	"slumber/pkg/interfaces"
	"slumber/pkg/logger"
)

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Store implements interfaces.BackupStore
type S3Store struct {
	uploader uploader
	bucket   string
	prefix   string
}

var _ interfaces.BackupStore = (*S3Store)(nil)

// NewS3Store builds a store from configuration. A custom endpoint switches to
// path-style addressing when configured, for MinIO and similar servers.
func NewS3Store(ctx context.Context, cfg config.BackupConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("backup bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	logger.Info(fmt.Sprintf("backup store ready: s3://%s/%s", cfg.Bucket, cfg.Prefix))
	return newS3Store(manager.NewUploader(client), cfg.Bucket, cfg.Prefix), nil
}

func newS3Store(u uploader, bucket, prefix string) *S3Store {
	return &S3Store{uploader: u, bucket: bucket, prefix: prefix}
}

// Upload streams body to bucket/prefix/key. The multipart uploader handles
// bodies of unknown length.
func (s *S3Store) Upload(ctx context.Context, key string, body io.Reader) (string, error) {
	objectKey := path.Join(s.prefix, key)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objectKey),
		Body:        body,
		ContentType: aws.String("application/x-tar"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", objectKey, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, objectKey), nil
}
