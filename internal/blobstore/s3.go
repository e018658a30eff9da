package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"uttervault/internal/config"
	"uttervault/internal/services"
)

// S3API is the subset of the S3 client used by S3Downloader.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Downloader reads objects from an S3 bucket.
type S3Downloader struct {
	client S3API
	bucket string
}

// NewS3Downloader loads AWS configuration from the environment, applying the
// region, endpoint, and static credentials from storage when present. An
// api_key of the form "ACCESS_KEY_ID:SECRET" selects static credentials.
func NewS3Downloader(ctx context.Context, storage config.Storage) (*S3Downloader, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region := strings.TrimSpace(storage.Region); region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if id, secret, ok := strings.Cut(strings.TrimSpace(storage.APIKey), ":"); ok && id != "" && secret != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(id, secret, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "blobstore", "s3", "load aws config", err)
	}

	endpoint := strings.TrimSpace(storage.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3DownloaderWithClient(client, storage.Bucket), nil
}

// NewS3DownloaderWithClient wraps an existing client.
func NewS3DownloaderWithClient(client S3API, bucket string) *S3Downloader {
	return &S3Downloader{client: client, bucket: strings.TrimSpace(bucket)}
}

// Download fetches key from the bucket.
func (d *S3Downloader) Download(ctx context.Context, key string) ([]byte, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		var notFoundErr *types.NotFound
		if errors.As(err, &noSuchKey) || errors.As(err, &notFoundErr) {
			return nil, notFound(key)
		}
		return nil, services.Wrap(services.ErrExternalTool, "blobstore", "download", fmt.Sprintf("s3://%s/%s", d.bucket, key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "blobstore", "download", "read body for "+key, err)
	}
	return data, nil
}
