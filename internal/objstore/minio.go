package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const presignExpiry = time.Hour

// Gateway persists artifact bytes and mints presigned access URLs.
type Gateway interface {
	Save(ctx context.Context, fileName string, file []byte) error
	Presign(ctx context.Context, fileName string) (string, error)
	Delete(ctx context.Context, fileName string) error
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string

	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// MinioGateway stores artifacts in a fixed bucket. Every call is retried
// independently: 3 attempts, exponential backoff base 3s cap 10s.
type MinioGateway struct {
	client          *minio.Client
	bucket          string
	initialInterval time.Duration
	maxInterval     time.Duration
}

func NewMinioGateway(cfg MinioConfig) (*MinioGateway, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("minio access key and secret key are required")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "media"
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 3 * time.Second
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = 10 * time.Second
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinioGateway{
		client:          client,
		bucket:          cfg.Bucket,
		initialInterval: cfg.RetryInitialInterval,
		maxInterval:     cfg.RetryMaxInterval,
	}, nil
}

// EnsureBucket creates the media bucket when it does not exist yet.
func (g *MinioGateway) EnsureBucket(ctx context.Context) error {
	exists, err := g.client.BucketExists(ctx, g.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", g.bucket, err)
	}
	if exists {
		return nil
	}
	if err := g.client.MakeBucket(ctx, g.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", g.bucket, err)
	}
	return nil
}

func (g *MinioGateway) Save(ctx context.Context, fileName string, file []byte) error {
	operation := func() error {
		_, err := g.client.PutObject(
			ctx,
			g.bucket,
			fileName,
			bytes.NewReader(file),
			int64(len(file)),
			minio.PutObjectOptions{ContentType: "application/pdf"},
		)
		return err
	}
	if err := backoff.Retry(operation, g.retryPolicy(ctx)); err != nil {
		return fmt.Errorf("put object %s: %w", fileName, err)
	}
	return nil
}

func (g *MinioGateway) Presign(ctx context.Context, fileName string) (string, error) {
	var presigned *url.URL
	operation := func() error {
		signed, err := g.client.PresignedGetObject(ctx, g.bucket, fileName, presignExpiry, nil)
		if err != nil {
			return err
		}
		presigned = signed
		return nil
	}
	if err := backoff.Retry(operation, g.retryPolicy(ctx)); err != nil {
		return "", fmt.Errorf("presign object %s: %w", fileName, err)
	}
	return presigned.String(), nil
}

func (g *MinioGateway) Delete(ctx context.Context, fileName string) error {
	operation := func() error {
		return g.client.RemoveObject(ctx, g.bucket, fileName, minio.RemoveObjectOptions{})
	}
	if err := backoff.Retry(operation, g.retryPolicy(ctx)); err != nil {
		return fmt.Errorf("remove object %s: %w", fileName, err)
	}
	return nil
}

func (g *MinioGateway) retryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.initialInterval
	policy.MaxInterval = g.maxInterval
	return backoff.WithContext(backoff.WithMaxRetries(policy, 2), ctx)
}
