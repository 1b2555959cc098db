package mio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const maxBackoff = 30 * time.Second

type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Bucket          string
	BasePath        string

	// Attempts bounds how often the bucket check runs before giving up.
	Attempts int
	Backoff  time.Duration
}

// NewClient builds a client and waits until the bucket is reachable,
// creating it on first start.
func NewClient(ctx context.Context, cfg Config) (*minio.Client, error) {
	switch {
	case cfg.Endpoint == "":
		return nil, errors.New("minio: empty endpoint")
	case cfg.Bucket == "":
		return nil, errors.New("minio: empty bucket")
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 5
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: new client: %w", err)
	}

	err = waitReady(ctx, cfg.Attempts, cfg.Backoff, func(ctx context.Context) error {
		return ensureBucket(ctx, client, cfg.Bucket)
	})
	if err != nil {
		return nil, fmt.Errorf("minio %s: %w", cfg.Endpoint, err)
	}
	return client, nil
}

func waitReady(ctx context.Context, attempts int, backoff time.Duration, check func(context.Context) error) error {
	var err error
	for i := 1; ; i++ {
		if err = check(ctx); err == nil {
			return nil
		}
		if i == attempts {
			return fmt.Errorf("not ready after %d attempts: %w", attempts, err)
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(ctx.Err(), err)
		case <-t.C:
		}
		backoff = min(2*backoff, maxBackoff)
	}
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	ok, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket %s: %w", bucket, err)
	}
	if ok {
		return nil
	}

	err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
	if err != nil {
		// another replica may have created it in between
		if code := minio.ToErrorResponse(err).Code; code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("make bucket %s: %w", bucket, err)
	}
	return nil
}
