package status

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
)

// MinioOptions configures a MinioBackend.
type MinioOptions struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MinioBackend keeps status records as objects in an S3-compatible bucket,
// so builds on several hosts can be monitored from one place. Locks and
// indexes stay on each host's disk and give no exclusion across hosts, so
// every host writing to a bucket needs its own environment; the
// environment is part of every object key. A single PutObject replaces an
// object atomically.
type MinioBackend struct {
	client *minio.Client
	bucket string
	prefix string
	retry  amerrors.RetryConfig
}

// NewMinioBackend connects to the endpoint in opts. No request is made
// until the first Get, Put or EnsureBucket.
func NewMinioBackend(opts MinioOptions) (*MinioBackend, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, amerrors.ConfigError("invalid minio endpoint "+opts.Endpoint, err)
	}
	return NewMinioBackendWithClient(client, opts.Bucket, opts.Prefix), nil
}

// NewMinioBackendWithClient wraps an existing client.
func NewMinioBackendWithClient(client *minio.Client, bucket, prefix string) *MinioBackend {
	retry := amerrors.DefaultRetryConfig()
	retry.ShouldRetry = func(err error) bool {
		return !errors.Is(err, ErrNotFound) &&
			!errors.Is(err, context.Canceled) &&
			!errors.Is(err, context.DeadlineExceeded)
	}
	return &MinioBackend{
		client: client,
		bucket: bucket,
		prefix: prefix,
		retry:  retry,
	}
}

func (b *MinioBackend) object(key string) string {
	return path.Join(b.prefix, key+".json")
}

// EnsureBucket creates the bucket if it does not exist.
func (b *MinioBackend) EnsureBucket(ctx context.Context) error {
	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return amerrors.RemoteUnavailable("failed to check bucket "+b.bucket, err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{}); err != nil {
		return amerrors.RemoteUnavailable("failed to create bucket "+b.bucket, err)
	}
	slog.Info("status_bucket_created", slog.String("bucket", b.bucket))
	return nil
}

// Get implements Backend.
func (b *MinioBackend) Get(ctx context.Context, key string) ([]byte, error) {
	name := b.object(key)
	data, err := amerrors.RetryWithResult(ctx, b.retry, func() ([]byte, error) {
		obj, err := b.client.GetObject(ctx, b.bucket, name, minio.GetObjectOptions{})
		if err != nil {
			return nil, classify(err)
		}
		defer obj.Close()

		data, err := io.ReadAll(obj)
		if err != nil {
			return nil, classify(err)
		}
		return data, nil
	})
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, amerrors.RemoteUnavailable(fmt.Sprintf("failed to get %s/%s", b.bucket, name), err)
	}
	return data, nil
}

// Put implements Backend.
func (b *MinioBackend) Put(ctx context.Context, key string, data []byte) error {
	name := b.object(key)
	err := amerrors.Retry(ctx, b.retry, func() error {
		_, err := b.client.PutObject(ctx, b.bucket, name, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: "application/json"})
		return err
	})
	if err != nil {
		return amerrors.RemoteUnavailable(fmt.Sprintf("failed to put %s/%s", b.bucket, name), err)
	}
	return nil
}

// classify maps missing-object responses to ErrNotFound.
func classify(err error) error {
	if isNotFound(err) {
		return ErrNotFound
	}
	return err
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
