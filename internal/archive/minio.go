package archive

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options configures the object-storage archive. Setting Region skips bucket
// location lookups.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
	Region    string
}

// MinioArchiver uploads produced CSV files to an S3-compatible bucket.
type MinioArchiver struct {
	client *minio.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewMinio connects to the endpoint and makes sure the bucket exists. A nil
// logger discards output.
func NewMinio(ctx context.Context, opts Options, logger *slog.Logger) (*MinioArchiver, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("archive client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("archive bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("creating archive bucket %s: %w", opts.Bucket, err)
		}
		logger.Info("created archive bucket", "bucket", opts.Bucket)
	}

	return &MinioArchiver{
		client: client,
		bucket: opts.Bucket,
		prefix: opts.Prefix,
		logger: logger,
	}, nil
}

// ObjectKey places a file under <prefix>/<year>/<base name>.
func ObjectKey(prefix string, day time.Time, file string) string {
	return path.Join(prefix, strconv.Itoa(day.Year()), filepath.Base(file))
}

// Upload stores file under the key derived from day and returns that key.
func (a *MinioArchiver) Upload(ctx context.Context, day time.Time, file string) (string, error) {
	key := ObjectKey(a.prefix, day, file)
	info, err := a.client.FPutObject(ctx, a.bucket, key, file, minio.PutObjectOptions{
		ContentType: "text/csv; charset=utf-8",
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", file, err)
	}
	a.logger.Info("archived file", "bucket", a.bucket, "key", key, "size", info.Size)
	return key, nil
}
