// Package s3 stores export files in an S3-compatible bucket, one prefix per
// member, as an alternative to uploading them back into Open Humans.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/openhumans/loggather/config"
	"github.com/openhumans/loggather/services"
	"github.com/openhumans/loggather/services/datalogs"
)

// objectPutter is the subset of *minio.Client the store needs.
type objectPutter interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Store writes export files into a bucket.
type Store struct {
	client objectPutter
	bucket string
	logger *zap.Logger
}

// New connects to the configured endpoint and creates the bucket when it
// does not exist yet.
func New(ctx context.Context, cfg config.S3Config, logger *zap.Logger) (*Store, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := cli.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("created export bucket", zap.String("bucket", cfg.Bucket))
	}

	return newStore(cli, cfg.Bucket, logger), nil
}

func newStore(client objectPutter, bucket string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, bucket: bucket, logger: logger.Named("s3")}
}

// ForMember returns an uploader that writes under the member's prefix.
func (s *Store) ForMember(memberID string) datalogs.Uploader {
	return &memberUploader{store: s, prefix: memberID}
}

type memberUploader struct {
	store  *Store
	prefix string
}

// Key is the object key a file is stored under.
func Key(memberID, filename string) string {
	return memberID + "/" + filename
}

// Upload ignores the access token; bucket credentials come from config.
func (u *memberUploader) Upload(ctx context.Context, _ string, file datalogs.ExportFile) error {
	key := Key(u.prefix, file.Name)

	_, err := u.store.client.PutObject(ctx, u.store.bucket, key,
		bytes.NewReader(file.Content), int64(len(file.Content)),
		minio.PutObjectOptions{
			ContentType: "text/csv",
			UserMetadata: map[string]string{
				"description": file.Metadata.Description,
				"tags":        strings.Join(file.Metadata.Tags, ","),
				"project":     file.Project,
			},
		})
	if err != nil {
		return services.NewUploadError(file.Name, err)
	}

	u.store.logger.Info("stored export file",
		zap.String("bucket", u.store.bucket),
		zap.String("key", key),
		zap.Int("bytes", len(file.Content)),
	)
	return nil
}
