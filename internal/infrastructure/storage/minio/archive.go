// Package minio archives run outputs (merged list, error table, diff
// report) to object storage so every published list version stays
// retrievable by run id.
package minio

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/openmedi/medirec/internal/infrastructure/monitoring/logging"
	"github.com/openmedi/medirec/pkg/errors"
)

// API abstracts the minio client surface the archiver uses, for testing.
type API interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// Config holds the object storage settings.
type Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
}

func applyDefaults(cfg *Config) {
	if cfg.Bucket == "" {
		cfg.Bucket = "medirec-runs"
	}
}

// Archiver stores run artifacts in one bucket under run-id prefixes.
type Archiver struct {
	api    API
	bucket string
	logger logging.Logger
}

// NewArchiver connects to object storage and ensures the bucket exists.
func NewArchiver(cfg Config, log logging.Logger) (*Archiver, error) {
	applyDefaults(&cfg)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArchiveFailed, "create object storage client")
	}

	a := newArchiver(client, cfg.Bucket, log)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func newArchiver(api API, bucket string, log logging.Logger) *Archiver {
	return &Archiver{api: api, bucket: bucket, logger: log.Named("archive")}
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	exists, err := a.api.BucketExists(ctx, a.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeArchiveFailed, "check bucket")
	}
	if exists {
		return nil
	}
	if err := a.api.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeArchiveFailed, "create bucket")
	}
	a.logger.Info("created archive bucket", logging.String("bucket", a.bucket))
	return nil
}

// ObjectName is the bucket key for one artifact of one run.
func ObjectName(runID, artifact string) string {
	return fmt.Sprintf("runs/%s/%s", runID, artifact)
}

// Store uploads one artifact; size may be -1 when unknown.
func (a *Archiver) Store(ctx context.Context, runID, artifact string, r io.Reader, size int64) error {
	name := ObjectName(runID, artifact)
	_, err := a.api.PutObject(ctx, a.bucket, name, r, size, minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeArchiveFailed, fmt.Sprintf("store %s", name))
	}
	a.logger.Info("archived run artifact",
		logging.String("run_id", runID),
		logging.String("artifact", artifact))
	return nil
}

// Fetch opens one archived artifact for reading.
func (a *Archiver) Fetch(ctx context.Context, runID, artifact string) (io.ReadCloser, error) {
	obj, err := a.api.GetObject(ctx, a.bucket, ObjectName(runID, artifact), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeArchiveFailed, "fetch artifact")
	}
	return obj, nil
}
