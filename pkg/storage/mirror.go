package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("gamma-mirror")

type Config struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint" env:"GAMMA_MIRROR_ENDPOINT"`
	AccessKey string `json:"accessKey" yaml:"accessKey" env:"GAMMA_MIRROR_ACCESS_KEY"`
	SecretKey string `json:"secretKey" yaml:"secretKey" env:"GAMMA_MIRROR_SECRET_KEY"`
	Bucket    string `json:"bucket" yaml:"bucket" env:"GAMMA_MIRROR_BUCKET" env-default:"presentations"`
	Prefix    string `json:"prefix" yaml:"prefix" env:"GAMMA_MIRROR_PREFIX"`
	UseSSL    bool   `json:"useSSL" yaml:"useSSL" env:"GAMMA_MIRROR_USE_SSL"`
}

func (c Config) Enabled() bool {
	return c.Endpoint != ""
}

// Mirror copies fetched artifacts into an S3 compatible bucket.
type Mirror struct {
	client *minio.Client
	cfg    Config
}

func NewMirror(cfg Config) (*Mirror, error) {
	if !cfg.Enabled() {
		return nil, errors.New("mirror endpoint is not configured")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("mirror bucket is not configured")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create minio client for %s", cfg.Endpoint)
	}
	return &Mirror{client: client, cfg: cfg}, nil
}

// ObjectKey returns the key an artifact stored at localPath is mirrored under.
func ObjectKey(prefix, localPath string) string {
	prefix = strings.Trim(prefix, "/")
	name := filepath.Base(localPath)
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func (m *Mirror) ensureBucket(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "mirror_ensure_bucket")
	defer span.End()
	span.SetAttributes(attribute.String("minio.bucket", m.cfg.Bucket))

	exists, err := m.client.BucketExists(ctx, m.cfg.Bucket)
	if err != nil {
		span.RecordError(err)
		return errors.Wrapf(err, "failed to check bucket %q", m.cfg.Bucket)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, m.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			span.RecordError(err)
			return errors.Wrapf(err, "failed to create bucket %q", m.cfg.Bucket)
		}
	}
	return nil
}

// Upload streams the file at localPath into the bucket and returns its object URL.
func (m *Mirror) Upload(ctx context.Context, localPath, contentType string) (string, error) {
	key := ObjectKey(m.cfg.Prefix, localPath)
	ctx, span := tracer.Start(ctx, "mirror_upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("minio.bucket", m.cfg.Bucket),
		attribute.String("minio.key", key),
	)

	if err := m.ensureBucket(ctx); err != nil {
		return "", err
	}
	info, err := m.client.FPutObject(ctx, m.cfg.Bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		span.RecordError(err)
		return "", errors.Wrapf(err, "failed to upload %s", localPath)
	}
	span.SetAttributes(attribute.Int64("minio.size", info.Size))

	protocol := "http"
	if m.cfg.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, m.cfg.Endpoint, m.cfg.Bucket, key), nil
}
