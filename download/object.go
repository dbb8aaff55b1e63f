package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lvillar/pdfmerge"
)

// ObjectConfig locates an S3-compatible bucket.
type ObjectConfig struct {
	Endpoint  string // host[:port], no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string // optional key prefix
	Region    string // optional; skips bucket location lookup when set
	Secure    bool   // use TLS
}

// ObjectSink uploads documents to an S3-compatible bucket.
type ObjectSink struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewObjectSink creates an ObjectSink from cfg.
func NewObjectSink(cfg ObjectConfig) (*ObjectSink, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("download: object storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("download: object storage bucket is required")
	}
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.Secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("download: creating object storage client: %w", err)
	}
	return &ObjectSink{client: c, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Deliver uploads data as bucket/prefix/name and returns its s3:// location.
func (s *ObjectSink) Deliver(ctx context.Context, name string, data []byte) (string, error) {
	key := path.Join(s.prefix, path.Base(name))
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:        pdfmerge.MediaTypePDF,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", path.Base(name)),
	})
	if err != nil {
		return "", fmt.Errorf("download: uploading %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, info.Key), nil
}
