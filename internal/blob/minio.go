// Package blob stores contract PDFs in an S3-compatible object store under
// per-user, per-contract path prefixes.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
)

// Storage is the object store interface used by the server layer. A row in
// contract_files references exactly one object by path.
type Storage interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Delete(ctx context.Context, path string) error
	PresignedURL(ctx context.Context, path string, expiry time.Duration) (string, error)
}

// Config holds object store connection settings.
type Config struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// MinioStorage implements Storage against MinIO or any S3-compatible server.
type MinioStorage struct {
	client *minio.Client
	bucket string
}

// NewMinio connects to the object store and creates the bucket if needed.
func NewMinio(ctx context.Context, cfg Config) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, eris.Wrap(err, "blob: create client")
	}

	s := &MinioStorage{client: client, bucket: cfg.Bucket}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinioStorage) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return eris.Wrapf(err, "blob: check bucket %s", s.bucket)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return eris.Wrapf(err, "blob: create bucket %s", s.bucket)
		}
	}
	return nil
}

// ObjectPath builds the canonical object path for a contract document.
func ObjectPath(userID, contractID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", userID, contractID, filename)
}

// Upload writes an object, overwriting any existing object at the same path.
func (s *MinioStorage) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return eris.Wrapf(err, "blob: upload %s", path)
}

// Delete removes an object. Deleting a missing object is not an error.
func (s *MinioStorage) Delete(ctx context.Context, path string) error {
	err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{})
	return eris.Wrapf(err, "blob: delete %s", path)
}

// PresignedURL returns a time-limited download URL for an object.
func (s *MinioStorage) PresignedURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, path, expiry, nil)
	if err != nil {
		return "", eris.Wrapf(err, "blob: presign %s", path)
	}
	return u.String(), nil
}
