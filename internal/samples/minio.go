package samples

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kozaktomas/fingerprint-id/internal/config"
)

const pngContentType = "image/png"

// MinIO stores samples in an S3-compatible bucket.
type MinIO struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinIO connects to the configured endpoint and creates the bucket if it
// does not exist yet.
func NewMinIO(ctx context.Context, cfg config.MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
	}
	return NewMinIOWithClient(client, cfg.Bucket, ""), nil
}

// NewMinIOWithClient wraps an existing client. prefix is prepended to all keys.
func NewMinIOWithClient(client *minio.Client, bucket, prefix string) *MinIO {
	return &MinIO{client: client, bucket: bucket, prefix: prefix}
}

func (m *MinIO) key(name string) (string, error) {
	clean, err := cleanKey(name)
	if err != nil {
		return "", err
	}
	return path.Join(m.prefix, clean), nil
}

func (m *MinIO) Put(ctx context.Context, key string, data []byte) (string, error) {
	k, err := m.key(key)
	if err != nil {
		return "", err
	}
	_, err = m.client.PutObject(ctx, m.bucket, k, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: pngContentType,
	})
	if err != nil {
		return "", fmt.Errorf("uploading sample %s: %w", key, err)
	}
	return key, nil
}

func (m *MinIO) Get(ctx context.Context, ref string) ([]byte, error) {
	k, err := m.key(ref)
	if err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, k, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.mapError(ref, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.mapError(ref, err)
	}
	return data, nil
}

func (m *MinIO) Delete(ctx context.Context, ref string) error {
	k, err := m.key(ref)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, k, minio.RemoveObjectOptions{}); err != nil {
		if isMissing(err) {
			return nil // already gone
		}
		return fmt.Errorf("removing sample %s: %w", ref, err)
	}
	return nil
}

func (m *MinIO) mapError(ref string, err error) error {
	if isMissing(err) {
		return ErrNotFound
	}
	return fmt.Errorf("downloading sample %s: %w", ref, err)
}

func isMissing(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
