package storage

import (
	"context"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"elibrary/pkg/domain"
)

// ResourceType distinguishes cover images from arbitrary binary book files.
type ResourceType string

const (
	ResourceImage ResourceType = "image"
	ResourceRaw   ResourceType = "raw"
)

// UploadOptions controls where and how a local file is stored remotely.
type UploadOptions struct {
	Folder           string
	ResourceType     ResourceType
	FilenameOverride string
	Format           string
}

// MediaStore accepts local files and returns stable object references.
type MediaStore interface {
	Upload(ctx context.Context, localPath string, opts UploadOptions) (domain.ObjectRef, error)
	Destroy(ctx context.Context, externalID string, resourceType ResourceType) error
}

// MinioStore implements MediaStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client   *minio.Client
	bucket   string
	endpoint string
	useSSL   bool
}

// NewMinioStore connects to MinIO and ensures the bucket exists.
func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &MinioStore{client: client, bucket: bucket, endpoint: endpoint, useSSL: useSSL}, nil
}

// Upload stores the file at localPath under opts.Folder and returns its
// object key and retrieval URL. The key becomes the external id used for
// later destruction.
func (m *MinioStore) Upload(ctx context.Context, localPath string, opts UploadOptions) (domain.ObjectRef, error) {
	key := buildObjectKey(localPath, opts)
	contentType := contentTypeFor(opts)
	_, err := m.client.FPutObject(ctx, m.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return domain.ObjectRef{}, fmt.Errorf("put object %q: %w", key, err)
	}
	return domain.ObjectRef{ID: key, URL: m.objectURL(key)}, nil
}

// Destroy removes a previously uploaded object. The resource type is part of
// the contract with Cloudinary-style stores; for MinIO the key alone suffices.
func (m *MinioStore) Destroy(ctx context.Context, externalID string, _ ResourceType) error {
	if err := m.client.RemoveObject(ctx, m.bucket, externalID, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", externalID, err)
	}
	return nil
}

func (m *MinioStore) objectURL(key string) string {
	scheme := "http"
	if m.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, m.endpoint, m.bucket, key)
}

func buildObjectKey(localPath string, opts UploadOptions) string {
	name := strings.TrimSpace(opts.FilenameOverride)
	if name == "" {
		name = filepath.Base(localPath)
	}
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if format := strings.TrimSpace(opts.Format); format != "" {
		name = name + "." + format
	}
	folder := strings.Trim(opts.Folder, "/")
	if folder == "" {
		return name
	}
	return path.Join(folder, name)
}

func contentTypeFor(opts UploadOptions) string {
	if opts.Format != "" {
		if ct := mime.TypeByExtension("." + strings.ToLower(opts.Format)); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}
