// Package storage is the content-addressed blob store for encoded asset
// bytes, backed by MinIO. Objects are keyed by digest, so identical content
// is stored exactly once no matter how often it is imported.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mixdown/config"
	"mixdown/logger"
)

const assetPrefix = "assets/"

// BlobStore stores immutable blobs keyed by their hex SHA-256 digest.
type BlobStore struct {
	client *minio.Client
	bucket string
}

// NewBlobStore connects to MinIO and makes sure the bucket exists.
func NewBlobStore(cfg *config.Config) (*BlobStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.MinioBucket, err)
		}
		logger.Info("created asset bucket", logger.String("bucket", cfg.MinioBucket))
	}

	return &BlobStore{client: client, bucket: cfg.MinioBucket}, nil
}

func objectName(digest string) string {
	return assetPrefix + digest
}

// Exists reports whether a blob with this digest is already stored.
func (s *BlobStore) Exists(ctx context.Context, digest string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, objectName(digest), minio.StatObjectOptions{})
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("stat blob %s: %w", digest, err)
	}
	return true, nil
}

// Put stores a blob unless its digest is already present.
func (s *BlobStore) Put(ctx context.Context, digest string, data []byte) error {
	exists, err := s.Exists(ctx, digest)
	if err != nil {
		return err
	}
	if exists {
		logger.Debug("blob already stored", logger.String("digest", digest))
		return nil
	}

	_, err = s.client.PutObject(ctx, s.bucket, objectName(digest),
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("put blob %s: %w", digest, err)
	}
	logger.Info("blob stored",
		logger.String("digest", digest),
		logger.Int("size", len(data)))
	return nil
}

// Get downloads a blob by digest.
func (s *BlobStore) Get(ctx context.Context, digest string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName(digest), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get blob %s: %w", digest, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", digest, err)
	}
	return data, nil
}

// Remove deletes a blob. Used by garbage collection once nothing references
// the digest.
func (s *BlobStore) Remove(ctx context.Context, digest string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectName(digest), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove blob %s: %w", digest, err)
	}
	return nil
}

// BlobInfo describes one stored blob for the inspection CLI.
type BlobInfo struct {
	Digest string
	Size   int64
}

// List enumerates stored blobs.
func (s *BlobStore) List(ctx context.Context) ([]BlobInfo, error) {
	var infos []BlobInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    assetPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list blobs: %w", obj.Err)
		}
		infos = append(infos, BlobInfo{
			Digest: obj.Key[len(assetPrefix):],
			Size:   obj.Size,
		})
	}
	return infos, nil
}
