// Package miniostorage provides the storage gateway on top of minio-storage
package miniostorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path"
	"path/filepath"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/mwlogger"
	"github.com/UnendingLoop/ImageServer/internal/storage/batch"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"
)

// objectClient - та часть minio.Client, которая нужна шлюзу
type objectClient interface {
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
}

type MinioStorage struct {
	bucket  string
	tempDir string
	client  objectClient
}

func NewMinioClient(cfg *config.Config) (*MinioStorage, error) {
	bucket := cfg.GetString("BUCKET_NAME")

	if bucket == "" {
		bucket = "default"
		zlog.Logger.Warn().Msgf("Bucket name is empty. Using default value %q...", bucket)
	}

	user := cfg.GetString("MINIO_USER")
	pass := cfg.GetString("MINIO_PASS")
	addr := cfg.GetString("MINIO_CONTAINER_NAME")

	// подключаемся к минио - создаем клиента
	strg, err := minio.New(addr+":9000", &minio.Options{
		Creds:  credentials.NewStaticV4(user, pass, ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}

	// создаем бакет если его нет
	if err := ensureBucket(context.Background(), strg, bucket); err != nil {
		return nil, fmt.Errorf("failed to create bucket in MinIO: %w", err)
	}

	return newMinioStorage(strg, bucket, cfg.GetString("WORKER_TEMP_DIR")), nil
}

func newMinioStorage(client objectClient, bucket, tempDir string) *MinioStorage {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &MinioStorage{bucket: bucket, tempDir: tempDir, client: client}
}

func (s *MinioStorage) bucketFor(opts model.StorageOptions) string {
	if opts.Bucket != "" {
		return opts.Bucket
	}
	return s.bucket
}

// Fetch downloads name into a new file under the temp dir. On failure nothing is left behind.
func (s *MinioStorage) Fetch(ctx context.Context, name string, opts model.StorageOptions) (*model.FetchedSource, error) {
	bucket := s.bucketFor(opts)

	info, err := s.client.StatObject(ctx, bucket, name, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s/%s: %v", model.ErrFetch, bucket, name, err)
	}

	tmp := filepath.Join(s.tempDir, uuid.NewString()+path.Ext(name))
	if err := s.client.FGetObject(ctx, bucket, name, tmp, minio.GetObjectOptions{}); err != nil {
		removeLeftovers(ctx, tmp)
		return nil, fmt.Errorf("%w: download %s/%s: %v", model.ErrFetch, bucket, name, err)
	}

	return &model.FetchedSource{
		TempPath:    tmp,
		LogicalName: name,
		ContentType: batch.DetectContentType(info.ContentType, tmp),
		Metadata:    maps.Clone(info.UserMetadata),
	}, nil
}

// PutAll uploads every artifact or, on failure, removes those already written.
func (s *MinioStorage) PutAll(ctx context.Context, artifacts []model.StagedArtifact, opts model.StorageOptions) error {
	bucket := s.bucketFor(opts)

	put := func(ctx context.Context, a model.StagedArtifact, f *os.File, size int64) error {
		_, err := s.client.PutObject(ctx, bucket, a.DestinationKey, f, size, minio.PutObjectOptions{
			ContentType:  a.ContentType,
			UserMetadata: a.Metadata,
			CacheControl: opts.CacheControl,
			StorageClass: opts.StorageClass,
		})
		return err
	}
	remove := func(ctx context.Context, key string) error {
		return s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
	}

	return batch.PutAll(ctx, artifacts, put, remove)
}

// removeLeftovers deletes the target and the partial download minio keeps next to it.
func removeLeftovers(ctx context.Context, tmp string) {
	for _, p := range []string{tmp, tmp + ".part.minio"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger := mwlogger.LoggerFromContext(ctx)
			logger.Warn().Err(err).Str("path", p).Msg("Failed to remove partial download")
		}
	}
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}
