package miniostorage

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
)

type mockObjectClient struct {
	fgetFn   func(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
	statFn   func(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	putFn    func(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	removeFn func(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
}

func (m *mockObjectClient) FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error {
	return m.fgetFn(ctx, bucket, object, filePath, opts)
}

func (m *mockObjectClient) StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return m.statFn(ctx, bucket, object, opts)
}

func (m *mockObjectClient) PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return m.putFn(ctx, bucket, object, r, size, opts)
}

func (m *mockObjectClient) RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error {
	return m.removeFn(ctx, bucket, object, opts)
}
