package s3storage

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type mockObjectAPI struct {
	getFn    func(ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error)
	deleteFn func(ctx context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)
}

func (m *mockObjectAPI) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return m.getFn(ctx, in)
}

func (m *mockObjectAPI) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return m.deleteFn(ctx, in)
}

type mockUploader struct {
	uploadFn func(ctx context.Context, in *s3.PutObjectInput) (*manager.UploadOutput, error)
}

func (m *mockUploader) Upload(ctx context.Context, in *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	return m.uploadFn(ctx, in)
}
