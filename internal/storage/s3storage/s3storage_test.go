package s3storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("unexpected EOF") }

func TestFetch(t *testing.T) {
	tests := []struct {
		name     string
		getFn    func(ctx context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error)
		opts     model.StorageOptions
		wantErr  bool
		wantBody string
		wantType string
	}{
		{
			name: "ok",
			getFn: func(_ context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
				require.Equal(t, "images", aws.ToString(in.Bucket))
				return &s3.GetObjectOutput{
					Body:        io.NopCloser(strings.NewReader("jpeg-bytes")),
					ContentType: aws.String("image/jpeg"),
					Metadata:    map[string]string{"owner": "tests"},
				}, nil
			},
			wantBody: "jpeg-bytes",
			wantType: "image/jpeg",
		},
		{
			name: "bucket override and sniffed type",
			getFn: func(_ context.Context, in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
				require.Equal(t, "other", aws.ToString(in.Bucket))
				return &s3.GetObjectOutput{
					Body:        io.NopCloser(strings.NewReader("GIF89a\x01\x00\x01\x00")),
					ContentType: aws.String("application/octet-stream"),
				}, nil
			},
			opts:     model.StorageOptions{Bucket: "other"},
			wantBody: "GIF89a\x01\x00\x01\x00",
			wantType: "image/gif",
		},
		{
			name: "no such key",
			getFn: func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
				return nil, &types.NoSuchKey{}
			},
			wantErr: true,
		},
		{
			name: "broken body",
			getFn: func(context.Context, *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
				return &s3.GetObjectOutput{Body: io.NopCloser(failingReader{})}, nil
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			s := newS3Storage(&mockObjectAPI{getFn: tt.getFn}, &mockUploader{}, "images", dir)

			src, err := s.Fetch(context.Background(), "photos/a.jpg", tt.opts)
			if tt.wantErr {
				require.ErrorIs(t, err, model.ErrFetch)
				entries, rErr := os.ReadDir(dir)
				require.NoError(t, rErr)
				require.Empty(t, entries)
				return
			}

			require.NoError(t, err)
			require.Equal(t, "photos/a.jpg", src.LogicalName)
			require.Equal(t, tt.wantType, src.ContentType)
			require.Equal(t, dir, filepath.Dir(src.TempPath))

			data, err := os.ReadFile(src.TempPath)
			require.NoError(t, err)
			require.Equal(t, tt.wantBody, string(data))
		})
	}
}

func TestPutAll(t *testing.T) {
	dir := t.TempDir()
	var artifacts []model.StagedArtifact
	for _, k := range []string{"a_sm.jpg", "a_md.jpg", "a_lg.jpg"} {
		p := filepath.Join(dir, k)
		require.NoError(t, os.WriteFile(p, []byte(k), 0o600))
		artifacts = append(artifacts, model.StagedArtifact{SourcePath: p, DestinationKey: k, ContentType: "image/jpeg"})
	}

	t.Run("all uploaded with options", func(t *testing.T) {
		var inputs []*s3.PutObjectInput
		up := &mockUploader{uploadFn: func(_ context.Context, in *s3.PutObjectInput) (*manager.UploadOutput, error) {
			inputs = append(inputs, in)
			return &manager.UploadOutput{}, nil
		}}
		s := newS3Storage(&mockObjectAPI{}, up, "images", t.TempDir())

		err := s.PutAll(context.Background(), artifacts, model.StorageOptions{CacheControl: "no-cache", StorageClass: "STANDARD_IA"})
		require.NoError(t, err)
		require.Len(t, inputs, 3)
		require.Equal(t, "images", aws.ToString(inputs[0].Bucket))
		require.Equal(t, "no-cache", aws.ToString(inputs[0].CacheControl))
		require.Equal(t, types.StorageClassStandardIa, inputs[0].StorageClass)
		require.Equal(t, "image/jpeg", aws.ToString(inputs[2].ContentType))
	})

	t.Run("rollback on failure", func(t *testing.T) {
		var deleted []string
		api := &mockObjectAPI{deleteFn: func(_ context.Context, in *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
			deleted = append(deleted, aws.ToString(in.Key))
			return &s3.DeleteObjectOutput{}, nil
		}}
		up := &mockUploader{uploadFn: func(_ context.Context, in *s3.PutObjectInput) (*manager.UploadOutput, error) {
			if aws.ToString(in.Key) == "a_lg.jpg" {
				return nil, errors.New("SlowDown")
			}
			return &manager.UploadOutput{}, nil
		}}
		s := newS3Storage(api, up, "images", t.TempDir())

		err := s.PutAll(context.Background(), artifacts, model.StorageOptions{})
		require.ErrorIs(t, err, model.ErrUpload)
		require.Equal(t, []string{"a_sm.jpg", "a_md.jpg"}, deleted)
	})
}
