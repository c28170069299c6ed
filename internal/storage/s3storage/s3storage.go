// Package s3storage provides the storage gateway for S3-compatible stores (AWS S3, Cloudflare R2)
package s3storage

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path"
	"path/filepath"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/storage/batch"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/config"
)

type objectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type S3Storage struct {
	bucket   string
	tempDir  string
	client   objectAPI
	uploader uploader
}

func NewS3Client(ctx context.Context, cfg *config.Config) (*S3Storage, error) {
	bucket := cfg.GetString("BUCKET_NAME")
	if bucket == "" {
		return nil, fmt.Errorf("BUCKET_NAME is required for the s3 storage backend")
	}

	region := cfg.GetString("S3_REGION")
	if region == "" {
		region = "auto" // R2
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.GetString("S3_ACCESS_KEY_ID"), cfg.GetString("S3_SECRET_ACCESS_KEY"), "",
		)),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := cfg.GetString("S3_ENDPOINT")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Storage(client, manager.NewUploader(client), bucket, cfg.GetString("WORKER_TEMP_DIR")), nil
}

func newS3Storage(client objectAPI, up uploader, bucket, tempDir string) *S3Storage {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &S3Storage{bucket: bucket, tempDir: tempDir, client: client, uploader: up}
}

func (s *S3Storage) bucketFor(opts model.StorageOptions) string {
	if opts.Bucket != "" {
		return opts.Bucket
	}
	return s.bucket
}

// Fetch downloads name into a new file under the temp dir. On failure nothing is left behind.
func (s *S3Storage) Fetch(ctx context.Context, name string, opts model.StorageOptions) (*model.FetchedSource, error) {
	bucket := s.bucketFor(opts)

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: download %s/%s: %v", model.ErrFetch, bucket, name, err)
	}
	defer out.Body.Close()

	tmp := filepath.Join(s.tempDir, uuid.NewString()+path.Ext(name))
	if err := saveBody(tmp, out.Body); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("%w: read body of %s/%s: %v", model.ErrFetch, bucket, name, err)
	}

	return &model.FetchedSource{
		TempPath:    tmp,
		LogicalName: name,
		ContentType: batch.DetectContentType(aws.ToString(out.ContentType), tmp),
		Metadata:    maps.Clone(out.Metadata),
	}, nil
}

func saveBody(tmp string, body io.Reader) error {
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// PutAll uploads every artifact or, on failure, removes those already written.
func (s *S3Storage) PutAll(ctx context.Context, artifacts []model.StagedArtifact, opts model.StorageOptions) error {
	bucket := s.bucketFor(opts)

	put := func(ctx context.Context, a model.StagedArtifact, f *os.File, _ int64) error {
		input := &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(a.DestinationKey),
			Body:        f,
			ContentType: aws.String(a.ContentType),
			Metadata:    a.Metadata,
		}
		if opts.CacheControl != "" {
			input.CacheControl = aws.String(opts.CacheControl)
		}
		if opts.StorageClass != "" {
			input.StorageClass = types.StorageClass(opts.StorageClass)
		}

		_, err := s.uploader.Upload(ctx, input)
		return err
	}
	remove := func(ctx context.Context, key string) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
		return err
	}

	return batch.PutAll(ctx, artifacts, put, remove)
}
