// Package storage picks and connects the object-storage gateway configured for the worker
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/storage/miniostorage"
	"github.com/UnendingLoop/ImageServer/internal/storage/s3storage"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"
)

const (
	BackendMinio = "minio"
	BackendS3    = "s3"
)

// Gateway - контракт шлюза хранилища, его реализуют miniostorage и s3storage
type Gateway interface {
	Fetch(ctx context.Context, name string, opts model.StorageOptions) (*model.FetchedSource, error)
	PutAll(ctx context.Context, artifacts []model.StagedArtifact, opts model.StorageOptions) error
}

// NewGateway connects to the backend named by STORAGE_BACKEND, retrying until ctx is done.
func NewGateway(ctx context.Context, cfg *config.Config, delay time.Duration) (Gateway, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.GetString("STORAGE_BACKEND")))
	if backend == "" {
		backend = BackendMinio
	}

	var connect func() (Gateway, error)
	switch backend {
	case BackendMinio:
		connect = func() (Gateway, error) { return miniostorage.NewMinioClient(cfg) }
	case BackendS3:
		connect = func() (Gateway, error) { return s3storage.NewS3Client(ctx, cfg) }
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", backend)
	}

	for {
		zlog.Logger.Info().Str("backend", backend).Msg("Connecting to IMG-storage...")
		gw, err := connect()
		if err == nil {
			zlog.Logger.Info().Str("backend", backend).Msg("Successfully connected IMG-storage!")
			return gw, nil
		}
		zlog.Logger.Error().Err(err).Msgf("Failed to init connection to IMG-storage. Next retry in %v...", delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}
