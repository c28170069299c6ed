// Package batch holds the helpers shared by storage gateways: all-or-nothing upload of staged artifacts and content-type detection
package batch

import (
	"context"
	"fmt"
	"os"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/mwlogger"
	"github.com/gabriel-vasile/mimetype"
)

// PutFunc uploads one local file under a.DestinationKey.
type PutFunc func(ctx context.Context, a model.StagedArtifact, f *os.File, size int64) error

// RemoveFunc deletes one object by key.
type RemoveFunc func(ctx context.Context, key string) error

// PutAll uploads artifacts in order. On the first failure every object written
// by this call is removed again and an ErrUpload error is returned.
func PutAll(ctx context.Context, artifacts []model.StagedArtifact, put PutFunc, remove RemoveFunc) error {
	written := make([]string, 0, len(artifacts))

	for _, a := range artifacts {
		if err := putOne(ctx, a, put); err != nil {
			rollback(ctx, written, remove)
			return fmt.Errorf("%w: %q: %v", model.ErrUpload, a.DestinationKey, err)
		}
		written = append(written, a.DestinationKey)
	}

	return nil
}

func putOne(ctx context.Context, a model.StagedArtifact, put PutFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Open(a.SourcePath)
	if err != nil {
		return err
	}
	defer closeFileFlow(ctx, f)

	st, err := f.Stat()
	if err != nil {
		return err
	}

	return put(ctx, a, f, st.Size())
}

// rollback runs even when ctx is already canceled.
func rollback(ctx context.Context, keys []string, remove RemoveFunc) {
	logger := mwlogger.LoggerFromContext(ctx)
	rctx := context.WithoutCancel(ctx)

	for _, key := range keys {
		if err := remove(rctx, key); err != nil {
			logger.Error().Err(err).Str("key", key).Msg("Failed to roll back uploaded object")
			continue
		}
		logger.Debug().Str("key", key).Msg("Uploaded object rolled back")
	}
}

func closeFileFlow(ctx context.Context, f *os.File) {
	if err := f.Close(); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Warn().Err(err).Msg("Failed to close staged file")
	}
}

// DetectContentType trusts the stored content type unless it is missing or generic,
// otherwise sniffs the downloaded file.
func DetectContentType(stored, file string) string {
	if stored != "" && stored != "application/octet-stream" {
		return stored
	}
	mt, err := mimetype.DetectFile(file)
	if err != nil {
		return stored
	}
	return mt.String()
}
