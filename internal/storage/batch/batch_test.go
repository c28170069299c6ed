package batch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/mwlogger"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/zlog"
)

func stage(t *testing.T, keys ...string) []model.StagedArtifact {
	t.Helper()

	dir := t.TempDir()
	res := make([]model.StagedArtifact, 0, len(keys))
	for i, k := range keys {
		p := filepath.Join(dir, filepath.Base(k))
		require.NoError(t, os.WriteFile(p, []byte(k), 0o600))
		res = append(res, model.StagedArtifact{SourcePath: p, DestinationKey: keys[i]})
	}
	return res
}

func TestPutAll(t *testing.T) {
	tests := []struct {
		name        string
		failOn      string
		missing     bool
		cancel      bool
		wantStored  []string
		wantRemoved []string
		wantErr     bool
	}{
		{name: "all stored", wantStored: []string{"a_sm.jpg", "a_md.jpg", "a_lg.jpg"}},
		{name: "second fails", failOn: "a_md.jpg", wantStored: []string{}, wantRemoved: []string{"a_sm.jpg"}, wantErr: true},
		{name: "first fails", failOn: "a_sm.jpg", wantStored: []string{}, wantErr: true},
		{name: "staged file missing", missing: true, wantStored: []string{}, wantRemoved: []string{"a_sm.jpg", "a_md.jpg"}, wantErr: true},
		{name: "canceled context", cancel: true, wantStored: []string{}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			artifacts := stage(t, "a_sm.jpg", "a_md.jpg", "a_lg.jpg")
			if tt.missing {
				require.NoError(t, os.Remove(artifacts[2].SourcePath))
			}

			stored := map[string]string{}
			var removed []string

			put := func(_ context.Context, a model.StagedArtifact, f *os.File, size int64) error {
				if a.DestinationKey == tt.failOn {
					return errors.New("access denied")
				}
				data, err := io.ReadAll(f)
				if err != nil {
					return err
				}
				require.Equal(t, int64(len(data)), size)
				stored[a.DestinationKey] = string(data)
				return nil
			}
			remove := func(ctx context.Context, key string) error {
				require.NoError(t, ctx.Err())
				removed = append(removed, key)
				delete(stored, key)
				return nil
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancel {
				cancel()
			}

			err := PutAll(ctx, artifacts, put, remove)
			if tt.wantErr {
				require.ErrorIs(t, err, model.ErrUpload)
			} else {
				require.NoError(t, err)
			}

			keys := make([]string, 0, len(stored))
			for k := range stored {
				keys = append(keys, k)
			}
			require.ElementsMatch(t, tt.wantStored, keys)
			require.Equal(t, tt.wantRemoved, removed)
		})
	}
}

func TestDetectContentType(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "img")
	// сигнатура PNG
	require.NoError(t, os.WriteFile(png, []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), 0o600))

	require.Equal(t, "image/jpeg", DetectContentType("image/jpeg", png))
	require.Equal(t, "image/png", DetectContentType("", png))
	require.Equal(t, "image/png", DetectContentType("application/octet-stream", png))
	require.Equal(t, "", DetectContentType("", filepath.Join(dir, "missing")))
}

func TestCloseFileFlowLogsToJobLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := mwlogger.WithLogger(context.Background(), zlog.Logger.Output(&buf))

	f, err := os.Create(filepath.Join(t.TempDir(), "staged"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// повторное закрытие - ошибка уходит в логгер из контекста
	closeFileFlow(ctx, f)
	require.Contains(t, buf.String(), "Failed to close staged file")
}
