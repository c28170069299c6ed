package orchestrator

import (
	"context"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/registry"
)

// StorageGateway - контракт для работы с хранилищем
type StorageGateway interface {
	// Fetch downloads name into a local temp file owned by the caller.
	Fetch(ctx context.Context, name string, opts model.StorageOptions) (*model.FetchedSource, error)
	// PutAll uploads every artifact or none of them.
	PutAll(ctx context.Context, artifacts []model.StagedArtifact, opts model.StorageOptions) error
}

// ImageTransformer - контракт для работы с изображениями
type ImageTransformer interface {
	Load(path string) (*model.ImageHandle, error)
	Apply(name string, h *model.ImageHandle, params map[string]any) (*model.ImageHandle, error)
	Write(h *model.ImageHandle, path string) error
}

// TaskResolver - реестр задач, доступный только на чтение
type TaskResolver interface {
	Resolve(name string) (registry.Capability, error)
	Has(name string) bool
}

// Observer receives pipeline events, e.g. for metrics.
type Observer interface {
	StageStarted(jobID string, stage Stage)
	JobFinished(report *Report)
}

type nopObserver struct{}

func (nopObserver) StageStarted(string, Stage) {}
func (nopObserver) JobFinished(*Report)        {}
