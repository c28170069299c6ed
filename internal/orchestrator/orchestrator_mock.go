package orchestrator

import (
	"context"
	"sync"

	"github.com/UnendingLoop/ImageServer/internal/model"
)

type mockGateway struct {
	fetchFn  func(ctx context.Context, name string, opts model.StorageOptions) (*model.FetchedSource, error)
	putAllFn func(ctx context.Context, artifacts []model.StagedArtifact, opts model.StorageOptions) error

	mu         sync.Mutex
	fetchCalls int
	putCalls   int
}

func (m *mockGateway) Fetch(ctx context.Context, name string, opts model.StorageOptions) (*model.FetchedSource, error) {
	m.mu.Lock()
	m.fetchCalls++
	m.mu.Unlock()
	return m.fetchFn(ctx, name, opts)
}

func (m *mockGateway) PutAll(ctx context.Context, artifacts []model.StagedArtifact, opts model.StorageOptions) error {
	m.mu.Lock()
	m.putCalls++
	m.mu.Unlock()
	return m.putAllFn(ctx, artifacts, opts)
}

//----------------------------------

type mockTransformer struct {
	loadFn  func(path string) (*model.ImageHandle, error)
	applyFn func(name string, h *model.ImageHandle, params map[string]any) (*model.ImageHandle, error)
	writeFn func(h *model.ImageHandle, path string) error

	mu         sync.Mutex
	applyCalls int
}

func (m *mockTransformer) Load(path string) (*model.ImageHandle, error) {
	return m.loadFn(path)
}

func (m *mockTransformer) Apply(name string, h *model.ImageHandle, params map[string]any) (*model.ImageHandle, error) {
	m.mu.Lock()
	m.applyCalls++
	m.mu.Unlock()
	return m.applyFn(name, h, params)
}

func (m *mockTransformer) Write(h *model.ImageHandle, path string) error {
	return m.writeFn(h, path)
}

//----------------------------------

type mockObserver struct {
	mu       sync.Mutex
	stages   []Stage
	finished []*Report
}

func (m *mockObserver) StageStarted(_ string, st Stage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, st)
}

func (m *mockObserver) JobFinished(r *Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, r)
}
