package worker

import (
	"context"
	"sync"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/orchestrator"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/retry"
)

type mockRunner struct {
	runFn func(ctx context.Context, jobID string, payload []byte) (*orchestrator.Report, error)
	calls int
}

func (m *mockRunner) Run(ctx context.Context, jobID string, payload []byte) (*orchestrator.Report, error) {
	m.calls++
	return m.runFn(ctx, jobID, payload)
}

//----------------------------------

type mockLedger struct {
	getFn         func(ctx context.Context, id string) (*model.Job, error)
	updateFn      func(ctx context.Context, id string, st model.Status) error
	saveOutcomeFn func(ctx context.Context, j *model.Job) error
}

func (m *mockLedger) Get(ctx context.Context, id string) (*model.Job, error) {
	return m.getFn(ctx, id)
}

func (m *mockLedger) UpdateStatus(ctx context.Context, id string, st model.Status) error {
	return m.updateFn(ctx, id, st)
}

func (m *mockLedger) SaveOutcome(ctx context.Context, j *model.Job) error {
	return m.saveOutcomeFn(ctx, j)
}

//----------------------------------

type mockPublisher struct {
	sendFn func(ctx context.Context, s retry.Strategy, key []byte, v []byte) error
}

func (m *mockPublisher) SendWithRetry(ctx context.Context, s retry.Strategy, key []byte, v []byte) error {
	return m.sendFn(ctx, s, key, v)
}

//----------------------------------

type mockCommitter struct {
	mu        sync.Mutex
	committed []string
	commitErr error
}

func (m *mockCommitter) Commit(_ context.Context, msg kafkago.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, string(msg.Key))
	return m.commitErr
}

func (m *mockCommitter) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.committed...)
}
