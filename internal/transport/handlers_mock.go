package transport

import (
	"context"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/gin-gonic/gin"
)

type mockJobService struct {
	submitFn  func(ctx context.Context, payload []byte) (*model.Job, error)
	getFn     func(ctx context.Context, id string) (*model.Job, error)
	getListFn func(ctx context.Context, req *model.ListRequest) ([]model.Job, error)
	deleteFn  func(ctx context.Context, id string) error
}

func (m *mockJobService) Submit(ctx context.Context, payload []byte) (*model.Job, error) {
	return m.submitFn(ctx, payload)
}

func (m *mockJobService) Get(ctx context.Context, id string) (*model.Job, error) {
	return m.getFn(ctx, id)
}

func (m *mockJobService) GetList(ctx context.Context, req *model.ListRequest) ([]model.Job, error) {
	return m.getListFn(ctx, req)
}

func (m *mockJobService) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func init() {
	gin.SetMode(gin.TestMode)
}
