// Package transport provides methods for processing requests from endpoints
package transport

import (
	"context"
	"io"
	"net/http"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/mwlogger"
	"github.com/wb-go/wbf/ginext"
)

// максимальный размер тела задачи
const maxPayloadSize = 1 << 20

type JobHandler struct {
	service JobService
}

type JobService interface {
	Submit(ctx context.Context, payload []byte) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	GetList(ctx context.Context, req *model.ListRequest) ([]model.Job, error)
	Delete(ctx context.Context, id string) error // только запись в журнале, не объекты в хранилище
}

func NewJobHandler(svc JobService) *JobHandler {
	return &JobHandler{
		service: svc,
	}
}

func (h JobHandler) SimplePinger(ctx *ginext.Context) {
	ctx.JSON(200, map[string]string{"message": "pong"})
}

func (h JobHandler) Submit(ctx *ginext.Context) {
	body := http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxPayloadSize)
	defer closeFileFlow(ctx.Request.Context(), body)

	payload, err := io.ReadAll(body)
	if err != nil {
		ctx.JSON(400, map[string]string{"error": "failed to read job payload"})
		return
	}

	res, err := h.service.Submit(ctx.Request.Context(), payload)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(201, res)
}

func (h JobHandler) GetAllJobs(ctx *ginext.Context) {
	var req model.ListRequest

	if err := ctx.ShouldBindQuery(&req); err != nil {
		ctx.JSON(400, map[string]string{"error": model.ErrIncorrectQuery.Error()})
		return
	}

	res, err := h.service.GetList(ctx.Request.Context(), &req)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h JobHandler) GetJob(ctx *ginext.Context) {
	id := ctx.Param("id")

	res, err := h.service.Get(ctx.Request.Context(), id)
	if err != nil {
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.JSON(200, res)
}

func (h JobHandler) Delete(ctx *ginext.Context) {
	id := ctx.Param("id")
	if err := h.service.Delete(ctx.Request.Context(), id); err != nil {
		logger := mwlogger.LoggerFromContext(ctx.Request.Context())
		logger.Debug().Err(err).Str("job_id", id).Msg("Job deletion refused")
		ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
		return
	}

	ctx.Status(204)
}
