// Package service provides business-logic for the job ledger: submission, lookup and recovery
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/mwlogger"
	"github.com/UnendingLoop/ImageServer/internal/repository"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
)

type JobService struct {
	repo      repository.JobRepo
	publisher TaskPublisher
	tasks     model.TaskChecker
}

func NewJobService(jobRep repository.JobRepo, pub TaskPublisher, tasks model.TaskChecker) *JobService {
	return &JobService{
		repo:      jobRep,
		publisher: pub,
		tasks:     tasks,
	}
}

// TaskPublisher - контракт для работы с очередью
type TaskPublisher interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

// Стратегия ретрая отправки в очередь
var retryStrategy = retry.Strategy{
	Attempts: 5,
	Delay:    3 * time.Second,
	Backoff:  1.5,
}

// Submit validates the payload, records the job as created and publishes it keyed by its UUID.
func (c JobService) Submit(ctx context.Context, payload []byte) (*model.Job, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	if len(payload) == 0 {
		return nil, model.ErrEmptyPayload
	}

	// та же валидация, что и в воркере - невалидная задача не попадает в очередь
	req, err := model.ValidateJobRequest(payload, c.tasks)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &model.Job{
		UID:       uuid.New(),
		Filename:  req.Filename,
		Task:      req.DefaultTask,
		Payload:   payload,
		Status:    model.StatusCreated,
		CreatedAt: &now,
	}

	// шлем в базу
	if err := c.repo.Create(ctx, job); err != nil {
		logger.Error().Err(err).Msg("Failed to create job in DB")
		return nil, model.ErrCommon500
	}

	// кладем в очередь задач
	if err := c.publisher.SendWithRetry(ctx, retryStrategy, []byte(job.UID.String()), payload); err != nil {
		logger.Error().Err(err).Msg(fmt.Sprintf("Failed to publish job %q to task-queue", job.UID))
		return nil, model.ErrCommon500
	}

	logger.Info().Str("job_id", job.UID.String()).Str("filename", job.Filename).Msg("Job submitted")
	return job, nil
}

func (c JobService) GetList(ctx context.Context, req *model.ListRequest) ([]model.Job, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	validateQueryParams(req)

	res, err := c.repo.GetList(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch jobs list from DB")
		return nil, model.ErrCommon500
	}

	return res, nil
}

func (c JobService) Get(ctx context.Context, id string) (*model.Job, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	if err := uuid.Validate(id); err != nil {
		return nil, model.ErrIncorrectID
	}

	res, err := c.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return nil, model.ErrJobNotFound // 404
		}
		logger.Error().Err(err).Msg(fmt.Sprintf("Failed to fetch job %q from DB", id))
		return nil, model.ErrCommon500
	}

	return res, nil
}

// Delete removes the job record. Jobs being processed are not deleted.
func (c JobService) Delete(ctx context.Context, id string) error {
	logger := mwlogger.LoggerFromContext(ctx)

	job, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == model.StatusInProgress {
		return model.ErrJobInProgress // 409
	}

	if err := c.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			return model.ErrJobNotFound
		}
		logger.Error().Err(err).Msg("Failed to delete job from DB")
		return model.ErrCommon500
	}

	return nil
}

func (c JobService) UpdateStatus(ctx context.Context, id string, newStat model.Status) error {
	if err := uuid.Validate(id); err != nil {
		return model.ErrIncorrectID
	}
	if !model.StatusMap[newStat] {
		return model.ErrIncorrectQuery
	}

	logger := mwlogger.LoggerFromContext(ctx)

	if err := c.repo.UpdateStatus(ctx, id, newStat); err != nil {
		switch {
		case errors.Is(err, model.ErrJobNotFound):
			return model.ErrJobNotFound // 404
		default:
			logger.Error().Err(err).Msg("Failed to update job status in DB")
			return model.ErrCommon500 // 500
		}
	}

	return nil
}

// SaveOutcome stores the terminal status of a run together with its keys or error message.
func (c JobService) SaveOutcome(ctx context.Context, input *model.Job) error {
	logger := mwlogger.LoggerFromContext(ctx)
	t := time.Now().UTC()
	input.UpdatedAt = &t
	if err := c.repo.SaveOutcome(ctx, input); err != nil {
		switch {
		case errors.Is(err, model.ErrJobNotFound):
			return model.ErrJobNotFound // 404
		default:
			logger.Error().Err(err).Msg("Failed to save job outcome in DB")
			return model.ErrCommon500 // 500
		}
	}

	return nil
}

// ReviveOrphans republishes jobs stuck in created/in_progress. Returns the number republished.
func (c JobService) ReviveOrphans(ctx context.Context, limit int) int {
	logger := mwlogger.LoggerFromContext(ctx)

	orphans, err := c.repo.FetchOrphans(ctx, limit)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load orphans from DB")
		return 0
	}

	revived := 0
	for _, v := range orphans {
		if err := c.publisher.SendWithRetry(ctx, retryStrategy, []byte(v.UID.String()), v.Payload); err != nil {
			logger.Error().Err(err).Str("job_id", v.UID.String()).Msg("Failed to publish orphan to queue")
			continue
		}
		revived++
	}
	if revived > 0 {
		logger.Info().Int("count", revived).Msg("Orphan jobs republished")
	}
	return revived
}
