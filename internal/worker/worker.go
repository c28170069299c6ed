// Package worker consumes job messages from the queue, runs them through the pipeline and reports outcomes
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/mwlogger"
	"github.com/UnendingLoop/ImageServer/internal/orchestrator"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/helpers"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"
)

// JobRunner - пайплайн обработки одной задачи
type JobRunner interface {
	Run(ctx context.Context, jobID string, payload []byte) (*orchestrator.Report, error)
}

// JobLedger - журнал задач, который ведет API
type JobLedger interface {
	Get(ctx context.Context, id string) (*model.Job, error)
	UpdateStatus(ctx context.Context, id string, newStat model.Status) error
	SaveOutcome(ctx context.Context, res *model.Job) error
}

// OutcomePublisher - топик с результатами
type OutcomePublisher interface {
	SendWithRetry(ctx context.Context, strategy retry.Strategy, key []byte, v []byte) error
}

// MessageCommitter - подтверждение обработки сообщения очереди
type MessageCommitter interface {
	Commit(ctx context.Context, msg kafkago.Message) error
}

var retryStrategy = retry.Strategy{
	Attempts: 5,
	Delay:    2 * time.Second,
	Backoff:  1.5,
}

type Worker struct {
	runner    JobRunner
	ledger    JobLedger
	publisher OutcomePublisher // nil - результаты никуда не публикуются
	committer MessageCommitter
	queue     <-chan kafkago.Message
}

func NewWorkerInstance(r JobRunner, l JobLedger, pub OutcomePublisher, cons MessageCommitter, q <-chan kafkago.Message) *Worker {
	return &Worker{runner: r, ledger: l, publisher: pub, committer: cons, queue: q}
}

// StartWorker processes messages one at a time until ctx is done or the queue is closed.
func (w *Worker) StartWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-w.queue:
			if !ok {
				zlog.Logger.Info().Msg("Queue channel closed, stopping worker...")
				return
			}
			if err := w.processMessage(ctx, msg); err != nil {
				zlog.Logger.Error().Err(err).Str("key", string(msg.Key)).Msg("Message left uncommitted")
				continue
			}
			if err := w.committer.Commit(ctx, msg); err != nil {
				zlog.Logger.Error().Err(err).Msg("Failed to commit queue-message")
			}
		}
	}
}

// processMessage runs one job. A returned error means the message must not be committed:
// job failures are reported and committed, infrastructure failures are not.
func (w *Worker) processMessage(ctx context.Context, msg kafkago.Message) error {
	jobID := string(msg.Key)
	if jobID == "" {
		jobID = helpers.CreateUUID()
	}
	ctx = mwlogger.WithJobID(ctx, jobID)
	logger := mwlogger.LoggerFromContext(ctx)

	job, skip, err := w.startJob(ctx, jobID)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}

	report, _ := w.runner.Run(ctx, jobID, msg.Value)

	// задача прервана остановкой воркера - оставляем in_progress, ее поднимет восстановление сирот
	if ctx.Err() != nil {
		return fmt.Errorf("job %q interrupted: %w", jobID, ctx.Err())
	}

	if job != nil {
		applyReport(job, report)
		if err := w.ledger.SaveOutcome(ctx, job); err != nil {
			if !errors.Is(err, model.ErrJobNotFound) {
				return fmt.Errorf("failed to save outcome of job %q: %w", jobID, err)
			}
			logger.Warn().Msg("Job was deleted from ledger while running")
		}
	}

	w.publishOutcome(ctx, report)
	return nil
}

// startJob marks the job in_progress and returns its ledger record. A nil record means
// the job is not tracked and runs without ledger updates. skip is set for jobs already done.
func (w *Worker) startJob(ctx context.Context, jobID string) (job *model.Job, skip bool, err error) {
	logger := mwlogger.LoggerFromContext(ctx)

	job, err = w.ledger.Get(ctx, jobID)
	switch {
	case errors.Is(err, model.ErrJobNotFound), errors.Is(err, model.ErrIncorrectID):
		logger.Debug().Msg("Job is not tracked in ledger")
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("worker failed to fetch job %q from ledger: %w", jobID, err)
	}

	// повторная доставка уже выполненной задачи
	if job.Status == model.StatusDone {
		logger.Info().Msg("Job already done, skipping")
		return nil, true, nil
	}

	if err := w.ledger.UpdateStatus(ctx, jobID, model.StatusInProgress); err != nil {
		return nil, false, fmt.Errorf("failed to update status of job %q to `in_progress`: %w", jobID, err)
	}
	return job, false, nil
}

func (w *Worker) publishOutcome(ctx context.Context, report *orchestrator.Report) {
	if w.publisher == nil || report == nil {
		return
	}
	logger := mwlogger.LoggerFromContext(ctx)

	data, err := json.Marshal(outcomeFromReport(report))
	if err != nil {
		logger.Error().Err(err).Msg("Failed to marshal job outcome")
		return
	}
	if err := w.publisher.SendWithRetry(ctx, retryStrategy, []byte(report.JobID), data); err != nil {
		logger.Error().Err(err).Msg("Failed to publish job outcome")
	}
}

func applyReport(job *model.Job, r *orchestrator.Report) {
	job.Status = r.Status
	job.ResultKeys = r.Keys
	job.ErrMsg = ""
	if r.Err != nil {
		job.ErrMsg = errorMessage(r)
	}
}

func outcomeFromReport(r *orchestrator.Report) model.Outcome {
	out := model.Outcome{
		JobID:      r.JobID,
		Status:     r.Status,
		Keys:       r.Keys,
		Warnings:   r.Warnings,
		FinishedAt: time.Now().UTC(),
	}
	if r.Err != nil {
		out.Error = errorMessage(r)
	}
	return out
}

func errorMessage(r *orchestrator.Report) string {
	return fmt.Sprintf("%s: %v", r.Kind, r.Err)
}
