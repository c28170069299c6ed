// Package jobpostgres is the Postgres implementation of the job ledger
package jobpostgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/mwlogger"
	"github.com/wb-go/wbf/dbpg"
)

type PostgresRepo struct {
	DB *dbpg.DB
}

func (p PostgresRepo) Create(ctx context.Context, j *model.Job) error {
	query := `INSERT INTO jobs (job_uid, filename, task, payload, status, result_keys, err_msg, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := p.DB.Master.ExecContext(ctx, query, j.UID, j.Filename, j.Task, []byte(j.Payload), j.Status, j.ResultKeys, j.ErrMsg, j.CreatedAt, j.CreatedAt)
	return err
}

func (p PostgresRepo) Get(ctx context.Context, id string) (*model.Job, error) {
	query := `SELECT job_uid, filename, task, payload, status, result_keys, COALESCE(err_msg, ''), created_at, updated_at
	FROM jobs
	WHERE job_uid = $1`
	var job model.Job
	var payload []byte

	err := p.DB.QueryRowContext(ctx, query, id).Scan(&job.UID,
		&job.Filename,
		&job.Task,
		&payload,
		&job.Status,
		&job.ResultKeys,
		&job.ErrMsg,
		&job.CreatedAt,
		&job.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, model.ErrJobNotFound
		default:
			return nil, err // 500
		}
	}
	job.Payload = payload

	return &job, nil
}

func (p PostgresRepo) GetList(ctx context.Context, req *model.ListRequest) ([]model.Job, error) {
	query := fmt.Sprintf(`SELECT job_uid, filename, task, status, result_keys, COALESCE(err_msg, ''), created_at, updated_at
	FROM jobs
	ORDER BY %s %s
	LIMIT $1
	OFFSET $2`, req.Sort, req.Order)

	offset := (req.Page - 1) * req.Limit

	rows, err := p.DB.Master.QueryContext(ctx, query, req.Limit, offset)
	if err != nil {
		return nil, err
	}
	defer closeRows(ctx, rows)

	jobs := make([]model.Job, 0, req.Limit)
	for rows.Next() {
		var job model.Job
		if err := rows.Scan(&job.UID,
			&job.Filename,
			&job.Task,
			&job.Status,
			&job.ResultKeys,
			&job.ErrMsg,
			&job.CreatedAt,
			&job.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return jobs, nil
}

func (p PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM jobs
	WHERE job_uid = $1`

	res, err := p.DB.Master.ExecContext(ctx, query, id)
	if err != nil {
		return err // 500
	}
	return expectAffected(res)
}

func (p PostgresRepo) UpdateStatus(ctx context.Context, id string, newStat model.Status) error {
	query := `UPDATE jobs SET status = $1, updated_at = now() WHERE job_uid = $2`

	res, err := p.DB.Master.ExecContext(ctx, query, newStat, id)
	if err != nil {
		return err // 500
	}
	return expectAffected(res)
}

// SaveOutcome stores the final status, produced keys and error message of a run.
func (p PostgresRepo) SaveOutcome(ctx context.Context, j *model.Job) error {
	query := `UPDATE jobs SET status = $1, result_keys = $2, err_msg = $3, updated_at = $4 WHERE job_uid = $5`

	res, err := p.DB.Master.ExecContext(ctx, query, j.Status, j.ResultKeys, j.ErrMsg, j.UpdatedAt, j.UID)
	if err != nil {
		return err // 500
	}
	return expectAffected(res)
}

// FetchOrphans returns jobs stuck in created/in_progress for more than 10 minutes, with payloads.
func (p PostgresRepo) FetchOrphans(ctx context.Context, limit int) ([]model.Job, error) {
	query := `SELECT job_uid, payload
	FROM jobs
	WHERE status IN ($1, $2)
	AND updated_at < now() - interval '10 minutes'
	LIMIT $3`

	rows, err := p.DB.Master.QueryContext(ctx, query, model.StatusCreated, model.StatusInProgress, limit)
	if err != nil {
		return nil, err
	}
	defer closeRows(ctx, rows)

	orphans := make([]model.Job, 0, limit)
	for rows.Next() {
		var job model.Job
		var payload []byte
		if err := rows.Scan(&job.UID, &payload); err != nil {
			return nil, err
		}
		job.Payload = payload
		orphans = append(orphans, job)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return orphans, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrJobNotFound // 404
	}
	return nil
}

func closeRows(ctx context.Context, rows *sql.Rows) {
	if err := rows.Close(); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Error while closing *sql.Rows after scanning")
	}
}
