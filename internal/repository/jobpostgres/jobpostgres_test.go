package jobpostgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/dbpg"
)

func newRepoWithMock(t *testing.T) (PostgresRepo, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pg := &dbpg.DB{Master: db}

	repo := PostgresRepo{DB: pg}

	return repo, mock
}

// CREATE - SUCCESS
func TestPostgresRepo_Create_OK(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	ctime := time.Now()
	job := &model.Job{
		UID:       uuid.New(),
		Filename:  "a.jpg",
		Task:      "resize",
		Payload:   json.RawMessage(`{"filename":"a.jpg"}`),
		Status:    model.StatusCreated,
		CreatedAt: &ctime,
	}

	mock.ExpectExec(`INSERT INTO jobs`).
		WithArgs(
			job.UID,
			job.Filename,
			job.Task,
			[]byte(job.Payload),
			job.Status,
			sqlmock.AnyArg(),
			job.ErrMsg,
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), job)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// GET - SUCCESS
func TestPostgresRepo_Get_OK(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	id := uuid.New().String()

	rows := sqlmock.NewRows([]string{
		"job_uid", "filename", "task", "payload",
		"status", "result_keys", "err_msg", "created_at", "updated_at",
	}).AddRow(
		id, "a.jpg", "resize", []byte(`{"filename":"a.jpg"}`),
		model.StatusDone, []byte(`["a_sm.jpg","a_lg.jpg"]`), "", time.Now(), time.Now(),
	)

	mock.ExpectQuery(`SELECT job_uid`).
		WithArgs(id).
		WillReturnRows(rows)

	job, err := repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, id, job.UID.String())
	require.Equal(t, model.StatusDone, job.Status)
	require.Equal(t, model.StringSlice{"a_sm.jpg", "a_lg.jpg"}, job.ResultKeys)
	require.JSONEq(t, `{"filename":"a.jpg"}`, string(job.Payload))
}

// GET - NOT FOUND
func TestPostgresRepo_Get_NotFound(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	mock.ExpectQuery(`SELECT job_uid`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), uuid.New().String())
	require.ErrorIs(t, err, model.ErrJobNotFound)
}

// GETLIST - SUCCESS
func TestPostgresRepo_GetList_OK(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	req := &model.ListRequest{
		Page:  2,
		Limit: 2,
		Sort:  "created_at",
		Order: "DESC",
	}

	rows := sqlmock.NewRows([]string{
		"job_uid", "filename", "task",
		"status", "result_keys", "err_msg", "created_at", "updated_at",
	}).
		AddRow(uuid.New().String(), "a.jpg", "resize", model.StatusDone, []byte(`["a_sm.jpg"]`), "", time.Now(), time.Now()).
		AddRow(uuid.New().String(), "b.png", "crop", model.StatusFailed, nil, "FetchError: no such key", time.Now(), nil)

	mock.ExpectQuery(`SELECT job_uid, filename, task, status`).
		WithArgs(2, 2).
		WillReturnRows(rows)

	res, err := repo.GetList(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, "FetchError: no such key", res[1].ErrMsg)
	require.Nil(t, res[1].UpdatedAt)
}

func TestPostgresRepo_Modifications(t *testing.T) {
	now := time.Now()
	job := &model.Job{UID: uuid.New(), Status: model.StatusDone, ResultKeys: model.StringSlice{"a_sm.jpg"}, UpdatedAt: &now}

	tests := []struct {
		name    string
		expect  string
		result  sql.Result
		dbErr   error
		call    func(repo PostgresRepo) error
		wantErr error
	}{
		{
			name:   "delete ok",
			expect: `DELETE FROM jobs`,
			result: sqlmock.NewResult(0, 1),
			call:   func(repo PostgresRepo) error { return repo.Delete(context.Background(), "id") },
		},
		{
			name:    "delete not found",
			expect:  `DELETE FROM jobs`,
			result:  sqlmock.NewResult(0, 0),
			call:    func(repo PostgresRepo) error { return repo.Delete(context.Background(), "id") },
			wantErr: model.ErrJobNotFound,
		},
		{
			name:   "update status ok",
			expect: `UPDATE jobs SET status = \$1, updated_at = now\(\)`,
			result: sqlmock.NewResult(0, 1),
			call: func(repo PostgresRepo) error {
				return repo.UpdateStatus(context.Background(), "id", model.StatusInProgress)
			},
		},
		{
			name:   "update status not found",
			expect: `UPDATE jobs SET status = \$1, updated_at = now\(\)`,
			result: sqlmock.NewResult(0, 0),
			call: func(repo PostgresRepo) error {
				return repo.UpdateStatus(context.Background(), "id", model.StatusInProgress)
			},
			wantErr: model.ErrJobNotFound,
		},
		{
			name:   "save outcome ok",
			expect: `UPDATE jobs SET status = \$1, result_keys`,
			result: sqlmock.NewResult(0, 1),
			call:   func(repo PostgresRepo) error { return repo.SaveOutcome(context.Background(), job) },
		},
		{
			name:    "save outcome db error",
			expect:  `UPDATE jobs SET status = \$1, result_keys`,
			dbErr:   errors.New("db down"),
			call:    func(repo PostgresRepo) error { return repo.SaveOutcome(context.Background(), job) },
			wantErr: errors.New("db down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := newRepoWithMock(t)

			exp := mock.ExpectExec(tt.expect)
			if tt.dbErr != nil {
				exp.WillReturnError(tt.dbErr)
			} else {
				exp.WillReturnResult(tt.result)
			}

			err := tt.call(repo)
			switch {
			case tt.wantErr == nil:
				require.NoError(t, err)
			case errors.Is(tt.wantErr, model.ErrJobNotFound):
				require.ErrorIs(t, err, model.ErrJobNotFound)
			default:
				require.EqualError(t, err, tt.wantErr.Error())
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// FETCHORPHANS - SUCCESS
func TestPostgresRepo_FetchOrphans_OK(t *testing.T) {
	repo, mock := newRepoWithMock(t)

	id1, id2 := uuid.New(), uuid.New()
	rows := sqlmock.NewRows([]string{"job_uid", "payload"}).
		AddRow(id1.String(), []byte(`{"a":1}`)).
		AddRow(id2.String(), []byte(`{"b":2}`))

	mock.ExpectQuery(`SELECT job_uid, payload`).
		WithArgs(model.StatusCreated, model.StatusInProgress, 2).
		WillReturnRows(rows)

	res, err := repo.FetchOrphans(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, id1, res[0].UID)
	require.JSONEq(t, `{"b":2}`, string(res[1].Payload))
}
