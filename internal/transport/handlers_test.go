package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/mwlogger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"
)

func TestJobHandler_Ping(t *testing.T) {
	r := gin.New()
	h := NewJobHandler(nil)

	r.GET("/ping", func(c *gin.Context) {
		h.SimplePinger((*ginext.Context)(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	require.Equal(t, 200, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "pong", body["message"])
}

func TestJobHandler_Submit(t *testing.T) {
	const payload = `{"filename":"a.jpg","task":"resize","sizes":{"sm":{"width":10}}}`

	tests := []struct {
		name       string
		body       string
		mock       *mockJobService
		wantStatus int
	}{
		{
			name: "success",
			body: payload,
			mock: &mockJobService{
				submitFn: func(_ context.Context, p []byte) (*model.Job, error) {
					require.JSONEq(t, payload, string(p))
					return &model.Job{UID: uuid.New(), Status: model.StatusCreated}, nil
				},
			},
			wantStatus: 201,
		},
		{
			name: "empty body",
			body: "",
			mock: &mockJobService{
				submitFn: func(context.Context, []byte) (*model.Job, error) {
					return nil, model.ErrEmptyPayload
				},
			},
			wantStatus: 400,
		},
		{
			name: "validation error",
			body: `{"task":"resize"}`,
			mock: &mockJobService{
				submitFn: func(context.Context, []byte) (*model.Job, error) {
					return nil, fmt.Errorf("%w: you must provide a filename to process", model.ErrMissingField)
				},
			},
			wantStatus: 400,
		},
		{
			name: "unknown task",
			body: `{"filename":"a.jpg","task":"sepia","sizes":{"sm":{}}}`,
			mock: &mockJobService{
				submitFn: func(context.Context, []byte) (*model.Job, error) {
					return nil, fmt.Errorf("%w: sepia", model.ErrUnknownTask)
				},
			},
			wantStatus: 400,
		},
		{
			name: "too large",
			body: `{"filename":"` + strings.Repeat("a", maxPayloadSize) + `"}`,
			mock: &mockJobService{
				submitFn: func(context.Context, []byte) (*model.Job, error) {
					t.Fatal("service must not be called")
					return nil, nil
				},
			},
			wantStatus: 400,
		},
		{
			name: "service error",
			body: payload,
			mock: &mockJobService{
				submitFn: func(context.Context, []byte) (*model.Job, error) {
					return nil, model.ErrCommon500
				},
			},
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			h := NewJobHandler(tt.mock)

			r.POST("/jobs", func(c *gin.Context) {
				h.Submit((*ginext.Context)(c))
			})

			req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestJobHandler_GetAllJobs(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		mock       *mockJobService
		wantStatus int
	}{
		{
			name:  "success",
			query: "?page=1&limit=10&sort=status&order=ascend",
			mock: &mockJobService{
				getListFn: func(_ context.Context, req *model.ListRequest) ([]model.Job, error) {
					require.Equal(t, 10, req.Limit)
					require.Equal(t, "status", req.Sort)
					return []model.Job{{}}, nil
				},
			},
			wantStatus: 200,
		},
		{
			name:       "bad query",
			query:      "?page=abc",
			mock:       &mockJobService{},
			wantStatus: 400,
		},
		{
			name:  "service error",
			query: "",
			mock: &mockJobService{
				getListFn: func(context.Context, *model.ListRequest) ([]model.Job, error) {
					return nil, model.ErrCommon500
				},
			},
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			h := NewJobHandler(tt.mock)

			r.GET("/jobs", func(c *gin.Context) {
				h.GetAllJobs((*ginext.Context)(c))
			})

			req := httptest.NewRequest(http.MethodGet, "/jobs"+tt.query, nil)
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)
			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestJobHandler_GetJob(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name       string
		mock       *mockJobService
		wantStatus int
	}{
		{
			name: "success",
			mock: &mockJobService{
				getFn: func(context.Context, string) (*model.Job, error) {
					return &model.Job{UID: id, Status: model.StatusDone, ResultKeys: model.StringSlice{"a_sm.jpg"}}, nil
				},
			},
			wantStatus: 200,
		},
		{
			name: "incorrect id",
			mock: &mockJobService{
				getFn: func(context.Context, string) (*model.Job, error) {
					return nil, model.ErrIncorrectID
				},
			},
			wantStatus: 400,
		},
		{
			name: "not found",
			mock: &mockJobService{
				getFn: func(context.Context, string) (*model.Job, error) {
					return nil, model.ErrJobNotFound
				},
			},
			wantStatus: 404,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			h := NewJobHandler(tt.mock)

			r.GET("/jobs/:id", func(c *gin.Context) {
				h.GetJob((*ginext.Context)(c))
			})

			req := httptest.NewRequest(http.MethodGet, "/jobs/"+id.String(), nil)
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == 200 {
				var job model.Job
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
				require.Equal(t, id, job.UID)
				require.Equal(t, model.StringSlice{"a_sm.jpg"}, job.ResultKeys)
			}
		})
	}
}

func TestJobHandler_Delete(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "success", wantStatus: 204},
		{name: "not found", err: model.ErrJobNotFound, wantStatus: 404},
		{name: "in progress", err: model.ErrJobInProgress, wantStatus: 409},
		{name: "db error", err: model.ErrCommon500, wantStatus: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			h := NewJobHandler(&mockJobService{
				deleteFn: func(context.Context, string) error {
					return tt.err
				},
			})

			r.DELETE("/jobs/:id", func(c *gin.Context) {
				h.Delete((*ginext.Context)(c))
			})

			req := httptest.NewRequest(http.MethodDelete, "/jobs/123", nil)
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)
			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestErrorCodeDefiner(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrCommon500, 500},
		{model.ErrJobNotFound, 404},
		{model.ErrJobInProgress, 409},
		{fmt.Errorf("%w: size key", model.ErrInvalidKey), 400},
		{model.ErrMalformedPayload, 400},
		{model.ErrIncorrectQuery, 400},
		{model.ErrFetch, 500},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, errorCodeDefiner(tt.err))
		})
	}
}

type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, nil }
func (brokenBody) Close() error            { return errors.New("already closed") }

func TestCloseFileFlow(t *testing.T) {
	var buf bytes.Buffer
	ctx := mwlogger.WithLogger(context.Background(), zlog.Logger.Output(&buf))

	closeFileFlow(ctx, nil)
	require.Empty(t, buf.String())

	closeFileFlow(ctx, brokenBody{})
	require.Contains(t, buf.String(), "Handler failed to close request body")
}
