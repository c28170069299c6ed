// Package model provides data-structs for internal app-usage
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusFailed     Status = "failed"
	StatusDone       Status = "done"
)

var StatusMap = map[Status]bool{
	StatusCreated:    true,
	StatusInProgress: true,
	StatusFailed:     true,
	StatusDone:       true,
}

//---------------------

// Job - запись о задаче в журнале (БД)
type Job struct {
	UID        uuid.UUID       `json:"uid"`
	Filename   string          `json:"filename"`
	Task       string          `json:"task"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Status     Status          `json:"status,omitempty"`
	ResultKeys StringSlice     `json:"result_keys,omitempty"`
	ErrMsg     string          `json:"error,omitempty"`
	CreatedAt  *time.Time      `json:"created_at,omitempty"`
	UpdatedAt  *time.Time      `json:"updated_at,omitempty"`
}

// Outcome is what the worker reports back to the job transport once a run is over.
type Outcome struct {
	JobID      string    `json:"job_id"`
	Status     Status    `json:"status"`
	Keys       []string  `json:"keys,omitempty"`
	Error      string    `json:"error,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

//-------------------

// FetchedSource is the local copy of the source object. The orchestrator owns TempPath
// for the duration of the job.
type FetchedSource struct {
	TempPath    string
	LogicalName string
	ContentType string
	Metadata    map[string]string
}

// StagedArtifact is a produced variant waiting for the bulk upload.
type StagedArtifact struct {
	SourcePath     string
	DestinationKey string
	ContentType    string
	Metadata       map[string]string
}

// ImageHandle is a decoded image. Transformations never modify Image in place,
// they return a new handle.
type ImageHandle struct {
	Image  image.Image
	Format imaging.Format
}

//-------------------

type ListRequest struct {
	Page  int    `form:"page"`
	Limit int    `form:"limit"`
	Sort  string `form:"sort"`
	Order string `form:"order"`
}

const (
	ByUUID    = "uid"
	ByStatus  = "status"
	ByCreated = "created"
	OrderASC  = "ascend"
	OrderDESC = "descend"
)

//--------------------

const (
	JPEG = "image/jpeg"
	PNG  = "image/png"
	GIF  = "image/gif"
	TIFF = "image/tiff"
	BMP  = "image/bmp"
)

var GetCType = map[imaging.Format]string{
	imaging.JPEG: JPEG,
	imaging.GIF:  GIF,
	imaging.PNG:  PNG,
	imaging.TIFF: TIFF,
	imaging.BMP:  BMP,
}

//--------------------

type StringSlice []string

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = []string{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("invalid type for StringSlice")
	}

	if err := json.Unmarshal(b, s); err != nil {
		return fmt.Errorf("failed to unmarshal JSONB to []StringSlice: %w", err)
	}
	return nil
}

func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 || s == nil {
		return []byte(`[]`), nil
	}
	res, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal []StringSlice to JSONB: %w", err)
	}

	return res, nil
}
