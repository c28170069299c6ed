// Package orchestrator runs one image job: validation, fetch, per-size transforms, bulk upload and cleanup
package orchestrator

import (
	"context"
	"fmt"
	"maps"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/UnendingLoop/ImageServer/internal/model"
	"github.com/UnendingLoop/ImageServer/internal/mwlogger"
	"github.com/UnendingLoop/ImageServer/internal/tempfile"
	"golang.org/x/sync/errgroup"
)

type Stage string

const (
	StageValidating   Stage = "validating"
	StageFetching     Stage = "fetching"
	StageTransforming Stage = "transforming"
	StageUploading    Stage = "uploading"
	StageCleaningUp   Stage = "cleaning_up"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

type Config struct {
	TempDir     string
	Parallelism int  // одновременных трансформаций на задачу, 1 - строго по порядку
	Profile     bool // логировать память и время выполнения задачи
}

// Report is the outcome of one Run.
type Report struct {
	JobID    string
	Status   model.Status
	Kind     model.Kind
	Err      error
	Keys     []string
	Warnings []string
	Stage    Stage // последняя достигнутая стадия до CleaningUp
	Elapsed  time.Duration
}

type Orchestrator struct {
	storage     StorageGateway
	transformer ImageTransformer
	tasks       TaskResolver
	observer    Observer
	cfg         Config
}

func New(strg StorageGateway, tr ImageTransformer, tasks TaskResolver, obs Observer, cfg Config) *Orchestrator {
	if obs == nil {
		obs = nopObserver{}
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Orchestrator{storage: strg, transformer: tr, tasks: tasks, observer: obs, cfg: cfg}
}

// Run processes one job payload. Temp files are always removed before it returns,
// whatever the outcome. The returned error equals report.Err.
func (o *Orchestrator) Run(ctx context.Context, jobID string, payload []byte) (*Report, error) {
	logger := mwlogger.LoggerFromContext(ctx)
	start := time.Now()

	var memBefore runtime.MemStats
	if o.cfg.Profile {
		runtime.ReadMemStats(&memBefore)
	}

	report := &Report{JobID: jobID}
	tracker := tempfile.New(o.cfg.TempDir)

	err := o.process(ctx, report, tracker, payload)

	// чистим временные файлы при любом исходе
	o.enter(ctx, report, StageCleaningUp)
	for _, w := range tracker.PurgeAll() {
		logger.Warn().Err(w).Msg("Failed to remove temp file")
		report.Warnings = append(report.Warnings, w.Error())
	}

	report.Elapsed = time.Since(start)
	if err != nil {
		report.Status = model.StatusFailed
		report.Kind = model.KindOf(err)
		report.Err = err
		report.Keys = nil
		o.observer.StageStarted(jobID, StageFailed)
		logger.Error().Err(err).Str("kind", string(report.Kind)).Msg("Job failed")
	} else {
		report.Status = model.StatusDone
		o.observer.StageStarted(jobID, StageCompleted)
		logger.Info().Strs("keys", report.Keys).Dur("elapsed", report.Elapsed).Msg("Job completed")
	}

	if o.cfg.Profile {
		var memAfter runtime.MemStats
		runtime.ReadMemStats(&memAfter)
		logger.Info().
			Uint64("heap_alloc_before", memBefore.HeapAlloc).
			Uint64("heap_alloc_after", memAfter.HeapAlloc).
			Uint64("total_alloc", memAfter.TotalAlloc-memBefore.TotalAlloc).
			Uint64("sys", memAfter.Sys).
			Dur("elapsed", report.Elapsed).
			Msg("Job profile")
	}

	o.observer.JobFinished(report)
	return report, err
}

func (o *Orchestrator) enter(ctx context.Context, report *Report, st Stage) {
	if st != StageCleaningUp {
		report.Stage = st
	}
	logger := mwlogger.LoggerFromContext(ctx)
	logger.Debug().Str("stage", string(st)).Msg("Job stage")
	o.observer.StageStarted(report.JobID, st)
}

func (o *Orchestrator) process(ctx context.Context, report *Report, tracker *tempfile.Tracker, payload []byte) error {
	// валидация - без какого-либо I/O
	o.enter(ctx, report, StageValidating)
	req, err := model.ValidateJobRequest(payload, o.tasks)
	if err != nil {
		return err
	}

	// скачиваем исходник
	o.enter(ctx, report, StageFetching)
	opts, err := model.ParseStorageOptions(req.StorageOptions)
	if err != nil {
		return classify(model.ErrFetch, err)
	}
	src, err := o.storage.Fetch(ctx, req.Filename, opts)
	if err != nil {
		return classify(model.ErrFetch, err)
	}
	tracker.Track(src.TempPath)
	if src.LogicalName == "" {
		src.LogicalName = req.Filename
	}

	handle, err := o.transformer.Load(src.TempPath)
	if err != nil {
		return classify(model.ErrLoad, err)
	}

	// генерируем все размеры
	o.enter(ctx, report, StageTransforming)
	artifacts, err := o.transformAll(ctx, req, src, handle, tracker)
	if err != nil {
		return err
	}

	// одна загрузка на все артефакты
	o.enter(ctx, report, StageUploading)
	if err := o.storage.PutAll(ctx, artifacts, opts); err != nil {
		return classify(model.ErrUpload, err)
	}

	report.Keys = make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		report.Keys = append(report.Keys, a.DestinationKey)
	}
	return nil
}

// transformAll produces one artifact per size on at most cfg.Parallelism goroutines.
// The first failure cancels the siblings that have not started yet.
func (o *Orchestrator) transformAll(ctx context.Context, req *model.JobRequest, src *model.FetchedSource, handle *model.ImageHandle, tracker *tempfile.Tracker) ([]model.StagedArtifact, error) {
	artifacts := make([]model.StagedArtifact, len(req.Sizes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)

	for i, size := range req.Sizes {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return classify(model.ErrTransform, err)
			}
			art, err := o.transformOne(gctx, size, src, handle, tracker)
			if err != nil {
				return err
			}
			artifacts[i] = art
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// родительский контекст мог быть отменён до запуска первой горутины
	if err := ctx.Err(); err != nil {
		return nil, classify(model.ErrTransform, err)
	}
	return artifacts, nil
}

func (o *Orchestrator) transformOne(ctx context.Context, size model.SizeEntry, src *model.FetchedSource, handle *model.ImageHandle, tracker *tempfile.Tracker) (model.StagedArtifact, error) {
	logger := mwlogger.LoggerFromContext(ctx)

	capability, err := o.tasks.Resolve(size.Task)
	if err != nil {
		return model.StagedArtifact{}, classify(model.ErrUnknownTask, err)
	}

	out, err := o.transformer.Apply(capability.Name, handle, size.CloneParams())
	if err != nil {
		return model.StagedArtifact{}, classify(model.ErrTransform, fmt.Errorf("size %q: %w", size.Suffix, err))
	}

	key := DestinationKey(src.LogicalName, size.Suffix)
	f, err := tracker.Create("variant-*" + path.Ext(key))
	if err != nil {
		return model.StagedArtifact{}, classify(model.ErrTransform, err)
	}
	tmpPath := f.Name()
	if err := f.Close(); err != nil {
		return model.StagedArtifact{}, classify(model.ErrTransform, err)
	}

	if err := o.transformer.Write(out, tmpPath); err != nil {
		return model.StagedArtifact{}, classify(model.ErrTransform, fmt.Errorf("size %q: %w", size.Suffix, err))
	}

	contentType := model.GetCType[out.Format]
	if contentType == "" {
		contentType = src.ContentType
	}

	logger.Debug().Str("suffix", size.Suffix).Str("task", capability.Name).Str("key", key).Msg("Variant staged")

	return model.StagedArtifact{
		SourcePath:     tmpPath,
		DestinationKey: key,
		ContentType:    contentType,
		Metadata:       maps.Clone(src.Metadata),
	}, nil
}

// DestinationKey inserts "_"+suffix before the extension of name:
// "photos/cat.jpg" -> "photos/cat_thumb.jpg", "readme" -> "readme_small".
func DestinationKey(name, suffix string) string {
	dir, file := path.Split(name)
	ext := path.Ext(file)
	return dir + strings.TrimSuffix(file, ext) + "_" + suffix + ext
}

// classify keeps an already classified error as is and wraps anything else with sentinel.
func classify(sentinel, err error) error {
	switch model.KindOf(err) {
	case model.KindNone:
		return nil
	case model.KindUnclassified, model.KindCleanupWarning:
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	return err
}
