// Package metrics exposes pipeline counters and durations in Prometheus format
package metrics

import (
	"net/http"

	"github.com/UnendingLoop/ImageServer/internal/orchestrator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "image_worker"

// PipelineObserver implements orchestrator.Observer on top of a private registry.
type PipelineObserver struct {
	registry *prometheus.Registry

	stages   *prometheus.CounterVec
	jobs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	variants prometheus.Counter
	warnings prometheus.Counter
}

func NewPipelineObserver() *PipelineObserver {
	o := &PipelineObserver{
		registry: prometheus.NewRegistry(),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_entered_total",
			Help:      "Number of times a job entered a pipeline stage.",
		}, []string{"stage"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Finished jobs by status and failure kind.",
		}, []string{"status", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of a job run, cleanup included.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"status"}),
		variants: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "variants_uploaded_total",
			Help:      "Number of variant objects written by successful jobs.",
		}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_warnings_total",
			Help:      "Temp files that could not be removed.",
		}),
	}

	o.registry.MustRegister(
		o.stages,
		o.jobs,
		o.duration,
		o.variants,
		o.warnings,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return o
}

func (o *PipelineObserver) StageStarted(_ string, stage orchestrator.Stage) {
	o.stages.WithLabelValues(string(stage)).Inc()
}

func (o *PipelineObserver) JobFinished(r *orchestrator.Report) {
	if r == nil {
		return
	}
	o.jobs.WithLabelValues(string(r.Status), string(r.Kind)).Inc()
	o.duration.WithLabelValues(string(r.Status)).Observe(r.Elapsed.Seconds())
	o.variants.Add(float64(len(r.Keys)))
	o.warnings.Add(float64(len(r.Warnings)))
}

// Handler serves the registry for scraping.
func (o *PipelineObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{Registry: o.registry})
}
