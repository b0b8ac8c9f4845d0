package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bmnprep_items_processed_total",
		Help: "Total number of videos or chunks that completed a stage",
	}, []string{"stage"})

	ItemFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bmnprep_item_failures_total",
		Help: "Total number of item failures, by stage and error kind",
	}, []string{"stage", "kind"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bmnprep_stage_duration_seconds",
		Help:    "Wall time spent in each pipeline stage",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
	}, []string{"stage"})

	ArtifactsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bmnprep_artifacts_skipped_total",
		Help: "Artifacts that already existed and were not rebuilt",
	}, []string{"stage"})

	ClipsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bmnprep_clips_emitted_total",
		Help: "Clip records written to clip lists, by subset",
	}, []string{"subset"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bmnprep_active_workers",
		Help: "Number of pool workers currently processing an item",
	})
)
