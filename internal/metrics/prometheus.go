package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClassesSelectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signprep_classes_selected_total",
		Help: "Total number of classes accepted by the selector",
	})

	VideosMaterializedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signprep_videos_materialized_total",
		Help: "Videos seen by the materializer, by outcome",
	}, []string{"outcome"})

	SplitFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signprep_split_files_total",
		Help: "Videos assigned to each split",
	}, []string{"split"})

	AugmentedClipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signprep_augmented_clips_total",
		Help: "Total number of augmented replicates written",
	})

	AugmentJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signprep_augment_jobs_total",
		Help: "Augmentation jobs finished, by status",
	}, []string{"status"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signprep_active_workers",
		Help: "Number of augmentation workers currently processing a video",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signprep_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.1, 1, 5, 30, 60, 300, 900, 3600},
	}, []string{"stage"})
)
