package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "facecurator_clips_total",
		Help: "Total number of clips evaluated, by outcome",
	}, []string{"outcome"})

	ClipDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "facecurator_clip_duration_seconds",
		Help:    "Time spent loading, detecting and evaluating one clip",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})

	FramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facecurator_frames_total",
		Help: "Total number of frames sent to the detector",
	})

	DetectErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facecurator_detect_errors_total",
		Help: "Frames whose detection failed and were counted as faceless",
	})

	EngineRestartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facecurator_engine_restarts_total",
		Help: "Detector engines restarted after a crash",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facecurator_active_workers",
		Help: "Number of workers currently evaluating a clip",
	})
)

// Clip outcomes
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeDropped  = "dropped" // accepted but the artifact could not be copied
)
