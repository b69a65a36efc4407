package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yoga_requests_total",
		Help: "Total number of API requests, by endpoint and status code",
	}, []string{"endpoint", "code"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yoga_request_duration_seconds",
		Help:    "Duration of API requests",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"endpoint"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "yoga_stage_duration_seconds",
		Help:    "Duration of video analysis stages",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"stage"})

	FramesAnalyzedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yoga_frames_analyzed_total",
		Help: "Total number of frames run through the pose classifier",
	})

	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yoga_predictions_total",
		Help: "Predictions by detected pose",
	}, []string{"pose"})

	InferenceErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yoga_inference_errors_total",
		Help: "Inference calls downgraded to an Unknown prediction",
	})

	ModelLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yoga_model_loads_total",
		Help: "Model load attempts, by result",
	}, []string{"result"})
)
