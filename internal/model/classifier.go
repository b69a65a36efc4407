package model

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/purab107/yoga-app/internal/metrics"
	"github.com/x448/float16"
	"go.uber.org/zap"
)

const (
	// CorrectThreshold is the confidence a prediction must exceed to count as correct form.
	CorrectThreshold = 0.75

	perfectThreshold   = 0.9
	uncertainThreshold = 0.5
)

var ErrNotLoaded = errors.New("model not loaded")

// Runner performs one forward pass over a preprocessed batch of one image.
type Runner interface {
	Run(input []float16.Float16) ([]float32, error)
	Close() error
}

// LoadFunc opens the model artifact.
type LoadFunc func() (Runner, error)

// Classifier maps images to pose predictions. The model is loaded at most
// once; a failed load leaves it unloaded so the next caller retries.
type Classifier struct {
	mu     sync.Mutex
	load   LoadFunc
	runner Runner
	size   int
	logger *zap.Logger
}

func NewClassifier(load LoadFunc, logger *zap.Logger) *Classifier {
	return &Classifier{
		load:   load,
		size:   InputSize,
		logger: logger,
	}
}

// ServerLoader returns a LoadFunc that opens the ONNX model and its metadata.
func ServerLoader(modelPath, metadataPath string) LoadFunc {
	return func() (Runner, error) {
		return NewServer(modelPath, metadataPath)
	}
}

// Load opens the model unless it is already loaded.
func (c *Classifier) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.runner != nil {
		return nil
	}

	c.logger.Info("loading pose model")
	runner, err := c.load()
	if err != nil {
		c.logger.Error("failed to load model", zap.Error(err))
		metrics.ModelLoadsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("load model: %w", err)
	}
	c.runner = runner
	metrics.ModelLoadsTotal.WithLabelValues("loaded").Inc()
	c.logger.Info("pose model loaded")
	return nil
}

func (c *Classifier) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runner != nil
}

func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runner == nil {
		return nil
	}
	return c.runner.Close()
}

// Predict classifies img. Inference failures do not surface as errors: they
// yield an "Unknown" prediction carrying the failure text. The only error is
// ErrNotLoaded.
func (c *Classifier) Predict(img image.Image) (Prediction, error) {
	c.mu.Lock()
	runner := c.runner
	c.mu.Unlock()

	if runner == nil {
		return Prediction{}, ErrNotLoaded
	}

	output, err := runner.Run(Preprocess(img, c.size))
	if err != nil {
		c.logger.Error("prediction error", zap.Error(err))
		metrics.InferenceErrorsTotal.Inc()
		return fallback(err), nil
	}
	if len(output) == 0 {
		err := errors.New("model returned an empty output")
		c.logger.Error("prediction error", zap.Error(err))
		metrics.InferenceErrorsTotal.Inc()
		return fallback(err), nil
	}

	pred := interpret(output)
	metrics.PredictionsTotal.WithLabelValues(pred.PoseClass).Inc()
	return pred, nil
}

func interpret(output []float32) Prediction {
	maxIdx := 0
	for i, v := range output {
		if v > output[maxIdx] {
			maxIdx = i
		}
	}

	confidence := float64(output[maxIdx])
	label := labelFor(maxIdx)
	correct := confidence > CorrectThreshold

	probabilities := make(map[string]float64, len(PoseLabels))
	for i := 0; i < len(output) && i < len(PoseLabels); i++ {
		probabilities[PoseLabels[i]] = float64(output[i])
	}

	return Prediction{
		PoseClass:        label,
		Confidence:       confidence,
		IsCorrect:        correct,
		AllProbabilities: probabilities,
		Feedback:         Feedback(label, confidence, correct),
	}
}

func labelFor(idx int) string {
	if idx >= 0 && idx < len(PoseLabels) {
		return PoseLabels[idx]
	}
	return fmt.Sprintf("Pose %d", idx)
}

func fallback(err error) Prediction {
	return Prediction{
		PoseClass:  "Unknown",
		Confidence: 0,
		IsCorrect:  false,
		Feedback:   fmt.Sprintf("Error analyzing pose: %v", err),
	}
}

// Feedback returns the per-frame coaching line for a prediction.
func Feedback(label string, confidence float64, correct bool) string {
	switch {
	case correct && confidence > perfectThreshold:
		return fmt.Sprintf("Perfect %s! Excellent form.", label)
	case correct:
		return fmt.Sprintf("Good %s. Minor improvements possible.", label)
	case confidence < uncertainThreshold:
		return "Unable to clearly identify pose. Try adjusting position."
	default:
		return fmt.Sprintf("Detected %s but form needs adjustment. Check alignment and positioning.", label)
	}
}
