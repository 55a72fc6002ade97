// Image quality metrics comparing a variant with its source
package metrics

import (
	"fmt"
	"sort"

	"gocv.io/x/gocv"
)

// Metric defines the interface for quality metrics
type Metric interface {
	// Calculate computes the metric value
	Calculate(original, processed gocv.Mat) (float64, error)

	GetName() string

	// SameSize reports whether the metric needs equal dimensions
	SameSize() bool
}

// Evaluator manages and calculates multiple metrics
type Evaluator struct {
	metrics map[string]Metric
}

// NewEvaluator creates a new metrics evaluator
func NewEvaluator() *Evaluator {
	e := &Evaluator{
		metrics: make(map[string]Metric),
	}

	e.Register("psnr", NewPSNR())
	e.Register("mse", NewMSE())
	e.Register("sharpness", NewSharpness())
	e.Register("contrast_ratio", NewContrastRatio())

	return e
}

// Register registers a metric
func (e *Evaluator) Register(name string, metric Metric) {
	e.metrics[name] = metric
}

// Names returns the registered metric names in order
func (e *Evaluator) Names() []string {
	names := make([]string, 0, len(e.metrics))
	for name := range e.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Calculate calculates a specific metric
func (e *Evaluator) Calculate(name string, original, processed gocv.Mat) (float64, error) {
	metric, exists := e.metrics[name]
	if !exists {
		return 0, fmt.Errorf("metric not found: %s", name)
	}

	return metric.Calculate(original, processed)
}

// Evaluate calculates every applicable metric. Size-sensitive metrics are
// skipped when a variant changed the image dimensions.
func (e *Evaluator) Evaluate(original, processed gocv.Mat) map[string]float64 {
	results := make(map[string]float64)
	resized := original.Rows() != processed.Rows() || original.Cols() != processed.Cols()

	for name, metric := range e.metrics {
		if resized && metric.SameSize() {
			continue
		}
		if value, err := metric.Calculate(original, processed); err == nil {
			results[name] = value
		}
	}

	return results
}
