// Prometheus metrics of the booth
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "photobooth"

// Recorder holds the Prometheus metrics of the booth. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	// Session lifecycle
	sessions        *prometheus.CounterVec // By outcome (delivered/failed)
	sessionDuration prometheus.Histogram

	// Variant production
	variants          *prometheus.CounterVec // By status (success/failure)
	variantDuration   prometheus.Histogram
	filtersApplied    *prometheus.CounterVec // By filter
	mediumPasses      prometheus.Histogram
	livenessFallbacks prometheus.Counter
	variantPSNR       prometheus.Histogram

	// Delivery
	archives *prometheus.CounterVec // By status

	// Hardware
	triggers *prometheus.CounterVec // By source (button/coin)
}

// NewRecorder creates the booth metrics and registers them with registerer
func NewRecorder(registerer prometheus.Registerer) (*Recorder, error) {
	if registerer == nil {
		return nil, nil // Metrics disabled
	}

	r := &Recorder{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "completed_total",
			Help:      "Total number of sessions by outcome",
		}, []string{"outcome"}), // outcome: delivered, failed

		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "processing_duration_seconds",
			Help:      "Time from capture start to access token",
			Buckets:   []float64{5, 10, 20, 30, 60, 90, 120, 180},
		}),

		variants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "variants",
			Name:      "produced_total",
			Help:      "Total number of variant tasks by status",
		}, []string{"status"}),

		variantDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "variants",
			Name:      "duration_seconds",
			Help:      "Time to compose and write one variant",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		}),

		filtersApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "variants",
			Name:      "filters_applied_total",
			Help:      "Total number of filter steps executed by filter",
		}, []string{"filter"}),

		mediumPasses: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "variants",
			Name:      "medium_passes",
			Help:      "Passes needed until a medium filter fired",
			Buckets:   prometheus.LinearBuckets(1, 1, 8),
		}),

		livenessFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "variants",
			Name:      "liveness_fallbacks_total",
			Help:      "Variants that received the forced fallback filter",
		}),

		variantPSNR: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "variants",
			Name:      "psnr_db",
			Help:      "PSNR of same-size variants against the capture",
			Buckets:   []float64{5, 10, 15, 20, 25, 30, 40, 50},
		}),

		archives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "archives_total",
			Help:      "Total number of packaging attempts by status",
		}, []string{"status"}),

		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hardware",
			Name:      "inputs_total",
			Help:      "Accepted hardware inputs by source",
		}, []string{"source"}),
	}

	collectors := []prometheus.Collector{
		r.sessions, r.sessionDuration,
		r.variants, r.variantDuration, r.filtersApplied, r.mediumPasses, r.livenessFallbacks, r.variantPSNR,
		r.archives, r.triggers,
	}
	for _, c := range collectors {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordSession records a finished session
func (r *Recorder) RecordSession(delivered bool, duration time.Duration) {
	if r == nil {
		return
	}

	outcome := "failed"
	if delivered {
		outcome = "delivered"
		r.sessionDuration.Observe(duration.Seconds())
	}
	r.sessions.WithLabelValues(outcome).Inc()
}

// RecordVariant records one variant task with the filters it ran
func (r *Recorder) RecordVariant(ok bool, duration time.Duration, filters []string, mediumPasses int, forced bool) {
	if r == nil {
		return
	}

	r.variants.WithLabelValues(status(ok)).Inc()
	if !ok {
		return
	}

	r.variantDuration.Observe(duration.Seconds())
	for _, f := range filters {
		r.filtersApplied.WithLabelValues(f).Inc()
	}
	if mediumPasses > 0 {
		r.mediumPasses.Observe(float64(mediumPasses))
	}
	if forced {
		r.livenessFallbacks.Inc()
	}
}

// RecordQuality records the quality metrics of one variant
func (r *Recorder) RecordQuality(values map[string]float64) {
	if r == nil {
		return
	}

	if psnr, ok := values["psnr"]; ok && psnr < 1e6 {
		r.variantPSNR.Observe(psnr)
	}
}

// RecordArchive records a packaging attempt
func (r *Recorder) RecordArchive(ok bool) {
	if r == nil {
		return
	}
	r.archives.WithLabelValues(status(ok)).Inc()
}

// RecordInput records an accepted hardware input
func (r *Recorder) RecordInput(source string) {
	if r == nil {
		return
	}
	r.triggers.WithLabelValues(source).Inc()
}
