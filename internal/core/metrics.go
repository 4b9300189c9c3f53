package core

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// uploadsTotal counts finished uploads.
	// Labels: format, outcome (ok, invalid, decode, rejected, error)
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multinet",
		Subsystem: "upload",
		Name:      "total",
		Help:      "Uploads processed, by format and outcome",
	}, []string{"format", "outcome"})

	// uploadDuration measures time from slot acquisition to commit.
	uploadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "multinet",
		Subsystem: "upload",
		Name:      "duration_seconds",
		Help:      "Upload processing time in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"format"})

	// documentsInserted counts documents written per format.
	documentsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multinet",
		Subsystem: "upload",
		Name:      "documents_inserted_total",
		Help:      "Documents inserted by uploads",
	}, []string{"format"})

	// validationFailures counts individual failures by variant.
	validationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "multinet",
		Subsystem: "upload",
		Name:      "validation_failures_total",
		Help:      "Validation failures reported to clients, by type",
	}, []string{"format", "type"})

	uploadsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "multinet",
		Subsystem: "upload",
		Name:      "active",
		Help:      "Uploads currently holding a slot",
	})

	uploadsWaiting = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "multinet",
		Subsystem: "upload",
		Name:      "waiting",
		Help:      "Uploads waiting for a slot",
	})

	storeUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "multinet",
		Subsystem: "store",
		Name:      "up",
		Help:      "1 if the last store health check succeeded",
	})
)

func observeLimiter(active, waiting int) {
	uploadsActive.Set(float64(active))
	uploadsWaiting.Set(float64(waiting))
}

// uploadOutcome buckets an upload error for the outcome label.
func uploadOutcome(err error) string {
	var decodeErr *DecodeFailed
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.Is(err, ErrTooManyUploads):
		return "rejected"
	}
	if _, ok := AsValidationFailed(err); ok {
		return "invalid"
	}
	return "error"
}

func recordUpload(format string, start time.Time, inserted int, err error) {
	uploadsTotal.WithLabelValues(format, uploadOutcome(err)).Inc()
	uploadDuration.WithLabelValues(format).Observe(time.Since(start).Seconds())
	if inserted > 0 {
		documentsInserted.WithLabelValues(format).Add(float64(inserted))
	}
	if vf, ok := AsValidationFailed(err); ok {
		for _, f := range vf.Failures {
			validationFailures.WithLabelValues(format, f.Type()).Inc()
		}
	}
}
