package postgres

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aradsms/ims_service/internal/ims_service/domain"
)

var (
	queryDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ims",
			Subsystem: "repository",
			Name:      "query_duration_seconds",
			Help:      "Duration of subscriber repository operations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ims",
			Subsystem: "repository",
			Name:      "queries_total",
			Help:      "Total subscriber repository operations by outcome.",
		},
		[]string{"operation", "outcome"}, // outcome: success, not_found, conflict, error
	)
)

func observe(operation string, start time.Time, err error) {
	queryDurationHist.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		outcome = "not_found"
	case errors.Is(err, domain.ErrConflict):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	queriesTotal.WithLabelValues(operation, outcome).Inc()
}
