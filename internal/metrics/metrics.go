package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medcatalog",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medcatalog",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "route"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medcatalog",
			Subsystem: "api",
			Name:      "uploads_total",
			Help:      "Asset uploads by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medcatalog",
			Subsystem: "api",
			Name:      "upload_bytes_total",
			Help:      "Total bytes uploaded",
		},
		[]string{"kind"},
	)

	BlobOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medcatalog",
			Subsystem: "blob",
			Name:      "operations_total",
			Help:      "Blob store operations",
		},
		[]string{"operation", "status"},
	)

	BlobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medcatalog",
			Subsystem: "blob",
			Name:      "duration_seconds",
			Help:      "Blob store operation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medcatalog",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Document store operations",
		},
		[]string{"operation", "status"},
	)

	CompensationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medcatalog",
			Subsystem: "saga",
			Name:      "compensations_total",
			Help:      "Compensating asset deletes after a failed entry write",
		},
		[]string{"status"},
	)

	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medcatalog",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Listing cache lookups by result",
		},
		[]string{"result"},
	)
)

func RecordRequest(method, route, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, route, status).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(durationSec)
}

func RecordUpload(kind, status string, bytes int64) {
	UploadsTotal.WithLabelValues(kind, status).Inc()
	if status == "success" {
		UploadBytesTotal.WithLabelValues(kind).Add(float64(bytes))
	}
}

func RecordBlobOperation(operation, status string, durationSec float64) {
	BlobOperationsTotal.WithLabelValues(operation, status).Inc()
	BlobDuration.WithLabelValues(operation).Observe(durationSec)
}

func RecordStoreOperation(operation string, err error) {
	StoreOperationsTotal.WithLabelValues(operation, Status(err)).Inc()
}

func RecordCompensation(err error) {
	CompensationsTotal.WithLabelValues(Status(err)).Inc()
}

func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	CacheLookupsTotal.WithLabelValues("miss").Inc()
}

// Status maps an operation error onto the status label.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
