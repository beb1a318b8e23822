package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facerecog",
		Name:      "enrollments_total",
		Help:      "Total number of enrolled persons, by whether an embedding was computed",
	}, []string{"embedding"})

	Recognitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facerecog",
		Name:      "recognitions_total",
		Help:      "Total number of recognition requests, by outcome",
	}, []string{"status", "reason"})

	FacesDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facerecog",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected in recognition requests",
	})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facerecog",
		Name:      "inference_duration_seconds",
		Help:      "Duration of face pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facerecog",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facerecog",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-IP rate limiter",
	}, []string{"path"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facerecog",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
