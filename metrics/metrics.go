// Package metrics holds the prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PreviewFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booth_preview_frames_total",
		Help: "Frames rendered by the live preview pipeline.",
	})
	PreviewRenderSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "booth_preview_render_seconds",
		Help:    "Time spent mirroring and filtering one preview frame.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
	CameraOpens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booth_camera_opens_total",
		Help: "Camera open attempts by result.",
	}, []string{"result"})
	Captures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booth_captures_total",
		Help: "Photos captured by the capture controller.",
	})
	Sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booth_sessions_total",
		Help: "Capture sessions by outcome (finished, redo, aborted).",
	}, []string{"outcome"})
	StoreWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booth_store_writes_total",
		Help: "Photo store writes by result (ok, degraded, partial, failed).",
	}, []string{"result"})
	StoreBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "booth_store_bytes",
		Help: "Encoded size of the photo set currently stored.",
	})
	Collages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booth_collages_total",
		Help: "Collage exports by result.",
	}, []string{"result"})
	CollageRenderSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "booth_collage_render_seconds",
		Help: "Time spent decoding photos and rendering one collage.",
	})
)
