package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scene2video_conversions_total",
			Help: "Total number of conversions",
		},
		[]string{"format", "backend", "status"},
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scene2video_conversion_duration_seconds",
			Help:    "Conversion duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"format", "backend"},
	)

	OutputBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scene2video_output_bytes",
			Help:    "Size of produced files in bytes",
			Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8),
		},
	)
)

// Rendering metrics
var (
	FramesRenderedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scene2video_frames_rendered_total",
			Help: "Total number of frames composed locally",
		},
	)

	PreviewsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scene2video_previews_total",
			Help: "Total number of preview frames rendered",
		},
	)
)

// Transcoder metrics
var (
	TranscoderRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scene2video_transcoder_runs_total",
			Help: "Total number of ffmpeg invocations",
		},
		[]string{"status"},
	)

	TempFilesRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scene2video_temp_files_removed_total",
			Help: "Total number of temporary files removed after conversions",
		},
	)
)

// WriteToTextfile dumps the default registry in the node exporter textfile
// format.
func WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
