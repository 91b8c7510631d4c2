package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Analysis metrics
	FramesProcessed  prometheus.Counter
	EventsDetected   *prometheus.CounterVec
	EventsAggregated *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram

	// Calibration metrics
	CalibrationsTotal   prometheus.Counter
	CalibrationFrames   prometheus.Histogram
	CalibrationFailures *prometheus.CounterVec

	// Alignment metrics
	AlignmentsTotal   *prometheus.CounterVec
	AlignmentOffset   prometheus.Histogram
	AlignmentFailures prometheus.Counter

	// Media metrics
	FilesDecoded *prometheus.CounterVec
	DecodeErrors *prometheus.CounterVec
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		// Initialize analysis metrics
		FramesProcessed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "voiceqa_frames_processed_total",
				Help: "Total number of audio frames run through the detector pipeline",
			},
		)

		EventsDetected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceqa_events_detected_total",
				Help: "Total number of raw per-frame events, before aggregation",
			},
			[]string{"category"},
		)

		EventsAggregated = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceqa_events_reported_total",
				Help: "Total number of events surviving merge and duration filtering",
			},
			[]string{"category"},
		)

		AnalysisDuration = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voiceqa_analysis_duration_seconds",
				Help:    "Wall time spent analyzing a recording",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // From 10ms to ~40s
			},
		)

		// Initialize calibration metrics
		CalibrationsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "voiceqa_calibrations_total",
				Help: "Total number of baseline calibrations performed",
			},
		)

		CalibrationFrames = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voiceqa_calibration_frames",
				Help:    "Number of frames contributing to a baseline profile",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		)

		CalibrationFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceqa_calibration_failures_total",
				Help: "Total number of failed baseline calibrations",
			},
			[]string{"reason"},
		)

		// Initialize alignment metrics
		AlignmentsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceqa_alignments_total",
				Help: "Total number of completed recording alignments",
			},
			[]string{"quality"},
		)

		AlignmentOffset = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voiceqa_alignment_offset_seconds",
				Help:    "Absolute coarse offset recovered between recordings",
				Buckets: prometheus.LinearBuckets(0, 0.5, 11),
			},
		)

		AlignmentFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "voiceqa_alignment_failures_total",
				Help: "Total number of alignment attempts that returned an error",
			},
		)

		// Initialize media metrics
		FilesDecoded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceqa_files_decoded_total",
				Help: "Total number of audio files decoded",
			},
			[]string{"format"},
		)

		DecodeErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voiceqa_decode_errors_total",
				Help: "Total number of audio decode failures",
			},
			[]string{"reason"},
		)

		registry.MustRegister(
			// Analysis metrics
			FramesProcessed,
			EventsDetected,
			EventsAggregated,
			AnalysisDuration,

			// Calibration metrics
			CalibrationsTotal,
			CalibrationFrames,
			CalibrationFailures,

			// Alignment metrics
			AlignmentsTotal,
			AlignmentOffset,
			AlignmentFailures,

			// Media metrics
			FilesDecoded,
			DecodeErrors,
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	return metricsEnabled
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if metricsEnabled {
		handler := promhttp.HandlerFor(
			registry,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				Registry:          registry,
			},
		)
		mux.Handle(defaultMetricsPath, handler)
	}
}

// RecordFrames records frames pushed through the detector pipeline
func RecordFrames(count int) {
	if metricsEnabled {
		FramesProcessed.Add(float64(count))
	}
}

// RecordEvent records a raw per-frame detection
func RecordEvent(category string) {
	if metricsEnabled {
		EventsDetected.WithLabelValues(category).Inc()
	}
}

// RecordReportedEvent records an event that survived aggregation
func RecordReportedEvent(category string) {
	if metricsEnabled {
		EventsAggregated.WithLabelValues(category).Inc()
	}
}

// ObserveAnalysis records analysis wall time with a timer function
func ObserveAnalysis() func() {
	if !metricsEnabled {
		return func() {}
	}

	start := time.Now()
	return func() {
		AnalysisDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordCalibration records a completed baseline calibration
func RecordCalibration(frames int) {
	if metricsEnabled {
		CalibrationsTotal.Inc()
		CalibrationFrames.Observe(float64(frames))
	}
}

// RecordCalibrationFailure records a failed baseline calibration
func RecordCalibrationFailure(reason string) {
	if metricsEnabled {
		CalibrationFailures.WithLabelValues(reason).Inc()
	}
}

// RecordAlignment records a completed alignment and its recovered offset
func RecordAlignment(quality string, offsetSeconds float64) {
	if metricsEnabled {
		AlignmentsTotal.WithLabelValues(quality).Inc()
		if offsetSeconds < 0 {
			offsetSeconds = -offsetSeconds
		}
		AlignmentOffset.Observe(offsetSeconds)
	}
}

// RecordAlignmentFailure records a failed alignment attempt
func RecordAlignmentFailure() {
	if metricsEnabled {
		AlignmentFailures.Inc()
	}
}

// RecordFileDecoded records a successfully decoded audio file
func RecordFileDecoded(format string) {
	if metricsEnabled {
		FilesDecoded.WithLabelValues(format).Inc()
	}
}

// RecordDecodeError records an audio decode failure
func RecordDecodeError(reason string) {
	if metricsEnabled {
		DecodeErrors.WithLabelValues(reason).Inc()
	}
}
