// Package analyzer drives the per-frame detection pipeline: features are
// extracted from each frame, a voice activity gate decides which detectors
// see the frame, raw detections are collected, and the aggregator turns
// them into the reported event list.
package analyzer

import (
	"context"

	"github.com/sirupsen/logrus"

	"voiceqa/pkg/baseline"
	"voiceqa/pkg/config"
	"voiceqa/pkg/detect"
	"voiceqa/pkg/dsp"
	"voiceqa/pkg/errors"
	"voiceqa/pkg/metrics"
)

// Analyzer owns one set of detectors and a shared baseline profile.
// It is not safe for concurrent use; create one per goroutine.
type Analyzer struct {
	cfg        *config.Config
	logger     *logrus.Logger
	extractor  *dsp.Extractor
	gate       *detect.VoiceGate
	detectors  []detect.Detector
	aggregator *detect.Aggregator
	baseline   *baseline.Profile
}

// New creates an analyzer with the standard detector set in a fixed order.
// A baseline must be provided via Calibrate or SetBaseline before Analyze.
func New(cfg *config.Config, logger *logrus.Logger) *Analyzer {
	return &Analyzer{
		cfg:       cfg,
		logger:    logger,
		extractor: dsp.NewExtractor(),
		gate:      detect.NewVoiceGate(cfg),
		detectors: []detect.Detector{
			detect.NewNoiseDetector(cfg),
			detect.NewDropoutDetector(cfg),
			detect.NewVolumeDetector(cfg),
			detect.NewDistortionDetector(cfg),
		},
		aggregator: detect.NewAggregator(cfg),
	}
}

// Calibrate builds a baseline profile from a clean reference recording and
// installs it on every detector.
func (a *Analyzer) Calibrate(ctx context.Context, src dsp.FrameSource) (*baseline.Profile, error) {
	var features []dsp.FeatureVector
	var prevFrame *dsp.Frame
	var sampleRate int

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "calibration cancelled")
		default:
		}

		frame, ok := src.Next()
		if !ok {
			break
		}
		sampleRate = frame.SampleRate

		features = append(features, a.extractor.Extract(frame, prevFrame))
		prevFrame = &frame
	}

	profile, err := baseline.Calibrate(features, sampleRate)
	if err != nil {
		metrics.RecordCalibrationFailure(errors.GetErrorCode(err))
		return nil, err
	}

	a.SetBaseline(profile)
	metrics.RecordCalibration(profile.FrameCount)

	a.logger.WithFields(logrus.Fields{
		"frames":      profile.FrameCount,
		"sample_rate": profile.SampleRate,
	}).Info("Baseline calibration complete")

	return profile, nil
}

// SetBaseline installs a previously computed profile, e.g. one loaded
// from disk, on every detector.
func (a *Analyzer) SetBaseline(p *baseline.Profile) {
	a.baseline = p
	for _, d := range a.detectors {
		d.SetBaseline(p)
	}
}

// Baseline returns the installed profile, or nil before calibration.
func (a *Analyzer) Baseline() *baseline.Profile { return a.baseline }

// Reset clears all per-recording detector state so the analyzer can be
// reused for another recording against the same baseline.
func (a *Analyzer) Reset() {
	for _, d := range a.detectors {
		d.Reset()
	}
}

// Analyze runs every frame from src through the detector pipeline and
// returns the aggregated event list. The frame source is consumed fully
// unless ctx is cancelled.
func (a *Analyzer) Analyze(ctx context.Context, src dsp.FrameSource) (*Result, error) {
	if a.baseline == nil {
		return nil, errors.NewMissingBaseline("Analyzer")
	}

	done := metrics.ObserveAnalysis()
	defer done()

	var (
		raw           []detect.Event
		prevFrame     *dsp.Frame
		prevFV        *dsp.FeatureVector
		frameCount    int
		totalDuration float64
	)

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), "analysis cancelled")
		default:
		}

		frame, ok := src.Next()
		if !ok {
			break
		}

		fv := a.extractor.Extract(frame, prevFrame)

		voiceActive := true
		if a.cfg.EnableVAD {
			voiceActive = a.gate.Active(fv)
		}

		for _, d := range a.detectors {
			ev, err := d.Detect(fv, frame, prevFV, voiceActive)
			if err != nil {
				return nil, errors.Wrap(err, "detector failed").WithField("detector", d.Name())
			}
			if ev != nil {
				raw = append(raw, *ev)
				metrics.RecordEvent(string(ev.Category))
			}
		}

		// Shared state advances only after every detector saw the frame
		prevFrame = &frame
		prevFV = &fv
		frameCount++
		if frame.EndTime > totalDuration {
			totalDuration = frame.EndTime
		}
	}

	// A dropout running into the end of the recording is still open here
	for _, d := range a.detectors {
		if ev := d.Flush(); ev != nil {
			raw = append(raw, *ev)
			metrics.RecordEvent(string(ev.Category))
		}
	}

	metrics.RecordFrames(frameCount)

	events := a.aggregator.Aggregate(raw)
	for _, e := range events {
		metrics.RecordReportedEvent(string(e.Category))
	}

	a.logger.WithFields(logrus.Fields{
		"frames":     frameCount,
		"raw_events": len(raw),
		"events":     len(events),
		"duration":   totalDuration,
	}).Info("Analysis complete")

	return &Result{
		Events:          events,
		FramesProcessed: frameCount,
		TotalDuration:   totalDuration,
	}, nil
}
