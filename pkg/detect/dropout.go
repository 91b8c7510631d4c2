package detect

import (
	"math"

	"voiceqa/pkg/baseline"
	"voiceqa/pkg/config"
	"voiceqa/pkg/dsp"
	"voiceqa/pkg/errors"
)

// DropoutDetector is an edge-triggered state machine over {voiced, silent}.
// Silence is defined relative to the baseline: energy below half the 10th
// percentile of calibration RMS and ZCR below (mean - 2 sigma), floored at
// zero. The voiced-to-silent transition opens a dropout; the matching
// silent-to-voiced transition closes it and emits one event spanning the
// whole stretch. A sustained silence is therefore reported once, with its
// real duration, rather than once per silent frame, and the span is what
// the aggregator's minimum-duration filter measures.
//
// This detector bypasses the voice activity gate: silence is the very
// signal it detects.
type DropoutDetector struct {
	cfg      *config.Config
	baseline *baseline.Profile

	inSilence    bool
	silenceStart float64
	silenceEnd   float64
	minRMS       float64
}

// NewDropoutDetector creates a dropout detector. SetBaseline must be
// called before Detect.
func NewDropoutDetector(cfg *config.Config) *DropoutDetector {
	return &DropoutDetector{cfg: cfg}
}

// Name implements Detector.
func (d *DropoutDetector) Name() string { return "DropoutDetector" }

// SetBaseline implements Detector.
func (d *DropoutDetector) SetBaseline(p *baseline.Profile) { d.baseline = p }

// Reset implements Detector.
func (d *DropoutDetector) Reset() { d.inSilence = false }

// Detect implements Detector.
func (d *DropoutDetector) Detect(fv dsp.FeatureVector, frame dsp.Frame, prev *dsp.FeatureVector, voiceActive bool) (*Event, error) {
	if d.baseline == nil {
		return nil, errors.NewMissingBaseline(d.Name())
	}

	rms := d.baseline.Get(dsp.FeatureRMS)
	zcr := d.baseline.Get(dsp.FeatureZCR)

	silenceThreshold := 0.5 * rms.P10
	zcrThreshold := math.Max(0, zcr.Mean-2*zcr.Std)

	silent := fv.RMS < silenceThreshold && fv.ZeroCrossingRate < zcrThreshold

	switch {
	case silent && !d.inSilence:
		d.inSilence = true
		d.silenceStart = frame.StartTime
		d.silenceEnd = frame.EndTime
		d.minRMS = fv.RMS
	case silent:
		d.silenceEnd = frame.EndTime
		if fv.RMS < d.minRMS {
			d.minRMS = fv.RMS
		}
	case d.inSilence:
		return d.close(), nil
	}
	return nil, nil
}

// Flush implements Detector: a silence still open when the recording ends
// is closed at the last silent frame.
func (d *DropoutDetector) Flush() *Event {
	if !d.inSilence {
		return nil
	}
	return d.close()
}

// close emits the event for the silence stretch that just ended.
func (d *DropoutDetector) close() *Event {
	d.inSilence = false

	silenceThreshold := 0.5 * d.baseline.Get(dsp.FeatureRMS).P10

	// Unusually deep silence raises confidence
	confidence := 0.5
	if d.minRMS < silenceThreshold*0.5 {
		confidence = 0.8
	}

	return newEvent(config.CategoryDropout, d.silenceStart, d.silenceEnd,
		confidence,
		"sustained_silence",
		map[string]float64{
			"rms":               d.minRMS,
			"silence_threshold": silenceThreshold,
			"duration":          d.silenceEnd - d.silenceStart,
		})
}
