// Package detect implements the baseline-calibrated detectors that classify
// per-frame quality degradations, the voice activity gate that scopes them,
// and the aggregator that merges raw detections into reportable events.
//
// Every detector requires a calibrated baseline profile before its first
// Detect call. A missing baseline is a configuration error surfaced
// immediately; detectors never fall back to hardcoded thresholds.
package detect

import (
	"voiceqa/pkg/baseline"
	"voiceqa/pkg/dsp"
)

// Detector is the shared contract for all quality detectors. Detect
// consumes the current frame's features, the previous frame's features
// (nil on the first frame), and the voice activity decision, and emits at
// most one event per frame.
type Detector interface {
	// Name identifies the detector in logs and errors.
	Name() string

	// SetBaseline supplies the calibrated profile. Supported on fresh
	// detector instances to reuse a stored calibration across recordings.
	SetBaseline(p *baseline.Profile)

	// Detect classifies the current frame. Returns ErrMissingBaseline if
	// called before SetBaseline.
	Detect(fv dsp.FeatureVector, frame dsp.Frame, prev *dsp.FeatureVector, voiceActive bool) (*Event, error)

	// Flush emits an event still open when the frame stream ends, or nil.
	// Called once after the last Detect call.
	Flush() *Event

	// Reset clears per-recording mutable state, keeping the baseline.
	Reset()
}

// maxHistory bounds the rolling feature history detectors keep for
// short-term context.
const maxHistory = 10

// history is a bounded rolling window of recent feature vectors.
type history struct {
	entries []dsp.FeatureVector
}

func (h *history) add(fv dsp.FeatureVector) {
	h.entries = append(h.entries, fv)
	if len(h.entries) > maxHistory {
		h.entries = h.entries[1:]
	}
}

func (h *history) len() int {
	return len(h.entries)
}

func (h *history) clear() {
	h.entries = h.entries[:0]
}
