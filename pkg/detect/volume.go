package detect

import (
	"voiceqa/pkg/baseline"
	"voiceqa/pkg/config"
	"voiceqa/pkg/dsp"
	"voiceqa/pkg/errors"
)

// VolumeDetector flags AGC pumping: rapid loudness swings that reverse
// direction. It keeps the last three frame energies and compares their
// range against the baseline's normal fluctuation band. A range excess
// with a direction reversal is pumping; a monotonic rise or fall of any
// size is deliberately suppressed, since that is consistent with a genuine
// speaker-level change or a natural speech onset.
type VolumeDetector struct {
	cfg      *config.Config
	baseline *baseline.Profile

	// energies holds the RMS of the most recent voiced frames, at most 3.
	energies []float64
}

// NewVolumeDetector creates a volume fluctuation detector. SetBaseline
// must be called before Detect.
func NewVolumeDetector(cfg *config.Config) *VolumeDetector {
	return &VolumeDetector{cfg: cfg}
}

// Name implements Detector.
func (d *VolumeDetector) Name() string { return "VolumeDetector" }

// SetBaseline implements Detector.
func (d *VolumeDetector) SetBaseline(p *baseline.Profile) { d.baseline = p }

// Reset implements Detector.
func (d *VolumeDetector) Reset() { d.energies = d.energies[:0] }

// Flush implements Detector.
func (d *VolumeDetector) Flush() *Event { return nil }

// Detect implements Detector. Frames without voice activity clear the
// energy memory so silence never contributes a spurious swing.
func (d *VolumeDetector) Detect(fv dsp.FeatureVector, frame dsp.Frame, prev *dsp.FeatureVector, voiceActive bool) (*Event, error) {
	if d.baseline == nil {
		return nil, errors.NewMissingBaseline(d.Name())
	}

	if !voiceActive {
		d.energies = d.energies[:0]
		return nil, nil
	}

	d.energies = append(d.energies, fv.RMS)
	if len(d.energies) > 3 {
		d.energies = d.energies[1:]
	}
	if len(d.energies) < 3 {
		return nil, nil
	}

	band := d.cfg.VolumeBandSigma * d.baseline.Get(dsp.FeatureRMS).Std

	lo, hi := d.energies[0], d.energies[0]
	for _, e := range d.energies[1:] {
		if e < lo {
			lo = e
		}
		if e > hi {
			hi = e
		}
	}
	swing := hi - lo
	if swing <= band {
		return nil, nil
	}

	// Sign of consecutive deltas: negative product means the level
	// reversed direction inside three frames.
	d1 := d.energies[1] - d.energies[0]
	d2 := d.energies[2] - d.energies[1]
	if d1*d2 >= 0 {
		return nil, nil
	}

	return newEvent(config.CategoryVolume, frame.StartTime, frame.EndTime,
		(swing-band)/band,
		"agc_pumping",
		map[string]float64{
			"swing":       swing,
			"normal_band": band,
			"rms":         fv.RMS,
		}), nil
}
