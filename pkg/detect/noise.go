package detect

import (
	"math"

	"voiceqa/pkg/baseline"
	"voiceqa/pkg/config"
	"voiceqa/pkg/dsp"
	"voiceqa/pkg/errors"
)

// NoiseDetector flags persistent background noise, sudden noise bursts,
// and high-frequency (wind) noise against baseline-derived thresholds.
type NoiseDetector struct {
	cfg      *config.Config
	baseline *baseline.Profile
	hist     history
}

// NewNoiseDetector creates a noise detector. SetBaseline must be called
// before Detect.
func NewNoiseDetector(cfg *config.Config) *NoiseDetector {
	return &NoiseDetector{cfg: cfg}
}

// Name implements Detector.
func (d *NoiseDetector) Name() string { return "NoiseDetector" }

// SetBaseline implements Detector.
func (d *NoiseDetector) SetBaseline(p *baseline.Profile) { d.baseline = p }

// Reset implements Detector.
func (d *NoiseDetector) Reset() { d.hist.clear() }

// Flush implements Detector.
func (d *NoiseDetector) Flush() *Event { return nil }

// Detect checks three independent noise triggers in order:
//
//  1. Persistent background noise: ZCR above baseline mean + 2 sigma. Only
//     checked when explicitly enabled, since constant low-level hiss is
//     tolerated on most devices.
//  2. Burst noise: absolute RMS deviation from baseline beyond 3 sigma, or
//     the 95th-percentile sub-frame energy above 2x baseline mean energy.
//  3. High-frequency/wind noise: spectral roll-off above baseline mean + 2 sigma.
func (d *NoiseDetector) Detect(fv dsp.FeatureVector, frame dsp.Frame, prev *dsp.FeatureVector, voiceActive bool) (*Event, error) {
	if d.baseline == nil {
		return nil, errors.NewMissingBaseline(d.Name())
	}
	if !voiceActive {
		return nil, nil
	}

	d.hist.add(fv)

	zcr := d.baseline.Get(dsp.FeatureZCR)
	zcrThreshold := zcr.Mean + d.cfg.NoiseZCRSigma*zcr.Std
	if d.cfg.DetectBackgroundNoise && fv.ZeroCrossingRate > zcrThreshold {
		return newEvent(config.CategoryNoise, frame.StartTime, frame.EndTime,
			fv.ZeroCrossingRate/zcrThreshold*0.7,
			"high_zero_crossing_rate",
			map[string]float64{
				"zcr":       fv.ZeroCrossingRate,
				"threshold": zcrThreshold,
			}), nil
	}

	rms := d.baseline.Get(dsp.FeatureRMS)
	if prev != nil && d.hist.len() >= 2 {
		normalBand := d.cfg.NoiseBurstSigma * rms.Std
		deviation := math.Abs(fv.RMS - rms.Mean)

		if deviation > normalBand || fv.RMSP95 > 2*rms.Mean {
			return newEvent(config.CategoryNoise, frame.StartTime, frame.EndTime,
				deviation/normalBand*0.6,
				"noise_burst",
				map[string]float64{
					"rms_deviation": deviation,
					"rms_p95":       fv.RMSP95,
					"baseline_rms":  rms.Mean,
				}), nil
		}
	}

	rolloff := d.baseline.Get(dsp.FeatureRolloff)
	rolloffThreshold := rolloff.Mean + d.cfg.NoiseRolloffSigma*rolloff.Std
	if fv.SpectralRolloff > rolloffThreshold {
		return newEvent(config.CategoryNoise, frame.StartTime, frame.EndTime,
			(fv.SpectralRolloff/rolloffThreshold-1)*0.5,
			"high_frequency_noise",
			map[string]float64{
				"spectral_rolloff": fv.SpectralRolloff,
				"threshold":        rolloffThreshold,
			}), nil
	}

	return nil, nil
}
