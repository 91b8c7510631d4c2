package detect

import (
	"math"

	"voiceqa/pkg/baseline"
	"voiceqa/pkg/config"
	"voiceqa/pkg/dsp"
	"voiceqa/pkg/errors"
)

// DistortionDetector flags voice distortion from spectral anomalies and
// clipping. Checks run in priority order with first-hit return:
//
//  1. Clipping: peak-to-peak amplitude near the waveform ceiling. This is
//     the one absolute check, clipping is a property of the waveform, not
//     of the speaker.
//  2. Near-silent frames skip all remaining spectral checks.
//  3. Spectral-flux spike vs baseline (encoding / echo-cancellation artifacts).
//  4. Centroid deviation vs baseline (timbre shift, tinny or muffled).
//  5. Bandwidth deviation vs baseline (codec breakage, frequency spreading).
type DistortionDetector struct {
	cfg      *config.Config
	baseline *baseline.Profile
}

// NewDistortionDetector creates a distortion detector. SetBaseline must
// be called before Detect.
func NewDistortionDetector(cfg *config.Config) *DistortionDetector {
	return &DistortionDetector{cfg: cfg}
}

// Name implements Detector.
func (d *DistortionDetector) Name() string { return "DistortionDetector" }

// SetBaseline implements Detector.
func (d *DistortionDetector) SetBaseline(p *baseline.Profile) { d.baseline = p }

// Reset implements Detector.
func (d *DistortionDetector) Reset() {}

// Flush implements Detector.
func (d *DistortionDetector) Flush() *Event { return nil }

// Detect implements Detector.
func (d *DistortionDetector) Detect(fv dsp.FeatureVector, frame dsp.Frame, prev *dsp.FeatureVector, voiceActive bool) (*Event, error) {
	if d.baseline == nil {
		return nil, errors.NewMissingBaseline(d.Name())
	}
	if !voiceActive {
		return nil, nil
	}

	if fv.PeakToPeak > d.cfg.PeakToPeakThreshold {
		return newEvent(config.CategoryDistortion, frame.StartTime, frame.EndTime,
			math.Pow(fv.PeakToPeak/2.0, 1.5),
			"clipping",
			map[string]float64{
				"peak_to_peak": fv.PeakToPeak,
				"threshold":    d.cfg.PeakToPeakThreshold,
			}), nil
	}

	// Near-silent frames would make the relative spectral checks divide
	// by near-zero statistics.
	if fv.RMS < d.cfg.DistortionRMSFloor {
		return nil, nil
	}

	flux := d.baseline.Get(dsp.FeatureFlux)
	fluxThreshold := flux.Mean + d.cfg.SpectralFluxSigma*flux.Std
	if fv.SpectralFlux > fluxThreshold {
		return newEvent(config.CategoryDistortion, frame.StartTime, frame.EndTime,
			(fv.SpectralFlux/fluxThreshold-1)*0.7,
			"spectral_flux_spike",
			map[string]float64{
				"spectral_flux": fv.SpectralFlux,
				"threshold":     fluxThreshold,
			}), nil
	}

	centroid := d.baseline.Get(dsp.FeatureCentroid)
	centroidDeviation := math.Abs(fv.SpectralCentroid - centroid.Mean)
	centroidThreshold := d.cfg.CentroidShiftSigma * centroid.Std
	if centroidDeviation > centroidThreshold {
		return newEvent(config.CategoryDistortion, frame.StartTime, frame.EndTime,
			centroidDeviation/centroidThreshold*0.6,
			"centroid_shift",
			map[string]float64{
				"centroid":          fv.SpectralCentroid,
				"baseline_centroid": centroid.Mean,
				"threshold":         centroidThreshold,
			}), nil
	}

	bandwidth := d.baseline.Get(dsp.FeatureBandwidth)
	bandwidthDeviation := math.Abs(fv.SpectralBandwidth - bandwidth.Mean)
	bandwidthThreshold := d.cfg.BandwidthSpikeSigma * bandwidth.Std
	if bandwidthDeviation > bandwidthThreshold {
		return newEvent(config.CategoryDistortion, frame.StartTime, frame.EndTime,
			bandwidthDeviation/bandwidthThreshold*0.5,
			"bandwidth_spike",
			map[string]float64{
				"bandwidth":          fv.SpectralBandwidth,
				"baseline_bandwidth": bandwidth.Mean,
				"threshold":          bandwidthThreshold,
			}), nil
	}

	return nil, nil
}
