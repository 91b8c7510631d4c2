// Package baseline computes and persists the calibrated reference
// statistics that every detector threshold is derived from. Calibration is
// a one-shot batch operation: recalibrating on new data fully replaces the
// profile, there is no online update.
package baseline

import (
	"encoding/json"
	"math"
	"os"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"voiceqa/pkg/dsp"
	"voiceqa/pkg/errors"
)

// Stats holds the summary statistics for one feature.
type Stats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	P10  float64 `json:"p10,omitempty"`
	P90  float64 `json:"p90,omitempty"`
	Max  float64 `json:"max,omitempty"`
}

// Recommended carries derived configuration values computed at calibration
// time, so a profile is usable without re-deriving thresholds downstream.
type Recommended struct {
	// SilenceRMSThreshold is the adaptive silence level: half the 10th
	// percentile of calibration RMS, floored to stay above numeric noise.
	SilenceRMSThreshold float64 `json:"silence_rms_threshold"`

	// NoiseZCRThreshold is the background-noise zero-crossing threshold
	// (mean + 2 sigma).
	NoiseZCRThreshold float64 `json:"noise_zcr_threshold"`

	// MinEventDuration is a single coarse suggestion for consumers without
	// per-category presets. The preset durations take precedence.
	MinEventDuration float64 `json:"min_event_duration"`
}

// Profile is the immutable result of calibrating against a reference
// recording. It is required input to every detector; its absence is a
// configuration error, never replaced by fixed defaults.
type Profile struct {
	SampleRate  int              `json:"sample_rate"`
	FrameCount  int              `json:"frame_count"`
	CreatedAt   time.Time        `json:"created_at"`
	Features    map[string]Stats `json:"features"`
	Recommended Recommended      `json:"recommended"`
}

// minStdFloor keeps every derived mean + k*sigma threshold non-degenerate.
const minStdFloor = 1e-6

// smallSampleFrames is the frame count below which calibration statistics
// are treated as under-determined and the std floor is widened.
const smallSampleFrames = 5

// Calibrate aggregates feature vectors from a reference recording into a
// profile. Empty input is a configuration error. Very short calibrations
// (fewer than a handful of frames) still produce usable, clearly non-zero
// statistics by flooring each standard deviation.
func Calibrate(features []dsp.FeatureVector, sampleRate int) (*Profile, error) {
	if len(features) == 0 {
		return nil, errors.NewEmptyCalibration()
	}

	p := &Profile{
		SampleRate: sampleRate,
		FrameCount: len(features),
		CreatedAt:  time.Now().UTC(),
		Features:   make(map[string]Stats, len(dsp.FeatureNames)),
	}

	for _, name := range dsp.FeatureNames {
		values := make([]float64, len(features))
		for i, fv := range features {
			values[i] = fv.Value(name)
		}

		s := Stats{
			Mean: stat.Mean(values, nil),
			Std:  popStdDev(values),
		}

		floor := minStdFloor
		if len(features) < smallSampleFrames {
			floor = math.Max(0.1*math.Abs(s.Mean), 1e-4)
		}
		if s.Std < floor {
			s.Std = floor
		}

		sort.Float64s(values)
		switch name {
		case dsp.FeatureRMS:
			s.P10 = stat.Quantile(0.10, stat.Empirical, values, nil)
			s.P90 = stat.Quantile(0.90, stat.Empirical, values, nil)
		case dsp.FeaturePeak:
			s.Max = values[len(values)-1]
		}

		p.Features[name] = s
	}

	rms := p.Features[dsp.FeatureRMS]
	zcr := p.Features[dsp.FeatureZCR]
	p.Recommended = Recommended{
		SilenceRMSThreshold: math.Max(rms.P10*0.5, 0.005),
		NoiseZCRThreshold:   zcr.Mean + 2*zcr.Std,
		MinEventDuration:    0.3,
	}

	return p, nil
}

// Get returns the statistics for a named feature.
func (p *Profile) Get(name string) Stats {
	return p.Features[name]
}

// Save writes the profile as JSON. The profile is loadable independent of
// the calibration recording it came from.
func (p *Profile) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode baseline profile")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "failed to write baseline profile",
			map[string]interface{}{"path": path})
	}
	return nil
}

// Load reads a previously saved profile.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read baseline profile",
			map[string]interface{}{"path": path})
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrap(err, "failed to decode baseline profile",
			map[string]interface{}{"path": path})
	}

	if len(p.Features) == 0 {
		return nil, errors.New("baseline profile has no feature statistics",
			map[string]interface{}{"path": path})
	}
	return &p, nil
}

// popStdDev computes the population standard deviation. Detector sigma
// bands are defined over population rather than sample statistics.
func popStdDev(values []float64) float64 {
	mean := stat.Mean(values, nil)
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
