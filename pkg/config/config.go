package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"voiceqa/pkg/errors"
)

// Config holds every recognized analyzer option. All detection thresholds
// that are relative (mean + k*sigma) are expressed as sigma multipliers;
// the only absolute thresholds are the clipping ceiling and the silence
// floor, which are properties of the waveform rather than of the speaker.
type Config struct {
	// Framing
	FrameSeconds float64 `json:"frame_seconds"` // Analysis window length
	HopSeconds   float64 `json:"hop_seconds"`   // Hop between consecutive windows

	// Voice activity gate
	EnableVAD      bool    `json:"enable_vad"`
	VADMinRMS      float64 `json:"vad_min_rms"`
	VADMaxRMS      float64 `json:"vad_max_rms"`
	VADMinCentroid float64 `json:"vad_min_centroid"` // Hz
	VADMaxCentroid float64 `json:"vad_max_centroid"` // Hz
	VADMinZCR      float64 `json:"vad_min_zcr"`
	VADMaxZCR      float64 `json:"vad_max_zcr"`

	// Noise detection
	DetectBackgroundNoise bool    `json:"detect_background_noise"`
	NoiseZCRSigma         float64 `json:"noise_zcr_sigma"`
	NoiseBurstSigma       float64 `json:"noise_burst_sigma"`
	NoiseRolloffSigma     float64 `json:"noise_rolloff_sigma"`

	// Volume fluctuation detection
	VolumeBandSigma float64 `json:"volume_band_sigma"`

	// Distortion detection
	SpectralFluxSigma   float64 `json:"spectral_flux_sigma"`
	CentroidShiftSigma  float64 `json:"centroid_shift_sigma"`
	BandwidthSpikeSigma float64 `json:"bandwidth_spike_sigma"`
	PeakToPeakThreshold float64 `json:"peak_to_peak_threshold"` // Absolute, clipping
	DistortionRMSFloor  float64 `json:"distortion_rms_floor"`   // Skip spectral checks below this

	// Event aggregation
	MergeGapSeconds  float64              `json:"merge_gap_seconds"`
	MinEventDuration map[Category]float64 `json:"min_event_duration"`
}

// Category identifies one class of quality degradation.
type Category string

const (
	CategoryNoise      Category = "noise"
	CategoryDropout    Category = "dropout"
	CategoryVolume     Category = "volume_fluctuation"
	CategoryDistortion Category = "voice_distortion"
)

// Categories lists all event categories in report order.
var Categories = []Category{CategoryNoise, CategoryDropout, CategoryVolume, CategoryDistortion}

// DefaultConfig returns the default analyzer configuration. The defaults are
// the telephony preset: short minimum durations, sensitive to dropouts.
func DefaultConfig() *Config {
	return TelephonyConfig()
}

// TelephonyConfig returns the strict preset for telephony-grade audio.
// Minimum durations are calibrated to perceptual sensitivity per category:
// brief dropouts are far more audible than brief loudness wobbles.
func TelephonyConfig() *Config {
	return &Config{
		FrameSeconds: 0.025, // 25ms window
		HopSeconds:   0.010, // 10ms hop

		EnableVAD:      true,
		VADMinRMS:      0.02,
		VADMaxRMS:      1.0,
		VADMinCentroid: 80,
		VADMaxCentroid: 3000,
		VADMinZCR:      0.03,
		VADMaxZCR:      0.18,

		DetectBackgroundNoise: false, // Constant low-level hiss is tolerated by default
		NoiseZCRSigma:         2.0,
		NoiseBurstSigma:       3.0,
		NoiseRolloffSigma:     2.0,

		VolumeBandSigma: 3.0,

		SpectralFluxSigma:   3.0,
		CentroidShiftSigma:  3.0,
		BandwidthSpikeSigma: 3.0,
		PeakToPeakThreshold: 1.8,
		DistortionRMSFloor:  0.01,

		MergeGapSeconds: 0.15,
		MinEventDuration: map[Category]float64{
			CategoryDropout:    0.05,
			CategoryDistortion: 0.12,
			CategoryNoise:      0.15,
			CategoryVolume:     0.25,
		},
	}
}

// CleanSpeechConfig returns the lenient preset for studio-quality sources.
// Minimum durations are 3-4x longer than the telephony preset, which
// suppresses most false positives on professionally produced audio.
func CleanSpeechConfig() *Config {
	cfg := TelephonyConfig()
	cfg.MinEventDuration = map[Category]float64{
		CategoryDropout:    0.20,
		CategoryDistortion: 0.50,
		CategoryNoise:      0.60,
		CategoryVolume:     1.00,
	}
	return cfg
}

// Preset returns the named preset configuration.
func Preset(name string) (*Config, error) {
	switch name {
	case "", "telephony":
		return TelephonyConfig(), nil
	case "clean-speech":
		return CleanSpeechConfig(), nil
	default:
		return nil, errors.NewInvalidConfig("unknown preset",
			map[string]interface{}{"preset": name})
	}
}

// Load builds a configuration from the default preset plus environment
// overrides. A .env file in the working directory is honored when present.
func Load(logger *logrus.Logger) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logger.Debug("Loaded environment from .env file")
	}

	cfg := DefaultConfig()

	cfg.FrameSeconds = getEnvFloat("VQA_FRAME_SECONDS", cfg.FrameSeconds)
	cfg.HopSeconds = getEnvFloat("VQA_HOP_SECONDS", cfg.HopSeconds)
	cfg.EnableVAD = getEnvBool("VQA_ENABLE_VAD", cfg.EnableVAD)
	cfg.VADMinRMS = getEnvFloat("VQA_VAD_MIN_RMS", cfg.VADMinRMS)
	cfg.VADMaxRMS = getEnvFloat("VQA_VAD_MAX_RMS", cfg.VADMaxRMS)
	cfg.VADMinCentroid = getEnvFloat("VQA_VAD_MIN_CENTROID", cfg.VADMinCentroid)
	cfg.VADMaxCentroid = getEnvFloat("VQA_VAD_MAX_CENTROID", cfg.VADMaxCentroid)
	cfg.VADMinZCR = getEnvFloat("VQA_VAD_MIN_ZCR", cfg.VADMinZCR)
	cfg.VADMaxZCR = getEnvFloat("VQA_VAD_MAX_ZCR", cfg.VADMaxZCR)
	cfg.DetectBackgroundNoise = getEnvBool("VQA_DETECT_BACKGROUND_NOISE", cfg.DetectBackgroundNoise)
	cfg.NoiseZCRSigma = getEnvFloat("VQA_NOISE_ZCR_SIGMA", cfg.NoiseZCRSigma)
	cfg.NoiseBurstSigma = getEnvFloat("VQA_NOISE_BURST_SIGMA", cfg.NoiseBurstSigma)
	cfg.NoiseRolloffSigma = getEnvFloat("VQA_NOISE_ROLLOFF_SIGMA", cfg.NoiseRolloffSigma)
	cfg.VolumeBandSigma = getEnvFloat("VQA_VOLUME_BAND_SIGMA", cfg.VolumeBandSigma)
	cfg.SpectralFluxSigma = getEnvFloat("VQA_SPECTRAL_FLUX_SIGMA", cfg.SpectralFluxSigma)
	cfg.CentroidShiftSigma = getEnvFloat("VQA_CENTROID_SHIFT_SIGMA", cfg.CentroidShiftSigma)
	cfg.BandwidthSpikeSigma = getEnvFloat("VQA_BANDWIDTH_SPIKE_SIGMA", cfg.BandwidthSpikeSigma)
	cfg.PeakToPeakThreshold = getEnvFloat("VQA_PEAK_TO_PEAK_THRESHOLD", cfg.PeakToPeakThreshold)
	cfg.DistortionRMSFloor = getEnvFloat("VQA_DISTORTION_RMS_FLOOR", cfg.DistortionRMSFloor)
	cfg.MergeGapSeconds = getEnvFloat("VQA_MERGE_GAP_SECONDS", cfg.MergeGapSeconds)
	for _, cat := range Categories {
		key := "VQA_MIN_EVENT_DURATION_" + strings.ToUpper(string(cat))
		cfg.MinEventDuration[cat] = getEnvFloat(key, cfg.MinEventDuration[cat])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration once at startup. Options are never
// re-validated per call inside the frame loop.
func (c *Config) Validate() error {
	if c.FrameSeconds <= 0 || c.HopSeconds <= 0 {
		return errors.NewInvalidConfig("frame and hop durations must be positive",
			map[string]interface{}{"frame_seconds": c.FrameSeconds, "hop_seconds": c.HopSeconds})
	}
	if c.HopSeconds > c.FrameSeconds {
		return errors.NewInvalidConfig("hop must not exceed frame length",
			map[string]interface{}{"frame_seconds": c.FrameSeconds, "hop_seconds": c.HopSeconds})
	}
	if c.VADMinRMS >= c.VADMaxRMS || c.VADMinCentroid >= c.VADMaxCentroid || c.VADMinZCR >= c.VADMaxZCR {
		return errors.NewInvalidConfig("VAD ranges must have min < max")
	}
	if c.PeakToPeakThreshold <= 0 || c.PeakToPeakThreshold > 2.0 {
		return errors.NewInvalidConfig("peak-to-peak threshold must be in (0, 2]",
			map[string]interface{}{"peak_to_peak_threshold": c.PeakToPeakThreshold})
	}
	if c.MergeGapSeconds < 0 {
		return errors.NewInvalidConfig("merge gap must not be negative")
	}
	for _, cat := range Categories {
		d, ok := c.MinEventDuration[cat]
		if !ok {
			return errors.NewInvalidConfig("missing minimum event duration",
				map[string]interface{}{"category": string(cat)})
		}
		if d < 0 {
			return errors.NewInvalidConfig("minimum event duration must not be negative",
				map[string]interface{}{"category": string(cat), "duration": d})
		}
	}
	return nil
}

// getEnvBool retrieves a boolean environment variable or returns a default
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvFloat retrieves a float environment variable or returns a default
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
