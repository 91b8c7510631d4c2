package detect

import (
	"voiceqa/pkg/config"
	"voiceqa/pkg/dsp"
)

// VoiceGate classifies a frame as voice-active from its energy, spectral
// centroid, and zero-crossing rate. The decision is a majority vote: at
// least two of the three range checks must pass, which tolerates one
// plausible feature drifting slightly outside its window during natural
// voice variation.
type VoiceGate struct {
	minRMS, maxRMS           float64
	minCentroid, maxCentroid float64
	minZCR, maxZCR           float64
}

// NewVoiceGate creates a voice activity gate from the configured ranges.
func NewVoiceGate(cfg *config.Config) *VoiceGate {
	return &VoiceGate{
		minRMS:      cfg.VADMinRMS,
		maxRMS:      cfg.VADMaxRMS,
		minCentroid: cfg.VADMinCentroid,
		maxCentroid: cfg.VADMaxCentroid,
		minZCR:      cfg.VADMinZCR,
		maxZCR:      cfg.VADMaxZCR,
	}
}

// Active reports whether the frame contains voice activity.
func (g *VoiceGate) Active(fv dsp.FeatureVector) bool {
	votes := 0
	if fv.RMS > g.minRMS && fv.RMS < g.maxRMS {
		votes++
	}
	if fv.SpectralCentroid > g.minCentroid && fv.SpectralCentroid < g.maxCentroid {
		votes++
	}
	if fv.ZeroCrossingRate > g.minZCR && fv.ZeroCrossingRate < g.maxZCR {
		votes++
	}
	return votes >= 2
}
