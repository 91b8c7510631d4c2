package dsp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Canonical feature names, used as keys in the persisted baseline profile.
const (
	FeatureRMS       = "rms"
	FeatureCentroid  = "spectral_centroid"
	FeatureBandwidth = "spectral_bandwidth"
	FeatureZCR       = "zero_crossing_rate"
	FeatureFlux      = "spectral_flux"
	FeaturePeak      = "peak_to_peak"
	FeatureRolloff   = "spectral_rolloff"
	FeatureRMSP95    = "rms_percentile_95"
)

// FeatureNames lists every extracted feature in a stable order.
var FeatureNames = []string{
	FeatureRMS,
	FeatureCentroid,
	FeatureBandwidth,
	FeatureZCR,
	FeatureFlux,
	FeaturePeak,
	FeatureRolloff,
	FeatureRMSP95,
}

// FeatureVector is the fixed set of scalar features computed per frame.
// All features are stateless except SpectralFlux, which needs the previous
// frame's spectrum and is 0 for the first frame of a recording.
type FeatureVector struct {
	RMS               float64 `json:"rms"`
	SpectralCentroid  float64 `json:"spectral_centroid"`  // Hz
	SpectralBandwidth float64 `json:"spectral_bandwidth"` // Hz
	ZeroCrossingRate  float64 `json:"zero_crossing_rate"`
	SpectralFlux      float64 `json:"spectral_flux"`
	PeakToPeak        float64 `json:"peak_to_peak"`
	SpectralRolloff   float64 `json:"spectral_rolloff"` // Hz
	RMSP95            float64 `json:"rms_percentile_95"`
}

// Value returns the named feature, used when aggregating vectors into
// per-feature baseline statistics.
func (fv FeatureVector) Value(name string) float64 {
	switch name {
	case FeatureRMS:
		return fv.RMS
	case FeatureCentroid:
		return fv.SpectralCentroid
	case FeatureBandwidth:
		return fv.SpectralBandwidth
	case FeatureZCR:
		return fv.ZeroCrossingRate
	case FeatureFlux:
		return fv.SpectralFlux
	case FeaturePeak:
		return fv.PeakToPeak
	case FeatureRolloff:
		return fv.SpectralRolloff
	case FeatureRMSP95:
		return fv.RMSP95
	}
	return 0
}

// rolloffFraction is the cumulative magnitude fraction defining the
// spectral roll-off frequency.
const rolloffFraction = 0.85

// subFrameCount is the number of sub-windows used for the 95th-percentile
// sub-frame energy, which catches sharp transients a full-frame RMS smears out.
const subFrameCount = 10

// Extractor computes feature vectors from frames. It is stateless; the
// previous frame's spectrum needed for flux is recomputed on every call
// rather than cached.
type Extractor struct{}

// NewExtractor creates a feature extractor. The sample rate is taken from
// each frame, so one extractor serves recordings of any rate.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract computes the feature vector for one frame. prev may be nil for
// the first frame; flux is then 0. Frames with fewer than 2 samples yield
// the zero sentinel for every spectral feature.
func (e *Extractor) Extract(frame Frame, prev *Frame) FeatureVector {
	fv := FeatureVector{
		RMS:              RMS(frame.Samples),
		PeakToPeak:       PeakToPeak(frame.Samples),
		ZeroCrossingRate: ZeroCrossingRate(frame.Samples),
		RMSP95:           SubFrameRMSPercentile(frame.Samples, 0.95),
	}

	if len(frame.Samples) < 2 {
		return fv
	}

	mags := magnitudeSpectrum(frame.Samples)
	fv.SpectralCentroid = centroid(mags, frame.SampleRate, len(frame.Samples))
	fv.SpectralBandwidth = bandwidth(mags, fv.SpectralCentroid, frame.SampleRate, len(frame.Samples))
	fv.SpectralRolloff = rolloff(mags, frame.SampleRate, len(frame.Samples))

	if prev != nil && len(prev.Samples) >= 2 {
		fv.SpectralFlux = SpectralFlux(frame.Samples, prev.Samples)
	}

	return fv
}

// RMS computes the root-mean-square energy of a sample window.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// PeakToPeak computes the peak-to-peak amplitude of a sample window.
func PeakToPeak(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	min, max := samples[0], samples[0]
	for _, s := range samples[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return max - min
}

// ZeroCrossingRate computes the fraction of consecutive sample pairs whose
// sign differs, an indicator of noise content versus voiced speech.
func ZeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}

	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples))
}

// SubFrameRMSPercentile splits the window into sub-frames, computes the RMS
// of each, and returns the requested percentile of those energies.
func SubFrameRMSPercentile(samples []float64, pct float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	n := subFrameCount
	if len(samples) < n {
		n = len(samples)
	}

	size := len(samples) / n
	energies := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		start := i * size
		end := start + size
		if i == n-1 {
			end = len(samples)
		}
		energies = append(energies, RMS(samples[start:end]))
	}

	sort.Float64s(energies)
	idx := int(math.Ceil(pct*float64(len(energies)))) - 1
	if idx < 0 {
		idx = 0
	}
	return energies[idx]
}

// SpectralFlux measures frame-to-frame spectral change. Both spectra are
// sum-normalized before differencing so flux is independent of absolute
// level. The two windows are truncated to a common length.
func SpectralFlux(curr, prev []float64) float64 {
	if len(curr) < 2 || len(prev) < 2 {
		return 0
	}

	n := len(curr)
	if len(prev) < n {
		n = len(prev)
	}

	currMags := magnitudeSpectrum(curr[:n])
	prevMags := magnitudeSpectrum(prev[:n])

	normalize(currMags)
	normalize(prevMags)

	var sum float64
	for i := range currMags {
		d := currMags[i] - prevMags[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// magnitudeSpectrum computes the magnitude of the real FFT of the
// Hann-windowed samples. Every spectral feature uses this same window.
func magnitudeSpectrum(samples []float64) []float64 {
	n := len(samples)
	windowed := make([]float64, n)
	for i, s := range samples {
		windowed[i] = s * hann(i, n)
	}

	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, windowed)

	mags := make([]float64, len(coeffs))
	for i, c := range coeffs {
		mags[i] = math.Hypot(real(c), imag(c))
	}
	return mags
}

// hann evaluates the Hann window at position i of an n-point window.
func hann(i, n int) float64 {
	if n < 2 {
		return 1
	}
	return 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
}

// binFreq returns the center frequency of FFT bin i for an n-sample frame.
func binFreq(i, n, sampleRate int) float64 {
	return float64(i) * float64(sampleRate) / float64(n)
}

func centroid(mags []float64, sampleRate, n int) float64 {
	var weighted, total float64
	for i, m := range mags {
		weighted += binFreq(i, n, sampleRate) * m
		total += m
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func bandwidth(mags []float64, centroid float64, sampleRate, n int) float64 {
	var weighted, total float64
	for i, m := range mags {
		d := binFreq(i, n, sampleRate) - centroid
		weighted += d * d * m
		total += m
	}
	if total == 0 {
		return 0
	}
	return math.Sqrt(weighted / total)
}

func rolloff(mags []float64, sampleRate, n int) float64 {
	var total float64
	for _, m := range mags {
		total += m
	}
	if total == 0 {
		return 0
	}

	target := rolloffFraction * total
	var cum float64
	for i, m := range mags {
		cum += m
		if cum >= target {
			return binFreq(i, n, sampleRate)
		}
	}
	return binFreq(len(mags)-1, n, sampleRate)
}

func normalize(mags []float64) {
	var total float64
	for _, m := range mags {
		total += m
	}
	if total == 0 {
		return
	}
	for i := range mags {
		mags[i] /= total
	}
}
