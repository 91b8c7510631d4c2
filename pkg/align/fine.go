package align

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"

	"voiceqa/pkg/errors"
)

const (
	mfccCoefficients = 13
	mfccFrameSize    = 512
	mfccHopSize      = 256
	melFilterCount   = 26

	// dtwBand is the Sakoe-Chiba half-width in frames.
	dtwBand = 50
	// dtwMaxFrames caps the DTW input; beyond it the sequences are
	// truncated to keep the pass bounded.
	dtwMaxFrames = 400
)

// FineAlignment carries drift diagnostics from the fine stage. It never
// modifies the aligned samples.
type FineAlignment struct {
	// DTWDistance is the accumulated frame distance along the warp path,
	// normalized by path length. Lower means the recordings track each
	// other closely after the coarse trim.
	DTWDistance float64 `json:"dtw_distance"`
	PathLength  int     `json:"path_length"`
	// CompressionRatio is the warp path length over the longer sequence
	// length. A ratio near 1 means no residual time stretching.
	CompressionRatio float64 `json:"compression_ratio"`
}

// FineAligner is the strategy for the second alignment stage. Refine may
// return (nil, nil) to signal the stage was skipped.
type FineAligner interface {
	Refine(ref, test []float64, sampleRate int) (*FineAlignment, error)
}

// NoopFineAligner skips the fine stage, leaving alignment at coarse quality.
type NoopFineAligner struct{}

// NewNoopFineAligner creates a fine aligner that does nothing.
func NewNoopFineAligner() *NoopFineAligner { return &NoopFineAligner{} }

// Refine implements FineAligner.
func (*NoopFineAligner) Refine(ref, test []float64, sampleRate int) (*FineAlignment, error) {
	return nil, nil
}

// CepstralAligner measures residual drift by dynamic time warping over
// MFCC sequences of both recordings.
type CepstralAligner struct {
	fft     *fourier.FFT
	window  []float64
	filters [][]float64
	rate    int
}

// NewCepstralAligner creates the MFCC-based fine aligner.
func NewCepstralAligner() *CepstralAligner {
	return &CepstralAligner{
		fft:    fourier.NewFFT(mfccFrameSize),
		window: hannWindow(mfccFrameSize),
	}
}

// Refine implements FineAligner. Both inputs are framed into MFCC
// sequences and warped inside a Sakoe-Chiba band.
func (c *CepstralAligner) Refine(ref, test []float64, sampleRate int) (*FineAlignment, error) {
	refMFCC := c.mfccSequence(ref, sampleRate)
	testMFCC := c.mfccSequence(test, sampleRate)
	if len(refMFCC) == 0 || len(testMFCC) == 0 {
		return nil, nil
	}

	if len(refMFCC) > dtwMaxFrames {
		refMFCC = refMFCC[:dtwMaxFrames]
	}
	if len(testMFCC) > dtwMaxFrames {
		testMFCC = testMFCC[:dtwMaxFrames]
	}

	distance, pathLength, err := bandedDTW(refMFCC, testMFCC, dtwBand)
	if err != nil {
		return nil, err
	}

	longest := len(refMFCC)
	if len(testMFCC) > longest {
		longest = len(testMFCC)
	}

	return &FineAlignment{
		DTWDistance:      distance / float64(pathLength),
		PathLength:       pathLength,
		CompressionRatio: float64(pathLength) / float64(longest),
	}, nil
}

// mfccSequence computes one MFCC vector per analysis frame.
func (c *CepstralAligner) mfccSequence(samples []float64, sampleRate int) [][]float64 {
	if len(samples) < mfccFrameSize {
		return nil
	}
	if c.filters == nil || c.rate != sampleRate {
		c.filters = melFilterbank(mfccFrameSize, melFilterCount, sampleRate)
		c.rate = sampleRate
	}

	frameCount := (len(samples)-mfccFrameSize)/mfccHopSize + 1
	out := make([][]float64, 0, frameCount)

	buf := make([]float64, mfccFrameSize)
	for f := 0; f < frameCount; f++ {
		start := f * mfccHopSize
		for i := 0; i < mfccFrameSize; i++ {
			buf[i] = samples[start+i] * c.window[i]
		}

		coeffs := c.fft.Coefficients(nil, buf)
		power := make([]float64, len(coeffs))
		for i, cf := range coeffs {
			re, im := real(cf), imag(cf)
			power[i] = re*re + im*im
		}

		logMel := make([]float64, melFilterCount)
		for m, filter := range c.filters {
			var sum float64
			for k, w := range filter {
				sum += power[k] * w
			}
			if sum < 1e-9 {
				sum = 1e-9
			}
			logMel[m] = math.Log(sum)
		}

		out = append(out, dctII(logMel, mfccCoefficients))
	}

	return out
}

// melFilterbank builds triangular filters with HTK mel spacing over the
// positive-frequency FFT bins.
func melFilterbank(nFFT, nMels, sampleRate int) [][]float64 {
	hzToMel := func(hz float64) float64 {
		return 2595.0 * math.Log10(1.0+hz/700.0)
	}
	melToHz := func(mel float64) float64 {
		return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
	}

	numBins := nFFT/2 + 1
	fMax := float64(sampleRate) / 2.0

	binFreqs := make([]float64, numBins)
	for i := range binFreqs {
		binFreqs[i] = float64(i) * fMax / float64(numBins-1)
	}

	// nMels + 2 edge points evenly spaced on the mel scale
	points := make([]float64, nMels+2)
	mMax := hzToMel(fMax)
	for i := range points {
		points[i] = melToHz(float64(i) * mMax / float64(nMels+1))
	}

	filters := make([][]float64, nMels)
	for m := 0; m < nMels; m++ {
		filters[m] = make([]float64, numBins)
		lo, center, hi := points[m], points[m+1], points[m+2]
		for k, freq := range binFreqs {
			switch {
			case freq > lo && freq < center:
				filters[m][k] = (freq - lo) / (center - lo)
			case freq >= center && freq < hi:
				filters[m][k] = (hi - freq) / (hi - center)
			}
		}
	}

	return filters
}

// dctII computes the first n type-II DCT coefficients of x.
func dctII(x []float64, n int) []float64 {
	out := make([]float64, n)
	factor := math.Pi / float64(len(x))
	for k := 0; k < n; k++ {
		var sum float64
		for i, v := range x {
			sum += v * math.Cos(factor*(float64(i)+0.5)*float64(k))
		}
		out[k] = sum
	}
	return out
}

// bandedDTW warps a against b inside a Sakoe-Chiba band and returns the
// accumulated Euclidean distance and the warp path length.
func bandedDTW(a, b [][]float64, band int) (float64, int, error) {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return 0, 0, errors.Wrap(errors.ErrAlignmentFailed, "dtw requires two non-empty sequences")
	}

	// Widen the band when the length difference alone exceeds it,
	// otherwise the corner cell is unreachable.
	if d := n - m; d > band || -d > band {
		if d < 0 {
			d = -d
		}
		band = d + 1
	}

	const inf = math.MaxFloat64
	cost := make([][]float64, n+1)
	for i := range cost {
		cost[i] = make([]float64, m+1)
		for j := range cost[i] {
			cost[i][j] = inf
		}
	}
	cost[0][0] = 0

	for i := 1; i <= n; i++ {
		jLo := i - band
		if jLo < 1 {
			jLo = 1
		}
		jHi := i + band
		if jHi > m {
			jHi = m
		}
		for j := jLo; j <= jHi; j++ {
			d := euclidean(a[i-1], b[j-1])
			best := cost[i-1][j-1]
			if cost[i-1][j] < best {
				best = cost[i-1][j]
			}
			if cost[i][j-1] < best {
				best = cost[i][j-1]
			}
			cost[i][j] = d + best
		}
	}

	if cost[n][m] == inf {
		return 0, 0, errors.Wrap(errors.ErrAlignmentFailed, "dtw band excluded the full warp path")
	}

	// Walk the path back to count its length
	pathLength := 1
	for i, j := n, m; i > 1 || j > 1; {
		switch {
		case i == 1:
			j--
		case j == 1:
			i--
		default:
			diag, up, left := cost[i-1][j-1], cost[i-1][j], cost[i][j-1]
			if diag <= up && diag <= left {
				i--
				j--
			} else if up <= left {
				i--
			} else {
				j--
			}
		}
		pathLength++
	}

	return cost[n][m], pathLength, nil
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func hannWindow(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return out
}
