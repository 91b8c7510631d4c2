// Package align estimates and removes the time offset between two
// recordings of the same audio, so that per-frame comparison lines up.
// Alignment runs in two stages: a coarse cross-correlation pass that
// trims the leading offset, and an optional fine cepstral pass that
// quantifies residual drift without modifying the samples.
package align

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/dsp/fourier"

	"voiceqa/pkg/errors"
	"voiceqa/pkg/metrics"
)

// Quality describes how far the alignment pipeline got.
type Quality string

const (
	QualityNone   Quality = "none"
	QualityCoarse Quality = "coarse"
	QualityFine   Quality = "fine"
)

const (
	// lowConfidence marks a correlation peak too weak to trust blindly.
	lowConfidence = 0.3
	// durationMismatchRatio flags recordings whose lengths differ enough
	// to suggest they are not the same material.
	durationMismatchRatio = 0.1
)

// Config bounds the coarse search and selects the stages to run.
type Config struct {
	// MaxOffsetSeconds bounds the lag search in both directions.
	MaxOffsetSeconds float64
	// MaxCompareSeconds bounds how much leading audio feeds the search.
	MaxCompareSeconds float64
	EnableCoarse      bool
	EnableFine        bool
}

// DefaultConfig returns the standard alignment bounds.
func DefaultConfig() Config {
	return Config{
		MaxOffsetSeconds:  5,
		MaxCompareSeconds: 30,
		EnableCoarse:      true,
		EnableFine:        true,
	}
}

// Result is the outcome of aligning a test recording against a reference.
// AlignedReference and AlignedTest are equal-length views of the inputs
// with the coarse offset removed.
type Result struct {
	// CoarseOffset is the recovered lead of the test recording in seconds.
	// Positive means the test started early and lost leading samples.
	CoarseOffset     float64        `json:"coarse_offset"`
	CoarseConfidence float64        `json:"coarse_confidence"`
	Fine             *FineAlignment `json:"fine,omitempty"`
	AlignedReference []float64      `json:"-"`
	AlignedTest      []float64      `json:"-"`
	Quality          Quality        `json:"quality"`
	Warnings         []string       `json:"warnings,omitempty"`
}

// Aligner runs the two-stage alignment. The fine stage is a strategy
// chosen at construction; pass NewNoopFineAligner to skip it.
type Aligner struct {
	cfg    Config
	fine   FineAligner
	logger *logrus.Logger
}

// New creates an aligner. A nil fine aligner disables the fine stage.
func New(cfg Config, fine FineAligner, logger *logrus.Logger) *Aligner {
	if fine == nil {
		fine = NewNoopFineAligner()
	}
	return &Aligner{cfg: cfg, fine: fine, logger: logger}
}

// Align estimates the offset of test relative to ref and returns trimmed,
// equal-length sample views. The fine stage never changes the trim; it
// only attaches drift diagnostics.
func (a *Aligner) Align(ref, test []float64, sampleRate int) (*Result, error) {
	if len(ref) == 0 || len(test) == 0 {
		metrics.RecordAlignmentFailure()
		return nil, errors.Wrap(errors.ErrInvalidInput, "alignment requires two non-empty recordings").
			WithField("ref_samples", len(ref)).
			WithField("test_samples", len(test))
	}
	if sampleRate <= 0 {
		metrics.RecordAlignmentFailure()
		return nil, errors.Wrap(errors.ErrInvalidInput, "alignment requires a positive sample rate")
	}

	result := &Result{
		AlignedReference: ref,
		AlignedTest:      test,
		Quality:          QualityNone,
	}

	refDur := float64(len(ref)) / float64(sampleRate)
	testDur := float64(len(test)) / float64(sampleRate)
	longer := math.Max(refDur, testDur)
	if math.Abs(refDur-testDur) > durationMismatchRatio*longer {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"duration mismatch: reference %.2fs vs test %.2fs", refDur, testDur))
	}

	if a.cfg.EnableCoarse {
		lag, confidence := a.coarseOffset(ref, test, sampleRate)
		result.CoarseOffset = float64(lag) / float64(sampleRate)
		result.CoarseConfidence = confidence
		result.Quality = QualityCoarse

		if confidence < lowConfidence {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"low correlation confidence %.3f, offset may be unreliable", confidence))
		}

		// Positive lag: the test leads, so its head is surplus.
		if lag > 0 {
			test = test[min(lag, len(test)):]
		} else if lag < 0 {
			ref = ref[min(-lag, len(ref)):]
		}
	}

	// Equal lengths regardless of which side was trimmed
	n := min(len(ref), len(test))
	result.AlignedReference = ref[:n]
	result.AlignedTest = test[:n]

	if a.cfg.EnableFine && result.Quality == QualityCoarse && n > 0 {
		fine, err := a.fine.Refine(result.AlignedReference, result.AlignedTest, sampleRate)
		if err != nil {
			metrics.RecordAlignmentFailure()
			return nil, errors.Wrap(err, "fine alignment failed")
		}
		if fine != nil {
			result.Fine = fine
			result.Quality = QualityFine
		}
	}

	metrics.RecordAlignment(string(result.Quality), result.CoarseOffset)

	a.logger.WithFields(logrus.Fields{
		"offset":     result.CoarseOffset,
		"confidence": result.CoarseConfidence,
		"quality":    result.Quality,
		"samples":    n,
	}).Info("Alignment complete")

	return result, nil
}

// coarseOffset finds the lag of test relative to ref via FFT
// cross-correlation over the leading comparison window. The returned lag
// is in samples; positive means the test recording leads.
func (a *Aligner) coarseOffset(ref, test []float64, sampleRate int) (int, float64) {
	window := int(a.cfg.MaxCompareSeconds * float64(sampleRate))
	x := head(ref, window)
	y := head(test, window)

	maxLag := int(a.cfg.MaxOffsetSeconds * float64(sampleRate))
	if m := len(x) - 1; maxLag > m {
		maxLag = m
	}
	if m := len(y) - 1; maxLag > m {
		maxLag = m
	}
	if maxLag <= 0 {
		return 0, 0
	}

	n := nextPow2(len(x) + len(y))
	fft := fourier.NewFFT(n)

	xc := fft.Coefficients(nil, pad(x, n))
	yc := fft.Coefficients(nil, pad(y, n))

	// Correlation theorem: corr = IFFT(conj(X) * Y), where index k holds
	// sum ref[t]*test[t+k] and index n-k holds the negative lag.
	prod := make([]complex128, len(xc))
	for i := range xc {
		prod[i] = cmplx.Conj(xc[i]) * yc[i]
	}
	corr := fft.Sequence(nil, prod)

	scale := 1 / float64(n)
	bestLag, bestVal := 0, math.Abs(corr[0])
	for lag := 1; lag <= maxLag; lag++ {
		if v := math.Abs(corr[lag]); v > bestVal {
			bestLag, bestVal = lag, v
		}
		if v := math.Abs(corr[n-lag]); v > bestVal {
			bestLag, bestVal = -lag, v
		}
	}

	denom := norm(x)*norm(y) + 1e-10
	confidence := clamp01(bestVal * scale / denom)
	return bestLag, confidence
}

func head(samples []float64, n int) []float64 {
	if len(samples) > n {
		return samples[:n]
	}
	return samples
}

func pad(samples []float64, n int) []float64 {
	out := make([]float64, n)
	copy(out, samples)
	return out
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func norm(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
