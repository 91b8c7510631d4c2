package align

import (
	"io"
	"math/rand"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceqa/pkg/metrics"
)

const testRate = 16000

func TestMain(m *testing.M) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	metrics.Init(logger)
	os.Exit(m.Run())
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// noise generates seeded broadband noise. Tonal signals are useless here:
// their correlation repeats every period and the peak is ambiguous.
func noise(seconds float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, int(seconds*testRate))
	for i := range out {
		out[i] = 0.3 * rng.NormFloat64()
	}
	return out
}

func TestAlignRecoversPositiveOffset(t *testing.T) {
	// The test recording starts 1600 samples (0.1s) before the reference.
	full := noise(3.1, 1)
	ref := full[1600:]
	test := full

	a := New(DefaultConfig(), NewNoopFineAligner(), testLogger())
	result, err := a.Align(ref, test, testRate)
	require.NoError(t, err)

	assert.InDelta(t, 0.1, result.CoarseOffset, 1.0/testRate)
	assert.Greater(t, result.CoarseConfidence, 0.9)
	assert.Equal(t, QualityCoarse, result.Quality)

	require.Equal(t, len(result.AlignedReference), len(result.AlignedTest))
	assert.InDeltaSlice(t, result.AlignedReference[:100], result.AlignedTest[:100], 1e-12,
		"after trimming the surplus lead the recordings coincide")
}

func TestAlignRecoversNegativeOffset(t *testing.T) {
	full := noise(3.1, 2)
	ref := full
	test := full[1600:]

	a := New(DefaultConfig(), NewNoopFineAligner(), testLogger())
	result, err := a.Align(ref, test, testRate)
	require.NoError(t, err)

	assert.InDelta(t, -0.1, result.CoarseOffset, 1.0/testRate)
	require.Equal(t, len(result.AlignedReference), len(result.AlignedTest))
	assert.InDeltaSlice(t, result.AlignedReference[:100], result.AlignedTest[:100], 1e-12)
}

func TestAlignIdenticalRecordings(t *testing.T) {
	signal := noise(2, 3)

	a := New(DefaultConfig(), NewNoopFineAligner(), testLogger())
	result, err := a.Align(signal, signal, testRate)
	require.NoError(t, err)

	assert.Zero(t, result.CoarseOffset)
	assert.InDelta(t, 1.0, result.CoarseConfidence, 0.01)
	assert.Empty(t, result.Warnings)
}

func TestAlignUnrelatedRecordingsWarn(t *testing.T) {
	a := New(DefaultConfig(), NewNoopFineAligner(), testLogger())
	result, err := a.Align(noise(1, 4), noise(1, 5), testRate)
	require.NoError(t, err)

	assert.Less(t, result.CoarseConfidence, 0.3)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "low correlation confidence")
}

func TestAlignDurationMismatchWarns(t *testing.T) {
	a := New(DefaultConfig(), NewNoopFineAligner(), testLogger())
	result, err := a.Align(noise(2, 6), noise(4, 6), testRate)
	require.NoError(t, err)

	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "duration mismatch")
}

func TestAlignCoarseDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableCoarse = false

	a := New(cfg, NewNoopFineAligner(), testLogger())
	result, err := a.Align(noise(2, 7), noise(2.5, 8), testRate)
	require.NoError(t, err)

	assert.Equal(t, QualityNone, result.Quality)
	assert.Zero(t, result.CoarseOffset)
	assert.Equal(t, len(result.AlignedReference), len(result.AlignedTest),
		"equal lengths hold even without a coarse pass")
}

func TestAlignEmptyInput(t *testing.T) {
	a := New(DefaultConfig(), NewNoopFineAligner(), testLogger())

	_, err := a.Align(nil, noise(1, 9), testRate)
	assert.Error(t, err)

	_, err = a.Align(noise(1, 9), nil, testRate)
	assert.Error(t, err)

	_, err = a.Align(noise(1, 9), noise(1, 9), 0)
	assert.Error(t, err)
}

func TestFineStageAttachesDiagnostics(t *testing.T) {
	signal := noise(2, 10)

	a := New(DefaultConfig(), NewCepstralAligner(), testLogger())
	result, err := a.Align(signal, signal, testRate)
	require.NoError(t, err)

	assert.Equal(t, QualityFine, result.Quality)
	require.NotNil(t, result.Fine)
	assert.InDelta(t, 0.0, result.Fine.DTWDistance, 1e-9, "identical recordings have no drift")
	assert.InDelta(t, 1.0, result.Fine.CompressionRatio, 1e-9)
	assert.Greater(t, result.Fine.PathLength, 0)
}

func TestFineStageNeverChangesTrim(t *testing.T) {
	full := noise(3.1, 11)
	ref := full[1600:]

	coarse := New(DefaultConfig(), NewNoopFineAligner(), testLogger())
	fine := New(DefaultConfig(), NewCepstralAligner(), testLogger())

	coarseResult, err := coarse.Align(ref, full, testRate)
	require.NoError(t, err)
	fineResult, err := fine.Align(ref, full, testRate)
	require.NoError(t, err)

	assert.Equal(t, coarseResult.CoarseOffset, fineResult.CoarseOffset)
	assert.Equal(t, len(coarseResult.AlignedTest), len(fineResult.AlignedTest))
}

func TestFineStageSkipsShortInput(t *testing.T) {
	// Too short for even one cepstral frame
	short := noise(0.01, 12)

	a := New(DefaultConfig(), NewCepstralAligner(), testLogger())
	result, err := a.Align(short, short, testRate)
	require.NoError(t, err)

	assert.Equal(t, QualityCoarse, result.Quality)
	assert.Nil(t, result.Fine)
}

func TestBandedDTWLengthMismatch(t *testing.T) {
	// Length difference beyond the nominal band still reaches the corner
	a := make([][]float64, 200)
	b := make([][]float64, 60)
	for i := range a {
		a[i] = []float64{float64(i)}
	}
	for i := range b {
		b[i] = []float64{float64(i)}
	}

	dist, pathLen, err := bandedDTW(a, b, dtwBand)
	require.NoError(t, err)
	assert.Greater(t, pathLen, 0)
	assert.GreaterOrEqual(t, dist, 0.0)
}
