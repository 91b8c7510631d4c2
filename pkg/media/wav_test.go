package media

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceqa/pkg/errors"
	"voiceqa/pkg/metrics"
)

func TestMain(m *testing.M) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	metrics.Init(logger)
	os.Exit(m.Run())
}

func writeWAV(t *testing.T, path string, rate, channels int, data []int) {
	t.Helper()

	file, err := os.Create(path)
	require.NoError(t, err)
	defer file.Close()

	enc := wav.NewEncoder(file, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
}

func TestLoadWAVMono(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mono.wav")

	// Full-scale positive, zero, full-scale negative at 16 bits
	writeWAV(t, path, 16000, 1, []int{32767, 0, -32768, 16384})

	samples, rate, err := LoadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	require.Len(t, samples, 4)

	assert.InDelta(t, 1.0, samples[0], 1e-4)
	assert.InDelta(t, 0.0, samples[1], 1e-12)
	assert.InDelta(t, -1.0, samples[2], 1e-4)
	assert.InDelta(t, 0.5, samples[3], 1e-4)

	for _, s := range samples {
		assert.LessOrEqual(t, math.Abs(s), 1.0)
	}
}

func TestLoadWAVStereoDownmix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")

	// Interleaved L/R pairs; mono output is the channel average
	writeWAV(t, path, 8000, 2, []int{16384, -16384, 8192, 8192})

	samples, rate, err := LoadWAV(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, rate)
	require.Len(t, samples, 2)

	assert.InDelta(t, 0.0, samples[0], 1e-4)
	assert.InDelta(t, 0.25, samples[1], 1e-4)
}

func TestLoadWAVMissingFile(t *testing.T) {
	_, _, err := LoadWAV(filepath.Join(t.TempDir(), "nope.wav"))
	assert.Error(t, err)
}

func TestLoadWAVNotAWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("this is not audio"), 0o644))

	_, _, err := LoadWAV(path)
	assert.ErrorIs(t, err, errors.ErrUnsupportedAudio)
}
