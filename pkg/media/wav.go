// Package media decodes audio files into the normalized mono sample
// buffers the rest of the pipeline operates on.
package media

import (
	"math"
	"os"

	"github.com/go-audio/wav"

	"voiceqa/pkg/errors"
	"voiceqa/pkg/metrics"
)

// LoadWAV decodes a WAV file into normalized float64 samples in [-1, 1].
// Multi-channel audio is downmixed to mono by averaging the channels.
func LoadWAV(path string) ([]float64, int, error) {
	file, err := os.Open(path)
	if err != nil {
		metrics.RecordDecodeError("open")
		return nil, 0, errors.Wrap(err, "failed to open audio file").WithField("path", path)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		metrics.RecordDecodeError("invalid_wav")
		return nil, 0, errors.NewUnsupportedAudio("not a valid WAV file").WithField("path", path)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		metrics.RecordDecodeError("pcm_read")
		return nil, 0, errors.Wrap(err, "failed to read PCM data").WithField("path", path)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		metrics.RecordDecodeError("bad_format")
		return nil, 0, errors.NewUnsupportedAudio("missing or invalid format header").WithField("path", path)
	}

	channels := buf.Format.NumChannels
	bitDepth := int(decoder.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 || bitDepth > 32 {
		metrics.RecordDecodeError("bad_bit_depth")
		return nil, 0, errors.NewUnsupportedAudio("unsupported bit depth").WithField("path", path)
	}

	// Full-scale value for the source bit depth
	scale := math.Pow(2, float64(bitDepth-1))

	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch])
		}
		samples[i] = sum / float64(channels) / scale
	}

	metrics.RecordFileDecoded("wav")
	return samples, buf.Format.SampleRate, nil
}
