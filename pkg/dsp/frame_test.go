package dsp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferSourceOverlap(t *testing.T) {
	samples := make([]float64, 100)
	src := NewBufferSource(samples, 1000, 25, 10)

	var frames []Frame
	for {
		f, ok := src.Next()
		if !ok {
			break
		}
		frames = append(frames, f)
	}

	assert.Equal(t, 10, len(frames))
	assert.Equal(t, 25, len(frames[0].Samples))
	assert.Equal(t, 0.0, frames[0].StartTime)
	assert.InDelta(t, 0.025, frames[0].EndTime, 1e-9)

	// Consecutive frames advance by the hop, not the frame size
	assert.InDelta(t, 0.010, frames[1].StartTime, 1e-9)
}

func TestBufferSourceTrailingPartialFrame(t *testing.T) {
	samples := make([]float64, 30)
	src := NewBufferSource(samples, 1000, 25, 10)

	var lengths []int
	for {
		f, ok := src.Next()
		if !ok {
			break
		}
		lengths = append(lengths, len(f.Samples))
	}

	assert.Equal(t, []int{25, 20, 10}, lengths)
}

func TestBufferSourceReset(t *testing.T) {
	src := NewBufferSource(make([]float64, 50), 1000, 25, 10)

	first, ok := src.Next()
	assert.True(t, ok)

	src.Reset()
	again, ok := src.Next()
	assert.True(t, ok)
	assert.Equal(t, first.StartTime, again.StartTime)
	assert.Equal(t, len(first.Samples), len(again.Samples))
}

func TestBufferSourceEmpty(t *testing.T) {
	src := NewBufferSource(nil, 1000, 25, 10)
	_, ok := src.Next()
	assert.False(t, ok)
}

func TestFrameSize(t *testing.T) {
	assert.Equal(t, 400, FrameSize(0.025, 16000))
	assert.Equal(t, 160, FrameSize(0.010, 16000))
}
