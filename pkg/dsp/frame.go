package dsp

// Frame is a contiguous window of normalized samples. Consecutive frames
// overlap by frameSize - hopSize. A frame is immutable once produced.
type Frame struct {
	Samples    []float64
	SampleRate int
	StartTime  float64 // seconds from the start of the recording
	EndTime    float64
}

// Duration returns the frame length in seconds.
func (f Frame) Duration() float64 {
	return f.EndTime - f.StartTime
}

// FrameSource is a pull-based sequence of frames. Finite for file buffers,
// potentially unbounded for live capture. Stopping iteration is sufficient
// to cancel an analysis.
type FrameSource interface {
	// Next returns the next frame, or ok=false when the sequence is exhausted.
	Next() (Frame, bool)
}

// BufferSource yields overlapping frames lazily from an in-memory sample
// buffer. The trailing partial window is emitted as a short frame.
type BufferSource struct {
	samples    []float64
	sampleRate int
	frameSize  int
	hopSize    int

	pos      int
	frameIdx int
}

// NewBufferSource creates a frame source over a raw sample buffer.
func NewBufferSource(samples []float64, sampleRate, frameSize, hopSize int) *BufferSource {
	return &BufferSource{
		samples:    samples,
		sampleRate: sampleRate,
		frameSize:  frameSize,
		hopSize:    hopSize,
	}
}

// Next implements FrameSource.
func (s *BufferSource) Next() (Frame, bool) {
	if s.pos >= len(s.samples) || s.frameSize <= 0 || s.hopSize <= 0 {
		return Frame{}, false
	}

	end := s.pos + s.frameSize
	if end > len(s.samples) {
		end = len(s.samples)
	}

	startTime := float64(s.frameIdx) * float64(s.hopSize) / float64(s.sampleRate)
	frame := Frame{
		Samples:    s.samples[s.pos:end],
		SampleRate: s.sampleRate,
		StartTime:  startTime,
		EndTime:    startTime + float64(end-s.pos)/float64(s.sampleRate),
	}

	s.pos += s.hopSize
	s.frameIdx++
	return frame, true
}

// Reset rewinds the source to the first frame.
func (s *BufferSource) Reset() {
	s.pos = 0
	s.frameIdx = 0
}

// FrameSize converts a duration in seconds to a sample count.
func FrameSize(seconds float64, sampleRate int) int {
	return int(seconds * float64(sampleRate))
}
