package analyzer

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceqa/pkg/config"
	"voiceqa/pkg/detect"
	"voiceqa/pkg/dsp"
	"voiceqa/pkg/errors"
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

// tone generates a 1 kHz sine. At 16 kHz the period divides the hop size,
// so every full analysis frame sees the same waveform.
func tone(seconds, amplitude float64) []float64 {
	n := int(seconds * testRate)
	out := make([]float64, n)
	for i := range out {
		out[i] = amplitude * math.Sin(2*math.Pi*1000*float64(i)/testRate)
	}
	return out
}

func clippedTone(seconds, amplitude, ceiling float64) []float64 {
	out := tone(seconds, amplitude)
	for i, s := range out {
		if s > ceiling {
			out[i] = ceiling
		} else if s < -ceiling {
			out[i] = -ceiling
		}
	}
	return out
}

func source(cfg *config.Config, samples []float64) *dsp.BufferSource {
	return dsp.NewBufferSource(samples, testRate,
		dsp.FrameSize(cfg.FrameSeconds, testRate),
		dsp.FrameSize(cfg.HopSeconds, testRate))
}

func calibrated(t *testing.T, cfg *config.Config) *Analyzer {
	t.Helper()
	a := New(cfg, testLogger())
	_, err := a.Calibrate(context.Background(), source(cfg, tone(2.0, 0.3)))
	require.NoError(t, err)
	return a
}

func TestAnalyzeRequiresBaseline(t *testing.T) {
	cfg := config.DefaultConfig()
	a := New(cfg, testLogger())

	_, err := a.Analyze(context.Background(), source(cfg, tone(0.5, 0.3)))
	assert.ErrorIs(t, err, errors.ErrMissingBaseline)
}

func TestAnalyzeCleanSignalIsQuiet(t *testing.T) {
	cfg := config.DefaultConfig()
	a := calibrated(t, cfg)

	result, err := a.Analyze(context.Background(), source(cfg, tone(2.0, 0.3)))
	require.NoError(t, err)
	assert.Empty(t, result.Events, "the calibration signal itself must report no events")
	assert.Greater(t, result.FramesProcessed, 150)
	assert.InDelta(t, 2.0, result.TotalDuration, 0.05)
}

func TestAnalyzeDetectsClipping(t *testing.T) {
	cfg := config.DefaultConfig()
	a := calibrated(t, cfg)

	// 1s clean, 0.3s hard-clipped, 1s clean
	samples := tone(1.0, 0.3)
	samples = append(samples, clippedTone(0.3, 3.0, 0.99)...)
	samples = append(samples, tone(1.0, 0.3)...)

	result, err := a.Analyze(context.Background(), source(cfg, samples))
	require.NoError(t, err)

	var clipping []float64
	for _, e := range result.Events {
		if e.Category == config.CategoryDistortion {
			assert.Equal(t, "clipping", e.Reason)
			assert.Greater(t, e.Confidence, 0.9)
			clipping = append(clipping, e.StartTime, e.EndTime)
		}
	}
	require.Len(t, clipping, 2, "adjacent clipped frames merge into one event")
	assert.InDelta(t, 1.0, clipping[0], 0.05)
	assert.InDelta(t, 1.3, clipping[1], 0.05)
}

func dropoutsOf(result *Result) []detect.Event {
	var out []detect.Event
	for _, e := range result.Events {
		if e.Category == config.CategoryDropout {
			out = append(out, e)
		}
	}
	return out
}

func TestAnalyzeDetectsDropout(t *testing.T) {
	cfg := config.DefaultConfig()
	a := calibrated(t, cfg)

	// 1s voiced, 0.3s true silence, 1s voiced
	samples := tone(1.0, 0.3)
	samples = append(samples, make([]float64, int(0.3*testRate))...)
	samples = append(samples, tone(1.0, 0.3)...)

	result, err := a.Analyze(context.Background(), source(cfg, samples))
	require.NoError(t, err)

	dropouts := dropoutsOf(result)
	require.Len(t, dropouts, 1, "a sustained gap reports exactly one dropout")
	assert.Equal(t, "sustained_silence", dropouts[0].Reason)
	assert.Equal(t, 0.8, dropouts[0].Confidence)
	assert.InDelta(t, 1.0, dropouts[0].StartTime, 0.05)
	assert.InDelta(t, 1.3, dropouts[0].EndTime, 0.05)
	assert.GreaterOrEqual(t, dropouts[0].Duration(), cfg.MinEventDuration[config.CategoryDropout],
		"the reported span must clear the dropout duration minimum")
}

func TestAnalyzeDropoutAtRecordingEnd(t *testing.T) {
	cfg := config.DefaultConfig()
	a := calibrated(t, cfg)

	samples := tone(1.0, 0.3)
	samples = append(samples, make([]float64, int(0.5*testRate))...)

	result, err := a.Analyze(context.Background(), source(cfg, samples))
	require.NoError(t, err)

	dropouts := dropoutsOf(result)
	require.Len(t, dropouts, 1, "silence running into end of stream is still reported")
	assert.InDelta(t, 1.0, dropouts[0].StartTime, 0.05)
	assert.InDelta(t, 1.5, dropouts[0].EndTime, 0.05)
}

func TestAnalyzeReusableAfterReset(t *testing.T) {
	cfg := config.DefaultConfig()
	a := calibrated(t, cfg)

	samples := tone(1.0, 0.3)
	samples = append(samples, clippedTone(0.3, 3.0, 0.99)...)

	first, err := a.Analyze(context.Background(), source(cfg, samples))
	require.NoError(t, err)

	a.Reset()
	second, err := a.Analyze(context.Background(), source(cfg, samples))
	require.NoError(t, err)

	assert.Equal(t, first.FramesProcessed, second.FramesProcessed)
	assert.Equal(t, len(first.Events), len(second.Events))
}

func TestAnalyzeCancellation(t *testing.T) {
	cfg := config.DefaultConfig()
	a := calibrated(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Analyze(ctx, source(cfg, tone(1.0, 0.3)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReportShape(t *testing.T) {
	cfg := config.DefaultConfig()
	a := calibrated(t, cfg)

	samples := tone(1.0, 0.3)
	samples = append(samples, clippedTone(0.3, 3.0, 0.99)...)
	samples = append(samples, tone(1.0, 0.3)...)

	result, err := a.Analyze(context.Background(), source(cfg, samples))
	require.NoError(t, err)

	data, err := json.Marshal(result.Report())
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))

	for _, cat := range config.Categories {
		require.Contains(t, decoded, string(cat), "every category is present even when empty")

		var summary ReportCategory
		require.NoError(t, json.Unmarshal(decoded[string(cat)], &summary))
		assert.Len(t, summary.Events, summary.Count)
	}

	var meta struct {
		Meta ReportMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, result.FramesProcessed, meta.Meta.FramesProcessed)
	assert.InDelta(t, result.TotalDuration, meta.Meta.TotalDuration, 1e-12)

	var dist ReportCategory
	require.NoError(t, json.Unmarshal(decoded[string(config.CategoryDistortion)], &dist))
	assert.GreaterOrEqual(t, dist.Count, 1)
}

func TestReportDerivedFromEventsOnly(t *testing.T) {
	r := &Result{FramesProcessed: 10, TotalDuration: 0.5}
	report := r.Report()

	for _, cat := range config.Categories {
		summary := report.Categories[cat]
		assert.Zero(t, summary.Count)
		assert.Empty(t, summary.Events)
	}
	assert.Equal(t, 10, report.Meta.FramesProcessed)
}
