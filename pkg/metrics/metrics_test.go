package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	Init(logger)
	os.Exit(m.Run())
}

func TestHandlerServesRecordedMetrics(t *testing.T) {
	RecordFrames(7)
	RecordEvent("noise")
	RecordAlignment("coarse", -0.25)

	mux := http.NewServeMux()
	RegisterHandler(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "voiceqa_frames_processed_total")
	assert.Contains(t, body, `voiceqa_events_detected_total{category="noise"}`)
	assert.Contains(t, body, `voiceqa_alignments_total{quality="coarse"}`)
}

func TestHandlerHonorsCustomPath(t *testing.T) {
	SetMetricsPath("/internal/metrics")
	defer SetMetricsPath("/metrics")

	mux := http.NewServeMux()
	RegisterHandler(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/internal/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDisableStopsRecording(t *testing.T) {
	require.True(t, IsMetricsEnabled())

	before := testutil.ToFloat64(CalibrationsTotal)

	EnableMetrics(false)
	RecordCalibration(40)
	assert.False(t, IsMetricsEnabled())
	assert.Equal(t, before, testutil.ToFloat64(CalibrationsTotal))

	EnableMetrics(true)
	RecordCalibration(40)
	assert.Equal(t, before+1, testutil.ToFloat64(CalibrationsTotal))
}

func TestRegistryGathers(t *testing.T) {
	RecordFileDecoded("wav")

	families, err := GetRegistry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
