package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"SynthCast/internal/domain/models"
	"SynthCast/internal/services/scoring"
	"SynthCast/internal/usecase"
	"SynthCast/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopMetrics struct{}

func (noopMetrics) RecordMessageSent(string, string)   {}
func (noopMetrics) RecordError(string)                 {}
func (noopMetrics) RecordLastPrice(string, float64)    {}
func (noopMetrics) RecordLatency(string, float64)      {}
func (noopMetrics) RecordForecast(string, string)      {}
func (noopMetrics) RecordModelFailure(string)          {}
func (noopMetrics) RecordCRPS(string, float64)         {}
func (noopMetrics) RecordCalibration(string, string)   {}
func (noopMetrics) RecordCalibrationStaleReuse(string) {}

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)

	score := usecase.NewScoreUseCase(scoring.NewCRPSScorer(), noopMetrics{}, l, nil)
	h := NewForecastHandler(l, nil, score, nil)

	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func postJSON(t *testing.T, e *echo.Echo, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func wirePoints(prices ...float64) []models.WirePoint {
	times := []string{"2026-03-01T12:00:00Z", "2026-03-01T12:05:00Z", "2026-03-01T12:10:00Z"}
	out := make([]models.WirePoint, len(prices))
	for i, p := range prices {
		out[i] = models.WirePoint{Time: times[i], Price: p}
	}
	return out
}

// A model whose scoring fails must come back with a null score and its
// failure reason, not abort the whole response.
func TestCompareSerializesFailedModel(t *testing.T) {
	e := newTestServer(t)

	req := &models.CompareRequest{
		Forecasts: map[string][][]models.WirePoint{
			"good":  {wirePoints(100, 101, 102)},
			"short": {wirePoints(100, 101)},
		},
		Actual: wirePoints(100, 101, 102),
	}
	rec := postJSON(t, e, "/api/compare", req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status int `json:"status"`
		Data   struct {
			Results map[string]struct {
				CRPS          *float64 `json:"crps_score"`
				FailureReason string   `json:"failure_reason"`
			} `json:"results"`
			Ranking   []string `json:"ranking"`
			BestModel string   `json:"best_model"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusOK, resp.Status)

	good := resp.Data.Results["good"]
	require.NotNil(t, good.CRPS)
	assert.InDelta(t, 0.0, *good.CRPS, 1e-12)

	short := resp.Data.Results["short"]
	assert.Nil(t, short.CRPS)
	assert.NotEmpty(t, short.FailureReason)

	assert.Equal(t, "good", resp.Data.BestModel)
	assert.Equal(t, []string{"good", "short"}, resp.Data.Ranking)
}

func TestScoreRejectsNonPositivePrice(t *testing.T) {
	e := newTestServer(t)

	req := &models.ScoreRequest{
		Forecast: [][]models.WirePoint{wirePoints(100, 0, 102)},
		Actual:   wirePoints(100, 101, 102),
	}
	rec := postJSON(t, e, "/api/score", req)

	var resp struct {
		Status int `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}
