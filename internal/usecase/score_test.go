package usecase

import (
	"context"
	"testing"
	"time"

	"SynthCast/internal/domain/models"
	"SynthCast/internal/services/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wireGrid(times []string, rows ...[]float64) [][]models.WirePoint {
	grid := make([][]models.WirePoint, len(rows))
	for i, row := range rows {
		wire := make([]models.WirePoint, len(row))
		for j, p := range row {
			wire[j] = models.WirePoint{Time: times[j], Price: p}
		}
		grid[i] = wire
	}
	return grid
}

var wireTimes = []string{
	"2026-03-01T12:00:00Z",
	"2026-03-01T12:05:00Z",
	"2026-03-01T12:10:00Z",
}

func TestForecastSetFromWire(t *testing.T) {
	grid := wireGrid(wireTimes, []float64{100, 101, 102}, []float64{100, 99, 98})

	fs, err := ForecastSetFromWire("submitted", grid)
	require.NoError(t, err)
	assert.Equal(t, "submitted", fs.Model)
	assert.Equal(t, 2, fs.NumSimulations())
	assert.Equal(t, 3, fs.NumTimePoints())
	assert.Equal(t, 5*time.Minute, fs.Increment)
	assert.Equal(t, 10*time.Minute, fs.Horizon)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), fs.StartTime)
}

func TestForecastSetFromWireRejectsBadInput(t *testing.T) {
	_, err := ForecastSetFromWire("x", nil)
	assert.Error(t, err)

	// ragged grid
	grid := wireGrid(wireTimes, []float64{100, 101, 102})
	grid = append(grid, grid[0][:2])
	_, err = ForecastSetFromWire("x", grid)
	assert.Error(t, err)

	// unparseable time
	bad := wireGrid(wireTimes, []float64{100, 101, 102})
	bad[0][1].Time = "yesterday"
	_, err = ForecastSetFromWire("x", bad)
	assert.Error(t, err)
}

func TestWireFromForecastSetRoundTrip(t *testing.T) {
	grid := wireGrid(wireTimes, []float64{100, 101, 102})
	fs, err := ForecastSetFromWire("m", grid)
	require.NoError(t, err)
	assert.Equal(t, grid, WireFromForecastSet(fs))
}

func TestScoreUseCase(t *testing.T) {
	uc := NewScoreUseCase(scoring.NewCRPSScorer(), noopMetrics{}, testLogger(t), nil)

	req := &models.ScoreRequest{
		Forecast: wireGrid(wireTimes, []float64{100, 101, 102}, []float64{100, 101, 102}),
		Actual:   wireGrid(wireTimes, []float64{100, 101, 102})[0],
	}
	report, err := uc.Score(context.Background(), req)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, report.CRPS, 1e-12)
	assert.Equal(t, 2, report.NumSimulations)
	assert.Equal(t, 3, report.NumTimePoints)

	// actual grid mismatch is rejected
	req.Actual = req.Actual[:2]
	_, err = uc.Score(context.Background(), req)
	assert.Error(t, err)
}

func TestCompareUseCaseRanksModels(t *testing.T) {
	uc := NewScoreUseCase(scoring.NewCRPSScorer(), noopMetrics{}, testLogger(t), nil)

	req := &models.CompareRequest{
		Forecasts: map[string][][]models.WirePoint{
			"tight": wireGrid(wireTimes, []float64{100, 101, 102}, []float64{100.5, 101.5, 102.5}),
			"wide":  wireGrid(wireTimes, []float64{110, 111, 112}, []float64{120, 121, 122}),
		},
		Actual: wireGrid(wireTimes, []float64{100, 101, 102})[0],
	}
	cmp, err := uc.Compare(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"tight", "wide"}, cmp.Ranking)
	assert.Equal(t, "tight", cmp.BestModel)
}
