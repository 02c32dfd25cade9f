package simulation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SynthCast/internal/domain/models"
	"SynthCast/internal/domain/service"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testRequest() models.SimulationRequest {
	return models.SimulationRequest{
		StartPrice:     50000,
		StartTime:      testStart,
		Increment:      300 * time.Second,
		Horizon:        3600 * time.Second,
		NumSimulations: 10,
	}
}

func allGenerators() []service.PathGenerator {
	return []service.PathGenerator{
		NewRandomWalk(0.02, WithSeed(1)),
		NewGBM(0.0001, 0.015, WithSeed(2)),
		NewMeanReversion(50000, 0.1, 0.02, WithSeed(3)),
	}
}

func TestPredictGridShape(t *testing.T) {
	for _, g := range allGenerators() {
		t.Run(g.Name(), func(t *testing.T) {
			fs, err := g.Predict(context.Background(), testRequest())
			require.NoError(t, err)

			require.Equal(t, 10, fs.NumSimulations())
			require.Equal(t, 13, fs.NumTimePoints()) // floor(3600/300)+1

			for _, path := range fs.Paths {
				assert.Equal(t, testStart, path[0].Time)
				assert.Equal(t, 50000.0, path[0].Price)
				for i := 1; i < len(path); i++ {
					assert.Equal(t, 300*time.Second, path[i].Time.Sub(path[i-1].Time))
				}
			}
		})
	}
}

func TestPredictPricesStayPositive(t *testing.T) {
	// Huge volatility forces the clamp to engage.
	g := NewRandomWalk(5.0, WithSeed(7))
	req := testRequest()
	req.NumSimulations = 50

	fs, err := g.Predict(context.Background(), req)
	require.NoError(t, err)

	for _, path := range fs.Paths {
		for _, pt := range path {
			assert.GreaterOrEqual(t, pt.Price, models.PriceFloor)
		}
	}
}

func TestPredictValidation(t *testing.T) {
	g := NewGBM(0.0001, 0.015)

	cases := []struct {
		name   string
		mutate func(*models.SimulationRequest)
	}{
		{"zero simulations", func(r *models.SimulationRequest) { r.NumSimulations = 0 }},
		{"negative increment", func(r *models.SimulationRequest) { r.Increment = -time.Second }},
		{"zero horizon", func(r *models.SimulationRequest) { r.Horizon = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := testRequest()
			tc.mutate(&req)
			_, err := g.Predict(context.Background(), req)
			require.Error(t, err)
		})
	}
}

func TestPredictSeededDeterminism(t *testing.T) {
	a, err := NewRandomWalk(0.02, WithSeed(42)).Predict(context.Background(), testRequest())
	require.NoError(t, err)
	b, err := NewRandomWalk(0.02, WithSeed(42)).Predict(context.Background(), testRequest())
	require.NoError(t, err)
	require.Equal(t, a.Paths, b.Paths)
}

func TestGBMDriftWithoutNoise(t *testing.T) {
	g := NewGBM(0.01, 0) // pure drift
	req := testRequest()
	req.NumSimulations = 1

	fs, err := g.Predict(context.Background(), req)
	require.NoError(t, err)

	path := fs.Paths[0]
	for i := 1; i < len(path); i++ {
		assert.InDelta(t, path[i-1].Price*1.01, path[i].Price, 1e-9)
	}
}

func TestMeanReversionPullsTowardTarget(t *testing.T) {
	g := NewMeanReversion(60000, 0.5, 0) // no noise
	req := testRequest()
	req.NumSimulations = 1

	fs, err := g.Predict(context.Background(), req)
	require.NoError(t, err)

	path := fs.Paths[0]
	prevGap := 60000 - path[0].Price
	for i := 1; i < len(path); i++ {
		gap := 60000 - path[i].Price
		assert.Less(t, gap, prevGap)
		prevGap = gap
	}
}

func TestCalibratedReturnsCopy(t *testing.T) {
	base := NewMeanReversion(100000, 0.1, 0.02)
	p := base.Parameters()
	p.Volatility = 0.05
	p.MeanPrice = 42000

	calibrated := base.Calibrated(p)
	assert.Equal(t, 0.05, calibrated.Parameters().Volatility)
	assert.Equal(t, 42000.0, calibrated.Parameters().MeanPrice)
	// Base is untouched.
	assert.Equal(t, 0.02, base.Parameters().Volatility)
	assert.Equal(t, 100000.0, base.Parameters().MeanPrice)
}
