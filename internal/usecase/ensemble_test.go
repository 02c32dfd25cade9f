package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"SynthCast/internal/domain/models"
	"SynthCast/internal/domain/service"
	"SynthCast/internal/service/calibration"
	"SynthCast/pkg/logger"

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

type fakeMarket struct {
	vol, drift float64
	err        error
	price      float64
	priceErr   error
}

func (m *fakeMarket) GetRecentReturns(context.Context, string, time.Duration) (float64, float64, error) {
	return m.vol, m.drift, m.err
}

func (m *fakeMarket) GetAssetPrice(context.Context, string) (float64, error) {
	if m.priceErr != nil {
		return 0, m.priceErr
	}
	if m.price != 0 {
		return m.price, nil
	}
	return 100, nil
}

// constGen produces flat paths at a fixed price and records the parameters
// pushed through Calibrated.
type constGen struct {
	name   string
	price  float64
	fail   bool
	pushed *models.ModelParameters
}

func (g *constGen) Name() string { return g.name }

func (g *constGen) Parameters() models.ModelParameters {
	return models.ModelParameters{Volatility: 0.5, Drift: 0.1}
}

func (g *constGen) Calibrated(p models.ModelParameters) service.PathGenerator {
	if g.pushed != nil {
		*g.pushed = p
	}
	return g
}

func (g *constGen) Predict(ctx context.Context, req models.SimulationRequest) (*models.ForecastSet, error) {
	if g.fail {
		return nil, errors.New("boom")
	}
	steps := req.Steps()
	paths := make([]models.SimulationPath, req.NumSimulations)
	for i := range paths {
		path := make(models.SimulationPath, steps)
		for s := 0; s < steps; s++ {
			path[s] = models.PricePoint{
				Time:  req.StartTime.Add(time.Duration(s) * req.Increment),
				Price: g.price,
			}
		}
		paths[i] = path
	}
	return &models.ForecastSet{
		Model:     g.name,
		StartTime: req.StartTime,
		Increment: req.Increment,
		Horizon:   req.Horizon,
		Paths:     paths,
	}, nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func testCalib(t *testing.T, market *fakeMarket) *calibration.Cache {
	t.Helper()
	return calibration.New(market, noopMetrics{}, testLogger(t))
}

func testReq() models.SimulationRequest {
	return models.SimulationRequest{
		StartPrice:     100,
		StartTime:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Increment:      5 * time.Minute,
		Horizon:        15 * time.Minute,
		NumSimulations: 4,
	}
}

func TestEnsembleMergesWithFixedWeights(t *testing.T) {
	members := []MemberModel{
		{Name: "a", Generator: &constGen{name: "a", price: 100}, Weight: 0.2},
		{Name: "b", Generator: &constGen{name: "b", price: 200}, Weight: 0.5},
		{Name: "c", Generator: &constGen{name: "c", price: 300}, Weight: 0.3},
	}
	ens, err := NewEnsemble(members, testCalib(t, &fakeMarket{vol: 0.01, drift: 0}), noopMetrics{}, testLogger(t))
	require.NoError(t, err)

	fs, degraded, err := ens.Run(context.Background(), "BTC", testReq())
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, "Ensemble", fs.Model)
	assert.Equal(t, "BTC", fs.Asset)
	require.Equal(t, 4, fs.NumSimulations())
	require.Equal(t, 4, fs.NumTimePoints())

	for _, path := range fs.Paths {
		assert.Equal(t, 100.0, path[0].Price)
		for s := 1; s < len(path); s++ {
			// 0.2*100 + 0.5*200 + 0.3*300
			assert.InDelta(t, 210.0, path[s].Price, 1e-9)
		}
	}
}

func TestEnsembleSkipsFailedMemberWithoutRenormalizing(t *testing.T) {
	members := []MemberModel{
		{Name: "a", Generator: &constGen{name: "a", price: 100}, Weight: 0.2},
		{Name: "b", Generator: &constGen{name: "b", fail: true}, Weight: 0.5},
		{Name: "c", Generator: &constGen{name: "c", price: 300}, Weight: 0.3},
	}
	ens, err := NewEnsemble(members, testCalib(t, &fakeMarket{vol: 0.01}), noopMetrics{}, testLogger(t))
	require.NoError(t, err)

	fs, _, err := ens.Run(context.Background(), "BTC", testReq())
	require.NoError(t, err)

	// 0.2*100 + 0.3*300, weight of the failed member is not redistributed
	for _, path := range fs.Paths {
		for s := 1; s < len(path); s++ {
			assert.InDelta(t, 110.0, path[s].Price, 1e-9)
		}
	}
}

func TestEnsembleAllMembersFailed(t *testing.T) {
	members := []MemberModel{
		{Name: "a", Generator: &constGen{name: "a", fail: true}, Weight: 0.5},
		{Name: "b", Generator: &constGen{name: "b", fail: true}, Weight: 0.5},
	}
	ens, err := NewEnsemble(members, testCalib(t, &fakeMarket{vol: 0.01}), noopMetrics{}, testLogger(t))
	require.NoError(t, err)

	_, _, err = ens.Run(context.Background(), "BTC", testReq())
	assert.ErrorIs(t, err, ErrAllModelsFailed)
}

func TestEnsemblePushesCalibrationIntoMembers(t *testing.T) {
	var pushed models.ModelParameters
	members := []MemberModel{
		{Name: "a", Generator: &constGen{name: "a", price: 100, pushed: &pushed}, Weight: 1},
	}
	ens, err := NewEnsemble(members, testCalib(t, &fakeMarket{vol: 0.042, drift: 0.007}), noopMetrics{}, testLogger(t))
	require.NoError(t, err)

	_, degraded, err := ens.Run(context.Background(), "BTC", testReq())
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.InDelta(t, 0.042, pushed.Volatility, 1e-12)
	assert.InDelta(t, 0.007, pushed.Drift, 1e-12)
	assert.Equal(t, 100.0, pushed.MeanPrice)
}

func TestEnsembleDegradedWithoutCalibrationKeepsDefaults(t *testing.T) {
	var pushed models.ModelParameters
	members := []MemberModel{
		{Name: "a", Generator: &constGen{name: "a", price: 100, pushed: &pushed}, Weight: 1},
	}
	market := &fakeMarket{err: errors.New("clickhouse down")}
	ens, err := NewEnsemble(members, testCalib(t, market), noopMetrics{}, testLogger(t))
	require.NoError(t, err)

	_, degraded, err := ens.Run(context.Background(), "BTC", testReq())
	require.NoError(t, err)
	assert.True(t, degraded)
	// configured defaults survive, only the mean price is overridden
	assert.InDelta(t, 0.5, pushed.Volatility, 1e-12)
	assert.InDelta(t, 0.1, pushed.Drift, 1e-12)
	assert.Equal(t, 100.0, pushed.MeanPrice)
}

func TestNewEnsembleRejectsBadMembers(t *testing.T) {
	_, err := NewEnsemble(nil, testCalib(t, &fakeMarket{}), noopMetrics{}, testLogger(t))
	assert.Error(t, err)

	_, err = NewEnsemble([]MemberModel{
		{Name: "a", Generator: &constGen{name: "a"}, Weight: -0.1},
	}, testCalib(t, &fakeMarket{}), noopMetrics{}, testLogger(t))
	assert.Error(t, err)
}
