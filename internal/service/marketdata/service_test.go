package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SynthCast/internal/domain/models"
	domrepo "SynthCast/internal/domain/repository"
	"SynthCast/pkg/logger"
)

type fakeCandles struct {
	candles []models.Candle
	err     error
}

func (f *fakeCandles) GetCandles(context.Context, string, time.Time, time.Time, domrepo.Timeframe) ([]models.Candle, error) {
	return f.candles, f.err
}

func (f *fakeCandles) GetLatestNCandles(context.Context, string, int, domrepo.Timeframe) ([]models.Candle, error) {
	return f.candles, f.err
}

type fakeTicks struct {
	ticks []*models.Tick
	err   error
}

func (f *fakeTicks) Init(context.Context) error                  { return nil }
func (f *fakeTicks) Store(context.Context, *models.Tick) error   { return nil }
func (f *fakeTicks) StoreBatch(context.Context, []*models.Tick) error { return nil }
func (f *fakeTicks) Health(context.Context) error                { return nil }
func (f *fakeTicks) Close() error                                { return nil }
func (f *fakeTicks) Query(context.Context, string, time.Time, time.Time, int) ([]*models.Tick, error) {
	return f.ticks, f.err
}

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

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func candlesWithCloses(closes ...float64) []models.Candle {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Bucket: base.Add(time.Duration(i) * 5 * time.Minute),
			Asset:  "BTC",
			Close:  c,
		}
	}
	return out
}

func TestGetRecentReturns(t *testing.T) {
	// Closes 100 -> 110 -> 99: returns +0.10 and -0.10, so drift 0 and
	// sample stddev sqrt(2*0.01/1) ~ 0.1414.
	svc := New(&fakeCandles{candles: candlesWithCloses(100, 110, 99)}, &fakeTicks{}, noopMetrics{}, testLogger(t))

	vol, drift, err := svc.GetRecentReturns(context.Background(), "BTC", 48*time.Hour)
	require.NoError(t, err)
	assert.InDelta(t, 0, drift, 1e-9)
	assert.InDelta(t, 0.14142, vol, 1e-4)
}

func TestGetRecentReturnsInsufficientData(t *testing.T) {
	svc := New(&fakeCandles{candles: candlesWithCloses(100, 101)}, &fakeTicks{}, noopMetrics{}, testLogger(t))

	_, _, err := svc.GetRecentReturns(context.Background(), "BTC", 48*time.Hour)
	require.ErrorIs(t, err, domrepo.ErrMarketDataUnavailable)
}

func TestGetRecentReturnsStoreError(t *testing.T) {
	svc := New(&fakeCandles{err: errors.New("clickhouse down")}, &fakeTicks{}, noopMetrics{}, testLogger(t))

	_, _, err := svc.GetRecentReturns(context.Background(), "BTC", 48*time.Hour)
	require.ErrorIs(t, err, domrepo.ErrMarketDataUnavailable)
}

func TestGetRecentReturnsWindowTooShort(t *testing.T) {
	svc := New(&fakeCandles{}, &fakeTicks{}, noopMetrics{}, testLogger(t))

	_, _, err := svc.GetRecentReturns(context.Background(), "BTC", 5*time.Minute)
	require.Error(t, err)
}

func TestGetAssetPrice(t *testing.T) {
	ticks := &fakeTicks{ticks: []*models.Tick{{Asset: "BTC", Price: 64250.5, Timestamp: time.Now().Unix()}}}
	svc := New(&fakeCandles{}, ticks, noopMetrics{}, testLogger(t))

	price, err := svc.GetAssetPrice(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 64250.5, price)
}

func TestGetAssetPriceUnavailable(t *testing.T) {
	svc := New(&fakeCandles{}, &fakeTicks{}, noopMetrics{}, testLogger(t))

	_, err := svc.GetAssetPrice(context.Background(), "BTC")
	require.ErrorIs(t, err, domrepo.ErrPriceUnavailable)
}
