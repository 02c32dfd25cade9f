package calibration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgcache "SynthCast/pkg/cache"
	"SynthCast/pkg/logger"
)

type fakeMarket struct {
	mu    sync.Mutex
	calls int32
	vol   float64
	drift float64
	err   error
	delay time.Duration
}

func (m *fakeMarket) GetRecentReturns(ctx context.Context, asset string, window time.Duration) (float64, float64, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, 0, m.err
	}
	return m.vol, m.drift, nil
}

func (m *fakeMarket) GetAssetPrice(ctx context.Context, asset string) (float64, error) {
	return 0, errors.New("not implemented")
}

func (m *fakeMarket) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
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

func TestEnsureCalibratedFetchesOnceWhileFresh(t *testing.T) {
	market := &fakeMarket{vol: 0.015, drift: 0.0002}
	c := New(market, noopMetrics{}, testLogger(t))

	entry, degraded, err := c.EnsureCalibrated(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, degraded)
	assert.Equal(t, "BTC", entry.Asset)
	assert.Equal(t, 0.015, entry.Volatility)
	assert.Equal(t, 0.0002, entry.Drift)

	// Fresh entry, no second fetch.
	_, _, err = c.EnsureCalibrated(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&market.calls))
}

func TestEnsureCalibratedRefreshesWhenStale(t *testing.T) {
	market := &fakeMarket{vol: 0.015, drift: 0.0002}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := New(market, noopMetrics{}, testLogger(t),
		WithTTL(6*time.Hour),
		WithClock(func() time.Time { return now }),
	)

	_, _, err := c.EnsureCalibrated(context.Background(), "BTC")
	require.NoError(t, err)

	now = now.Add(7 * time.Hour)
	market.mu.Lock()
	market.vol = 0.03
	market.mu.Unlock()

	entry, degraded, err := c.EnsureCalibrated(context.Background(), "BTC")
	require.NoError(t, err)
	assert.False(t, degraded)
	assert.Equal(t, 0.03, entry.Volatility)
	assert.Equal(t, int32(2), atomic.LoadInt32(&market.calls))
}

func TestEnsureCalibratedReusesStaleOnFailure(t *testing.T) {
	market := &fakeMarket{vol: 0.015, drift: 0.0002}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := New(market, noopMetrics{}, testLogger(t),
		WithClock(func() time.Time { return now }),
	)

	_, _, err := c.EnsureCalibrated(context.Background(), "BTC")
	require.NoError(t, err)

	now = now.Add(8 * time.Hour)
	market.setErr(errors.New("upstream down"))

	entry, degraded, err := c.EnsureCalibrated(context.Background(), "BTC")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, degraded)
	// Prior values untouched.
	assert.Equal(t, 0.015, entry.Volatility)
	assert.Equal(t, 0.0002, entry.Drift)
}

func TestEnsureCalibratedNoPriorNoData(t *testing.T) {
	market := &fakeMarket{}
	market.setErr(errors.New("upstream down"))
	c := New(market, noopMetrics{}, testLogger(t))

	entry, degraded, err := c.EnsureCalibrated(context.Background(), "ETH")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.True(t, degraded)
}

func TestEnsureCalibratedFetchTimeout(t *testing.T) {
	market := &fakeMarket{vol: 0.015, delay: 200 * time.Millisecond}
	c := New(market, noopMetrics{}, testLogger(t), WithFetchTimeout(20*time.Millisecond))

	entry, degraded, err := c.EnsureCalibrated(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.True(t, degraded)
}

func TestEnsureCalibratedSingleFlightPerAsset(t *testing.T) {
	market := &fakeMarket{vol: 0.015, delay: 50 * time.Millisecond}
	c := New(market, noopMetrics{}, testLogger(t))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.EnsureCalibrated(context.Background(), "BTC")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&market.calls))
}

// fakeMirror mimics the JSON round-trip of the Redis-backed cache.
type fakeMirror struct {
	pkgcache.Service
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeMirror() *fakeMirror {
	return &fakeMirror{data: make(map[string][]byte)}
}

func (f *fakeMirror) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = b
	return nil
}

func (f *fakeMirror) Get(_ context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	b, ok := f.data[key]
	f.mu.Unlock()
	if !ok {
		return pkgcache.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func TestMirrorWriteThroughAndAdoption(t *testing.T) {
	mirror := newFakeMirror()
	market := &fakeMarket{vol: 0.02, drift: 0.0001}

	first := New(market, noopMetrics{}, testLogger(t), WithMirror(mirror))
	_, _, err := first.EnsureCalibrated(context.Background(), "SOL")
	require.NoError(t, err)

	// A second process with a failing market source adopts the mirrored entry.
	downMarket := &fakeMarket{}
	downMarket.setErr(errors.New("upstream down"))
	second := New(downMarket, noopMetrics{}, testLogger(t), WithMirror(mirror))

	entry, degraded, err := second.EnsureCalibrated(context.Background(), "SOL")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, degraded)
	assert.Equal(t, 0.02, entry.Volatility)
}
