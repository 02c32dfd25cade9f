package marketdata

import (
	"context"
	"fmt"
	"math"
	"time"

	domrepo "SynthCast/internal/domain/repository"
	"SynthCast/pkg/logger"
)

// Option configures a Service.
type Option func(*Service)

// WithInterval sets the returns interval (default 5m).
func WithInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

// WithPriceLookback bounds how far back the latest-price query scans.
func WithPriceLookback(d time.Duration) Option {
	return func(s *Service) { s.priceLookback = d }
}

// Service derives calibration statistics and current prices from the tick
// store. Volatility and drift are the standard deviation and mean of simple
// close-to-close returns per interval.
type Service struct {
	candles       domrepo.CandleStore
	ticks         domrepo.Storage
	metrics       domrepo.Metrics
	log           *logger.Logger
	interval      time.Duration
	priceLookback time.Duration
}

func New(candles domrepo.CandleStore, ticks domrepo.Storage, metrics domrepo.Metrics, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		candles:       candles,
		ticks:         ticks,
		metrics:       metrics,
		log:           log,
		interval:      5 * time.Minute,
		priceLookback: 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetRecentReturns computes per-interval volatility and drift over a trailing
// window ending now.
func (s *Service) GetRecentReturns(ctx context.Context, asset string, window time.Duration) (float64, float64, error) {
	start := time.Now()
	n := int(window / s.interval)
	if n < 3 {
		return 0, 0, fmt.Errorf("window %s too short for interval %s", window, s.interval)
	}

	candles, err := s.candles.GetLatestNCandles(ctx, asset, n, domrepo.TF5m)
	if err != nil {
		s.metrics.RecordError("market_data_returns")
		return 0, 0, fmt.Errorf("%w: %v", domrepo.ErrMarketDataUnavailable, err)
	}
	if len(candles) < 3 {
		s.metrics.RecordError("market_data_returns")
		return 0, 0, fmt.Errorf("%w: only %d candles for %s", domrepo.ErrMarketDataUnavailable, len(candles), asset)
	}

	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, candles[i].Close/prev-1)
	}
	if len(returns) < 2 {
		return 0, 0, fmt.Errorf("%w: not enough usable returns for %s", domrepo.ErrMarketDataUnavailable, asset)
	}

	drift := mean(returns)
	vol := stddev(returns, drift)

	s.metrics.RecordLatency("market_data_returns_seconds", time.Since(start).Seconds())
	s.log.Debug("recent returns computed",
		logger.String("asset", asset),
		logger.Int("samples", len(returns)),
		logger.Any("volatility", vol),
		logger.Any("drift", drift),
	)
	return vol, drift, nil
}

// GetAssetPrice returns the most recently stored tick price.
func (s *Service) GetAssetPrice(ctx context.Context, asset string) (float64, error) {
	now := time.Now()
	ticks, err := s.ticks.Query(ctx, asset, now.Add(-s.priceLookback), now, 1)
	if err != nil {
		s.metrics.RecordError("market_data_price")
		return 0, fmt.Errorf("%w: %v", domrepo.ErrPriceUnavailable, err)
	}
	if len(ticks) == 0 || ticks[0].Price <= 0 {
		return 0, fmt.Errorf("%w: no recent ticks for %s", domrepo.ErrPriceUnavailable, asset)
	}

	price := ticks[0].Price
	s.metrics.RecordLastPrice(asset, price)
	return price, nil
}

func mean(xs []float64) float64 {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64, mu float64) float64 {
	sum := 0.0
	for _, x := range xs {
		d := x - mu
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}

var _ domrepo.MarketData = (*Service)(nil)
