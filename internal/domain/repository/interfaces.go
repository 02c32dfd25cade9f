package repository

import (
	"context"
	"errors"
	"time"

	"SynthCast/internal/domain/models"
)

// ErrPriceUnavailable is returned when no current price exists for an asset.
var ErrPriceUnavailable = errors.New("asset price unavailable")

// ErrMarketDataUnavailable is returned when the returns window cannot be read.
var ErrMarketDataUnavailable = errors.New("market data unavailable")

type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Tick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type Publisher interface {
	Publish(ctx context.Context, t *models.Tick) error
	PublishBatch(ctx context.Context, ticks []*models.Tick) error
	Close() error
}

type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, t *models.Tick) error
	StoreBatch(ctx context.Context, ticks []*models.Tick) error
	Query(ctx context.Context, asset string, from, to time.Time, limit int) ([]*models.Tick, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// EventPublisher emits forecast lifecycle events for downstream consumers.
type EventPublisher interface {
	PublishForecast(ctx context.Context, evt *models.ForecastEvent) error
	PublishScore(ctx context.Context, evt *models.ScoreEvent) error
	Close() error
}

// MarketData supplies calibration statistics and current prices.
type MarketData interface {
	// GetRecentReturns returns the per-interval standard deviation and mean
	// of simple returns over a trailing window ending now.
	GetRecentReturns(ctx context.Context, asset string, window time.Duration) (volatility, drift float64, err error)
	// GetAssetPrice returns the most recently stored price for the asset.
	GetAssetPrice(ctx context.Context, asset string) (float64, error)
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordForecast(asset, result string)
	RecordModelFailure(model string)
	RecordCRPS(model string, score float64)
	RecordCalibration(asset, result string)
	RecordCalibrationStaleReuse(asset string)
}
