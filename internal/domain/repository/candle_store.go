package repository

import (
	"context"
	"time"

	"SynthCast/internal/domain/models"
)

// Timeframe represents candle resolution buckets.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
)

// CandleStore provides read-only access to aggregated candles.
type CandleStore interface {
	GetCandles(ctx context.Context, asset string, from, to time.Time, tf Timeframe) ([]models.Candle, error)
	GetLatestNCandles(ctx context.Context, asset string, n int, tf Timeframe) ([]models.Candle, error)
}
