package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SynthCast/internal/domain/models"
	domrepo "SynthCast/internal/domain/repository"
	pkgch "SynthCast/pkg/clickhouse"
	applogger "SynthCast/pkg/logger"
)

// CHCandleStore aggregates candles on the fly from the raw ticks table.
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, table string) *CHCandleStore {
	return &CHCandleStore{db: ch.DB(), table: table}
}

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) { s.l = l }

const candleQuery = `
        SELECT
            toStartOfInterval(ts, INTERVAL %d second) AS bucket,
            asset,
            argMin(price, ts) AS open,
            max(price) AS high,
            min(price) AS low,
            argMax(price, ts) AS close,
            sum(volume) AS vol
        FROM %s
        WHERE asset = ? AND ts >= ? AND ts <= ?
        GROUP BY bucket, asset
        ORDER BY bucket ASC
    `

func (s *CHCandleStore) GetCandles(ctx context.Context, asset string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	secs, err := bucketSeconds(tf)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(candleQuery, secs, s.table)
	rows, err := s.db.QueryContext(ctx, q, asset, from, to)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse get_candles query error",
				applogger.String("asset", asset),
				applogger.String("tf", string(tf)),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Asset, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Debug("clickhouse get_candles ok",
			applogger.String("asset", asset),
			applogger.String("tf", string(tf)),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

func (s *CHCandleStore) GetLatestNCandles(ctx context.Context, asset string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	secs, err := bucketSeconds(tf)
	if err != nil {
		return nil, err
	}
	// Bounded lookback keeps the scan cheap; one extra bucket absorbs the
	// partial interval at the window edge.
	to := time.Now()
	from := to.Add(-time.Duration(secs*(n+1)) * time.Second)
	candles, err := s.GetCandles(ctx, asset, from, to, tf)
	if err != nil {
		return nil, err
	}
	if len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	return candles, nil
}

func bucketSeconds(tf domrepo.Timeframe) (int, error) {
	switch tf {
	case domrepo.TF1s:
		return 1, nil
	case domrepo.TF1m:
		return 60, nil
	case domrepo.TF5m:
		return 300, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe: %s", tf)
	}
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)
