package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"SynthCast/internal/domain/models"
	domrepo "SynthCast/internal/domain/repository"
	"SynthCast/internal/services/scoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCandleStore struct {
	candles []models.Candle
	err     error
}

func (f *fakeCandleStore) GetCandles(context.Context, string, time.Time, time.Time, domrepo.Timeframe) ([]models.Candle, error) {
	return f.candles, f.err
}

func (f *fakeCandleStore) GetLatestNCandles(context.Context, string, int, domrepo.Timeframe) ([]models.Candle, error) {
	return f.candles, f.err
}

type capturingEvents struct {
	scores []*models.ScoreEvent
}

func (c *capturingEvents) PublishForecast(context.Context, *models.ForecastEvent) error { return nil }
func (c *capturingEvents) PublishScore(_ context.Context, evt *models.ScoreEvent) error {
	c.scores = append(c.scores, evt)
	return nil
}
func (c *capturingEvents) Close() error { return nil }

func jobStart() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

// candlesAt builds consecutive 5 minute candles starting with the bucket
// that ends at gridStart, i.e. the bucket [gridStart-5m, gridStart).
func candlesAt(gridStart time.Time, closes ...float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			Bucket: gridStart.Add(time.Duration(i-1) * 5 * time.Minute),
			Asset:  "BTC",
			Close:  c,
		}
	}
	return out
}

func scorePayload() *ScoreJobPayload {
	return &ScoreJobPayload{
		Asset:        "BTC",
		Model:        "Ensemble",
		StartTime:    jobStart().Format(time.RFC3339),
		IncrementSec: 300,
		Prices:       [][]float64{{100, 101, 102}},
	}
}

func newScoreJob(t *testing.T, store *fakeCandleStore, events *capturingEvents, now time.Time) *ScoreForecastJob {
	t.Helper()
	var pub domrepo.EventPublisher
	if events != nil {
		pub = events
	}
	j := NewScoreForecastJob(store, scoring.NewCRPSScorer(), pub, noopMetrics{}, testLogger(t))
	j.now = func() time.Time { return now }
	return j
}

func TestScoreJobRetriesUntilHorizonElapsed(t *testing.T) {
	j := newScoreJob(t, &fakeCandleStore{}, nil, jobStart().Add(5*time.Minute))
	err := j.Handle(context.Background(), scorePayload())
	assert.Error(t, err)
}

func TestScoreJobRetriesOnMissingCandles(t *testing.T) {
	store := &fakeCandleStore{candles: candlesAt(jobStart(), 100, 101)} // third bucket missing
	j := newScoreJob(t, store, nil, jobStart().Add(time.Hour))
	err := j.Handle(context.Background(), scorePayload())
	assert.Error(t, err)

	store.candles = nil
	store.err = errors.New("clickhouse down")
	err = j.Handle(context.Background(), scorePayload())
	assert.Error(t, err)
}

// The realized price at each grid time must come from the bucket ending
// there, not the bucket starting there.
func TestScoreJobAlignsClosesToBucketEnd(t *testing.T) {
	store := &fakeCandleStore{candles: candlesAt(jobStart(), 100, 101, 102, 103)}
	j := newScoreJob(t, store, nil, jobStart().Add(time.Hour))

	prices, times, err := j.realizedSeries(
		context.Background(), "BTC",
		jobStart(), jobStart().Add(10*time.Minute), 5*time.Minute, 3,
	)
	require.NoError(t, err)
	assert.Equal(t, []float64{100, 101, 102}, prices)
	assert.Equal(t, jobStart(), times[0])
	assert.Equal(t, jobStart().Add(10*time.Minute), times[2])
}

func TestScoreJobScoresAndPublishes(t *testing.T) {
	store := &fakeCandleStore{candles: candlesAt(jobStart(), 100, 101, 102)}
	events := &capturingEvents{}
	j := newScoreJob(t, store, events, jobStart().Add(time.Hour))

	err := j.Handle(context.Background(), scorePayload())
	require.NoError(t, err)
	require.Len(t, events.scores, 1)

	evt := events.scores[0]
	assert.Equal(t, "BTC", evt.Asset)
	assert.Equal(t, "Ensemble", evt.Model)
	assert.InDelta(t, 0.0, evt.CRPS, 1e-12)
	assert.Equal(t, 1, evt.NumSimulations)
	assert.Equal(t, 3, evt.NumTimePoints)
	assert.InDelta(t, 600.0, evt.HorizonSec, 1e-9)
}

func TestScoreJobDropsUnscorablePayloads(t *testing.T) {
	j := newScoreJob(t, &fakeCandleStore{}, nil, jobStart().Add(time.Hour))

	// increment off the candle grid
	p := scorePayload()
	p.IncrementSec = 90
	assert.NoError(t, j.Handle(context.Background(), p))

	// unparseable start time
	p = scorePayload()
	p.StartTime = "not-a-time"
	assert.NoError(t, j.Handle(context.Background(), p))

	// empty grid
	p = scorePayload()
	p.Prices = nil
	assert.NoError(t, j.Handle(context.Background(), p))
}

func TestScoreJobPayloadRoundTrip(t *testing.T) {
	fs := &models.ForecastSet{
		Model:     "Ensemble",
		StartTime: jobStart(),
		Increment: 5 * time.Minute,
		Horizon:   10 * time.Minute,
		Paths: []models.SimulationPath{{
			{Time: jobStart(), Price: 100},
			{Time: jobStart().Add(5 * time.Minute), Price: 101},
			{Time: jobStart().Add(10 * time.Minute), Price: 102},
		}},
	}
	p := NewScoreJobPayload("BTC", fs)
	assert.Equal(t, "BTC", p.Asset)
	assert.Equal(t, 300, p.IncrementSec)
	assert.Equal(t, [][]float64{{100, 101, 102}}, p.Prices)
	assert.Equal(t, "2026-03-01T12:00:00Z", p.StartTime)
}
