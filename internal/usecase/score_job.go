package usecase

import (
	"context"
	"fmt"
	"time"

	"SynthCast/internal/domain/models"
	domrepo "SynthCast/internal/domain/repository"
	domsvc "SynthCast/internal/domain/service"
	"SynthCast/pkg/logger"
	"SynthCast/pkg/queue"
)

// ScoreJobPayload carries a forecast through the queue until its horizon has
// elapsed and realized prices exist to score it against.
type ScoreJobPayload struct {
	Asset        string      `json:"asset"`
	Model        string      `json:"model"`
	StartTime    string      `json:"start_time"`
	IncrementSec int         `json:"increment_sec"`
	Prices       [][]float64 `json:"prices"`
}

// NewScoreJobPayload flattens a ForecastSet into a queue payload. Only the
// price grid travels; the time grid is rebuilt from start and increment.
func NewScoreJobPayload(asset string, fs *models.ForecastSet) *ScoreJobPayload {
	prices := make([][]float64, len(fs.Paths))
	for i, path := range fs.Paths {
		row := make([]float64, len(path))
		for j, pp := range path {
			row[j] = pp.Price
		}
		prices[i] = row
	}
	return &ScoreJobPayload{
		Asset:        asset,
		Model:        fs.Model,
		StartTime:    fs.StartTime.UTC().Format(time.RFC3339),
		IncrementSec: int(fs.Increment.Seconds()),
		Prices:       prices,
	}
}

// ScoreForecastJob scores queued forecasts against realized candle closes.
// It returns an error while ground truth is incomplete so the queue retries
// the job later.
type ScoreForecastJob struct {
	candles domrepo.CandleStore
	scorer  domsvc.Scorer
	events  domrepo.EventPublisher // optional
	metrics domrepo.Metrics
	log     *logger.Logger
	now     func() time.Time
}

func NewScoreForecastJob(
	candles domrepo.CandleStore,
	scorer domsvc.Scorer,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	log *logger.Logger,
) *ScoreForecastJob {
	return &ScoreForecastJob{
		candles: candles,
		scorer:  scorer,
		events:  events,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

var _ queue.Job = (*ScoreForecastJob)(nil)

func (j *ScoreForecastJob) Name() string { return "score_forecast" }

func (j *ScoreForecastJob) Type() string { return ScoreJobType }

func (j *ScoreForecastJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[ScoreJobPayload](payload)
	if err != nil {
		return fmt.Errorf("parse score payload: %w", err)
	}
	if len(p.Prices) == 0 || len(p.Prices[0]) < 2 {
		j.log.Warn("dropping malformed score job", logger.String("asset", p.Asset))
		return nil
	}

	start, ok := parseRFC3339(p.StartTime)
	if !ok {
		j.log.Warn("dropping score job with bad start time",
			logger.String("asset", p.Asset),
			logger.String("start_time", p.StartTime),
		)
		return nil
	}
	increment := time.Duration(p.IncrementSec) * time.Second
	if p.IncrementSec <= 0 || p.IncrementSec%300 != 0 {
		// Candle closes only exist on 5 minute buckets.
		j.log.Warn("dropping score job with unscorable increment",
			logger.String("asset", p.Asset),
			logger.Int("increment_sec", p.IncrementSec),
		)
		return nil
	}

	steps := len(p.Prices[0])
	end := start.Add(time.Duration(steps-1) * increment)
	if j.now().Before(end) {
		return fmt.Errorf("horizon for %s not elapsed until %s", p.Asset, end.UTC().Format(time.RFC3339))
	}

	prices, times, err := j.realizedSeries(ctx, p.Asset, start, end, increment, steps)
	if err != nil {
		return err
	}

	fs := forecastSetFromGrid(p, start, increment)
	report, err := j.scorer.ScoreDetailed(fs, prices, times)
	if err != nil {
		j.metrics.RecordError("score_job")
		j.log.Warn("dropping unscorable forecast",
			logger.String("asset", p.Asset),
			logger.Error(err),
		)
		return nil
	}

	j.metrics.RecordCRPS(p.Model, report.CRPS)
	j.log.Info("deferred forecast scored",
		logger.String("asset", p.Asset),
		logger.String("model", p.Model),
		logger.Float64("crps", report.CRPS),
	)

	if j.events != nil {
		evt := &models.ScoreEvent{
			Asset:          p.Asset,
			Model:          p.Model,
			CRPS:           report.CRPS,
			NumSimulations: report.NumSimulations,
			NumTimePoints:  report.NumTimePoints,
			HorizonSec:     report.PredictionHorizon,
			CreatedAt:      j.now(),
		}
		if err := j.events.PublishScore(ctx, evt); err != nil {
			j.metrics.RecordError("score_event_publish")
			j.log.Warn("score event publish failed",
				logger.String("asset", p.Asset),
				logger.Error(err),
			)
		}
	}
	return nil
}

// realizedSeries aligns 5 minute candle closes to the forecast grid. The
// realized price at grid time ts is the close of the bucket ending at ts;
// the bucket starting at ts closes ~5 minutes later and would shift ground
// truth one bucket into the future. A grid time without a candle means
// ingest has not caught up yet, so the job is retried.
func (j *ScoreForecastJob) realizedSeries(ctx context.Context, asset string, start, end time.Time, increment time.Duration, steps int) ([]float64, []time.Time, error) {
	candles, err := j.candles.GetCandles(ctx, asset, start.Add(-5*time.Minute), end, domrepo.TF5m)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch candles for %s: %w", asset, err)
	}

	closes := make(map[int64]float64, len(candles))
	for _, c := range candles {
		closes[c.Bucket.Unix()] = c.Close
	}

	prices := make([]float64, steps)
	times := make([]time.Time, steps)
	for i := 0; i < steps; i++ {
		ts := start.Add(time.Duration(i) * increment)
		bucket := ts.Add(-5 * time.Minute).Truncate(5 * time.Minute)
		px, ok := closes[bucket.Unix()]
		if !ok {
			return nil, nil, fmt.Errorf("no realized price for %s at %s", asset, ts.UTC().Format(time.RFC3339))
		}
		prices[i] = px
		times[i] = ts
	}
	return prices, times, nil
}

func forecastSetFromGrid(p *ScoreJobPayload, start time.Time, increment time.Duration) *models.ForecastSet {
	steps := len(p.Prices[0])
	paths := make([]models.SimulationPath, len(p.Prices))
	for i, row := range p.Prices {
		path := make(models.SimulationPath, steps)
		for jj := 0; jj < steps && jj < len(row); jj++ {
			path[jj] = models.PricePoint{
				Time:  start.Add(time.Duration(jj) * increment),
				Price: row[jj],
			}
		}
		paths[i] = path
	}
	return &models.ForecastSet{
		Asset:     p.Asset,
		Model:     p.Model,
		StartTime: start,
		Increment: increment,
		Horizon:   time.Duration(steps-1) * increment,
		Paths:     paths,
	}
}

func parseRFC3339(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
