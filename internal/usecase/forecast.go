package usecase

import (
	"context"
	"time"

	"SynthCast/internal/domain/models"
	domrepo "SynthCast/internal/domain/repository"
	"SynthCast/pkg/logger"
	"SynthCast/pkg/queue"
)

// ScoreJobType identifies deferred scoring messages on the job queue.
const ScoreJobType = "forecast.score"

// ForecastUseCase orchestrates one forecast request: current price lookup,
// calibrated ensemble run, event publication, and deferred scoring.
type ForecastUseCase struct {
	ensemble *Ensemble
	market   domrepo.MarketData
	metrics  domrepo.Metrics
	log      *logger.Logger
	events   domrepo.EventPublisher // optional
	jobs     queue.QueueService     // optional
}

func NewForecastUseCase(
	ensemble *Ensemble,
	market domrepo.MarketData,
	metrics domrepo.Metrics,
	log *logger.Logger,
	events domrepo.EventPublisher,
	jobs queue.QueueService,
) *ForecastUseCase {
	return &ForecastUseCase{
		ensemble: ensemble,
		market:   market,
		metrics:  metrics,
		log:      log,
		events:   events,
		jobs:     jobs,
	}
}

type ForecastParams struct {
	Asset          string
	StartTime      time.Time
	Increment      time.Duration
	Horizon        time.Duration
	NumSimulations int
}

// Forecast produces the merged ensemble forecast for the asset. The boolean
// reports degraded calibration.
func (uc *ForecastUseCase) Forecast(ctx context.Context, p ForecastParams) (*models.ForecastSet, bool, error) {
	start := time.Now()

	price, err := uc.market.GetAssetPrice(ctx, p.Asset)
	if err != nil {
		uc.metrics.RecordForecast(p.Asset, "price_unavailable")
		return nil, false, err
	}

	req := models.SimulationRequest{
		StartPrice:     price,
		StartTime:      p.StartTime,
		Increment:      p.Increment,
		Horizon:        p.Horizon,
		NumSimulations: p.NumSimulations,
	}

	fs, degraded, err := uc.ensemble.Run(ctx, p.Asset, req)
	if err != nil {
		uc.metrics.RecordForecast(p.Asset, "error")
		return nil, degraded, err
	}

	uc.metrics.RecordForecast(p.Asset, "ok")
	uc.metrics.RecordLatency("forecast", time.Since(start).Seconds())
	uc.log.Info("forecast generated",
		logger.String("asset", p.Asset),
		logger.Int("simulations", fs.NumSimulations()),
		logger.Int("time_points", fs.NumTimePoints()),
		logger.Bool("degraded", degraded),
		logger.Duration("duration_ms", time.Since(start)),
	)

	uc.announce(ctx, p, fs, price, degraded)
	return fs, degraded, nil
}

// announce emits the forecast event and enqueues deferred scoring.
// Both are best-effort: the forecast result does not depend on them.
func (uc *ForecastUseCase) announce(ctx context.Context, p ForecastParams, fs *models.ForecastSet, startPrice float64, degraded bool) {
	if uc.events != nil {
		evt := &models.ForecastEvent{
			Asset:          p.Asset,
			Model:          fs.Model,
			StartTime:      p.StartTime,
			IncrementSec:   int(p.Increment.Seconds()),
			HorizonSec:     int(p.Horizon.Seconds()),
			NumSimulations: fs.NumSimulations(),
			Degraded:       degraded,
			StartPrice:     startPrice,
			CreatedAt:      time.Now(),
		}
		if err := uc.events.PublishForecast(ctx, evt); err != nil {
			uc.metrics.RecordError("forecast_event_publish")
			uc.log.Warn("forecast event publish failed",
				logger.String("asset", p.Asset),
				logger.Error(err),
			)
		}
	}

	if uc.jobs != nil {
		payload := NewScoreJobPayload(p.Asset, fs)
		if err := uc.jobs.PublishMessage(ctx, ScoreJobType, payload); err != nil {
			uc.metrics.RecordError("score_job_enqueue")
			uc.log.Warn("score job enqueue failed",
				logger.String("asset", p.Asset),
				logger.Error(err),
			)
		}
	}
}
