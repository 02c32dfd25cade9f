package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"SynthCast/internal/domain/models"
	domrepo "SynthCast/internal/domain/repository"
	domsvc "SynthCast/internal/domain/service"
	"SynthCast/pkg/logger"
	"SynthCast/pkg/util"
)

// ScoreUseCase evaluates submitted forecasts against realized prices.
type ScoreUseCase struct {
	scorer  domsvc.Scorer
	metrics domrepo.Metrics
	log     *logger.Logger
	events  domrepo.EventPublisher // optional
}

func NewScoreUseCase(scorer domsvc.Scorer, metrics domrepo.Metrics, log *logger.Logger, events domrepo.EventPublisher) *ScoreUseCase {
	return &ScoreUseCase{scorer: scorer, metrics: metrics, log: log, events: events}
}

// Score computes the CRPS of one submitted forecast.
func (uc *ScoreUseCase) Score(ctx context.Context, req *models.ScoreRequest) (*models.ScoreReport, error) {
	fs, err := ForecastSetFromWire("submitted", req.Forecast)
	if err != nil {
		return nil, err
	}
	prices, times, err := ActualFromWire(req.Actual)
	if err != nil {
		return nil, err
	}

	report, err := uc.scorer.ScoreDetailed(fs, prices, times)
	if err != nil {
		uc.metrics.RecordError("score")
		return nil, err
	}

	uc.metrics.RecordCRPS(fs.Model, report.CRPS)
	uc.publishScore(ctx, "", fs.Model, report)
	return report, nil
}

// Compare ranks multiple named forecasts against one realized series.
func (uc *ScoreUseCase) Compare(ctx context.Context, req *models.CompareRequest) (*models.ModelComparison, error) {
	prices, times, err := ActualFromWire(req.Actual)
	if err != nil {
		return nil, err
	}

	forecasts := make(map[string]*models.ForecastSet, len(req.Forecasts))
	for name, grid := range req.Forecasts {
		fs, err := ForecastSetFromWire(name, grid)
		if err != nil {
			return nil, fmt.Errorf("forecast %q: %w", name, err)
		}
		forecasts[name] = fs
	}

	cmp, err := uc.scorer.CompareModels(forecasts, prices, times)
	if err != nil {
		uc.metrics.RecordError("compare")
		return nil, err
	}

	for name, score := range cmp.Results {
		if !math.IsInf(score.CRPS, 1) {
			uc.metrics.RecordCRPS(name, score.CRPS)
		}
	}
	uc.log.Info("model comparison completed",
		logger.Int("models", len(cmp.Results)),
		logger.String("best_model", cmp.BestModel),
	)
	return cmp, nil
}

func (uc *ScoreUseCase) publishScore(ctx context.Context, asset, model string, report *models.ScoreReport) {
	if uc.events == nil {
		return
	}
	evt := &models.ScoreEvent{
		Asset:          asset,
		Model:          model,
		CRPS:           report.CRPS,
		NumSimulations: report.NumSimulations,
		NumTimePoints:  report.NumTimePoints,
		HorizonSec:     report.PredictionHorizon,
		CreatedAt:      time.Now(),
	}
	if err := uc.events.PublishScore(ctx, evt); err != nil {
		uc.metrics.RecordError("score_event_publish")
		uc.log.Warn("score event publish failed", logger.Error(err))
	}
}

// ForecastSetFromWire rebuilds a ForecastSet from its wire grid. The grid
// must be rectangular with at least two points per path.
func ForecastSetFromWire(model string, grid [][]models.WirePoint) (*models.ForecastSet, error) {
	if len(grid) == 0 {
		return nil, fmt.Errorf("forecast has no paths")
	}
	width := len(grid[0])
	if width < 2 {
		return nil, fmt.Errorf("forecast paths need at least 2 points, got %d", width)
	}

	paths := make([]models.SimulationPath, len(grid))
	for i, wire := range grid {
		if len(wire) != width {
			return nil, fmt.Errorf("forecast paths have unequal lengths: %d vs %d", len(wire), width)
		}
		path := make(models.SimulationPath, width)
		for j, wp := range wire {
			ts, ok := util.ParseTime(wp.Time)
			if !ok {
				return nil, fmt.Errorf("invalid time %q at path %d point %d", wp.Time, i, j)
			}
			path[j] = models.PricePoint{Time: ts, Price: wp.Price}
		}
		paths[i] = path
	}

	start := paths[0][0].Time
	increment := paths[0][1].Time.Sub(start)
	if increment <= 0 {
		return nil, fmt.Errorf("forecast times must be strictly increasing")
	}
	return &models.ForecastSet{
		Model:     model,
		StartTime: start,
		Increment: increment,
		Horizon:   paths[0][width-1].Time.Sub(start),
		Paths:     paths,
	}, nil
}

// ActualFromWire converts observed wire points to parallel price and time slices.
func ActualFromWire(actual []models.WirePoint) ([]float64, []time.Time, error) {
	if len(actual) == 0 {
		return nil, nil, fmt.Errorf("actual series is empty")
	}
	prices := make([]float64, len(actual))
	times := make([]time.Time, len(actual))
	for i, wp := range actual {
		ts, ok := util.ParseTime(wp.Time)
		if !ok {
			return nil, nil, fmt.Errorf("invalid time %q at actual point %d", wp.Time, i)
		}
		prices[i] = wp.Price
		times[i] = ts
	}
	return prices, times, nil
}

// WireFromForecastSet renders a ForecastSet as its wire grid.
func WireFromForecastSet(fs *models.ForecastSet) [][]models.WirePoint {
	grid := make([][]models.WirePoint, len(fs.Paths))
	for i, path := range fs.Paths {
		wire := make([]models.WirePoint, len(path))
		for j, pp := range path {
			wire[j] = models.WirePoint{Time: pp.Time.UTC().Format(time.RFC3339), Price: pp.Price}
		}
		grid[i] = wire
	}
	return grid
}
