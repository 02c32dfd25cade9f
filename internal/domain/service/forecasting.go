package service

import (
	"context"
	"time"

	"SynthCast/internal/domain/models"
)

// PathGenerator produces simulated price trajectories for one stochastic
// process. Implementations are immutable; Calibrated returns a copy with
// updated parameters so concurrent forecast runs never share mutable state.
type PathGenerator interface {
	Name() string
	Parameters() models.ModelParameters
	Calibrated(p models.ModelParameters) PathGenerator
	Predict(ctx context.Context, req models.SimulationRequest) (*models.ForecastSet, error)
}

// Scorer evaluates forecasts against realized outcomes.
type Scorer interface {
	Score(forecast *models.ForecastSet, actualPrices []float64, actualTimes []time.Time) (float64, error)
	ScoreDetailed(forecast *models.ForecastSet, actualPrices []float64, actualTimes []time.Time) (*models.ScoreReport, error)
	CompareModels(forecasts map[string]*models.ForecastSet, actualPrices []float64, actualTimes []time.Time) (*models.ModelComparison, error)
}
