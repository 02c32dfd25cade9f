package simulation

import (
	"context"
	"math/rand/v2"

	"SynthCast/internal/domain/models"
	"SynthCast/internal/domain/service"
)

// MeanReversion pulls the price toward a target level with normal noise:
// P += alpha*(M - P) + N(0, sigma*P).
type MeanReversion struct {
	params models.ModelParameters
	seed   *uint64
}

// NewMeanReversion creates a mean reversion generator. The target level M is
// usually overwritten with the run's start price via Calibrated.
func NewMeanReversion(meanPrice, alpha, sigma float64, opts ...Option) *MeanReversion {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &MeanReversion{
		params: models.ModelParameters{
			MeanPrice:         meanPrice,
			ReversionStrength: alpha,
			Volatility:        sigma,
		},
		seed: o.seed,
	}
}

func (g *MeanReversion) Name() string { return "MeanReversion" }

func (g *MeanReversion) Parameters() models.ModelParameters { return g.params }

// Calibrated returns a copy with updated parameters.
func (g *MeanReversion) Calibrated(p models.ModelParameters) service.PathGenerator {
	return &MeanReversion{params: p, seed: g.seed}
}

func (g *MeanReversion) Predict(ctx context.Context, req models.SimulationRequest) (*models.ForecastSet, error) {
	alpha := g.params.ReversionStrength
	mean := g.params.MeanPrice
	sigma := g.params.Volatility
	return run(ctx, g.Name(), req, g.seed, func(rng *rand.Rand, price float64) float64 {
		return price + alpha*(mean-price) + rng.NormFloat64()*sigma*price
	})
}

var _ service.PathGenerator = (*MeanReversion)(nil)
