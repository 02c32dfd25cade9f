package simulation

import (
	"context"
	"math/rand/v2"

	"SynthCast/internal/domain/models"
	"SynthCast/internal/domain/service"
)

// RandomWalk adds normal noise proportional to the current price:
// P += N(0, sigma*P).
type RandomWalk struct {
	params models.ModelParameters
	seed   *uint64
}

// NewRandomWalk creates a random walk generator with the given volatility.
func NewRandomWalk(sigma float64, opts ...Option) *RandomWalk {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &RandomWalk{
		params: models.ModelParameters{Volatility: sigma},
		seed:   o.seed,
	}
}

func (g *RandomWalk) Name() string { return "RandomWalk" }

func (g *RandomWalk) Parameters() models.ModelParameters { return g.params }

// Calibrated returns a copy with updated parameters.
func (g *RandomWalk) Calibrated(p models.ModelParameters) service.PathGenerator {
	return &RandomWalk{params: p, seed: g.seed}
}

func (g *RandomWalk) Predict(ctx context.Context, req models.SimulationRequest) (*models.ForecastSet, error) {
	sigma := g.params.Volatility
	return run(ctx, g.Name(), req, g.seed, func(rng *rand.Rand, price float64) float64 {
		return price + rng.NormFloat64()*sigma*price
	})
}

var _ service.PathGenerator = (*RandomWalk)(nil)
