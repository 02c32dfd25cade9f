package simulation

import (
	"context"
	"math/rand/v2"

	"SynthCast/internal/domain/models"
	"SynthCast/internal/domain/service"
)

// GBM applies geometric brownian motion increments:
// P += P*(mu + sigma*Z), Z ~ N(0,1).
// Drift and volatility are literal per-step magnitudes; no time-unit
// rescaling is applied.
type GBM struct {
	params models.ModelParameters
	seed   *uint64
}

// NewGBM creates a geometric brownian motion generator.
func NewGBM(mu, sigma float64, opts ...Option) *GBM {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &GBM{
		params: models.ModelParameters{Drift: mu, Volatility: sigma},
		seed:   o.seed,
	}
}

func (g *GBM) Name() string { return "GBM" }

func (g *GBM) Parameters() models.ModelParameters { return g.params }

// Calibrated returns a copy with updated parameters.
func (g *GBM) Calibrated(p models.ModelParameters) service.PathGenerator {
	return &GBM{params: p, seed: g.seed}
}

func (g *GBM) Predict(ctx context.Context, req models.SimulationRequest) (*models.ForecastSet, error) {
	mu := g.params.Drift
	sigma := g.params.Volatility
	return run(ctx, g.Name(), req, g.seed, func(rng *rand.Rand, price float64) float64 {
		return price + price*(mu+sigma*rng.NormFloat64())
	})
}

var _ service.PathGenerator = (*GBM)(nil)
