package simulation

import (
	"context"
	"math/rand/v2"
	"time"

	"SynthCast/internal/domain/models"
)

// Option configures a path generator.
type Option func(*options)

type options struct {
	seed *uint64
}

// WithSeed fixes the random source, making output deterministic.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		s := seed
		o.seed = &s
	}
}

func newRNG(seed *uint64) *rand.Rand {
	if seed != nil {
		return rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// stepFn advances the price by one increment.
type stepFn func(rng *rand.Rand, price float64) float64

// run generates the path grid shared by all models: NumSimulations paths of
// Steps() points, first point fixed at (StartTime, StartPrice), every later
// price produced by step and clamped to the floor.
func run(ctx context.Context, model string, req models.SimulationRequest, seed *uint64, step stepFn) (*models.ForecastSet, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	steps := req.Steps()
	rng := newRNG(seed)
	paths := make([]models.SimulationPath, req.NumSimulations)

	for i := range paths {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		path := make(models.SimulationPath, steps)
		price := req.StartPrice
		path[0] = models.PricePoint{Time: req.StartTime, Price: price}
		for s := 1; s < steps; s++ {
			price = step(rng, price)
			if price < models.PriceFloor {
				price = models.PriceFloor
			}
			path[s] = models.PricePoint{
				Time:  req.StartTime.Add(time.Duration(s) * req.Increment),
				Price: price,
			}
		}
		paths[i] = path
	}

	return &models.ForecastSet{
		Model:     model,
		StartTime: req.StartTime,
		Increment: req.Increment,
		Horizon:   req.Horizon,
		Paths:     paths,
	}, nil
}
