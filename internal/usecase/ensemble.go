package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SynthCast/internal/domain/models"
	domrepo "SynthCast/internal/domain/repository"
	"SynthCast/internal/domain/service"
	"SynthCast/internal/service/calibration"
	"SynthCast/pkg/logger"
)

// ErrAllModelsFailed signals that no ensemble member produced a forecast.
var ErrAllModelsFailed = errors.New("all ensemble members failed")

// EnsembleName labels the merged output.
const EnsembleName = "Ensemble"

// MemberModel pairs a generator with its positional weight. Pairing is
// explicit so a skipped member can never shift the weights of the others.
type MemberModel struct {
	Name      string
	Generator service.PathGenerator
	Weight    float64
}

// Ensemble merges member forecasts into one consensus ForecastSet using
// fixed positional weights. Weights of failed members are skipped, not
// renormalized.
type Ensemble struct {
	members []MemberModel
	calib   *calibration.Cache
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewEnsemble(members []MemberModel, calib *calibration.Cache, metrics domrepo.Metrics, log *logger.Logger) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("ensemble requires at least one member")
	}
	for _, m := range members {
		if m.Weight < 0 {
			return nil, fmt.Errorf("member %s has negative weight %f", m.Name, m.Weight)
		}
	}
	return &Ensemble{members: members, calib: calib, metrics: metrics, log: log}, nil
}

// memberResult is the tagged outcome of one member's run.
type memberResult struct {
	member MemberModel
	fs     *models.ForecastSet
	err    error
}

// Run produces the merged forecast for one request. The returned flag
// reports degraded calibration (stale or missing statistics were used).
func (e *Ensemble) Run(ctx context.Context, asset string, req models.SimulationRequest) (*models.ForecastSet, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	entry, degraded, err := e.calib.EnsureCalibrated(ctx, asset)
	if err != nil {
		return nil, false, err
	}

	results := make([]memberResult, 0, len(e.members))
	for _, m := range e.members {
		fs, err := e.runMember(ctx, m, entry, req)
		if err != nil {
			e.metrics.RecordModelFailure(m.Name)
			e.log.Warn("ensemble member failed, excluded from merge",
				logger.String("asset", asset),
				logger.String("model", m.Name),
				logger.Error(err),
			)
		}
		results = append(results, memberResult{member: m, fs: fs, err: err})
	}

	merged, ok := e.merge(results, req)
	if !ok {
		return nil, degraded, fmt.Errorf("%w: asset %s", ErrAllModelsFailed, asset)
	}

	merged.Asset = asset
	merged.Model = EnsembleName
	return merged, degraded, nil
}

// runMember pushes calibration into a copy of the member's generator and
// invokes it. The mean-reversion target is always the run's start price.
func (e *Ensemble) runMember(ctx context.Context, m MemberModel, entry *models.CalibrationEntry, req models.SimulationRequest) (*models.ForecastSet, error) {
	p := m.Generator.Parameters()
	if entry != nil {
		p.Volatility = entry.Volatility
		p.Drift = entry.Drift
	}
	p.MeanPrice = req.StartPrice
	return m.Generator.Calibrated(p).Predict(ctx, req)
}

// merge folds the member results into one path set. Index 0 is the start
// price for every path; later indices are the weighted sum of available
// member values; a (sim, step) hole with no member value carries the
// previous merged price forward.
func (e *Ensemble) merge(results []memberResult, req models.SimulationRequest) (*models.ForecastSet, bool) {
	succeeded := results[:0:0]
	for _, r := range results {
		if r.err == nil && r.fs != nil {
			succeeded = append(succeeded, r)
		}
	}
	if len(succeeded) == 0 {
		return nil, false
	}

	steps := req.Steps()
	paths := make([]models.SimulationPath, req.NumSimulations)
	for sim := range paths {
		path := make(models.SimulationPath, steps)
		path[0] = models.PricePoint{Time: req.StartTime, Price: req.StartPrice}

		for s := 1; s < steps; s++ {
			merged := 0.0
			available := false
			for _, r := range succeeded {
				if sim < len(r.fs.Paths) && s < len(r.fs.Paths[sim]) {
					merged += r.member.Weight * r.fs.Paths[sim][s].Price
					available = true
				}
			}
			if !available {
				merged = path[s-1].Price
			}
			if merged < models.PriceFloor {
				merged = models.PriceFloor
			}
			path[s] = models.PricePoint{
				Time:  req.StartTime.Add(time.Duration(s) * req.Increment),
				Price: merged,
			}
		}
		paths[sim] = path
	}

	return &models.ForecastSet{
		StartTime: req.StartTime,
		Increment: req.Increment,
		Horizon:   req.Horizon,
		Paths:     paths,
	}, true
}
