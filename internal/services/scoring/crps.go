package scoring

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"SynthCast/internal/domain/models"
	"SynthCast/internal/domain/service"
)

// defaultMaxPairs bounds the pairwise-spread term of the CRPS computation.
// Above this count the term is Monte-Carlo sampled instead of enumerated.
const defaultMaxPairs = 1000

// Option configures a CRPSScorer.
type Option func(*CRPSScorer)

// WithMaxPairs overrides the pair-sampling budget.
func WithMaxPairs(n int) Option {
	return func(s *CRPSScorer) { s.maxPairs = n }
}

// WithSeed fixes the pair-sampling random source, making scores deterministic.
func WithSeed(seed uint64) Option {
	return func(s *CRPSScorer) {
		v := seed
		s.seed = &v
	}
}

// WithClock overrides the timestamp source of detailed reports.
func WithClock(now func() time.Time) Option {
	return func(s *CRPSScorer) { s.now = now }
}

// CRPSScorer computes the Continuous Ranked Probability Score of a forecast
// against realized prices. Lower is better.
type CRPSScorer struct {
	maxPairs int
	seed     *uint64
	now      func() time.Time
}

// NewCRPSScorer creates a scorer with the default pair budget.
func NewCRPSScorer(opts ...Option) *CRPSScorer {
	s := &CRPSScorer{maxPairs: defaultMaxPairs, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score returns the mean pointwise CRPS across all time indices.
func (s *CRPSScorer) Score(forecast *models.ForecastSet, actualPrices []float64, actualTimes []time.Time) (float64, error) {
	if err := validateInputs(forecast, actualPrices, actualTimes); err != nil {
		return 0, err
	}

	rng := s.newRNG()
	total := 0.0
	for t := range actualTimes {
		samples, err := forecast.PricesAt(t)
		if err != nil {
			return 0, err
		}
		total += s.pointCRPS(rng, samples, actualPrices[t])
	}
	return total / float64(len(actualTimes)), nil
}

// ScoreDetailed returns the CRPS plus run metadata.
func (s *CRPSScorer) ScoreDetailed(forecast *models.ForecastSet, actualPrices []float64, actualTimes []time.Time) (*models.ScoreReport, error) {
	score, err := s.Score(forecast, actualPrices, actualTimes)
	if err != nil {
		return nil, err
	}
	return &models.ScoreReport{
		CRPS:              score,
		NumSimulations:    forecast.NumSimulations(),
		NumTimePoints:     len(actualTimes),
		PredictionHorizon: horizonSeconds(actualTimes),
		Timestamp:         s.now(),
	}, nil
}

// CompareModels scores each named forecast against the same realized series
// and ranks them ascending. A model whose scoring fails is assigned +Inf and
// sorts last instead of aborting the comparison.
func (s *CRPSScorer) CompareModels(forecasts map[string]*models.ForecastSet, actualPrices []float64, actualTimes []time.Time) (*models.ModelComparison, error) {
	if len(forecasts) == 0 {
		return nil, fmt.Errorf("no forecasts to compare")
	}

	results := make(map[string]models.ModelScore, len(forecasts))
	for name, fs := range forecasts {
		report, err := s.ScoreDetailed(fs, actualPrices, actualTimes)
		if err != nil {
			results[name] = models.ModelScore{
				Model:         name,
				CRPS:          math.Inf(1),
				FailureReason: err.Error(),
			}
			continue
		}
		results[name] = models.ModelScore{Model: name, CRPS: report.CRPS, Report: report}
	}

	ranking := make([]string, 0, len(results))
	for name := range results {
		ranking = append(ranking, name)
	}
	sort.Slice(ranking, func(i, j int) bool {
		a, b := results[ranking[i]], results[ranking[j]]
		if a.CRPS != b.CRPS {
			return a.CRPS < b.CRPS
		}
		return ranking[i] < ranking[j]
	})

	return &models.ModelComparison{
		Results:   results,
		Ranking:   ranking,
		BestModel: ranking[0],
	}, nil
}

func validateInputs(forecast *models.ForecastSet, actualPrices []float64, actualTimes []time.Time) error {
	if forecast == nil || forecast.NumSimulations() == 0 {
		return fmt.Errorf("forecast must contain at least one path")
	}
	if len(actualPrices) == 0 || len(actualTimes) == 0 {
		return fmt.Errorf("actual prices and times must be non-empty")
	}
	if len(actualPrices) != len(actualTimes) {
		return fmt.Errorf("actual prices (%d) and times (%d) must have the same length", len(actualPrices), len(actualTimes))
	}
	if got := forecast.NumTimePoints(); got != len(actualTimes) {
		return fmt.Errorf("forecast has %d time points, actual series has %d", got, len(actualTimes))
	}
	return nil
}

func (s *CRPSScorer) newRNG() *rand.Rand {
	if s.seed != nil {
		return rand.New(rand.NewPCG(*s.seed, *s.seed^0x9e3779b97f4a7c15))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// pointCRPS computes mean_i|x_i-a| - 0.5*mean_{i,j}|x_i-x_j| for one time
// index, floored at zero.
func (s *CRPSScorer) pointCRPS(rng *rand.Rand, samples []float64, actual float64) float64 {
	n := len(samples)

	first := 0.0
	for _, x := range samples {
		first += math.Abs(x - actual)
	}
	first /= float64(n)

	second := 0.0
	if n > 1 {
		totalPairs := n * (n - 1) / 2
		if totalPairs <= s.maxPairs {
			sum := 0.0
			for i := 0; i < n; i++ {
				for j := i + 1; j < n; j++ {
					sum += math.Abs(samples[i] - samples[j])
				}
			}
			second = 0.5 * sum / float64(totalPairs)
		} else {
			second = 0.5 * s.sampledPairSpread(rng, samples)
		}
	}

	crps := first - second
	if crps < 0 {
		return 0
	}
	return crps
}

// sampledPairSpread estimates mean|x_i-x_j| over maxPairs distinct unordered
// index pairs drawn without replacement.
func (s *CRPSScorer) sampledPairSpread(rng *rand.Rand, samples []float64) float64 {
	n := len(samples)
	seen := make(map[int]struct{}, s.maxPairs)
	sum := 0.0
	for len(seen) < s.maxPairs {
		i := rng.IntN(n)
		j := rng.IntN(n)
		if i == j {
			continue
		}
		if i > j {
			i, j = j, i
		}
		key := i*n + j
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		sum += math.Abs(samples[i] - samples[j])
	}
	return sum / float64(len(seen))
}

func horizonSeconds(times []time.Time) float64 {
	if len(times) < 2 {
		return 0
	}
	return times[len(times)-1].Sub(times[0]).Seconds()
}

var _ service.Scorer = (*CRPSScorer)(nil)
