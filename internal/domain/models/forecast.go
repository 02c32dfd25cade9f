package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// PriceFloor is the minimum admissible price. Every producer clamps to it.
const PriceFloor = 0.01

// PricePoint is a single price at an instant, simulated or observed.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// SimulationPath is one simulated trajectory. Timestamps are strictly
// increasing and spaced by the request increment.
type SimulationPath []PricePoint

// ForecastSet is a collection of simulated paths sharing one time grid. It
// represents a discretized predictive distribution at each time index.
type ForecastSet struct {
	Asset     string
	Model     string
	StartTime time.Time
	Increment time.Duration
	Horizon   time.Duration
	Paths     []SimulationPath
}

// NumSimulations returns the number of paths.
func (f *ForecastSet) NumSimulations() int { return len(f.Paths) }

// NumTimePoints returns the shared path length, 0 when empty.
func (f *ForecastSet) NumTimePoints() int {
	if len(f.Paths) == 0 {
		return 0
	}
	return len(f.Paths[0])
}

// PricesAt collects the price of every path at a time index.
func (f *ForecastSet) PricesAt(step int) ([]float64, error) {
	if step < 0 || step >= f.NumTimePoints() {
		return nil, fmt.Errorf("time index %d out of range [0,%d)", step, f.NumTimePoints())
	}
	prices := make([]float64, len(f.Paths))
	for i, p := range f.Paths {
		prices[i] = p[step].Price
	}
	return prices, nil
}

// SimulationRequest is the common input of every path generator run.
type SimulationRequest struct {
	StartPrice     float64
	StartTime      time.Time
	Increment      time.Duration
	Horizon        time.Duration
	NumSimulations int
}

// Steps returns the path length: floor(horizon/increment) + 1.
func (r SimulationRequest) Steps() int {
	return int(r.Horizon/r.Increment) + 1
}

// Validate rejects inputs that would silently truncate or degenerate.
func (r SimulationRequest) Validate() error {
	if r.NumSimulations < 1 {
		return fmt.Errorf("num_simulations must be >= 1, got %d", r.NumSimulations)
	}
	if r.Increment <= 0 {
		return fmt.Errorf("increment must be positive, got %s", r.Increment)
	}
	if r.Horizon <= 0 {
		return fmt.Errorf("horizon must be positive, got %s", r.Horizon)
	}
	return nil
}

// ModelParameters holds the numeric knobs of a path generator. Each model
// reads only the fields it uses.
type ModelParameters struct {
	Volatility        float64
	Drift             float64
	ReversionStrength float64
	MeanPrice         float64
}

// CalibrationEntry holds per-asset statistics derived from recent returns.
// Created on first request, refreshed in place when stale, never deleted.
type CalibrationEntry struct {
	Asset          string    `json:"asset"`
	Volatility     float64   `json:"volatility"`
	Drift          float64   `json:"drift"`
	LastCalibrated time.Time `json:"last_calibrated"`
}

// Age returns how long ago the entry was calibrated.
func (e *CalibrationEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.LastCalibrated)
}

// ScoreReport is the detailed result of scoring one forecast.
type ScoreReport struct {
	CRPS              float64   `json:"crps_score"`
	NumSimulations    int       `json:"num_simulations"`
	NumTimePoints     int       `json:"num_time_points"`
	PredictionHorizon float64   `json:"prediction_horizon"`
	Timestamp         time.Time `json:"timestamp"`
}

// ModelScore is one model's entry in a comparison.
type ModelScore struct {
	Model         string       `json:"model"`
	CRPS          float64      `json:"crps_score"`
	Report        *ScoreReport `json:"report,omitempty"`
	FailureReason string       `json:"failure_reason,omitempty"`
}

// MarshalJSON renders a non-finite score as null. encoding/json cannot emit
// +Inf, and a failed model must still serialize with its failure reason
// instead of aborting the whole comparison response.
func (s ModelScore) MarshalJSON() ([]byte, error) {
	type wire ModelScore
	out := struct {
		wire
		CRPS *float64 `json:"crps_score"`
	}{wire: wire(s)}
	if !math.IsInf(s.CRPS, 0) && !math.IsNaN(s.CRPS) {
		out.CRPS = &s.CRPS
	}
	return json.Marshal(out)
}

// ModelComparison ranks multiple named forecasts against one realized series.
// Ranking is ascending by CRPS; failed models score +Inf and sort last.
type ModelComparison struct {
	Results   map[string]ModelScore `json:"results"`
	Ranking   []string              `json:"ranking"`
	BestModel string                `json:"best_model"`
}
