package models

import "time"

// ForecastEvent announces a completed forecast run to downstream consumers.
type ForecastEvent struct {
	Asset          string    `json:"asset"`
	Model          string    `json:"model"`
	StartTime      time.Time `json:"start_time"`
	IncrementSec   int       `json:"time_increment"`
	HorizonSec     int       `json:"time_length"`
	NumSimulations int       `json:"num_simulations"`
	Degraded       bool      `json:"degraded"`
	StartPrice     float64   `json:"start_price"`
	CreatedAt      time.Time `json:"created_at"`
}

// ScoreEvent announces a computed CRPS score.
type ScoreEvent struct {
	Asset          string    `json:"asset,omitempty"`
	Model          string    `json:"model"`
	CRPS           float64   `json:"crps_score"`
	NumSimulations int       `json:"num_simulations"`
	NumTimePoints  int       `json:"num_time_points"`
	HorizonSec     float64   `json:"prediction_horizon"`
	CreatedAt      time.Time `json:"created_at"`
}
