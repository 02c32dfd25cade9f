package models

// Requests for forecast HTTP endpoints. Defined in domain for consistency and reuse.

// WirePoint is the wire representation of a PricePoint: ISO-8601 time string.
type WirePoint struct {
	Time  string  `json:"time" validate:"required"`
	Price float64 `json:"price" validate:"required,gt=0"`
}

type ForecastRequest struct {
	Asset          string `json:"asset" validate:"required"`
	StartTime      string `json:"start_time" validate:"required"`
	TimeIncrement  int    `json:"time_increment" default:"300" validate:"gte=1"`
	TimeLength     int    `json:"time_length" default:"86400" validate:"gte=1"`
	NumSimulations int    `json:"num_simulations" default:"100" validate:"gte=1,lte=10000"`
}

type ForecastResponse struct {
	Asset          string        `json:"asset"`
	Model          string        `json:"model"`
	StartTime      string        `json:"start_time"`
	TimeIncrement  int           `json:"time_increment"`
	TimeLength     int           `json:"time_length"`
	NumSimulations int           `json:"num_simulations"`
	Degraded       bool          `json:"degraded,omitempty"`
	Predictions    [][]WirePoint `json:"predictions"`
}

type ScoreRequest struct {
	Forecast [][]WirePoint `json:"forecast" validate:"required,min=1,dive,min=2,dive"`
	Actual   []WirePoint   `json:"actual" validate:"required,min=1,dive"`
}

type CompareRequest struct {
	Forecasts map[string][][]WirePoint `json:"forecasts" validate:"required,min=1,dive,min=1,dive,min=2,dive"`
	Actual    []WirePoint              `json:"actual" validate:"required,min=1,dive"`
}
