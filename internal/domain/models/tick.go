package models

import "time"

// Tick is a single observed trade event from the market stream.
type Tick struct {
	Asset     string
	Timestamp int64 // unix seconds
	Price     float64
	Volume    float64
}

// Candle represents an OHLCV record aggregated from ticks.
type Candle struct {
	Bucket time.Time
	Asset  string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}
