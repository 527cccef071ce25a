package market

import (
	"context"
	"time"
)

// Candle represents OHLC (Open, High, Low, Close) candlestick data
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// CandleSource supplies recent candles for a symbol and timeframe,
// oldest first.
type CandleSource interface {
	Candles(ctx context.Context, symbol string, tf Timeframe, count int) ([]Candle, error)
}
