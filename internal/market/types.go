// Package market provides candle and price data types plus the cached
// fetch layer that serves the analysis pipeline.
package market

import (
	"fmt"
	"time"
)

// Timeframe is a canonical candle interval.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

// ParseTimeframe validates a timeframe string.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe: %q", s)
	}
	return tf, nil
}

// IsValid reports whether the timeframe is one of the supported intervals.
func (tf Timeframe) IsValid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// Duration returns the candle interval as a time.Duration.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

// DurationMs returns the candle interval in milliseconds.
func (tf Timeframe) DurationMs() int64 {
	return timeframeDurations[tf].Milliseconds()
}

func (tf Timeframe) String() string {
	return string(tf)
}

// AllTimeframes lists the supported intervals in ascending order.
func AllTimeframes() []Timeframe {
	return []Timeframe{
		Timeframe1m, Timeframe5m, Timeframe15m, Timeframe30m,
		Timeframe1h, Timeframe4h, Timeframe1d,
	}
}

// Direction is the side of a trade or signal.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// IsValid reports whether the direction is long or short.
func (d Direction) IsValid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

func (d Direction) String() string {
	return string(d)
}

// Candle is a single OHLCV bar. Timestamp is the bar open time in
// milliseconds since epoch.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// OpenTime returns the bar open time.
func (c Candle) OpenTime() time.Time {
	return time.UnixMilli(c.Timestamp)
}

// Validate checks OHLC sanity: low <= open,close <= high and a positive
// timestamp.
func (c Candle) Validate() error {
	if c.Timestamp <= 0 {
		return fmt.Errorf("candle has non-positive timestamp %d", c.Timestamp)
	}
	if c.Low > c.High {
		return fmt.Errorf("candle at %d has low %.8f above high %.8f", c.Timestamp, c.Low, c.High)
	}
	if c.Open < c.Low || c.Open > c.High {
		return fmt.Errorf("candle at %d has open %.8f outside [low, high]", c.Timestamp, c.Open)
	}
	if c.Close < c.Low || c.Close > c.High {
		return fmt.Errorf("candle at %d has close %.8f outside [low, high]", c.Timestamp, c.Close)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle at %d has negative volume", c.Timestamp)
	}
	return nil
}

// ValidateWindow checks every candle in the window and that timestamps
// are strictly increasing.
func ValidateWindow(candles []Candle) error {
	for i, c := range candles {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 && c.Timestamp <= candles[i-1].Timestamp {
			return fmt.Errorf("candle timestamps not strictly increasing at index %d", i)
		}
	}
	return nil
}

// LastClose returns the close of the most recent candle, or 0 for an
// empty window.
func LastClose(candles []Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	return candles[len(candles)-1].Close
}
