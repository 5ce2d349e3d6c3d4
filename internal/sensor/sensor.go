// Package sensor provides orientation sample sources.
package sensor

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

// ErrUnsupported means the device has no usable orientation sensor.
var ErrUnsupported = errors.New("orientation sensor not supported")

// Sample is one device orientation reading. Alpha is the raw compass angle
// in degrees as the device reports it.
type Sample struct {
	Alpha float64
	Time  time.Time
}

// Source streams samples until ctx is done. The returned channel is closed
// when the source stops.
type Source interface {
	Samples(ctx context.Context) (<-chan Sample, error)
}

// None is the source for a device without an orientation sensor.
type None struct{}

// Samples always fails with ErrUnsupported.
func (None) Samples(context.Context) (<-chan Sample, error) {
	return nil, ErrUnsupported
}

// Simulated rotates at a constant rate, for running without hardware.
type Simulated struct {
	Interval time.Duration
	Rate     float64 // degrees per second
	Clock    clock.Clock
}

// NewSimulated creates a Simulated source on the wall clock.
func NewSimulated(interval time.Duration, rate float64) *Simulated {
	return &Simulated{Interval: interval, Rate: rate, Clock: clock.New()}
}

// Samples emits one sample per interval. Samples are dropped rather than
// queued when the consumer falls behind.
func (s *Simulated) Samples(ctx context.Context) (<-chan Sample, error) {
	if s.Interval <= 0 {
		return nil, errors.New("simulated sensor: interval must be positive")
	}
	clk := s.Clock
	if clk == nil {
		clk = clock.New()
	}

	out := make(chan Sample, 1)
	start := clk.Now()
	ticker := clk.Ticker(s.Interval)

	go func() {
		defer close(out)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				elapsed := now.Sub(start).Seconds()
				sample := Sample{Alpha: math.Mod(elapsed*s.Rate, 360), Time: now}
				select {
				case out <- sample:
				default:
				}
			}
		}
	}()

	return out, nil
}

// Pump forwards samples from src to submit until the source ends.
// It returns ErrUnsupported without calling submit when src has no sensor.
func Pump(ctx context.Context, src Source, submit func(Sample) error) error {
	samples, err := src.Samples(ctx)
	if err != nil {
		return err
	}
	for sample := range samples {
		// A full inbox drops the sample; the next one supersedes it anyway.
		_ = submit(sample)
	}
	return nil
}
