// Package heading turns raw orientation samples into tared compass bearings.
package heading

import (
	"errors"
	"math"
)

// FullCircle is the size of the bearing space in degrees.
const FullCircle = 360.0

// ErrNoHeading is returned by Tare when no sample has been seen yet.
var ErrNoHeading = errors.New("no heading received yet")

// Processor holds the last heading and the tare offset for one session.
// It is not safe for concurrent use; the dispatcher loop is its only caller.
type Processor struct {
	heading    float64
	hasHeading bool
	offset     float64
}

// New creates a Processor with a zero offset.
func New() *Processor {
	return &Processor{}
}

// Compute converts a raw alpha angle into a bearing in [0, 360).
// The sensor reports counter-clockwise, so the heading is 360 - alpha.
func (p *Processor) Compute(alpha float64) float64 {
	p.heading = FullCircle - alpha
	p.hasHeading = true
	return Normalize(p.heading - p.offset)
}

// Tare makes the current heading the new forward reference and returns it.
// Without a prior sample the offset is left untouched.
func (p *Processor) Tare() (float64, error) {
	if !p.hasHeading {
		return p.offset, ErrNoHeading
	}
	p.offset = p.heading
	return p.offset, nil
}

// Offset returns the current tare offset.
func (p *Processor) Offset() float64 {
	return p.offset
}

// Heading returns the last untared heading and whether one was recorded.
func (p *Processor) Heading() (float64, bool) {
	return p.heading, p.hasHeading
}

// Normalize wraps any finite bearing into [0, 360).
func Normalize(bearing float64) float64 {
	bearing = math.Mod(bearing, FullCircle)
	if bearing < 0 {
		bearing += FullCircle
	}
	// -tiny + 360 rounds up to 360.
	if bearing >= FullCircle {
		bearing = 0
	}
	return bearing
}
