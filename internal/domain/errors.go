package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidGeometry reports a malformed bounding box or coordinate.
// It is a hard failure: geometry is rejected at construction, never patched.
var ErrInvalidGeometry = errors.New("invalid geometry")

// ErrUnknownPollutant reports a pollutant with no breakpoint table. Multi-
// pollutant aggregation skips unknown pollutants instead of returning this;
// it surfaces only from single-pollutant lookups.
var ErrUnknownPollutant = errors.New("unknown pollutant")

// InsufficientDataError reports a calibration attempt with too few matched
// pairs to fit a line.
type InsufficientDataError struct {
	Pairs int
	Min   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient calibration data: %d matched pairs, need at least %d", e.Pairs, e.Min)
}
