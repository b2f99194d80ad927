package domain

import (
	"math"
	"time"
)

// DefaultDeviationThreshold flags deviations above 50%.
const DefaultDeviationThreshold = 50.0

// validationTimeWindow bounds how far in time a reference observation may be
// from the reading it validates.
const validationTimeWindow = 120 * time.Minute

// ValidationResult is the outcome of checking one sensor reading against the
// trusted reference. Anomalies are data, not failures: every comparison is
// returned, anomalous or not, for observability and audit.
type ValidationResult struct {
	SensorID         string    `json:"sensor_id"`
	SensorValue      float64   `json:"sensor_value"`
	ReferenceValue   float64   `json:"reference_value"`
	DeviationPercent float64   `json:"deviation_percent"`
	Pollutant        string    `json:"pollutant"`
	IsAnomalous      bool      `json:"is_anomalous"`
	Timestamp        time.Time `json:"timestamp"`
}

// ValidateReadings compares each sensor reading against the time-closest
// valid reference value at its location and flags deviations strictly greater
// than thresholdPercent. Readings with no reference within the 120-minute
// window are skipped. A non-positive threshold selects the default.
func ValidateReadings(readings []SensorObservation, grids []SatelliteGrid,
	pollutant string, thresholdPercent float64) []ValidationResult {

	if thresholdPercent <= 0 {
		thresholdPercent = DefaultDeviationThreshold
	}

	results := make([]ValidationResult, 0, len(readings))
	for _, r := range readings {
		ref, ok := referenceValueAt(grids, r.Lat, r.Lon, r.Timestamp)
		if !ok {
			continue
		}

		deviation := deviationPercent(r.Value, ref)
		results = append(results, ValidationResult{
			SensorID:         r.SensorID,
			SensorValue:      r.Value,
			ReferenceValue:   ref,
			DeviationPercent: deviation,
			Pollutant:        pollutant,
			IsAnomalous:      math.Abs(deviation) > thresholdPercent,
			Timestamp:        r.Timestamp,
		})
	}
	return results
}

// referenceValueAt finds the value at the location from the valid grid
// closest in time to ts, within the validation window.
func referenceValueAt(grids []SatelliteGrid, lat, lon float64, ts time.Time) (float64, bool) {
	found := false
	bestDiff := time.Duration(0)
	bestValue := 0.0

	for _, g := range grids {
		if !g.Valid() {
			continue
		}
		diff := g.ObservationTime.Sub(ts).Abs()
		if diff > validationTimeWindow {
			continue
		}
		if found && diff >= bestDiff {
			continue
		}
		v, ok := g.ValueAt(lat, lon, 0)
		if !ok {
			continue
		}
		found = true
		bestDiff = diff
		bestValue = v
	}
	return bestValue, found
}

// deviationPercent computes (sensor - reference) / reference * 100. A zero
// reference is defined, not an error: 0 when the sensor also reads 0, else
// 100.
func deviationPercent(sensorValue, referenceValue float64) float64 {
	if referenceValue == 0 {
		if sensorValue == 0 {
			return 0
		}
		return 100
	}
	return (sensorValue - referenceValue) / referenceValue * 100
}
