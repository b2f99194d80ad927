package domain

import (
	"math"
	"time"
)

// Defaults for calibration pair matching.
const (
	DefaultMaxTimeDiff    = 60 * time.Minute
	DefaultMaxDistanceKm  = 5.0
	minCalibrationSamples = 2
)

// CalibrationPair is one matched sensor/reference observation.
type CalibrationPair struct {
	SensorID       string    `json:"sensor_id"`
	SensorValue    float64   `json:"sensor_value"`
	ReferenceValue float64   `json:"reference_value"`
	Timestamp      time.Time `json:"timestamp"`
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
}

// CalibrationModel is a linear correction mapping raw sensor output onto the
// trusted reference scale. An empty SensorID marks a global model.
type CalibrationModel struct {
	SensorID        string    `json:"sensor_id,omitempty"`
	Slope           float64   `json:"slope"`
	Intercept       float64   `json:"intercept"`
	RSquared        float64   `json:"r_squared"`
	RMSE            float64   `json:"rmse"`
	TrainingSamples int       `json:"training_samples"`
	Version         string    `json:"model_version"`
	ComputedAt      time.Time `json:"computed_at"`
}

// Apply corrects a raw sensor value with the fitted line.
func (m CalibrationModel) Apply(raw float64) float64 {
	return m.Slope*raw + m.Intercept
}

// MatchPairs matches each sensor reading to the time-closest valid reference
// grid within maxTimeDiff that has a value within maxDistanceKm of the
// reading's location. At most one pair is produced per reading; readings with
// no qualifying reference are skipped, never errors.
func MatchPairs(readings []SensorObservation, grids []SatelliteGrid,
	maxTimeDiff time.Duration, maxDistanceKm float64) []CalibrationPair {

	pairs := make([]CalibrationPair, 0, len(readings))
	for _, r := range readings {
		best := -1
		bestDiff := time.Duration(0)
		bestValue := 0.0

		for i, g := range grids {
			if !g.Valid() {
				continue
			}
			diff := g.ObservationTime.Sub(r.Timestamp).Abs()
			if diff > maxTimeDiff {
				continue
			}
			if best >= 0 && diff >= bestDiff {
				continue
			}
			v, ok := g.ValueAt(r.Lat, r.Lon, maxDistanceKm)
			if !ok {
				continue
			}
			best = i
			bestDiff = diff
			bestValue = v
		}

		if best < 0 {
			continue
		}
		pairs = append(pairs, CalibrationPair{
			SensorID:       r.SensorID,
			SensorValue:    r.Value,
			ReferenceValue: bestValue,
			Timestamp:      r.Timestamp,
			Lat:            r.Lat,
			Lon:            r.Lon,
		})
	}
	return pairs
}

// ComputeCalibration fits ordinary least squares sensor -> reference over the
// matched pairs. Fewer than 2 pairs returns an InsufficientDataError. Zero
// variance in the sensor values falls back to the identity model (slope 1,
// intercept 0) rather than failing. An empty version derives one from the
// current time.
func ComputeCalibration(pairs []CalibrationPair, sensorID, version string) (CalibrationModel, error) {
	if len(pairs) < minCalibrationSamples {
		return CalibrationModel{}, &InsufficientDataError{Pairs: len(pairs), Min: minCalibrationSamples}
	}

	x := make([]float64, len(pairs))
	y := make([]float64, len(pairs))
	for i, p := range pairs {
		x[i] = p.SensorValue
		y[i] = p.ReferenceValue
	}

	slope, intercept := linearRegression(x, y)
	now := clock.Now().UTC()
	if version == "" {
		version = "v" + now.Format("200601021504")
	}

	return CalibrationModel{
		SensorID:        sensorID,
		Slope:           slope,
		Intercept:       intercept,
		RSquared:        rSquared(x, y, slope, intercept),
		RMSE:            rmse(x, y, slope, intercept),
		TrainingSamples: len(pairs),
		Version:         version,
		ComputedAt:      now,
	}, nil
}

// linearRegression returns the closed-form OLS slope and intercept.
// All-identical x values make the denominator 0; the identity line is the
// defined fallback.
func linearRegression(x, y []float64) (slope, intercept float64) {
	n := float64(len(x))
	var sumX, sumY, sumXY, sumX2 float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
	}

	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 1, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// rSquared is the coefficient of determination, 1 when the references have
// zero variance.
func rSquared(x, y []float64, slope, intercept float64) float64 {
	var meanY float64
	for _, v := range y {
		meanY += v
	}
	meanY /= float64(len(y))

	var ssTot, ssRes float64
	for i := range y {
		ssTot += (y[i] - meanY) * (y[i] - meanY)
		resid := y[i] - (slope*x[i] + intercept)
		ssRes += resid * resid
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

func rmse(x, y []float64, slope, intercept float64) float64 {
	var sum float64
	for i := range y {
		resid := y[i] - (slope*x[i] + intercept)
		sum += resid * resid
	}
	return math.Sqrt(sum / float64(len(y)))
}
