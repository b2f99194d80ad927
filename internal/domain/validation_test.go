package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateReadings(t *testing.T) {
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	readingAt := func(id string, value float64) SensorObservation {
		return SensorObservation{
			SensorID: id, Lat: 10.5, Lon: 106.5, Value: value, Timestamp: base,
		}
	}
	refGrid := func(refValue float64) SatelliteGrid {
		return gridAt(QualityGood, base, GridCell{Lat: 10.5, Lon: 106.5, Value: refValue})
	}

	t.Run("deviation at the threshold is not anomalous", func(t *testing.T) {
		results := ValidateReadings([]SensorObservation{readingAt("s-1", 150)},
			[]SatelliteGrid{refGrid(100)}, "pm25", DefaultDeviationThreshold)

		require.Len(t, results, 1)
		assert.InDelta(t, 50.0, results[0].DeviationPercent, 1e-9)
		assert.False(t, results[0].IsAnomalous)
		assert.Equal(t, "s-1", results[0].SensorID)
		assert.Equal(t, 150.0, results[0].SensorValue)
		assert.Equal(t, 100.0, results[0].ReferenceValue)
		assert.Equal(t, "pm25", results[0].Pollutant)
	})

	t.Run("deviation just past the threshold is anomalous", func(t *testing.T) {
		results := ValidateReadings([]SensorObservation{readingAt("s-1", 151)},
			[]SatelliteGrid{refGrid(100)}, "pm25", DefaultDeviationThreshold)

		require.Len(t, results, 1)
		assert.InDelta(t, 51.0, results[0].DeviationPercent, 1e-9)
		assert.True(t, results[0].IsAnomalous)
	})

	t.Run("negative deviation is compared by magnitude", func(t *testing.T) {
		results := ValidateReadings([]SensorObservation{readingAt("s-1", 40)},
			[]SatelliteGrid{refGrid(100)}, "pm25", DefaultDeviationThreshold)

		require.Len(t, results, 1)
		assert.InDelta(t, -60.0, results[0].DeviationPercent, 1e-9)
		assert.True(t, results[0].IsAnomalous)
	})

	t.Run("zero reference and zero sensor agree", func(t *testing.T) {
		results := ValidateReadings([]SensorObservation{readingAt("s-1", 0)},
			[]SatelliteGrid{refGrid(0)}, "pm25", DefaultDeviationThreshold)

		require.Len(t, results, 1)
		assert.Zero(t, results[0].DeviationPercent)
		assert.False(t, results[0].IsAnomalous)
	})

	t.Run("zero reference with nonzero sensor flags", func(t *testing.T) {
		results := ValidateReadings([]SensorObservation{readingAt("s-1", 12)},
			[]SatelliteGrid{refGrid(0)}, "pm25", DefaultDeviationThreshold)

		require.Len(t, results, 1)
		assert.InDelta(t, 100.0, results[0].DeviationPercent, 1e-9)
		assert.True(t, results[0].IsAnomalous)
	})

	t.Run("no reference skips the reading", func(t *testing.T) {
		results := ValidateReadings([]SensorObservation{readingAt("s-1", 150)},
			nil, "pm25", DefaultDeviationThreshold)

		assert.Empty(t, results)
	})

	t.Run("invalid grids never serve as reference", func(t *testing.T) {
		invalid := gridAt(QualityInvalid, base, GridCell{Lat: 10.5, Lon: 106.5, Value: 100})

		results := ValidateReadings([]SensorObservation{readingAt("s-1", 150)},
			[]SatelliteGrid{invalid}, "pm25", DefaultDeviationThreshold)

		assert.Empty(t, results)
	})

	t.Run("reference outside the time window is ignored", func(t *testing.T) {
		stale := gridAt(QualityGood, base.Add(-3*time.Hour),
			GridCell{Lat: 10.5, Lon: 106.5, Value: 100})

		results := ValidateReadings([]SensorObservation{readingAt("s-1", 150)},
			[]SatelliteGrid{stale}, "pm25", DefaultDeviationThreshold)

		assert.Empty(t, results)
	})

	t.Run("time-closest reference wins", func(t *testing.T) {
		near := gridAt(QualityGood, base.Add(10*time.Minute),
			GridCell{Lat: 10.5, Lon: 106.5, Value: 100})
		far := gridAt(QualityGood, base.Add(90*time.Minute),
			GridCell{Lat: 10.5, Lon: 106.5, Value: 999})

		results := ValidateReadings([]SensorObservation{readingAt("s-1", 120)},
			[]SatelliteGrid{far, near}, "pm25", DefaultDeviationThreshold)

		require.Len(t, results, 1)
		assert.Equal(t, 100.0, results[0].ReferenceValue)
	})

	t.Run("non-positive threshold selects the default", func(t *testing.T) {
		results := ValidateReadings([]SensorObservation{readingAt("s-1", 150)},
			[]SatelliteGrid{refGrid(100)}, "pm25", 0)

		require.Len(t, results, 1)
		assert.False(t, results[0].IsAnomalous, "50%% sits at the default threshold")
	})

	t.Run("all comparisons are returned, not only anomalies", func(t *testing.T) {
		readings := []SensorObservation{
			readingAt("ok", 105),
			readingAt("bad", 300),
		}

		results := ValidateReadings(readings, []SatelliteGrid{refGrid(100)},
			"pm25", DefaultDeviationThreshold)

		require.Len(t, results, 2)
		assert.False(t, results[0].IsAnomalous)
		assert.True(t, results[1].IsAnomalous)
	})
}
