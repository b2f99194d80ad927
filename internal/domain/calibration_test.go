package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeCalibration(t *testing.T) {
	t.Run("perfect linear fit", func(t *testing.T) {
		pairs := []CalibrationPair{
			{SensorID: "s-1", SensorValue: 10, ReferenceValue: 12},
			{SensorID: "s-1", SensorValue: 20, ReferenceValue: 22},
		}

		model, err := ComputeCalibration(pairs, "s-1", "")
		require.NoError(t, err)

		assert.InDelta(t, 1.0, model.Slope, 1e-9)
		assert.InDelta(t, 2.0, model.Intercept, 1e-9)
		assert.InDelta(t, 1.0, model.RSquared, 1e-9)
		assert.InDelta(t, 0.0, model.RMSE, 1e-9)
		assert.Equal(t, 2, model.TrainingSamples)
		assert.Equal(t, "s-1", model.SensorID)
		assert.NotEmpty(t, model.Version)
	})

	t.Run("single pair is insufficient", func(t *testing.T) {
		pairs := []CalibrationPair{{SensorValue: 10, ReferenceValue: 12}}

		_, err := ComputeCalibration(pairs, "", "")
		require.Error(t, err)

		var insufficient *InsufficientDataError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, 1, insufficient.Pairs)
		assert.Equal(t, 2, insufficient.Min)
	})

	t.Run("no pairs is insufficient", func(t *testing.T) {
		_, err := ComputeCalibration(nil, "", "")
		var insufficient *InsufficientDataError
		require.ErrorAs(t, err, &insufficient)
		assert.Equal(t, 0, insufficient.Pairs)
	})

	t.Run("zero sensor variance falls back to identity", func(t *testing.T) {
		pairs := []CalibrationPair{
			{SensorValue: 15, ReferenceValue: 10},
			{SensorValue: 15, ReferenceValue: 20},
		}

		model, err := ComputeCalibration(pairs, "", "")
		require.NoError(t, err)
		assert.Equal(t, 1.0, model.Slope)
		assert.Equal(t, 0.0, model.Intercept)
	})

	t.Run("zero reference variance yields r-squared 1", func(t *testing.T) {
		pairs := []CalibrationPair{
			{SensorValue: 10, ReferenceValue: 30},
			{SensorValue: 20, ReferenceValue: 30},
		}

		model, err := ComputeCalibration(pairs, "", "")
		require.NoError(t, err)
		assert.InDelta(t, 1.0, model.RSquared, 1e-9)
	})

	t.Run("noisy fit", func(t *testing.T) {
		pairs := []CalibrationPair{
			{SensorValue: 10, ReferenceValue: 11},
			{SensorValue: 20, ReferenceValue: 24},
			{SensorValue: 30, ReferenceValue: 29},
			{SensorValue: 40, ReferenceValue: 45},
		}

		model, err := ComputeCalibration(pairs, "", "")
		require.NoError(t, err)
		assert.Greater(t, model.RSquared, 0.9)
		assert.Less(t, model.RSquared, 1.0)
		assert.Greater(t, model.RMSE, 0.0)
	})

	t.Run("derived version from clock", func(t *testing.T) {
		SetClock(clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)))
		defer SetClock(nil)

		model, err := ComputeCalibration([]CalibrationPair{
			{SensorValue: 1, ReferenceValue: 1},
			{SensorValue: 2, ReferenceValue: 2},
		}, "", "")
		require.NoError(t, err)
		assert.Equal(t, "v202406011230", model.Version)
		assert.Equal(t, time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC), model.ComputedAt)
	})

	t.Run("caller-supplied version wins", func(t *testing.T) {
		model, err := ComputeCalibration([]CalibrationPair{
			{SensorValue: 1, ReferenceValue: 1},
			{SensorValue: 2, ReferenceValue: 2},
		}, "", "v-custom")
		require.NoError(t, err)
		assert.Equal(t, "v-custom", model.Version)
	})
}

func TestCalibrationModel_Apply(t *testing.T) {
	model := CalibrationModel{Slope: 1.1, Intercept: 2.0}
	assert.InDelta(t, 46.0, model.Apply(40.0), 1e-9)
}

func TestMatchPairs(t *testing.T) {
	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	reading := SensorObservation{
		SensorID: "s-1", Lat: 10.5, Lon: 106.5, Value: 42.0, Timestamp: base,
	}
	cellHere := GridCell{Lat: 10.5, Lon: 106.5, Value: 45.0}

	t.Run("time-closest grid wins", func(t *testing.T) {
		near := gridAt(QualityGood, base.Add(10*time.Minute), cellHere)
		far := gridAt(QualityGood, base.Add(40*time.Minute),
			GridCell{Lat: 10.5, Lon: 106.5, Value: 99.0})

		pairs := MatchPairs([]SensorObservation{reading}, []SatelliteGrid{far, near},
			DefaultMaxTimeDiff, DefaultMaxDistanceKm)

		require.Len(t, pairs, 1)
		assert.Equal(t, 45.0, pairs[0].ReferenceValue)
		assert.Equal(t, "s-1", pairs[0].SensorID)
		assert.Equal(t, 42.0, pairs[0].SensorValue)
	})

	t.Run("invalid grids are skipped", func(t *testing.T) {
		invalid := gridAt(QualityInvalid, base, cellHere)

		pairs := MatchPairs([]SensorObservation{reading}, []SatelliteGrid{invalid},
			DefaultMaxTimeDiff, DefaultMaxDistanceKm)

		assert.Empty(t, pairs)
	})

	t.Run("outside time window", func(t *testing.T) {
		late := gridAt(QualityGood, base.Add(2*time.Hour), cellHere)

		pairs := MatchPairs([]SensorObservation{reading}, []SatelliteGrid{late},
			DefaultMaxTimeDiff, DefaultMaxDistanceKm)

		assert.Empty(t, pairs)
	})

	t.Run("no cell within distance", func(t *testing.T) {
		distant := gridAt(QualityGood, base, GridCell{Lat: 12.0, Lon: 108.0, Value: 45.0})

		pairs := MatchPairs([]SensorObservation{reading}, []SatelliteGrid{distant},
			DefaultMaxTimeDiff, DefaultMaxDistanceKm)

		assert.Empty(t, pairs)
	})

	t.Run("at most one pair per reading", func(t *testing.T) {
		grids := []SatelliteGrid{
			gridAt(QualityGood, base.Add(5*time.Minute), cellHere),
			gridAt(QualityGood, base.Add(15*time.Minute), cellHere),
			gridAt(QualityGood, base.Add(25*time.Minute), cellHere),
		}

		pairs := MatchPairs([]SensorObservation{reading}, grids,
			DefaultMaxTimeDiff, DefaultMaxDistanceKm)

		assert.Len(t, pairs, 1)
	})

	t.Run("empty inputs", func(t *testing.T) {
		assert.Empty(t, MatchPairs(nil, nil, DefaultMaxTimeDiff, DefaultMaxDistanceKm))
	})
}
