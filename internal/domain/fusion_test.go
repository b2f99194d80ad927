package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	fusionStart = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	fusionEnd   = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

func TestFuse_SensorOnly(t *testing.T) {
	bbox := mustBBox(t, 11.0, 10.0, 107.0, 106.0)
	sensors := []SensorObservation{
		{SensorID: "s-1", Lat: 10.5, Lon: 106.5, Value: 40.0, Timestamp: fusionStart},
	}

	result := Fuse(nil, sensors, nil, bbox, fusionStart, fusionEnd, "pm25")

	require.Len(t, result.Points, 1)
	p := result.Points[0]
	assert.Equal(t, 40.0, p.FusedValue)
	assert.Equal(t, []string{SourceSensor}, p.Sources)
	assert.Equal(t, map[string]float64{SourceSensor: 40.0}, p.SourceValues)
	// base 0.5/1.0 plus single-source bonus (1/3)*0.3.
	assert.InDelta(t, 0.6, p.Confidence, 1e-9)
	assert.Equal(t, []string{SourceSensor}, result.SourcesUsed)
	assert.InDelta(t, 0.6, result.AverageConfidence, 1e-9)
}

func TestFuse_SensorAndSatellite(t *testing.T) {
	bbox := mustBBox(t, 11.0, 10.0, 107.0, 106.0)
	sensors := []SensorObservation{
		{SensorID: "s-1", Lat: 10.5, Lon: 106.5, Value: 40.0, Timestamp: fusionStart},
	}
	grids := []SatelliteGrid{
		gridAt(QualityGood, fusionStart, GridCell{Lat: 10.5, Lon: 106.5, Value: 60.0}),
	}

	result := Fuse(grids, sensors, nil, bbox, fusionStart, fusionEnd, "pm25")

	require.Len(t, result.Points, 1)
	p := result.Points[0]
	assert.InDelta(t, (40.0*0.5+60.0*0.35)/0.85, p.FusedValue, 1e-9)
	assert.Equal(t, []string{SourceSensor, SourceSatellite}, p.Sources)
	// base 0.85 plus two-source bonus 0.2 caps at 1.0.
	assert.InDelta(t, 1.0, p.Confidence, 1e-9)
	assert.ElementsMatch(t, []string{SourceSensor, SourceSatellite}, result.SourcesUsed)
}

func TestFuse_AllThreeSources(t *testing.T) {
	bbox := mustBBox(t, 11.0, 10.0, 107.0, 106.0)
	sensors := []SensorObservation{
		{SensorID: "s-1", Lat: 10.5, Lon: 106.5, Value: 40.0, Timestamp: fusionStart},
	}
	grids := []SatelliteGrid{
		gridAt(QualityGood, fusionStart, GridCell{Lat: 10.5, Lon: 106.5, Value: 60.0}),
	}
	imports := []ImportedObservation{
		{Lat: 10.5, Lon: 106.5, Value: 50.0, Timestamp: fusionStart},
	}

	result := Fuse(grids, sensors, imports, bbox, fusionStart, fusionEnd, "pm25")

	require.Len(t, result.Points, 1)
	p := result.Points[0]
	want := (40.0*0.5 + 60.0*0.35 + 50.0*0.15) / 1.0
	assert.InDelta(t, want, p.FusedValue, 1e-9)
	assert.Equal(t, []string{SourceSensor, SourceSatellite, SourceImport}, p.Sources)
	assert.InDelta(t, 1.0, p.Confidence, 1e-9)
	assert.ElementsMatch(t, []string{SourceSensor, SourceSatellite, SourceImport}, result.SourcesUsed)
}

func TestFuse_EmptyInputs(t *testing.T) {
	bbox := mustBBox(t, 11.0, 10.0, 107.0, 106.0)

	result := Fuse(nil, nil, nil, bbox, fusionStart, fusionEnd, "pm25")

	assert.Empty(t, result.Points)
	assert.Zero(t, result.AverageConfidence)
	assert.Empty(t, result.SourcesUsed)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", result.ID.String())
}

func TestFuse_SkipsLocationsOutsideBBox(t *testing.T) {
	bbox := mustBBox(t, 11.0, 10.0, 107.0, 106.0)
	sensors := []SensorObservation{
		{SensorID: "in", Lat: 10.5, Lon: 106.5, Value: 40.0, Timestamp: fusionStart},
		{SensorID: "out", Lat: 20.0, Lon: 120.0, Value: 99.0, Timestamp: fusionStart},
	}

	result := Fuse(nil, sensors, nil, bbox, fusionStart, fusionEnd, "pm25")

	require.Len(t, result.Points, 1)
	assert.Equal(t, 40.0, result.Points[0].FusedValue)
}

func TestFuse_InvalidGridExcluded(t *testing.T) {
	bbox := mustBBox(t, 11.0, 10.0, 107.0, 106.0)
	grids := []SatelliteGrid{
		gridAt(QualityInvalid, fusionStart, GridCell{Lat: 10.5, Lon: 106.5, Value: 60.0}),
	}

	result := Fuse(grids, nil, nil, bbox, fusionStart, fusionEnd, "pm25")

	// The invalid grid still contributes its cell as a candidate location,
	// but produces no value there, so the location is omitted.
	assert.Empty(t, result.Points)
}

func TestFuse_SensorBeyondRadiusIsAbsent(t *testing.T) {
	bbox := mustBBox(t, 11.0, 10.0, 107.0, 106.0)
	grids := []SatelliteGrid{
		gridAt(QualityGood, fusionStart, GridCell{Lat: 10.2, Lon: 106.2, Value: 60.0}),
	}
	// ~0.28 degrees from the grid cell, far beyond the 5 km sensor radius.
	sensors := []SensorObservation{
		{SensorID: "far", Lat: 10.4, Lon: 106.4, Value: 40.0, Timestamp: fusionStart},
	}

	result := Fuse(grids, sensors, nil, bbox, fusionStart, fusionEnd, "pm25")

	require.Len(t, result.Points, 2)
	for _, p := range result.Points {
		if p.Lat == 10.2 {
			assert.Equal(t, []string{SourceSatellite}, p.Sources,
				"grid location fuses satellite only")
		}
	}
}

func TestFuse_DeduplicatesLocations(t *testing.T) {
	bbox := mustBBox(t, 11.0, 10.0, 107.0, 106.0)
	// Same location after 4-decimal rounding.
	sensors := []SensorObservation{
		{SensorID: "a", Lat: 10.50001, Lon: 106.50001, Value: 40.0, Timestamp: fusionStart},
		{SensorID: "b", Lat: 10.50004, Lon: 106.50004, Value: 44.0, Timestamp: fusionStart},
	}

	result := Fuse(nil, sensors, nil, bbox, fusionStart, fusionEnd, "pm25")

	assert.Len(t, result.Points, 1)
}

func TestFusedResult_PointNearest(t *testing.T) {
	result := FusedResult{Points: []FusedPoint{
		{Lat: 10.0, Lon: 106.0, FusedValue: 20},
		{Lat: 10.5, Lon: 106.5, FusedValue: 30},
	}}

	p, ok := result.PointNearest(10.45, 106.45)
	require.True(t, ok)
	assert.Equal(t, 30.0, p.FusedValue)

	_, ok = FusedResult{}.PointNearest(0, 0)
	assert.False(t, ok)
}

func TestFusedResult_JSONRoundTrip(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)))
	defer SetClock(nil)

	bbox := mustBBox(t, 11.0, 10.0, 107.0, 106.0)
	sensors := []SensorObservation{
		{SensorID: "s-1", Lat: 10.5, Lon: 106.5, Value: 40.0, Timestamp: fusionStart},
	}
	grids := []SatelliteGrid{
		gridAt(QualityGood, fusionStart, GridCell{Lat: 10.6, Lon: 106.6, Value: 60.0}),
	}

	original := Fuse(grids, sensors, nil, bbox, fusionStart, fusionEnd, "pm25")

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"data_point_count":2`)
	assert.Contains(t, string(data), `"sources_used"`)

	var decoded FusedResult
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, original.Pollutant, decoded.Pollutant)
	assert.Len(t, decoded.Points, len(original.Points))
	if diff := cmp.Diff(original, decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
