package domain

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
)

// Trust weights per source kind. Weights of absent sources are dropped and
// the blend divides by the sum of weights actually used, so a sensor-only
// point still fuses to the sensor value, not half of it.
var sourceWeights = map[string]float64{
	SourceSensor:    0.5,
	SourceSatellite: 0.35,
	SourceImport:    0.15,
}

// totalSourceWeight is the weight sum with every source present.
const totalSourceWeight = 0.5 + 0.35 + 0.15

// Matching radii for point sources. Satellite grids are regular, so the grid
// lookup is an exact nearest-cell read rather than a radius search.
const (
	sensorMatchRadiusKm = 5.0
	importMatchRadiusKm = 10.0
)

// sourceBonusWeight rewards multi-source agreement in the confidence score.
const sourceBonusWeight = 0.3

// FusedPoint is one fused estimate at one location.
type FusedPoint struct {
	Lat          float64            `json:"lat"`
	Lon          float64            `json:"lon"`
	FusedValue   float64            `json:"fused_value"`
	Confidence   float64            `json:"confidence"`
	Sources      []string           `json:"sources"`
	SourceValues map[string]float64 `json:"source_values"`
}

// FusedResult is the outcome of one fusion run. Immutable once produced.
type FusedResult struct {
	ID                uuid.UUID
	SourcesUsed       []string
	BBox              BoundingBox
	TimeRangeStart    time.Time
	TimeRangeEnd      time.Time
	Points            []FusedPoint
	AverageConfidence float64
	Pollutant         string
	CreatedAt         time.Time
}

// Fuse combines satellite grids, sensor readings, and bulk-imported records
// covering bbox and [start, end] into a single FusedResult.
//
// Empty input from all sources is not an error: the result simply has zero
// points and an average confidence of 0. Locations where no source produces
// a value are omitted, never fabricated.
func Fuse(grids []SatelliteGrid, sensors []SensorObservation, imports []ImportedObservation,
	bbox BoundingBox, start, end time.Time, pollutant string) FusedResult {

	var sourcesUsed []string
	if len(sensors) > 0 {
		sourcesUsed = append(sourcesUsed, SourceSensor)
	}
	if len(grids) > 0 {
		sourcesUsed = append(sourcesUsed, SourceSatellite)
	}
	if len(imports) > 0 {
		sourcesUsed = append(sourcesUsed, SourceImport)
	}

	points := make([]FusedPoint, 0, 64)
	for _, loc := range collectLocations(grids, sensors, imports) {
		if !bbox.Contains(loc.lat, loc.lon) {
			continue
		}

		values := make(map[string]float64, 3)
		weightSum := 0.0

		if v, ok := nearestValue(sensors, loc.lat, loc.lon, sensorMatchRadiusKm); ok {
			values[SourceSensor] = v
			weightSum += sourceWeights[SourceSensor]
		}
		if v, ok := satelliteValueAt(grids, loc.lat, loc.lon); ok {
			values[SourceSatellite] = v
			weightSum += sourceWeights[SourceSatellite]
		}
		if v, ok := nearestValue(imports, loc.lat, loc.lon, importMatchRadiusKm); ok {
			values[SourceImport] = v
			weightSum += sourceWeights[SourceImport]
		}

		if len(values) == 0 {
			continue
		}

		points = append(points, FusedPoint{
			Lat:          loc.lat,
			Lon:          loc.lon,
			FusedValue:   weightedAverage(values, weightSum),
			Confidence:   confidence(len(values), weightSum),
			Sources:      sortedSourceTags(values),
			SourceValues: values,
		})
	}

	return NewFusedResult(sourcesUsed, bbox, start, end, points, pollutant)
}

// NewFusedResult assembles a FusedResult, assigning its identity, creation
// time, and average confidence (0 with no points).
func NewFusedResult(sourcesUsed []string, bbox BoundingBox, start, end time.Time,
	points []FusedPoint, pollutant string) FusedResult {

	avg := 0.0
	if len(points) > 0 {
		for _, p := range points {
			avg += p.Confidence
		}
		avg /= float64(len(points))
	}

	return FusedResult{
		ID:                uuid.New(),
		SourcesUsed:       sourcesUsed,
		BBox:              bbox,
		TimeRangeStart:    start,
		TimeRangeEnd:      end,
		Points:            points,
		AverageConfidence: avg,
		Pollutant:         pollutant,
		CreatedAt:         clock.Now().UTC(),
	}
}

// PointNearest returns the fused point nearest to the location.
// ok is false for a result with no points.
func (r FusedResult) PointNearest(lat, lon float64) (FusedPoint, bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, p := range r.Points {
		d := degreeDistance(p.Lat, p.Lon, lat, lon)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 {
		return FusedPoint{}, false
	}
	return r.Points[best], true
}

// location is a deduplicated candidate coordinate.
type location struct {
	lat, lon float64
}

// collectLocations gathers the union of coordinates across all sources,
// deduplicated at 4-decimal precision, preserving first-seen order.
func collectLocations(grids []SatelliteGrid, sensors []SensorObservation, imports []ImportedObservation) []location {
	seen := make(map[location]struct{})
	var locations []location

	add := func(lat, lon float64) {
		loc := location{lat: roundCoord(lat), lon: roundCoord(lon)}
		if _, dup := seen[loc]; dup {
			return
		}
		seen[loc] = struct{}{}
		locations = append(locations, loc)
	}

	for _, g := range grids {
		for _, c := range g.Cells {
			add(c.Lat, c.Lon)
		}
	}
	for _, s := range sensors {
		add(s.Lat, s.Lon)
	}
	for _, r := range imports {
		add(r.Lat, r.Lon)
	}
	return locations
}

// satelliteValueAt returns the value at the location from the first valid
// grid that has cells. Grids flagged invalid never contribute.
func satelliteValueAt(grids []SatelliteGrid, lat, lon float64) (float64, bool) {
	for _, g := range grids {
		if !g.Valid() {
			continue
		}
		if v, ok := g.ValueAt(lat, lon, 0); ok {
			return v, true
		}
	}
	return 0, false
}

func weightedAverage(values map[string]float64, weightSum float64) float64 {
	if weightSum == 0 {
		return 0
	}
	var sum float64
	for source, v := range values {
		sum += v * sourceWeights[source]
	}
	return sum / weightSum
}

// confidence scores a fused point on trust-weight coverage plus a bonus for
// the number of agreeing sources, capped at 1.
func confidence(numSources int, weightSum float64) float64 {
	base := math.Min(weightSum/totalSourceWeight, 1)
	bonus := math.Min(float64(numSources)/3, 1) * sourceBonusWeight
	return math.Min(base+bonus, 1)
}

// sortedSourceTags lists the provenance tags present in values, in the fixed
// sensor, satellite, excel order.
func sortedSourceTags(values map[string]float64) []string {
	tags := make([]string, 0, len(values))
	for _, tag := range []string{SourceSensor, SourceSatellite, SourceImport} {
		if _, ok := values[tag]; ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

// fusedResultJSON is the persisted wire shape of a FusedResult.
type fusedResultJSON struct {
	ID                string       `json:"id"`
	SourcesUsed       []string     `json:"sources_used"`
	BBox              BoundingBox  `json:"bbox"`
	TimeRangeStart    time.Time    `json:"time_range_start"`
	TimeRangeEnd      time.Time    `json:"time_range_end"`
	DataPointCount    int          `json:"data_point_count"`
	AverageConfidence float64      `json:"average_confidence"`
	Pollutant         string       `json:"pollutant"`
	CreatedAt         time.Time    `json:"created_at"`
	DataPoints        []FusedPoint `json:"data_points"`
}

// MarshalJSON encodes the persisted shape, including the derived
// data_point_count field.
func (r FusedResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(fusedResultJSON{
		ID:                r.ID.String(),
		SourcesUsed:       r.SourcesUsed,
		BBox:              r.BBox,
		TimeRangeStart:    r.TimeRangeStart,
		TimeRangeEnd:      r.TimeRangeEnd,
		DataPointCount:    len(r.Points),
		AverageConfidence: r.AverageConfidence,
		Pollutant:         r.Pollutant,
		CreatedAt:         r.CreatedAt,
		DataPoints:        r.Points,
	})
}

// UnmarshalJSON decodes the persisted shape produced by MarshalJSON.
func (r *FusedResult) UnmarshalJSON(data []byte) error {
	var raw fusedResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := uuid.Parse(raw.ID)
	if err != nil {
		return err
	}
	*r = FusedResult{
		ID:                id,
		SourcesUsed:       raw.SourcesUsed,
		BBox:              raw.BBox,
		TimeRangeStart:    raw.TimeRangeStart,
		TimeRangeEnd:      raw.TimeRangeEnd,
		Points:            raw.DataPoints,
		AverageConfidence: raw.AverageConfidence,
		Pollutant:         raw.Pollutant,
		CreatedAt:         raw.CreatedAt,
	}
	return nil
}
