package domain

import "time"

// Source provenance tags. These double as keys in FusedPoint.SourceValues and
// as entries in FusedResult.SourcesUsed.
const (
	SourceSensor    = "sensor"
	SourceSatellite = "satellite"
	SourceImport    = "excel" // bulk-imported historical records
)

// Observation is the shared capability of every point observation kind:
// a value at a location at a time.
type Observation interface {
	Coordinate() (lat, lon float64)
	ObservedValue() float64
	ObservedAt() time.Time
}

// SensorObservation is a single reading from a ground monitoring station.
type SensorObservation struct {
	SensorID  string    `json:"sensor_id"`
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Pollutant string    `json:"pollutant,omitempty"`
}

func (o SensorObservation) Coordinate() (float64, float64) { return o.Lat, o.Lon }
func (o SensorObservation) ObservedValue() float64         { return o.Value }
func (o SensorObservation) ObservedAt() time.Time          { return o.Timestamp }

// ImportedObservation is a single bulk-imported historical record. The file
// parsing that produces these lives upstream; by the time they reach the
// engine they are plain located values.
type ImportedObservation struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Pollutant string    `json:"pollutant,omitempty"`
}

func (o ImportedObservation) Coordinate() (float64, float64) { return o.Lat, o.Lon }
func (o ImportedObservation) ObservedValue() float64         { return o.Value }
func (o ImportedObservation) ObservedAt() time.Time          { return o.Timestamp }

// nearestValue returns the value of the observation nearest to (lat, lon)
// within maxDistanceKm. ok is false when the slice is empty or the nearest
// observation is out of range.
func nearestValue[T Observation](obs []T, lat, lon, maxDistanceKm float64) (value float64, ok bool) {
	best := -1
	bestDist := 0.0
	for i, o := range obs {
		oLat, oLon := o.Coordinate()
		d := degreeDistance(oLat, oLon, lat, lon)
		if best < 0 || d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 || bestDist > maxDistanceKm/kmPerDegree {
		return 0, false
	}
	return obs[best].ObservedValue(), true
}
