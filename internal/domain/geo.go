package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// kmPerDegree approximates the ground distance of one degree of latitude.
// Radius thresholds are converted to degree space with this factor before
// comparison against Euclidean degree distances.
const kmPerDegree = 111.0

// coordRound is the coordinate deduplication precision: 4 decimal degrees,
// roughly 11 m on the ground.
const coordRound = 1e4

// QualityFlag tags the reliability of a satellite grid.
type QualityFlag string

const (
	QualityGood    QualityFlag = "good"
	QualityMedium  QualityFlag = "medium"
	QualityLow     QualityFlag = "low"
	QualityInvalid QualityFlag = "invalid"
)

// Upstream satellite products a grid may come from.
const (
	ProductModisTerra   = "modis_terra"
	ProductModisAqua    = "modis_aqua"
	ProductTropomiNO2   = "tropomi_no2"
	ProductTropomiSO2   = "tropomi_so2"
	ProductTropomiO3    = "tropomi_o3"
	ProductTropomiCO    = "tropomi_co"
	ProductCamsPM25     = "cams_pm25"
	ProductCamsPM10     = "cams_pm10"
	ProductCamsForecast = "cams_forecast"
)

// BoundingBox is an immutable geographic rectangle in degrees.
// Invariant: South <= North, latitudes in [-90,90], longitudes in [-180,180].
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// NewBoundingBox validates and constructs a BoundingBox.
func NewBoundingBox(north, south, east, west float64) (BoundingBox, error) {
	if south > north {
		return BoundingBox{}, fmt.Errorf("%w: south %.4f exceeds north %.4f", ErrInvalidGeometry, south, north)
	}
	if north < -90 || north > 90 || south < -90 || south > 90 {
		return BoundingBox{}, fmt.Errorf("%w: latitude out of [-90,90]", ErrInvalidGeometry)
	}
	if east < -180 || east > 180 || west < -180 || west > 180 {
		return BoundingBox{}, fmt.Errorf("%w: longitude out of [-180,180]", ErrInvalidGeometry)
	}
	return BoundingBox{North: north, South: south, East: east, West: west}, nil
}

// Contains reports whether the point lies inside the box, bounds inclusive.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return b.South <= lat && lat <= b.North && b.West <= lon && lon <= b.East
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() (lat, lon float64) {
	return (b.North + b.South) / 2, (b.East + b.West) / 2
}

// GridCell is a single satellite observation at a fixed location.
type GridCell struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Value       float64 `json:"value"`
	Uncertainty float64 `json:"uncertainty,omitempty"`
}

// SatelliteGrid is one satellite product observation: a set of grid cells
// covering a bounding box at a single observation time, with a grid-level
// quality flag.
type SatelliteGrid struct {
	ID              uuid.UUID   `json:"id"`
	Product         string      `json:"product"`
	Pollutant       string      `json:"pollutant"`
	ObservationTime time.Time   `json:"observation_time"`
	FetchTime       time.Time   `json:"fetch_time"`
	BBox            BoundingBox `json:"bbox"`
	Cells           []GridCell  `json:"cells"`
	Quality         QualityFlag `json:"quality"`
}

// Valid reports whether the grid may participate in computation.
func (g SatelliteGrid) Valid() bool {
	return g.Quality != QualityInvalid
}

// ValueAt returns the value of the cell nearest to the location, along with
// the degree distance to that cell. ok is false for an empty grid or when the
// nearest cell lies farther than maxDistanceKm (pass a non-positive
// maxDistanceKm to disable the radius check).
func (g SatelliteGrid) ValueAt(lat, lon, maxDistanceKm float64) (value float64, ok bool) {
	best := -1
	bestDist := math.Inf(1)
	for i, c := range g.Cells {
		d := degreeDistance(c.Lat, c.Lon, lat, lon)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	if maxDistanceKm > 0 && bestDist > maxDistanceKm/kmPerDegree {
		return 0, false
	}
	return g.Cells[best].Value, true
}

// AverageValue returns the mean cell value, 0 for an empty grid.
func (g SatelliteGrid) AverageValue() float64 {
	if len(g.Cells) == 0 {
		return 0
	}
	var sum float64
	for _, c := range g.Cells {
		sum += c.Value
	}
	return sum / float64(len(g.Cells))
}

// degreeDistance is the Euclidean distance between two points in degree space.
func degreeDistance(lat1, lon1, lat2, lon2 float64) float64 {
	return math.Hypot(lat1-lat2, lon1-lon2)
}

// roundCoord rounds a coordinate to the deduplication precision.
func roundCoord(v float64) float64 {
	return math.Round(v*coordRound) / coordRound
}
