// Command genmock generates synthetic multi-source air-quality fixtures:
// sensor readings, satellite grids, bulk-import records, and the fused result
// the engine produces from them. It runs the actual domain fusion so fixture
// output always matches engine behavior.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -sensors 25 -seed 42
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/Tuanph1970/air-quality-fusion-engine/internal/domain"
)

var (
	windowStart = time.Date(2024, time.June, 1, 10, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "data/mock", "output directory for fixtures")
	sensorCount := flag.Int("sensors", 25, "number of synthetic sensors")
	seed := flag.Int64("seed", 42, "PRNG seed for reproducible fixtures")
	flag.Parse()

	bbox, err := domain.NewBoundingBox(11.2, 10.3, 107.0, 106.2)
	if err != nil {
		return err
	}

	// Fixed clock for reproducible IDs-adjacent timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2024, time.June, 1, 12, 30, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	rng := rand.New(rand.NewSource(*seed))

	readings := genReadings(rng, bbox, *sensorCount)
	grid := genGrid(rng, bbox)
	imports := genImports(rng, readings)

	result := domain.Fuse([]domain.SatelliteGrid{grid}, readings, imports,
		bbox, windowStart, windowEnd, "pm25")

	fixtures := map[string]any{
		"sensor_readings.json":  readings,
		"satellite_grid.json":   grid,
		"import_records.json":   imports,
		"fused_result.json":     result,
		"validation_input.json": genValidationInput(readings, grid),
	}
	for name, v := range fixtures {
		path := filepath.Join(*outDir, name)
		if err := writeJSON(path, v); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
		log.Printf("wrote %s", path)
	}

	log.Printf("fused %d points from %d readings, %d cells, %d imports (avg confidence %.3f)",
		len(result.Points), len(readings), len(grid.Cells), len(imports), result.AverageConfidence)
	return nil
}

func genReadings(rng *rand.Rand, bbox domain.BoundingBox, count int) []domain.SensorObservation {
	readings := make([]domain.SensorObservation, 0, count)
	for i := 0; i < count; i++ {
		readings = append(readings, domain.SensorObservation{
			SensorID:  fmt.Sprintf("sensor-%03d", i+1),
			Lat:       randInRange(rng, bbox.South, bbox.North),
			Lon:       randInRange(rng, bbox.West, bbox.East),
			Value:     20 + rng.Float64()*60, // plausible urban pm2.5 range
			Pollutant: "pm25",
			Timestamp: windowStart.Add(time.Duration(rng.Intn(120)) * time.Minute),
		})
	}
	return readings
}

func genGrid(rng *rand.Rand, bbox domain.BoundingBox) domain.SatelliteGrid {
	var cells []domain.GridCell
	for lat := bbox.South; lat <= bbox.North; lat += 0.1 {
		for lon := bbox.West; lon <= bbox.East; lon += 0.1 {
			cells = append(cells, domain.GridCell{
				Lat:         lat,
				Lon:         lon,
				Value:       25 + rng.Float64()*50,
				Uncertainty: rng.Float64() * 5,
			})
		}
	}
	return domain.SatelliteGrid{
		ID:              uuid.New(),
		Product:         domain.ProductCamsPM25,
		Pollutant:       "pm25",
		ObservationTime: windowStart.Add(30 * time.Minute),
		FetchTime:       windowEnd,
		BBox:            bbox,
		Quality:         domain.QualityGood,
		Cells:           cells,
	}
}

func genImports(rng *rand.Rand, readings []domain.SensorObservation) []domain.ImportedObservation {
	// Every third sensor location also appears in the bulk import, slightly
	// offset in value, so fixtures exercise multi-source agreement.
	var imports []domain.ImportedObservation
	for i, r := range readings {
		if i%3 != 0 {
			continue
		}
		imports = append(imports, domain.ImportedObservation{
			Lat:       r.Lat,
			Lon:       r.Lon,
			Value:     r.Value * (0.9 + rng.Float64()*0.2),
			Pollutant: r.Pollutant,
			Timestamp: r.Timestamp,
		})
	}
	return imports
}

// genValidationInput pairs each reading with its reference value and expected
// deviation, for consumers asserting cross-validation behavior.
func genValidationInput(readings []domain.SensorObservation, grid domain.SatelliteGrid) []domain.ValidationResult {
	return domain.ValidateReadings(readings, []domain.SatelliteGrid{grid},
		"pm25", domain.DefaultDeviationThreshold)
}

func randInRange(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
