package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tuanph1970/air-quality-fusion-engine/internal/domain"
	"github.com/Tuanph1970/air-quality-fusion-engine/internal/observability"
)

// DefaultFetchTimeout bounds each upstream fetch during a fusion run.
const DefaultFetchTimeout = 15 * time.Second

// SatelliteSource provides reference grids for one satellite product over a
// time range and region.
type SatelliteSource interface {
	GridsByTimeRange(ctx context.Context, product string, start, end time.Time, bbox domain.BoundingBox) ([]domain.SatelliteGrid, error)
}

// SensorSource provides ground sensor readings over a time range.
type SensorSource interface {
	ReadingsByTimeRange(ctx context.Context, start, end time.Time) ([]domain.SensorObservation, error)
}

// BulkImportSource provides bulk-imported observations over a time range.
type BulkImportSource interface {
	RecordsByTimeRange(ctx context.Context, start, end time.Time) ([]domain.ImportedObservation, error)
}

// EventSink publishes domain events to the outside world.
type EventSink interface {
	Publish(ctx context.Context, event domain.Event) error
}

// ResultStore persists fused results. Both methods are optional for the
// engine: a nil store means fusion results live only in the returned value.
type ResultStore interface {
	SaveFusedResult(ctx context.Context, result domain.FusedResult) error
	LatestFusedResult(ctx context.Context, pollutant string) (*domain.FusedResult, error)
}

// Engine orchestrates fusion, calibration, and cross-validation over the
// configured sources. Any source may be nil; a nil source simply contributes
// nothing, the same as a source returning no data.
type Engine struct {
	satellite SatelliteSource
	sensors   SensorSource
	imports   BulkImportSource
	sink      EventSink
	store     ResultStore

	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool

	bbox         domain.BoundingBox
	pollutant    string
	products     []string
	fetchTimeout time.Duration
	deviationPct float64
}

// Options configures an Engine beyond its ports.
type Options struct {
	BBox               domain.BoundingBox
	Pollutant          string
	SatelliteProducts  []string
	FetchTimeout       time.Duration // defaults to DefaultFetchTimeout
	DeviationThreshold float64       // defaults to domain.DefaultDeviationThreshold
}

// New creates an Engine with the given ports and observability.
func New(satellite SatelliteSource, sensors SensorSource, imports BulkImportSource,
	sink EventSink, store ResultStore,
	logger *slog.Logger, metrics *observability.Metrics, opts Options) *Engine {

	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.DeviationThreshold <= 0 {
		opts.DeviationThreshold = domain.DefaultDeviationThreshold
	}
	return &Engine{
		satellite:    satellite,
		sensors:      sensors,
		imports:      imports,
		sink:         sink,
		store:        store,
		logger:       logger,
		metrics:      metrics,
		bbox:         opts.BBox,
		pollutant:    opts.Pollutant,
		products:     opts.SatelliteProducts,
		fetchTimeout: opts.FetchTimeout,
		deviationPct: opts.DeviationThreshold,
	}
}

// CheckReadiness returns nil once the engine has completed at least one
// fusion run, or an error describing why the service is not yet ready.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.ready.Load() {
		return errors.New("engine has not completed a fusion run yet")
	}
	return nil
}

// ErrAllSourcesFailed marks a fusion run where every configured source
// failed to fetch. Individual failures only degrade that source.
var ErrAllSourcesFailed = errors.New("all configured sources failed")

// RunFusion fetches all sources concurrently, fuses them over [start, end),
// persists the result if a store is configured, and publishes
// DataFusionCompleted. A failed or slow source degrades to absent; the run
// itself fails only when every configured source failed. Persist and publish
// failures are logged and counted but never invalidate the returned result.
func (e *Engine) RunFusion(ctx context.Context, start, end time.Time) (domain.FusedResult, error) {
	began := time.Now()

	var (
		wg       sync.WaitGroup
		grids    []domain.SatelliteGrid
		readings []domain.SensorObservation
		imports  []domain.ImportedObservation
		gridsErr error
		readErr  error
		impErr   error
	)

	configured := 0
	if e.satellite != nil {
		configured++
		wg.Add(1)
		go func() {
			defer wg.Done()
			grids, gridsErr = e.fetchGrids(ctx, start, end)
		}()
	}
	if e.sensors != nil {
		configured++
		wg.Add(1)
		go func() {
			defer wg.Done()
			readings, readErr = e.fetchReadings(ctx, start, end)
		}()
	}
	if e.imports != nil {
		configured++
		wg.Add(1)
		go func() {
			defer wg.Done()
			imports, impErr = e.fetchImports(ctx, start, end)
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		e.metrics.FusionRuns.WithLabelValues("error").Inc()
		return domain.FusedResult{}, fmt.Errorf("fusion cancelled: %w", ctx.Err())
	}

	failed := 0
	for _, err := range []error{gridsErr, readErr, impErr} {
		if err != nil {
			failed++
		}
	}
	if configured > 0 && failed == configured {
		e.metrics.FusionRuns.WithLabelValues("error").Inc()
		return domain.FusedResult{}, ErrAllSourcesFailed
	}

	result := domain.Fuse(grids, readings, imports, e.bbox, start, end, e.pollutant)

	if e.store != nil {
		if err := e.store.SaveFusedResult(ctx, result); err != nil {
			e.logger.Error("persist fused result failed", "error", err, "fusion_id", result.ID)
		}
	}
	e.publish(ctx, domain.NewDataFusionCompleted(result))

	e.metrics.FusionRuns.WithLabelValues("success").Inc()
	e.metrics.FusionPoints.Observe(float64(len(result.Points)))
	e.metrics.FusionConfidence.Observe(result.AverageConfidence)
	e.metrics.FusionDuration.Observe(time.Since(began).Seconds())
	e.ready.Store(true)

	e.logger.Info("fusion run complete",
		"fusion_id", result.ID,
		"points", len(result.Points),
		"sources", result.SourcesUsed,
		"avg_confidence", result.AverageConfidence,
	)
	return result, nil
}

// RunCalibration fetches readings and reference grids concurrently, matches
// pairs, fits a model, and publishes CalibrationUpdated. An empty sensorID
// fits a global model over all readings. Fewer than two matched pairs returns
// domain.InsufficientDataError.
func (e *Engine) RunCalibration(ctx context.Context, sensorID string, start, end time.Time) (domain.CalibrationModel, error) {
	var (
		wg       sync.WaitGroup
		grids    []domain.SatelliteGrid
		readings []domain.SensorObservation
	)

	// Fetch failures degrade to empty data; the pair-matching minimum
	// decides whether that is fatal.
	wg.Add(2)
	go func() {
		defer wg.Done()
		grids, _ = e.fetchGrids(ctx, start, end)
	}()
	go func() {
		defer wg.Done()
		readings, _ = e.fetchReadings(ctx, start, end)
	}()
	wg.Wait()

	if ctx.Err() != nil {
		e.metrics.CalibrationRuns.WithLabelValues("error").Inc()
		return domain.CalibrationModel{}, fmt.Errorf("calibration cancelled: %w", ctx.Err())
	}

	if sensorID != "" {
		readings = filterBySensor(readings, sensorID)
	}

	pairs := domain.MatchPairs(readings, grids, domain.DefaultMaxTimeDiff, domain.DefaultMaxDistanceKm)
	model, err := domain.ComputeCalibration(pairs, sensorID, "")
	if err != nil {
		var insufficient *domain.InsufficientDataError
		if errors.As(err, &insufficient) {
			e.metrics.CalibrationRuns.WithLabelValues("insufficient_data").Inc()
			e.logger.Warn("calibration skipped",
				"sensor_id", sensorID, "pairs", insufficient.Pairs, "min", insufficient.Min)
		} else {
			e.metrics.CalibrationRuns.WithLabelValues("error").Inc()
		}
		return domain.CalibrationModel{}, err
	}

	e.publish(ctx, domain.NewCalibrationUpdated(model))
	e.metrics.CalibrationRuns.WithLabelValues("success").Inc()

	e.logger.Info("calibration complete",
		"sensor_id", sensorID,
		"model_version", model.Version,
		"slope", model.Slope,
		"intercept", model.Intercept,
		"r_squared", model.RSquared,
		"samples", model.TrainingSamples,
	)
	return model, nil
}

// RunCrossValidation fetches readings and reference grids concurrently,
// compares every reading against its reference, and publishes one
// CrossValidationAlert per anomaly. All comparisons are returned.
func (e *Engine) RunCrossValidation(ctx context.Context, start, end time.Time) ([]domain.ValidationResult, error) {
	var (
		wg       sync.WaitGroup
		grids    []domain.SatelliteGrid
		readings []domain.SensorObservation
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		grids, _ = e.fetchGrids(ctx, start, end)
	}()
	go func() {
		defer wg.Done()
		readings, _ = e.fetchReadings(ctx, start, end)
	}()
	wg.Wait()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("cross-validation cancelled: %w", ctx.Err())
	}

	results := domain.ValidateReadings(readings, grids, e.pollutant, e.deviationPct)

	anomalies := 0
	for _, r := range results {
		if !r.IsAnomalous {
			e.metrics.ValidationResults.WithLabelValues("ok").Inc()
			continue
		}
		anomalies++
		e.metrics.ValidationResults.WithLabelValues("anomalous").Inc()
		e.logger.Warn("sensor deviates from reference",
			"sensor_id", r.SensorID,
			"sensor_value", r.SensorValue,
			"reference_value", r.ReferenceValue,
			"deviation_percent", r.DeviationPercent,
		)
		e.publish(ctx, domain.NewCrossValidationAlert(r))
	}

	e.logger.Info("cross-validation complete",
		"compared", len(results), "anomalies", anomalies)
	return results, nil
}

// LatestFusion returns the most recent persisted result for the engine's
// pollutant, or nil when no store is configured or nothing is stored yet.
func (e *Engine) LatestFusion(ctx context.Context) (*domain.FusedResult, error) {
	if e.store == nil {
		return nil, nil
	}
	return e.store.LatestFusedResult(ctx, e.pollutant)
}

// fetchGrids fetches every configured satellite product within the fetch
// timeout. A product that fails is logged and skipped; the error is non-nil
// only when every product failed.
func (e *Engine) fetchGrids(ctx context.Context, start, end time.Time) ([]domain.SatelliteGrid, error) {
	if e.satellite == nil {
		return nil, nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	began := time.Now()
	var all []domain.SatelliteGrid
	var lastErr error
	failed := 0
	for _, product := range e.products {
		grids, err := e.satellite.GridsByTimeRange(fetchCtx, product, start, end, e.bbox)
		if err != nil {
			failed++
			lastErr = err
			e.metrics.SourceFetchErrors.WithLabelValues(domain.SourceSatellite).Inc()
			e.logger.Warn("satellite fetch failed, source degraded",
				"product", product, "error", err)
			continue
		}
		all = append(all, grids...)
	}
	e.metrics.SourceFetchDuration.WithLabelValues(domain.SourceSatellite).Observe(time.Since(began).Seconds())
	if len(e.products) > 0 && failed == len(e.products) {
		return nil, fmt.Errorf("satellite fetch: %w", lastErr)
	}
	return all, nil
}

func (e *Engine) fetchReadings(ctx context.Context, start, end time.Time) ([]domain.SensorObservation, error) {
	if e.sensors == nil {
		return nil, nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	began := time.Now()
	readings, err := e.sensors.ReadingsByTimeRange(fetchCtx, start, end)
	e.metrics.SourceFetchDuration.WithLabelValues(domain.SourceSensor).Observe(time.Since(began).Seconds())
	if err != nil {
		e.metrics.SourceFetchErrors.WithLabelValues(domain.SourceSensor).Inc()
		e.logger.Warn("sensor fetch failed, source degraded", "error", err)
		return nil, fmt.Errorf("sensor fetch: %w", err)
	}
	return readings, nil
}

func (e *Engine) fetchImports(ctx context.Context, start, end time.Time) ([]domain.ImportedObservation, error) {
	if e.imports == nil {
		return nil, nil
	}
	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	began := time.Now()
	records, err := e.imports.RecordsByTimeRange(fetchCtx, start, end)
	e.metrics.SourceFetchDuration.WithLabelValues(domain.SourceImport).Observe(time.Since(began).Seconds())
	if err != nil {
		e.metrics.SourceFetchErrors.WithLabelValues(domain.SourceImport).Inc()
		e.logger.Warn("import fetch failed, source degraded", "error", err)
		return nil, fmt.Errorf("import fetch: %w", err)
	}
	return records, nil
}

// publish sends one event through the sink. A nil sink or a publish failure
// never fails the calling operation.
func (e *Engine) publish(ctx context.Context, event domain.Event) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Publish(ctx, event); err != nil {
		e.metrics.PublishErrors.WithLabelValues(event.EventType()).Inc()
		e.logger.Error("event publish failed",
			"event_type", event.EventType(), "key", event.EventKey(), "error", err)
		return
	}
	e.metrics.EventsPublished.WithLabelValues(event.EventType()).Inc()
}

func filterBySensor(readings []domain.SensorObservation, sensorID string) []domain.SensorObservation {
	out := readings[:0:0]
	for _, r := range readings {
		if r.SensorID == sensorID {
			out = append(out, r)
		}
	}
	return out
}
