package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event is a domain event ready for publication. Events are plain values
// returned to the caller; entities never accumulate them, so ownership stays
// with the call site.
type Event interface {
	// EventType is the routing type, e.g. "fusion.completed".
	EventType() string
	// EventKey is the partition/ordering key for the transport.
	EventKey() string
	// OccurredAt is when the event was created.
	OccurredAt() time.Time
}

// DataFusionCompleted announces a finished fusion run.
type DataFusionCompleted struct {
	EventID           uuid.UUID `json:"event_id"`
	At                time.Time `json:"occurred_at"`
	FusionID          uuid.UUID `json:"fusion_id"`
	SourcesUsed       []string  `json:"sources_used"`
	LocationCount     int       `json:"location_count"`
	TimeRangeStart    time.Time `json:"time_range_start"`
	TimeRangeEnd      time.Time `json:"time_range_end"`
	AverageConfidence float64   `json:"average_confidence"`
}

// NewDataFusionCompleted builds the completion event for a fusion result.
func NewDataFusionCompleted(r FusedResult) DataFusionCompleted {
	return DataFusionCompleted{
		EventID:           uuid.New(),
		At:                clock.Now().UTC(),
		FusionID:          r.ID,
		SourcesUsed:       r.SourcesUsed,
		LocationCount:     len(r.Points),
		TimeRangeStart:    r.TimeRangeStart,
		TimeRangeEnd:      r.TimeRangeEnd,
		AverageConfidence: r.AverageConfidence,
	}
}

func (e DataFusionCompleted) EventType() string     { return "fusion.completed" }
func (e DataFusionCompleted) EventKey() string      { return e.FusionID.String() }
func (e DataFusionCompleted) OccurredAt() time.Time { return e.At }

// CalibrationUpdated announces a newly fitted calibration model.
type CalibrationUpdated struct {
	EventID         uuid.UUID `json:"event_id"`
	At              time.Time `json:"occurred_at"`
	SensorID        string    `json:"sensor_id,omitempty"` // empty for a global model
	ModelVersion    string    `json:"model_version"`
	RSquared        float64   `json:"r_squared"`
	RMSE            float64   `json:"rmse"`
	TrainingSamples int       `json:"training_samples"`
}

// NewCalibrationUpdated builds the update event for a calibration model.
func NewCalibrationUpdated(m CalibrationModel) CalibrationUpdated {
	return CalibrationUpdated{
		EventID:         uuid.New(),
		At:              clock.Now().UTC(),
		SensorID:        m.SensorID,
		ModelVersion:    m.Version,
		RSquared:        m.RSquared,
		RMSE:            m.RMSE,
		TrainingSamples: m.TrainingSamples,
	}
}

func (e CalibrationUpdated) EventType() string { return "calibration.updated" }

func (e CalibrationUpdated) EventKey() string {
	if e.SensorID == "" {
		return "global"
	}
	return e.SensorID
}

func (e CalibrationUpdated) OccurredAt() time.Time { return e.At }

// CrossValidationAlert flags one anomalous sensor reading. One alert is
// published per anomaly.
type CrossValidationAlert struct {
	EventID          uuid.UUID `json:"event_id"`
	At               time.Time `json:"occurred_at"`
	SensorID         string    `json:"sensor_id"`
	SensorValue      float64   `json:"sensor_value"`
	ReferenceValue   float64   `json:"reference_value"`
	DeviationPercent float64   `json:"deviation_percent"`
	Pollutant        string    `json:"pollutant"`
}

// NewCrossValidationAlert builds the alert event for an anomalous result.
func NewCrossValidationAlert(v ValidationResult) CrossValidationAlert {
	return CrossValidationAlert{
		EventID:          uuid.New(),
		At:               clock.Now().UTC(),
		SensorID:         v.SensorID,
		SensorValue:      v.SensorValue,
		ReferenceValue:   v.ReferenceValue,
		DeviationPercent: v.DeviationPercent,
		Pollutant:        v.Pollutant,
	}
}

func (e CrossValidationAlert) EventType() string     { return "validation.alert" }
func (e CrossValidationAlert) EventKey() string      { return e.SensorID }
func (e CrossValidationAlert) OccurredAt() time.Time { return e.At }
