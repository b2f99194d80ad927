package kafka

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tuanph1970/air-quality-fusion-engine/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	fusionID := uuid.New()
	event := domain.DataFusionCompleted{
		EventID:           uuid.New(),
		At:                now,
		FusionID:          fusionID,
		SourcesUsed:       []string{domain.SourceSensor, domain.SourceSatellite},
		LocationCount:     12,
		AverageConfidence: 0.82,
	}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte(fusionID.String()), msg.Key)
	assert.Contains(t, string(msg.Value), `"location_count":12`)
	assert.Contains(t, string(msg.Value), `"average_confidence":0.82`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("fusion.completed"), msg.Headers[0].Value)
	assert.Equal(t, "occurred_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestSerializeToMessage_GlobalCalibrationKey(t *testing.T) {
	event := domain.CalibrationUpdated{
		EventID:      uuid.New(),
		At:           time.Now().UTC(),
		ModelVersion: "v202406011230",
	}

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("global"), msg.Key)
	assert.Contains(t, string(msg.Value), `"model_version":"v202406011230"`)
}
