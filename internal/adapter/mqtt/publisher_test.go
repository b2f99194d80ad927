package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Tuanph1970/air-quality-fusion-engine/internal/domain"
)

func TestEventTopic(t *testing.T) {
	alert := domain.CrossValidationAlert{SensorID: "s-42"}
	assert.Equal(t, "airquality/events/validation.alert/s-42",
		eventTopic("airquality/events", alert))

	global := domain.CalibrationUpdated{}
	assert.Equal(t, "aq/calibration.updated/global", eventTopic("aq", global))
}
