package sensorapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Tuanph1970/air-quality-fusion-engine/internal/config"
	"github.com/Tuanph1970/air-quality-fusion-engine/internal/domain"
)

// Client reads ground sensor readings from the sensor network HTTP API.
// It implements engine.SensorSource.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a sensor API client. The timeout bounds each request.
func NewClient(cfg *config.Config, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.SensorAPIBaseURL, "/"),
		token:   cfg.SensorAPIToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// ReadingsByTimeRange fetches all readings observed in [start, end). Records
// the API returns without coordinates or a value are skipped.
func (c *Client) ReadingsByTimeRange(ctx context.Context, start, end time.Time) ([]domain.SensorObservation, error) {
	params := url.Values{
		"start": {start.UTC().Format(time.RFC3339)},
		"end":   {end.UTC().Format(time.RFC3339)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/readings?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sensor api request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("sensor api error: status %d: %s", resp.StatusCode, body)
	}

	var payload readingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	readings := make([]domain.SensorObservation, 0, len(payload.Readings))
	for _, r := range payload.Readings {
		obs, ok := r.toObservation()
		if !ok {
			c.logger.Debug("skipping incomplete reading", "sensor_id", r.SensorID)
			continue
		}
		readings = append(readings, obs)
	}
	return readings, nil
}

// Sensor API response types. Older deployments report "latitude"/"longitude"
// and a pollutant-named field instead of "lat"/"lon"/"value"; both shapes are
// accepted.

type readingsResponse struct {
	Readings []reading `json:"readings"`
}

type reading struct {
	SensorID  string    `json:"sensor_id"`
	Lat       *float64  `json:"lat"`
	Lon       *float64  `json:"lon"`
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Value     *float64  `json:"value"`
	PM25      *float64  `json:"pm25"`
	Pollutant string    `json:"pollutant"`
	Timestamp time.Time `json:"timestamp"`
}

func (r reading) toObservation() (domain.SensorObservation, bool) {
	lat := firstOf(r.Lat, r.Latitude)
	lon := firstOf(r.Lon, r.Longitude)
	value := firstOf(r.Value, r.PM25)
	if lat == nil || lon == nil || value == nil {
		return domain.SensorObservation{}, false
	}
	return domain.SensorObservation{
		SensorID:  r.SensorID,
		Lat:       *lat,
		Lon:       *lon,
		Value:     *value,
		Pollutant: r.Pollutant,
		Timestamp: r.Timestamp,
	}, true
}

func firstOf(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
