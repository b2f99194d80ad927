package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Tuanph1970/air-quality-fusion-engine/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Event transport. EventSink selects "kafka", "mqtt", or "none".
	EventSink        string
	KafkaBrokers     []string
	KafkaEventsTopic string
	MQTTBrokerURL    string
	MQTTClientID     string
	MQTTTopicPrefix  string
	MQTTQoS          byte

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Storage. An empty DATABASE_URL disables persistence.
	DatabaseURL string

	// Sensor network API.
	SensorAPIBaseURL string
	SensorAPIToken   string

	// Fusion settings.
	FetchTimeout       time.Duration
	FusionInterval     time.Duration
	FusionWindow       time.Duration
	DeviationThreshold float64
	Pollutant          string
	SatelliteProducts  []string
	Region             domain.BoundingBox
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first when
// present.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	fusionInterval, err := parseDuration("FUSION_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	fusionWindow, err := parseDuration("FUSION_WINDOW", "1h")
	if err != nil {
		return nil, err
	}
	deviation, err := parseFloat("DEVIATION_THRESHOLD", "50")
	if err != nil {
		return nil, err
	}
	region, err := parseRegion()
	if err != nil {
		return nil, err
	}

	mqttQoS, err := parseQoS()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		EventSink:        envOrDefault("EVENT_SINK", "kafka"),
		KafkaBrokers:     splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaEventsTopic: envOrDefault("KAFKA_EVENTS_TOPIC", "air-quality-events"),
		MQTTBrokerURL:    envOrDefault("MQTT_BROKER_URL", "tcp://localhost:1883"),
		MQTTClientID:     envOrDefault("MQTT_CLIENT_ID", "aq-fusion-engine"),
		MQTTTopicPrefix:  envOrDefault("MQTT_TOPIC_PREFIX", "airquality/events"),
		MQTTQoS:          mqttQoS,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabaseURL: os.Getenv("DATABASE_URL"),

		SensorAPIBaseURL: envOrDefault("SENSOR_API_BASE_URL", "http://localhost:9000"),
		SensorAPIToken:   os.Getenv("SENSOR_API_TOKEN"),

		FetchTimeout:       fetchTimeout,
		FusionInterval:     fusionInterval,
		FusionWindow:       fusionWindow,
		DeviationThreshold: deviation,
		Pollutant:          envOrDefault("POLLUTANT", "pm25"),
		SatelliteProducts:  splitList(envOrDefault("SATELLITE_PRODUCTS", domain.ProductCamsPM25)),
		Region:             region,
	}

	switch cfg.EventSink {
	case "kafka":
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when EVENT_SINK is kafka")
		}
		if cfg.KafkaEventsTopic == "" {
			return nil, errors.New("KAFKA_EVENTS_TOPIC is required when EVENT_SINK is kafka")
		}
	case "mqtt":
		if cfg.MQTTBrokerURL == "" {
			return nil, errors.New("MQTT_BROKER_URL is required when EVENT_SINK is mqtt")
		}
	case "none":
	default:
		return nil, fmt.Errorf("EVENT_SINK must be kafka, mqtt, or none, got %q", cfg.EventSink)
	}

	if cfg.SensorAPIBaseURL == "" {
		return nil, errors.New("SENSOR_API_BASE_URL is required")
	}
	if err := domain.ValidatePollutant(cfg.Pollutant); err != nil {
		return nil, fmt.Errorf("POLLUTANT: %w", err)
	}
	if cfg.DeviationThreshold <= 0 {
		return nil, errors.New("DEVIATION_THRESHOLD must be positive")
	}

	return cfg, nil
}

// parseRegion builds the fusion bounding box from REGION_NORTH / REGION_SOUTH /
// REGION_EAST / REGION_WEST. Defaults cover the Ho Chi Minh City area.
func parseRegion() (domain.BoundingBox, error) {
	north, err := parseFloat("REGION_NORTH", "11.2")
	if err != nil {
		return domain.BoundingBox{}, err
	}
	south, err := parseFloat("REGION_SOUTH", "10.3")
	if err != nil {
		return domain.BoundingBox{}, err
	}
	east, err := parseFloat("REGION_EAST", "107.0")
	if err != nil {
		return domain.BoundingBox{}, err
	}
	west, err := parseFloat("REGION_WEST", "106.2")
	if err != nil {
		return domain.BoundingBox{}, err
	}

	box, err := domain.NewBoundingBox(north, south, east, west)
	if err != nil {
		return domain.BoundingBox{}, fmt.Errorf("REGION_NORTH/SOUTH/EAST/WEST: %w", err)
	}
	return box, nil
}

func parseQoS() (byte, error) {
	s := envOrDefault("MQTT_QOS", "1")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 2 {
		return 0, fmt.Errorf("MQTT_QOS must be 0, 1, or 2, got %q", s)
	}
	return byte(n), nil
}

func parseDuration(name, fallback string) (time.Duration, error) {
	s := envOrDefault(name, fallback)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return d, nil
}

func parseFloat(name, fallback string) (float64, error) {
	s := envOrDefault(name, fallback)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, s)
	}
	return f, nil
}

func envOrDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

// splitList parses a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
