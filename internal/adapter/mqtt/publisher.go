package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Tuanph1970/air-quality-fusion-engine/internal/config"
	"github.com/Tuanph1970/air-quality-fusion-engine/internal/domain"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Publisher publishes domain events over MQTT, one subtopic per event type.
// It implements engine.EventSink.
type Publisher struct {
	client      pahomqtt.Client
	logger      *slog.Logger
	topicPrefix string
	qos         byte
}

// NewPublisher connects to the configured broker and returns a Publisher.
func NewPublisher(cfg *config.Config, logger *slog.Logger) (*Publisher, error) {
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.MQTTBrokerURL).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOnConnectHandler(func(pahomqtt.Client) {
			logger.Info("mqtt connected", "broker", cfg.MQTTBrokerURL)
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "error", err)
		})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.MQTTBrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.MQTTBrokerURL, err)
	}

	return &Publisher{
		client:      client,
		logger:      logger,
		topicPrefix: cfg.MQTTTopicPrefix,
		qos:         cfg.MQTTQoS,
	}, nil
}

// Publish serializes the event and publishes it on
// "<prefix>/<event type>/<key>".
func (p *Publisher) Publish(ctx context.Context, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize %s event: %w", event.EventType(), err)
	}

	token := p.client.Publish(eventTopic(p.topicPrefix, event), p.qos, false, data)

	// paho tokens ignore contexts; honor cancellation alongside the wait.
	done := make(chan struct{})
	go func() {
		token.WaitTimeout(publishTimeout)
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", event.EventType(), err)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight messages to drain.
func (p *Publisher) Close() error {
	p.client.Disconnect(uint(publishTimeout / time.Millisecond))
	return nil
}

func eventTopic(prefix string, event domain.Event) string {
	return prefix + "/" + event.EventType() + "/" + event.EventKey()
}
