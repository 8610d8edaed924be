package meallog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/zombor/nutriscan/internal/nutrition"
)

// DefaultTopic is the topic confirmed entries are published on
const DefaultTopic = "nutriscan/meals"

// Publisher is the part of an MQTT client the publisher needs
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTConfig describes the broker connection
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
}

// MQTT publishes confirmed entries to a broker
type MQTT struct {
	client  Publisher
	topic   string
	qos     byte
	timeout time.Duration
	close   func()
}

// NewMQTT publishes through an existing client
func NewMQTT(client Publisher, topic string, qos byte) *MQTT {
	if topic == "" {
		topic = DefaultTopic
	}
	return &MQTT{
		client:  client,
		topic:   topic,
		qos:     qos,
		timeout: 5 * time.Second,
	}
}

// DialMQTT connects to the broker and returns a publisher over the connection
func DialMQTT(ctx context.Context, cfg MQTTConfig) (*MQTT, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		slog.Info("MQTT connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		slog.Warn("MQTT connection lost, reconnecting", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	slog.Info("Connecting to MQTT broker", "broker", cfg.Broker)

	token := client.Connect()
	if err := wait(ctx, token, 10*time.Second); err != nil {
		return nil, fmt.Errorf("connecting to mqtt broker: %w", err)
	}

	m := NewMQTT(client, cfg.Topic, cfg.QoS)
	m.close = func() {
		client.Disconnect(250)
		slog.Info("MQTT disconnected")
	}
	return m, nil
}

// Emit publishes the entry as JSON
func (m *MQTT) Emit(ctx context.Context, entry nutrition.MealEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling meal entry: %w", err)
	}

	token := m.client.Publish(m.topic, m.qos, false, payload)
	if err := wait(ctx, token, m.timeout); err != nil {
		return fmt.Errorf("publishing meal entry: %w", err)
	}

	slog.Debug("Meal entry published", "topic", m.topic, "qos", m.qos, "size", len(payload))
	return nil
}

// Close disconnects clients created by DialMQTT
func (m *MQTT) Close() error {
	if m.close != nil {
		m.close()
	}
	return nil
}

func wait(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
