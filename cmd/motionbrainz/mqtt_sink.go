package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mqttKeyMessage is the JSON payload published for each key operation.
type mqttKeyMessage struct {
	Op      string    `json:"op"`
	Key     Key       `json:"key"`
	Ts      time.Time `json:"ts"`
	Session string    `json:"session"`
}

// publisher is the subset of mqtt.Client the sink needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// mqttSink publishes key operations to <prefix>/keys so a remote agent can inject them.
// Publishing is QoS 0 and does not wait for delivery, so a slow broker never stalls
// the daemon loop.
type mqttSink struct {
	client  publisher
	topic   string
	session string
	logger  *slog.Logger
	now     func() time.Time
}

// connectMQTTSink dials the broker and returns a sink publishing under cfg.TopicPrefix.
func connectMQTTSink(cfg MQTTConfig, session string, logger *slog.Logger) (*mqttSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}

	logger.Info("connected to MQTT", "broker", cfg.Broker, "topic_prefix", cfg.TopicPrefix)
	return newMQTTSink(client, cfg.TopicPrefix, session, logger), nil
}

func newMQTTSink(client publisher, prefix, session string, logger *slog.Logger) *mqttSink {
	return &mqttSink{
		client:  client,
		topic:   prefix + "/keys",
		session: session,
		logger:  logger,
		now:     time.Now,
	}
}

func (m *mqttSink) publish(op string, k Key) error {
	payload, err := json.Marshal(mqttKeyMessage{Op: op, Key: k, Ts: m.now().UTC(), Session: m.session})
	if err != nil {
		return fmt.Errorf("marshal mqtt key message: %w", err)
	}
	token := m.client.Publish(m.topic, 0, false, payload)
	// QoS 0 completes once the packet is queued; only surface immediate failures.
	if token.WaitTimeout(50*time.Millisecond) && token.Error() != nil {
		return fmt.Errorf("mqtt publish %s: %w", m.topic, token.Error())
	}
	return nil
}

func (m *mqttSink) Press(k Key) error   { return m.publish("press", k) }
func (m *mqttSink) Release(k Key) error { return m.publish("release", k) }
func (m *mqttSink) Tap(k Key) error     { return m.publish("tap", k) }

func (m *mqttSink) Close() error {
	m.client.Disconnect(250)
	return nil
}
