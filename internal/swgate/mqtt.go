package swgate

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPushTimeout    = 30 * time.Second
)

// mqttSource turns messages on an MQTT topic into push events, for senders
// that publish to a broker instead of calling the control API.
type mqttSource struct {
	log   *zap.Logger
	topic string
	opts  *mqtt.ClientOptions
	push  func(ctx context.Context, payload []byte) error

	client mqtt.Client
}

func newMQTTSource(cfg Config, log *zap.Logger, push func(ctx context.Context, payload []byte) error) *mqttSource {
	m := &mqttSource{log: log, topic: cfg.Push.MQTT.Topic, push: push}
	m.opts = mqtt.NewClientOptions().
		AddBroker(cfg.Push.MQTT.Broker).
		SetClientID(cfg.Push.MQTT.ClientID).
		SetUsername(cfg.Push.MQTT.Username).
		SetPassword(cfg.Push.MQTT.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetOnConnectHandler(m.subscribe).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("connection lost", zap.Error(err))
		})
	return m
}

func (m *mqttSource) Start() error {
	m.client = mqtt.NewClient(m.opts)
	tok := m.client.Connect()
	if !tok.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("connect: timed out after %s", mqttConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// subscribe runs on every (re)connect.
func (m *mqttSource) subscribe(c mqtt.Client) {
	tok := c.Subscribe(m.topic, 1, m.onMessage)
	if !tok.WaitTimeout(mqttConnectTimeout) {
		m.log.Error("subscribe timed out", zap.String("topic", m.topic))
		return
	}
	if err := tok.Error(); err != nil {
		m.log.Error("subscribe", zap.String("topic", m.topic), zap.Error(err))
		return
	}
	m.log.Info("subscribed", zap.String("topic", m.topic))
}

func (m *mqttSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	m.deliver(msg.Payload())
}

func (m *mqttSource) deliver(payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), mqttPushTimeout)
	defer cancel()
	if err := m.push(ctx, payload); err != nil {
		m.log.Error("push event", zap.Error(err))
	}
}

func (m *mqttSource) Stop() {
	if m.client == nil {
		return
	}
	m.client.Disconnect(250)
}
