package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tophand/backend/internal/models"
)

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

type mqttPublisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// MQTTChannel delivers push notifications by publishing to the recipient's
// device topic. A broker acknowledgement counts as delivery.
type MQTTChannel struct {
	cli    mqttPublisher
	prefix string
	qos    byte
}

var newMQTTClient = func(opts *paho.ClientOptions) paho.Client {
	return paho.NewClient(opts)
}

func NewMQTTChannel(cfg MQTTConfig) (*MQTTChannel, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", token.Error())
	}
	return newMQTTChannel(c, cfg), nil
}

func newMQTTChannel(cli mqttPublisher, cfg MQTTConfig) *MQTTChannel {
	prefix := strings.TrimRight(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "notifications"
	}
	qos := cfg.QoS
	if qos == 0 {
		qos = 1
	}
	return &MQTTChannel{cli: cli, prefix: prefix, qos: qos}
}

func (m *MQTTChannel) Name() string { return "push" }

func (m *MQTTChannel) Send(ctx context.Context, recipientID, message string, data map[string]any) (Delivery, error) {
	if !m.cli.IsConnected() {
		return Delivery{}, errors.New("mqtt client not connected")
	}
	payload, err := json.Marshal(map[string]any{
		"recipient_id": recipientID,
		"message":      message,
		"data":         data,
	})
	if err != nil {
		return Delivery{}, err
	}

	token := m.cli.Publish(m.prefix+"/"+recipientID, m.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return Delivery{}, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return Delivery{}, err
	}
	now := time.Now().UTC()
	return Delivery{Status: models.AttemptDelivered, DeliveredAt: &now}, nil
}

func (m *MQTTChannel) Close() {
	m.cli.Disconnect(250)
}
