package infrastructure

import (
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pisuke/clearblade-iot-core-utils/internal/utils"
	"github.com/sirupsen/logrus"
)

// bridgeUsername is ignored by the MQTT bridge; the JWT password authenticates.
const bridgeUsername = "unused"

// PublisherConfig holds the MQTT bridge connection settings for one device.
type PublisherConfig struct {
	BrokerURL      string
	ClientID       string
	Audience       string
	SigningKey     *utils.SigningKey
	TokenTTL       time.Duration
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	TLSConfig      *tls.Config
}

// Publisher connects to the IoT Core MQTT bridge as a device.
type Publisher struct {
	config    PublisherConfig
	client    mqtt.Client
	logger    *logrus.Logger
	mu        sync.RWMutex
	connected bool
	password  string
	now       func() time.Time
}

// NewPublisher validates config and returns an unconnected Publisher.
func NewPublisher(config PublisherConfig, logger *logrus.Logger) (*Publisher, error) {
	if config.BrokerURL == "" {
		return nil, errors.New("MQTT broker URL is required")
	}
	if config.ClientID == "" {
		return nil, errors.New("MQTT client id is required")
	}
	if config.SigningKey == nil {
		return nil, errors.New("device signing key is required")
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = 20 * time.Minute
	}
	if config.TLSConfig == nil {
		config.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &Publisher{
		config: config,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Start mints the first device token and connects to the broker. Reconnects
// mint a fresh token.
func (p *Publisher) Start() error {
	password, err := p.config.SigningKey.DeviceToken(p.config.Audience, p.config.TokenTTL, p.now())
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.password = password
	p.mu.Unlock()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.config.BrokerURL)
	opts.SetClientID(p.config.ClientID)
	opts.SetCredentialsProvider(p.credentials)
	opts.SetProtocolVersion(4)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(p.config.KeepAlive)
	opts.SetConnectTimeout(p.config.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetTLSConfig(p.config.TLSConfig)

	opts.SetOnConnectHandler(p.onConnect)
	opts.SetConnectionLostHandler(p.onConnectionLost)
	opts.SetReconnectingHandler(p.onReconnecting)

	p.client = mqtt.NewClient(opts)

	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT bridge: %w", token.Error())
	}
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"broker":    p.config.BrokerURL,
		"client_id": p.config.ClientID,
		"algorithm": p.config.SigningKey.Algorithm(),
	}).Info("MQTT publisher started")
	return nil
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Info("MQTT publisher stopped")
}

// IsConnected reports whether the bridge connection is up.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Publish sends payload to topic and waits for the broker to acknowledge it.
func (p *Publisher) Publish(topic string, payload []byte) error {
	if !p.IsConnected() {
		return errors.New("MQTT client not connected")
	}

	token := p.client.Publish(topic, p.config.QoS, false, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish message: %w", token.Error())
	}

	p.logger.WithFields(logrus.Fields{
		"topic": topic,
		"size":  len(payload),
		"qos":   p.config.QoS,
	}).Debug("Published MQTT message")
	return nil
}

// credentials supplies a fresh device token on every (re)connect and falls
// back to the last good one if minting fails.
func (p *Publisher) credentials() (string, string) {
	password, err := p.config.SigningKey.DeviceToken(p.config.Audience, p.config.TokenTTL, p.now())
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.logger.WithError(err).Warn("Failed to refresh device token")
		return bridgeUsername, p.password
	}
	p.password = password
	return bridgeUsername, password
}

func (p *Publisher) onConnect(client mqtt.Client) {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()

	p.logger.Info("Connected to MQTT bridge")
}

func (p *Publisher) onConnectionLost(client mqtt.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	p.logger.WithError(err).Warn("Lost connection to MQTT bridge")
}

func (p *Publisher) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	p.logger.Info("Attempting to reconnect to MQTT bridge...")
}

// EventsTopic is the telemetry topic of a device.
func EventsTopic(deviceID string) string {
	return fmt.Sprintf("/devices/%s/events", deviceID)
}

// StateTopic is the state topic of a device.
func StateTopic(deviceID string) string {
	return fmt.Sprintf("/devices/%s/state", deviceID)
}
