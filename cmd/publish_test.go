package cmd

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pisuke/clearblade-iot-core-utils/internal/infrastructure"
	"github.com/sirupsen/logrus"
)

type publishedMessage struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	config     infrastructure.PublisherConfig
	started    bool
	stopped    bool
	startErr   error
	publishErr error
	messages   []publishedMessage
}

func (f *fakePublisher) Start() error {
	f.started = true
	return f.startErr
}

func (f *fakePublisher) Publish(topic string, payload []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.messages = append(f.messages, publishedMessage{topic: topic, payload: payload})
	return nil
}

func (f *fakePublisher) Stop() {
	f.stopped = true
}

func usePublisher(t *testing.T, publisher *fakePublisher) {
	t.Helper()
	prev := newPublisher
	t.Cleanup(func() { newPublisher = prev })

	newPublisher = func(config infrastructure.PublisherConfig, logger *logrus.Logger) (devicePublisher, error) {
		publisher.config = config
		return publisher, nil
	}
}

func writePrivateKey(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalPKCS8PrivateKey() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "ec_private.pem")
	data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestPublishSendsTelemetry(t *testing.T) {
	isolate(t)
	publisher := &fakePublisher{}
	usePublisher(t, publisher)
	keyPath := writePrivateKey(t)

	stdout, _, err := execute(t, "publish", "-p", "proj", "-g", "reg-1", "-d", "dev-1",
		"--private-key", keyPath, "--count", "2", "--message", "ping")
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}

	if !publisher.started || !publisher.stopped {
		t.Fatalf("started = %v, stopped = %v, want both true", publisher.started, publisher.stopped)
	}
	wantClientID := "projects/proj/locations/us-central1/registries/reg-1/devices/dev-1"
	if publisher.config.ClientID != wantClientID {
		t.Fatalf("ClientID = %q, want %q", publisher.config.ClientID, wantClientID)
	}
	if publisher.config.Audience != "proj" {
		t.Fatalf("Audience = %q, want %q", publisher.config.Audience, "proj")
	}
	if publisher.config.BrokerURL != "ssl://us-central1-mqtt.clearblade.com:8883" {
		t.Fatalf("BrokerURL = %q", publisher.config.BrokerURL)
	}
	if got := publisher.config.SigningKey.Algorithm(); got != "ES256" {
		t.Fatalf("Algorithm() = %q, want %q", got, "ES256")
	}

	if len(publisher.messages) != 2 {
		t.Fatalf("published %d messages, want 2", len(publisher.messages))
	}
	for i, msg := range publisher.messages {
		if msg.topic != "/devices/dev-1/events" {
			t.Errorf("message %d topic = %q, want %q", i, msg.topic, "/devices/dev-1/events")
		}
		var body telemetryMessage
		if err := json.Unmarshal(msg.payload, &body); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if body.Sequence != i+1 || body.Payload != "ping" || body.DeviceID != "dev-1" || body.MessageID == "" {
			t.Errorf("message %d = %+v", i, body)
		}
	}
	if !strings.Contains(stdout, "Published message 2/2 to /devices/dev-1/events") {
		t.Fatalf("stdout = %q", stdout)
	}
}

func TestPublishStateTopic(t *testing.T) {
	isolate(t)
	publisher := &fakePublisher{}
	usePublisher(t, publisher)

	_, _, err := execute(t, "publish", "-p", "proj", "-g", "reg-1", "-d", "dev-1",
		"--private-key", writePrivateKey(t), "--state")
	if err != nil {
		t.Fatalf("execute() error = %v", err)
	}
	if len(publisher.messages) != 1 || publisher.messages[0].topic != "/devices/dev-1/state" {
		t.Fatalf("messages = %+v, want one state message", publisher.messages)
	}
}

func TestPublishValidation(t *testing.T) {
	keyArgs := func(t *testing.T) []string { return []string{"--private-key", writePrivateKey(t)} }

	tests := []struct {
		name string
		args func(t *testing.T) []string
	}{
		{name: "missing device", args: func(t *testing.T) []string {
			return append([]string{"publish", "-p", "proj", "-g", "reg-1"}, keyArgs(t)...)
		}},
		{name: "missing private key", args: func(t *testing.T) []string {
			return []string{"publish", "-p", "proj", "-g", "reg-1", "-d", "dev-1"}
		}},
		{name: "zero count", args: func(t *testing.T) []string {
			return append([]string{"publish", "-p", "proj", "-g", "reg-1", "-d", "dev-1", "--count", "0"}, keyArgs(t)...)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			publisher := &fakePublisher{}
			usePublisher(t, publisher)

			if _, _, err := execute(t, tt.args(t)...); err == nil {
				t.Fatal("execute() error = nil, want validation error")
			}
			if publisher.started {
				t.Fatal("publisher started despite invalid options")
			}
		})
	}
}

func TestPublishStopsAfterFailure(t *testing.T) {
	isolate(t)
	errBroker := errors.New("broker refused")
	publisher := &fakePublisher{publishErr: errBroker}
	usePublisher(t, publisher)

	_, _, err := execute(t, "publish", "-p", "proj", "-g", "reg-1", "-d", "dev-1",
		"--private-key", writePrivateKey(t), "--count", "3")
	if !errors.Is(err, errBroker) {
		t.Fatalf("execute() error = %v, want %v", err, errBroker)
	}
	if !publisher.stopped {
		t.Fatal("publisher not stopped after failure")
	}
}
