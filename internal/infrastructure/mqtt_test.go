package infrastructure

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"io"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pisuke/clearblade-iot-core-utils/internal/utils"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testSigningKey(t *testing.T) (*utils.SigningKey, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey() error = %v", err)
	}
	key, err := utils.ParseSigningKey(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
	if err != nil {
		t.Fatalf("ParseSigningKey() error = %v", err)
	}
	return key, priv
}

func TestNewPublisher_Validation(t *testing.T) {
	key, _ := testSigningKey(t)

	tests := []struct {
		name   string
		config PublisherConfig
	}{
		{"missing broker", PublisherConfig{ClientID: "c", SigningKey: key}},
		{"missing client id", PublisherConfig{BrokerURL: "ssl://b:8883", SigningKey: key}},
		{"missing key", PublisherConfig{BrokerURL: "ssl://b:8883", ClientID: "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPublisher(tt.config, testLogger()); err == nil {
				t.Error("NewPublisher() should fail")
			}
		})
	}
}

func TestNewPublisher_Defaults(t *testing.T) {
	key, _ := testSigningKey(t)

	p, err := NewPublisher(PublisherConfig{
		BrokerURL:  "ssl://us-central1-mqtt.clearblade.com:8883",
		ClientID:   "projects/p/locations/r/registries/g/devices/d",
		SigningKey: key,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}

	if p.config.TokenTTL != 20*time.Minute {
		t.Errorf("TokenTTL = %v, want %v", p.config.TokenTTL, 20*time.Minute)
	}
	if p.config.TLSConfig == nil {
		t.Error("TLSConfig should default to a TLS 1.2+ config")
	}
	if p.IsConnected() {
		t.Error("IsConnected() = true before Start()")
	}
	if err := p.Publish(EventsTopic("d"), []byte("x")); err == nil {
		t.Error("Publish() should fail when not connected")
	}
}

func TestPublisher_CredentialsMintsDeviceToken(t *testing.T) {
	key, priv := testSigningKey(t)
	now := time.Now()

	p, err := NewPublisher(PublisherConfig{
		BrokerURL:  "ssl://broker:8883",
		ClientID:   "client",
		Audience:   "my-project",
		SigningKey: key,
		TokenTTL:   time.Hour,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	p.now = func() time.Time { return now }

	username, password := p.credentials()
	if username != "unused" {
		t.Errorf("username = %q, want %q", username, "unused")
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(password, claims, func(_ *jwt.Token) (any, error) {
		return &priv.PublicKey, nil
	}, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		t.Fatalf("ParseWithClaims() error = %v", err)
	}
	if claims["aud"] != "my-project" {
		t.Errorf("aud = %v, want %q", claims["aud"], "my-project")
	}
	if p.password != password {
		t.Error("credentials() should remember the last minted token")
	}
}

func TestTopics(t *testing.T) {
	if got, want := EventsTopic("dev-1"), "/devices/dev-1/events"; got != want {
		t.Errorf("EventsTopic() = %q, want %q", got, want)
	}
	if got, want := StateTopic("dev-1"), "/devices/dev-1/state"; got != want {
		t.Errorf("StateTopic() = %q, want %q", got, want)
	}
}
