package utils

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ReadPublicKey returns the contents of a public key or certificate file.
// The key material is sent as-is; the server validates it against the
// declared format.
func ReadPublicKey(path string) (string, error) {
	if path == "" {
		return "", errors.New("public key path is required")
	}

	keyData, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read public key file: %w", err)
	}
	if strings.TrimSpace(string(keyData)) == "" {
		return "", fmt.Errorf("public key file %s is empty", path)
	}

	return string(keyData), nil
}

// SigningKey is a device private key used to mint MQTT bridge passwords.
type SigningKey struct {
	privateKey any
	method     jwt.SigningMethod
}

// LoadSigningKey loads an RSA or P-256 EC private key from a PEM file.
func LoadSigningKey(path string) (*SigningKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return ParseSigningKey(keyData)
}

// ParseSigningKey parses a PKCS#1, SEC 1 or PKCS#8 PEM private key.
func ParseSigningKey(keyData []byte) (*SigningKey, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, errors.New("failed to parse PEM block")
	}

	if priv, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return newSigningKey(priv)
	}
	if priv, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return newSigningKey(priv)
	}

	priv, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return newSigningKey(priv)
}

func newSigningKey(priv any) (*SigningKey, error) {
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		return &SigningKey{privateKey: k, method: jwt.SigningMethodRS256}, nil
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P256() {
			return nil, fmt.Errorf("unsupported EC curve %s, want P-256", k.Curve.Params().Name)
		}
		return &SigningKey{privateKey: k, method: jwt.SigningMethodES256}, nil
	default:
		return nil, fmt.Errorf("unsupported private key type %T", priv)
	}
}

// Algorithm returns the JWT algorithm matching the key, RS256 or ES256.
func (s *SigningKey) Algorithm() string {
	return s.method.Alg()
}

// DeviceToken mints the JWT a device presents as its MQTT password. The
// audience is the project id.
func (s *SigningKey) DeviceToken(audience string, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.NewString(),
	}

	token := jwt.NewWithClaims(s.method, claims)
	signed, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing device token: %w", err)
	}
	return signed, nil
}
