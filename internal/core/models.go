package core

// Registry is a device registry as returned by the IoT Core API.
type Registry struct {
	ID          string
	Name        string
	MQTTState   MQTTState
	HTTPState   HTTPState
	LogLevel    LogLevel
	EventTopics []string
	StateTopic  string
}

// Device is a device inside a registry.
type Device struct {
	ID          string
	Name        string
	NumID       uint64
	GatewayType GatewayType
	LogLevel    LogLevel
	Credentials []Credential
}

// Credential is a public key registered for a device.
type Credential struct {
	Format KeyFormat
	Key    string
}

type (
	MQTTState   string
	HTTPState   string
	LogLevel    string
	GatewayType string
	KeyFormat   string
)

// Enumerations mirrored from the IoT Core API.
const (
	MQTTEnabled  MQTTState = "MQTT_ENABLED"
	MQTTDisabled MQTTState = "MQTT_DISABLED"

	HTTPEnabled  HTTPState = "HTTP_ENABLED"
	HTTPDisabled HTTPState = "HTTP_DISABLED"

	LogLevelNone  LogLevel = "NONE"
	LogLevelError LogLevel = "ERROR"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelDebug LogLevel = "DEBUG"

	Gateway    GatewayType = "GATEWAY"
	NonGateway GatewayType = "NON_GATEWAY"

	KeyFormatRSAPEM       KeyFormat = "RSA_PEM"
	KeyFormatRSAX509PEM   KeyFormat = "RSA_X509_PEM"
	KeyFormatES256PEM     KeyFormat = "ES256_PEM"
	KeyFormatES256X509PEM KeyFormat = "ES256_X509_PEM"
)

// Operation names accepted on the command line.
const (
	OperationList       = "list"
	OperationDeviceList = "device-list"
	OperationCreate     = "create"
	OperationGet        = "get"
	OperationDelete     = "delete"
	OperationUpdate     = "update"
)

// CredentialsMask restricts a device update to its credential set.
const CredentialsMask = "credentials"
