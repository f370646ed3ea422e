package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultRegion is the region used when none is configured.
const DefaultRegion = "us-central1"

// Config holds the effective options of one invocation.
type Config struct {
	Verbose         bool       `mapstructure:"verbose"`
	Credentials     string     `mapstructure:"credentials"`
	Project         string     `mapstructure:"project"`
	Region          string     `mapstructure:"region"`
	Registry        string     `mapstructure:"registry"`
	Device          string     `mapstructure:"device"`
	DeviceNumID     uint64     `mapstructure:"device_num_id"`
	Operation       string     `mapstructure:"operation"`
	EventTopic      string     `mapstructure:"event_topic"`
	StateTopic      string     `mapstructure:"state_topic"`
	PublicKey       string     `mapstructure:"public_key"`
	PublicKeyFormat string     `mapstructure:"public_key_format"`
	MQTT            MQTTConfig `mapstructure:"mqtt"`
}

// MQTTConfig holds the MQTT bridge settings used by the publish command.
type MQTTConfig struct {
	BrokerTemplate string        `mapstructure:"broker_template"`
	QoS            byte          `mapstructure:"qos"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
}

// BrokerURL expands the broker template for region.
func (m MQTTConfig) BrokerURL(region string) string {
	if strings.Contains(m.BrokerTemplate, "%s") {
		return fmt.Sprintf(m.BrokerTemplate, region)
	}
	return m.BrokerTemplate
}

// flagKeys maps config keys to the command line flags that set them.
var flagKeys = map[string]string{
	"verbose":           "verbose",
	"credentials":       "credentials",
	"project":           "project",
	"region":            "region",
	"registry":          "registry",
	"device":            "device",
	"device_num_id":     "device-num-id",
	"operation":         "operation",
	"event_topic":       "event-topic",
	"state_topic":       "state-topic",
	"public_key":        "public-key",
	"public_key_format": "public-key-format",
}

// Load merges, from highest priority: changed flags, CBIOT_* environment
// variables, the YAML config file and defaults. An empty configPath looks
// for cbiot.yaml in the working directory and $HOME/.config/cbiot; a
// missing file is not an error there.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("cbiot")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cbiot")
	}
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CBIOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Set defaults
	for key := range flagKeys {
		v.SetDefault(key, "")
	}
	v.SetDefault("verbose", false)
	v.SetDefault("device_num_id", 0)
	v.SetDefault("region", DefaultRegion)

	v.SetDefault("mqtt.broker_template", "ssl://%s-mqtt.clearblade.com:8883")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.keep_alive", "30s")
	v.SetDefault("mqtt.connect_timeout", "10s")
	v.SetDefault("mqtt.token_ttl", "20m")

	if flags != nil {
		for key, name := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}
