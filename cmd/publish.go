package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pisuke/clearblade-iot-core-utils/internal/core"
	"github.com/pisuke/clearblade-iot-core-utils/internal/infrastructure"
	"github.com/pisuke/clearblade-iot-core-utils/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// devicePublisher is the part of infrastructure.Publisher the command uses.
type devicePublisher interface {
	Start() error
	Publish(topic string, payload []byte) error
	Stop()
}

// newPublisher builds the MQTT bridge publisher. Tests replace it.
var newPublisher = func(config infrastructure.PublisherConfig, logger *logrus.Logger) (devicePublisher, error) {
	return infrastructure.NewPublisher(config, logger)
}

type publishOptions struct {
	privateKey string
	message    string
	count      int
	state      bool
}

// telemetryMessage is the JSON envelope published for each message.
type telemetryMessage struct {
	MessageID   string    `json:"message_id"`
	DeviceID    string    `json:"device_id"`
	Sequence    int       `json:"sequence"`
	Payload     string    `json:"payload"`
	PublishedAt time.Time `json:"published_at"`
}

func newPublishCmd(root *rootOptions) *cobra.Command {
	p := &publishOptions{}

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish messages as a device over the MQTT bridge",
		Long: `Connects to the IoT Core MQTT bridge as the device named by --device,
authenticating with a JWT signed by the device private key, and publishes
telemetry events (or state with --state).`,
		Example: `  cbiot publish -p my-project -g my-registry -d my-device --private-key ec_private.pem --count 5`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), root, p, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&p.privateKey, "private-key", "", "device private key in PEM format (required)")
	cmd.Flags().StringVar(&p.message, "message", "hello", "message payload")
	cmd.Flags().IntVar(&p.count, "count", 1, "number of messages to publish")
	cmd.Flags().BoolVar(&p.state, "state", false, "publish to the device state topic instead of events")
	return cmd
}

func runPublish(ctx context.Context, root *rootOptions, p *publishOptions, out io.Writer) error {
	cfg := root.cfg
	if cfg.Project == "" || cfg.Region == "" || cfg.Registry == "" || cfg.Device == "" || p.privateKey == "" {
		return errors.New("publish requires --project, --region, --registry, --device and --private-key")
	}
	if p.count < 1 {
		return fmt.Errorf("invalid --count %d", p.count)
	}

	key, err := utils.LoadSigningKey(p.privateKey)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(infrastructure.PublisherConfig{
		BrokerURL:      cfg.MQTT.BrokerURL(cfg.Region),
		ClientID:       core.DevicePath(cfg.Project, cfg.Region, cfg.Registry, cfg.Device),
		Audience:       cfg.Project,
		SigningKey:     key,
		TokenTTL:       cfg.MQTT.TokenTTL,
		QoS:            cfg.MQTT.QoS,
		KeepAlive:      cfg.MQTT.KeepAlive,
		ConnectTimeout: cfg.MQTT.ConnectTimeout,
	}, root.logger)
	if err != nil {
		return err
	}

	if err := publisher.Start(); err != nil {
		return err
	}
	defer publisher.Stop()

	topic := infrastructure.EventsTopic(cfg.Device)
	if p.state {
		topic = infrastructure.StateTopic(cfg.Device)
	}

	for i := 1; i <= p.count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := json.Marshal(telemetryMessage{
			MessageID:   uuid.NewString(),
			DeviceID:    cfg.Device,
			Sequence:    i,
			Payload:     p.message,
			PublishedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		if err := publisher.Publish(topic, payload); err != nil {
			root.logger.WithError(err).WithFields(logrus.Fields{
				"topic":    topic,
				"sequence": i,
			}).Error("Failed to publish message")
			return err
		}
		fmt.Fprintf(out, "Published message %d/%d to %s\n", i, p.count, topic)
	}

	return nil
}
