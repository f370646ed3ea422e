package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pisuke/clearblade-iot-core-utils/config"
	"github.com/pisuke/clearblade-iot-core-utils/internal/core"
	"github.com/pisuke/clearblade-iot-core-utils/internal/infrastructure"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// newDeviceManager builds the IoT Core client. Tests replace it.
var newDeviceManager = func(ctx context.Context, credentials string, logger *logrus.Logger) (core.DeviceManager, error) {
	return infrastructure.NewCloudIoT(ctx, credentials, logger)
}

// rootOptions is shared by the root command and its subcommands.
type rootOptions struct {
	cfgFile string
	cfg     *config.Config
	logger  *logrus.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "cbiot",
		Short: "Operations on ClearBlade IoT Core registries and devices",
		Long: `cbiot lists, creates, gets, updates and deletes ClearBlade IoT Core
registries and devices. Each invocation performs exactly one operation,
selected by --operation and the registry/device flags that are set.`,
		Example: `  cbiot -c creds.json -p my-project -o list
  cbiot -c creds.json -p my-project -g my-registry -o create -e projects/my-project/topics/events -s projects/my-project/topics/state
  cbiot -c creds.json -p my-project -g my-registry -o device-list
  cbiot -c creds.json -p my-project -g my-registry -d my-device -o create -n 123456
  cbiot -c creds.json -p my-project -g my-registry -d my-device -o update -k ec_public.pem -f ES256_PEM`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.cfgFile, cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			opts.cfg = cfg
			opts.logger = newLogger(cfg.Verbose, cmd.ErrOrStderr())
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.cfgFile, "config", "", "config file (default is ./cbiot.yaml)")
	pf.BoolP("verbose", "v", false, "increase the verbosity level")
	pf.StringP("credentials", "c", "", "ClearBlade service account credentials file (required)")
	pf.StringP("project", "p", "", "project id (required)")
	pf.StringP("region", "r", config.DefaultRegion, "cloud region")
	pf.StringP("registry", "g", "", "registry id")
	pf.StringP("device", "d", "", "device id")

	f := root.Flags()
	f.Uint64P("device-num-id", "n", 0, "device numeric id")
	f.StringP("operation", "o", "", "operation: list, create, delete, get, update, device-list")
	f.StringP("event-topic", "e", "", "event topic")
	f.StringP("state-topic", "s", "", "state topic")
	f.StringP("public-key", "k", "", "public key file")
	f.StringP("public-key-format", "f", "", "public key format: RSA_PEM, RSA_X509_PEM, ES256_PEM, ES256_X509_PEM")

	root.AddCommand(
		newPublishCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line until it completes or is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

// newLogger logs to stderr so stdout carries only results.
func newLogger(verbose bool, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(out)
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

func runDispatch(ctx context.Context, opts *rootOptions, out io.Writer) error {
	cfg := opts.cfg
	log := opts.logger.WithField("invocation_id", uuid.NewString())

	log.WithFields(logrus.Fields{
		"credentials":       cfg.Credentials,
		"project":           cfg.Project,
		"region":            cfg.Region,
		"registry":          cfg.Registry,
		"device":            cfg.Device,
		"device_num_id":     cfg.DeviceNumID,
		"operation":         cfg.Operation,
		"event_topic":       cfg.EventTopic,
		"state_topic":       cfg.StateTopic,
		"public_key":        cfg.PublicKey,
		"public_key_format": cfg.PublicKeyFormat,
	}).Debug("Program arguments")

	req := core.Request{
		Credentials:     cfg.Credentials,
		Project:         cfg.Project,
		Region:          cfg.Region,
		Registry:        cfg.Registry,
		Device:          cfg.Device,
		DeviceNumID:     cfg.DeviceNumID,
		Operation:       cfg.Operation,
		EventTopic:      cfg.EventTopic,
		StateTopic:      cfg.StateTopic,
		PublicKeyPath:   cfg.PublicKey,
		PublicKeyFormat: cfg.PublicKeyFormat,
	}

	connect := func(ctx context.Context, credentials string) (core.DeviceManager, error) {
		return newDeviceManager(ctx, credentials, opts.logger)
	}
	return core.NewDispatcher(connect, out, log).Run(ctx, req)
}
