package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"os"

	iot "github.com/clearblade/go-iot"
	"github.com/pisuke/clearblade-iot-core-utils/internal/core"
	"github.com/sirupsen/logrus"
)

// CredentialsEnv is where the ClearBlade SDK looks for the service account
// file. NewCloudIoT is the only writer.
const CredentialsEnv = "CLEARBLADE_CONFIGURATION"

// CloudIoT implements core.DeviceManager on the ClearBlade IoT Core SDK.
type CloudIoT struct {
	service *iot.Service
	logger  *logrus.Logger
}

var _ core.DeviceManager = (*CloudIoT)(nil)

// NewCloudIoT creates a client authenticated with the service account
// credentials file at credentialsPath.
func NewCloudIoT(ctx context.Context, credentialsPath string, logger *logrus.Logger) (*CloudIoT, error) {
	if credentialsPath == "" {
		return nil, errors.New("credentials path is required")
	}
	if _, err := os.Stat(credentialsPath); err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	if err := os.Setenv(CredentialsEnv, credentialsPath); err != nil {
		return nil, fmt.Errorf("failed to set %s: %w", CredentialsEnv, err)
	}

	service, err := iot.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create IoT Core service: %w", err)
	}

	logger.WithField("credentials", credentialsPath).Debug("IoT Core client ready")
	return &CloudIoT{service: service, logger: logger}, nil
}

// ListRegistries follows page tokens until the listing is exhausted.
func (c *CloudIoT) ListRegistries(ctx context.Context, parent string) ([]*core.Registry, error) {
	log := c.logger.WithFields(logrus.Fields{"parent": parent, "resource": "registries"})
	return collectPages(ctx, log, func(pageToken string) ([]*core.Registry, string, error) {
		call := c.service.Projects.Locations.Registries.List(parent)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, "", err
		}
		registries := make([]*core.Registry, 0, len(resp.DeviceRegistries))
		for _, r := range resp.DeviceRegistries {
			registries = append(registries, registryFromAPI(r))
		}
		return registries, resp.NextPageToken, nil
	})
}

func (c *CloudIoT) CreateRegistry(ctx context.Context, parent string, registry *core.Registry) (*core.Registry, error) {
	resp, err := c.service.Projects.Locations.Registries.Create(parent, registryToAPI(registry)).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return registryFromAPI(resp), nil
}

func (c *CloudIoT) GetRegistry(ctx context.Context, name string) (*core.Registry, error) {
	resp, err := c.service.Projects.Locations.Registries.Get(name).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return registryFromAPI(resp), nil
}

func (c *CloudIoT) DeleteRegistry(ctx context.Context, name string) error {
	_, err := c.service.Projects.Locations.Registries.Delete(name).Context(ctx).Do()
	return err
}

// ListDevices follows page tokens until the listing is exhausted.
func (c *CloudIoT) ListDevices(ctx context.Context, parent string) ([]*core.Device, error) {
	log := c.logger.WithFields(logrus.Fields{"parent": parent, "resource": "devices"})
	return collectPages(ctx, log, func(pageToken string) ([]*core.Device, string, error) {
		call := c.service.Projects.Locations.Registries.Devices.List(parent)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, "", err
		}
		devices := make([]*core.Device, 0, len(resp.Devices))
		for _, d := range resp.Devices {
			devices = append(devices, deviceFromAPI(d))
		}
		return devices, resp.NextPageToken, nil
	})
}

func (c *CloudIoT) GetDevice(ctx context.Context, name string) (*core.Device, error) {
	resp, err := c.service.Projects.Locations.Registries.Devices.Get(name).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return deviceFromAPI(resp), nil
}

func (c *CloudIoT) CreateDevice(ctx context.Context, parent string, device *core.Device) (*core.Device, error) {
	resp, err := c.service.Projects.Locations.Registries.Devices.Create(parent, deviceToAPI(device)).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return deviceFromAPI(resp), nil
}

// UpdateDevice patches only the fields named in updateMask.
func (c *CloudIoT) UpdateDevice(ctx context.Context, name string, device *core.Device, updateMask string) (*core.Device, error) {
	resp, err := c.service.Projects.Locations.Registries.Devices.Patch(name, deviceToAPI(device)).UpdateMask(updateMask).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return deviceFromAPI(resp), nil
}

func (c *CloudIoT) DeleteDevice(ctx context.Context, name string) error {
	_, err := c.service.Projects.Locations.Registries.Devices.Delete(name).Context(ctx).Do()
	return err
}

func (c *CloudIoT) UnbindDeviceFromGateway(ctx context.Context, parent, gatewayID, deviceID string) error {
	req := &iot.UnbindDeviceFromGatewayRequest{
		DeviceId:  deviceID,
		GatewayId: gatewayID,
	}
	_, err := c.service.Projects.Locations.Registries.UnbindDeviceFromGateway(parent, req).Context(ctx).Do()
	return err
}

func registryToAPI(r *core.Registry) *iot.DeviceRegistry {
	out := &iot.DeviceRegistry{
		Id:       r.ID,
		LogLevel: string(r.LogLevel),
		MqttConfig: &iot.MqttConfig{
			MqttEnabledState: string(r.MQTTState),
		},
		HttpConfig: &iot.HttpConfig{
			HttpEnabledState: string(r.HTTPState),
		},
	}
	for _, topic := range r.EventTopics {
		out.EventNotificationConfigs = append(out.EventNotificationConfigs, &iot.EventNotificationConfig{
			PubsubTopicName: topic,
		})
	}
	if r.StateTopic != "" {
		out.StateNotificationConfig = &iot.StateNotificationConfig{
			PubsubTopicName: r.StateTopic,
		}
	}
	return out
}

func registryFromAPI(r *iot.DeviceRegistry) *core.Registry {
	out := &core.Registry{
		ID:       r.Id,
		Name:     r.Name,
		LogLevel: core.LogLevel(r.LogLevel),
	}
	if r.MqttConfig != nil {
		out.MQTTState = core.MQTTState(r.MqttConfig.MqttEnabledState)
	}
	if r.HttpConfig != nil {
		out.HTTPState = core.HTTPState(r.HttpConfig.HttpEnabledState)
	}
	for _, cfg := range r.EventNotificationConfigs {
		if cfg != nil {
			out.EventTopics = append(out.EventTopics, cfg.PubsubTopicName)
		}
	}
	if r.StateNotificationConfig != nil {
		out.StateTopic = r.StateNotificationConfig.PubsubTopicName
	}
	return out
}

func deviceToAPI(d *core.Device) *iot.Device {
	out := &iot.Device{
		Id:       d.ID,
		NumId:    d.NumID,
		LogLevel: string(d.LogLevel),
	}
	if d.GatewayType != "" {
		out.GatewayConfig = &iot.GatewayConfig{
			GatewayType: string(d.GatewayType),
		}
	}
	for _, cred := range d.Credentials {
		out.Credentials = append(out.Credentials, &iot.DeviceCredential{
			PublicKey: &iot.PublicKeyCredential{
				Format: string(cred.Format),
				Key:    cred.Key,
			},
		})
	}
	return out
}

func deviceFromAPI(d *iot.Device) *core.Device {
	out := &core.Device{
		ID:       d.Id,
		Name:     d.Name,
		NumID:    d.NumId,
		LogLevel: core.LogLevel(d.LogLevel),
	}
	if d.GatewayConfig != nil {
		out.GatewayType = core.GatewayType(d.GatewayConfig.GatewayType)
	}
	for _, cred := range d.Credentials {
		if cred == nil || cred.PublicKey == nil {
			continue
		}
		out.Credentials = append(out.Credentials, core.Credential{
			Format: core.KeyFormat(cred.PublicKey.Format),
			Key:    cred.PublicKey.Key,
		})
	}
	return out
}
