package core

import "context"

// DeviceManager is the remote device-manager API. Every method is a single
// request/response call keyed by a resource path.
type DeviceManager interface {
	ListRegistries(ctx context.Context, parent string) ([]*Registry, error)
	CreateRegistry(ctx context.Context, parent string, registry *Registry) (*Registry, error)
	GetRegistry(ctx context.Context, name string) (*Registry, error)
	DeleteRegistry(ctx context.Context, name string) error

	ListDevices(ctx context.Context, parent string) ([]*Device, error)
	GetDevice(ctx context.Context, name string) (*Device, error)
	CreateDevice(ctx context.Context, parent string, device *Device) (*Device, error)
	UpdateDevice(ctx context.Context, name string, device *Device, updateMask string) (*Device, error)
	DeleteDevice(ctx context.Context, name string) error

	UnbindDeviceFromGateway(ctx context.Context, parent, gatewayID, deviceID string) error
}

// Connector builds a DeviceManager authenticated with the given service
// account credentials.
type Connector func(ctx context.Context, credentials string) (DeviceManager, error)
