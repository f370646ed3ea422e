package core

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/pisuke/clearblade-iot-core-utils/internal/utils"
	"github.com/sirupsen/logrus"
)

// Request carries the options of a single invocation.
type Request struct {
	Credentials     string
	Project         string
	Region          string
	Registry        string
	Device          string
	DeviceNumID     uint64
	Operation       string
	EventTopic      string
	StateTopic      string
	PublicKeyPath   string
	PublicKeyFormat string
}

// Action is the remote operation selected for a Request.
type Action int

const (
	ActionNone Action = iota
	ActionListRegistries
	ActionCreateRegistry
	ActionGetRegistry
	ActionDeleteRegistry
	ActionListDevices
	ActionCreateDevice
	ActionGetDevice
	ActionUpdateDeviceNumID
	ActionUpdateDeviceCredentials
	ActionDeleteDevice
)

var actionNames = map[Action]string{
	ActionNone:                    "none",
	ActionListRegistries:          "registry-list",
	ActionCreateRegistry:          "registry-create",
	ActionGetRegistry:             "registry-get",
	ActionDeleteRegistry:          "registry-delete",
	ActionListDevices:             "device-list",
	ActionCreateDevice:            "device-create",
	ActionGetDevice:               "device-get",
	ActionUpdateDeviceNumID:       "device-update-num-id",
	ActionUpdateDeviceCredentials: "device-update-credentials",
	ActionDeleteDevice:            "device-delete",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Plan selects the action for req. The only errors it returns are
// UsageErrors.
func Plan(req Request) (Action, error) {
	if req.Credentials == "" || req.Project == "" || req.Region == "" {
		return ActionNone, ErrMissingOptions
	}

	switch {
	case req.Operation == OperationList:
		return ActionListRegistries, nil
	case req.Registry != "" && req.Device == "" && req.Operation == OperationDeviceList:
		return ActionListDevices, nil
	case req.Registry != "" && req.Device == "" && req.Operation != "":
		return planRegistry(req)
	case req.Device != "" && req.Operation != "":
		return planDevice(req)
	}
	return ActionNone, ErrMissingOptions
}

func planRegistry(req Request) (Action, error) {
	switch req.Operation {
	case OperationCreate:
		if req.EventTopic == "" || req.StateTopic == "" {
			return ActionNone, ErrMissingTopics
		}
		return ActionCreateRegistry, nil
	case OperationGet:
		return ActionGetRegistry, nil
	case OperationDelete:
		return ActionDeleteRegistry, nil
	}
	return ActionNone, ErrUnknownOperation
}

func planDevice(req Request) (Action, error) {
	switch req.Operation {
	case OperationCreate:
		return ActionCreateDevice, nil
	case OperationGet:
		return ActionGetDevice, nil
	case OperationDelete:
		return ActionDeleteDevice, nil
	case OperationUpdate:
		// IoT Core never assigns numeric id 0, so zero means not supplied.
		if req.DeviceNumID != 0 {
			return ActionUpdateDeviceNumID, nil
		}
		if req.PublicKeyPath != "" && req.PublicKeyFormat != "" {
			return ActionUpdateDeviceCredentials, nil
		}
		return ActionNone, ErrMissingUpdate
	}
	return ActionNone, ErrUnknownOperation
}

// Dispatcher maps a Request onto exactly one DeviceManager call and renders
// the response as text.
type Dispatcher struct {
	connect Connector
	out     io.Writer
	log     *logrus.Entry
}

// NewDispatcher creates a Dispatcher writing results to out.
func NewDispatcher(connect Connector, out io.Writer, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		connect: connect,
		out:     out,
		log:     log,
	}
}

// Run performs the operation selected by req. Usage errors are printed and
// swallowed; remote failures are logged and returned without retry.
func (d *Dispatcher) Run(ctx context.Context, req Request) error {
	action, err := Plan(req)
	if err != nil {
		if !IsUsageError(err) {
			return err
		}
		fmt.Fprintln(d.out, err)
		return nil
	}

	return d.do(ctx, req, action.String(), func(c DeviceManager) error {
		switch action {
		case ActionListRegistries:
			return d.listRegistries(ctx, c, req)
		case ActionCreateRegistry:
			return d.createRegistry(ctx, c, req)
		case ActionGetRegistry:
			return d.getRegistry(ctx, c, req)
		case ActionDeleteRegistry:
			return d.deleteRegistry(ctx, c, req)
		case ActionListDevices:
			return d.listDevices(ctx, c, req)
		case ActionCreateDevice:
			return d.createDevice(ctx, c, req)
		case ActionGetDevice:
			return d.getDevice(ctx, c, req)
		case ActionUpdateDeviceNumID:
			return d.updateDeviceNumID(ctx, c, req)
		case ActionUpdateDeviceCredentials:
			return d.updateDeviceCredentials(ctx, c, req)
		case ActionDeleteDevice:
			return d.deleteDevice(ctx, c, req)
		}
		return fmt.Errorf("unhandled action %s", action)
	})
}

// UnbindDeviceFromGateway removes the binding between the request's device
// and gatewayID. It has no command line trigger.
func (d *Dispatcher) UnbindDeviceFromGateway(ctx context.Context, req Request, gatewayID string) error {
	if req.Credentials == "" || req.Project == "" || req.Region == "" ||
		req.Registry == "" || req.Device == "" || gatewayID == "" {
		fmt.Fprintln(d.out, ErrMissingOptions)
		return nil
	}

	return d.do(ctx, req, "device-unbind", func(c DeviceManager) error {
		parent := RegistryPath(req.Project, req.Region, req.Registry)
		if err := c.UnbindDeviceFromGateway(ctx, parent, gatewayID, req.Device); err != nil {
			return fmt.Errorf("unbind device %s from gateway %s: %w", req.Device, gatewayID, err)
		}
		fmt.Fprintf(d.out, "Unbound device %s from gateway %s\n", req.Device, gatewayID)
		return nil
	})
}

// do connects and runs fn, logging any failure once before returning it.
func (d *Dispatcher) do(ctx context.Context, req Request, action string, fn func(DeviceManager) error) error {
	entry := d.log.WithFields(logrus.Fields{
		"action":   action,
		"project":  req.Project,
		"region":   req.Region,
		"registry": req.Registry,
		"device":   req.Device,
	})
	entry.Debug("Dispatching operation")

	client, err := d.connect(ctx, req.Credentials)
	if err != nil {
		entry.WithError(err).Error("Failed to create device manager client")
		return fmt.Errorf("failed to create device manager client: %w", err)
	}

	if err := fn(client); err != nil {
		entry.WithError(err).Error("Operation failed")
		return err
	}

	entry.Debug("Operation completed")
	return nil
}

func (d *Dispatcher) listRegistries(ctx context.Context, c DeviceManager, req Request) error {
	registries, err := c.ListRegistries(ctx, LocationPath(req.Project, req.Region))
	if err != nil {
		return fmt.Errorf("list registries: %w", err)
	}

	ids := make([]string, 0, len(registries))
	for _, r := range registries {
		ids = append(ids, r.ID)
	}
	slices.Sort(ids)

	for _, id := range ids {
		fmt.Fprintln(d.out, id)
	}
	return nil
}

func (d *Dispatcher) createRegistry(ctx context.Context, c DeviceManager, req Request) error {
	registry := &Registry{
		ID:          req.Registry,
		MQTTState:   MQTTEnabled,
		HTTPState:   HTTPDisabled,
		LogLevel:    LogLevelDebug,
		EventTopics: []string{req.EventTopic},
		StateTopic:  req.StateTopic,
	}

	created, err := c.CreateRegistry(ctx, LocationPath(req.Project, req.Region), registry)
	if err != nil {
		return fmt.Errorf("create registry %s: %w", req.Registry, err)
	}

	printRegistry(d.out, "Created registry", created)
	return nil
}

func (d *Dispatcher) getRegistry(ctx context.Context, c DeviceManager, req Request) error {
	registry, err := c.GetRegistry(ctx, RegistryPath(req.Project, req.Region, req.Registry))
	if err != nil {
		return fmt.Errorf("get registry %s: %w", req.Registry, err)
	}

	printRegistry(d.out, "Get registry", registry)
	return nil
}

func (d *Dispatcher) deleteRegistry(ctx context.Context, c DeviceManager, req Request) error {
	fmt.Fprintf(d.out, "Delete registry %s\n", req.Registry)
	if err := c.DeleteRegistry(ctx, RegistryPath(req.Project, req.Region, req.Registry)); err != nil {
		return fmt.Errorf("delete registry %s: %w", req.Registry, err)
	}

	fmt.Fprintf(d.out, "Registry %s deleted\n", req.Registry)
	return nil
}

func (d *Dispatcher) listDevices(ctx context.Context, c DeviceManager, req Request) error {
	devices, err := c.ListDevices(ctx, RegistryPath(req.Project, req.Region, req.Registry))
	if err != nil {
		return fmt.Errorf("list devices in registry %s: %w", req.Registry, err)
	}

	fmt.Fprintf(d.out, "Showing devices for registry %s:\n", req.Registry)
	for _, device := range devices {
		fmt.Fprintf(d.out, "%s %d %s\n", device.ID, device.NumID, device.GatewayType)
	}
	return nil
}

func (d *Dispatcher) createDevice(ctx context.Context, c DeviceManager, req Request) error {
	created, err := c.CreateDevice(ctx, RegistryPath(req.Project, req.Region, req.Registry), newDevice(req.Device, req.DeviceNumID))
	if err != nil {
		return fmt.Errorf("create device %s: %w", req.Device, err)
	}

	printDevice(d.out, "Created device", created)
	return nil
}

func (d *Dispatcher) getDevice(ctx context.Context, c DeviceManager, req Request) error {
	device, err := c.GetDevice(ctx, DevicePath(req.Project, req.Region, req.Registry, req.Device))
	if err != nil {
		return fmt.Errorf("get device %s: %w", req.Device, err)
	}

	printDevice(d.out, "Get device", device)
	return nil
}

// updateDeviceNumID recreates the device because the API cannot change a
// numeric id in place. A failed create leaves the device deleted.
func (d *Dispatcher) updateDeviceNumID(ctx context.Context, c DeviceManager, req Request) error {
	if err := c.DeleteDevice(ctx, DevicePath(req.Project, req.Region, req.Registry, req.Device)); err != nil {
		return fmt.Errorf("delete device %s: %w", req.Device, err)
	}
	fmt.Fprintf(d.out, "Deleted device %s\n", req.Device)

	created, err := c.CreateDevice(ctx, RegistryPath(req.Project, req.Region, req.Registry), newDevice(req.Device, req.DeviceNumID))
	if err != nil {
		d.log.WithFields(logrus.Fields{
			"device": req.Device,
			"num_id": req.DeviceNumID,
		}).Warn("Device was deleted but could not be recreated")
		return fmt.Errorf("recreate device %s with numeric id %d: %w", req.Device, req.DeviceNumID, err)
	}

	printDevice(d.out, "Created device", created)
	return nil
}

func (d *Dispatcher) updateDeviceCredentials(ctx context.Context, c DeviceManager, req Request) error {
	format, ok := ParseKeyFormat(req.PublicKeyFormat)
	if !ok {
		d.log.WithFields(logrus.Fields{
			"format":   req.PublicKeyFormat,
			"fallback": format,
		}).Warn("Unrecognized public key format")
	}

	key, err := utils.ReadPublicKey(req.PublicKeyPath)
	if err != nil {
		return err
	}

	patch := &Device{
		Credentials: []Credential{{Format: format, Key: key}},
	}
	updated, err := c.UpdateDevice(ctx, DevicePath(req.Project, req.Region, req.Registry, req.Device), patch, CredentialsMask)
	if err != nil {
		return fmt.Errorf("update credentials of device %s: %w", req.Device, err)
	}

	printDevice(d.out, "Updated device", updated)
	return nil
}

func (d *Dispatcher) deleteDevice(ctx context.Context, c DeviceManager, req Request) error {
	if err := c.DeleteDevice(ctx, DevicePath(req.Project, req.Region, req.Registry, req.Device)); err != nil {
		return fmt.Errorf("delete device %s: %w", req.Device, err)
	}

	fmt.Fprintf(d.out, "Deleted device %s\n", req.Device)
	return nil
}

// newDevice builds a non-gateway device logging at ERROR. A zero numID
// leaves the numeric id to the server.
func newDevice(id string, numID uint64) *Device {
	return &Device{
		ID:          id,
		NumID:       numID,
		GatewayType: NonGateway,
		LogLevel:    LogLevelError,
	}
}
