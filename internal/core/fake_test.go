package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
)

var errNotFound = errors.New("rpc error: code = NotFound desc = registry not found")

// fakeManager records every call in order and serves a fixed inventory.
type fakeManager struct {
	calls      []string
	registries map[string]*Registry
	devices    []*Device

	created   []*Device
	updated   []*Device
	masks     []string
	failOn    string
	failError error
}

func newFakeManager() *fakeManager {
	return &fakeManager{registries: map[string]*Registry{}}
}

func (f *fakeManager) record(call string) error {
	f.calls = append(f.calls, call)
	if call == f.failOn {
		if f.failError != nil {
			return f.failError
		}
		return fmt.Errorf("%s failed", call)
	}
	return nil
}

func (f *fakeManager) ListRegistries(ctx context.Context, parent string) ([]*Registry, error) {
	if err := f.record("ListRegistries " + parent); err != nil {
		return nil, err
	}
	var out []*Registry
	for _, r := range f.registries {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeManager) CreateRegistry(ctx context.Context, parent string, registry *Registry) (*Registry, error) {
	if err := f.record("CreateRegistry " + parent); err != nil {
		return nil, err
	}
	created := *registry
	created.Name = parent + "/registries/" + registry.ID
	f.registries[created.Name] = &created
	return &created, nil
}

func (f *fakeManager) GetRegistry(ctx context.Context, name string) (*Registry, error) {
	if err := f.record("GetRegistry " + name); err != nil {
		return nil, err
	}
	r, ok := f.registries[name]
	if !ok {
		return nil, errNotFound
	}
	return r, nil
}

func (f *fakeManager) DeleteRegistry(ctx context.Context, name string) error {
	return f.record("DeleteRegistry " + name)
}

func (f *fakeManager) ListDevices(ctx context.Context, parent string) ([]*Device, error) {
	if err := f.record("ListDevices " + parent); err != nil {
		return nil, err
	}
	return f.devices, nil
}

func (f *fakeManager) GetDevice(ctx context.Context, name string) (*Device, error) {
	if err := f.record("GetDevice " + name); err != nil {
		return nil, err
	}
	return &Device{ID: "dev-1", NumID: 7, Name: name}, nil
}

func (f *fakeManager) CreateDevice(ctx context.Context, parent string, device *Device) (*Device, error) {
	if err := f.record("CreateDevice " + parent); err != nil {
		return nil, err
	}
	f.created = append(f.created, device)
	created := *device
	created.Name = parent + "/devices/" + device.ID
	if created.NumID == 0 {
		created.NumID = 1000
	}
	return &created, nil
}

func (f *fakeManager) UpdateDevice(ctx context.Context, name string, device *Device, updateMask string) (*Device, error) {
	if err := f.record("UpdateDevice " + name); err != nil {
		return nil, err
	}
	f.updated = append(f.updated, device)
	f.masks = append(f.masks, updateMask)
	return &Device{ID: "dev-1", NumID: 7, Name: name, Credentials: device.Credentials}, nil
}

func (f *fakeManager) DeleteDevice(ctx context.Context, name string) error {
	return f.record("DeleteDevice " + name)
}

func (f *fakeManager) UnbindDeviceFromGateway(ctx context.Context, parent, gatewayID, deviceID string) error {
	return f.record(fmt.Sprintf("UnbindDeviceFromGateway %s %s %s", parent, gatewayID, deviceID))
}

func (f *fakeManager) callNames() []string {
	names := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		name, _, _ := strings.Cut(c, " ")
		names = append(names, name)
	}
	return names
}

func (f *fakeManager) called(name string) bool {
	return slices.Contains(f.callNames(), name)
}
