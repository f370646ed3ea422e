package core

import "fmt"

// LocationPath returns projects/{project}/locations/{region}.
func LocationPath(project, region string) string {
	return fmt.Sprintf("projects/%s/locations/%s", project, region)
}

// RegistryPath returns the resource name of a registry.
func RegistryPath(project, region, registry string) string {
	return fmt.Sprintf("%s/registries/%s", LocationPath(project, region), registry)
}

// DevicePath returns the resource name of a device. The MQTT bridge also
// uses it as the client id.
func DevicePath(project, region, registry, device string) string {
	return fmt.Sprintf("%s/devices/%s", RegistryPath(project, region, registry), device)
}
