// Package stores provides centralized access to typed state stores.
package stores

import (
	"github.com/dokzlo13/boblightd/internal/device"
	"github.com/dokzlo13/boblightd/internal/storage"
)

// KindDevice is the resource kind of persisted devices.
const KindDevice = "device"

// Registry provides centralized access to all typed stores.
type Registry struct {
	base    *storage.Store
	devices *storage.TypedStore[device.Device]
}

// NewRegistry creates a new store registry with typed stores for each resource kind.
func NewRegistry(base *storage.Store) *Registry {
	return &Registry{
		base:    base,
		devices: storage.NewTypedStore[device.Device](base, KindDevice),
	}
}

// Devices returns the typed store for server and channel devices.
func (r *Registry) Devices() *storage.TypedStore[device.Device] {
	return r.devices
}

// Clear removes all state from all stores.
func (r *Registry) Clear() error {
	return r.devices.Clear()
}
