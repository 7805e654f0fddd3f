package core

import (
	"maps"
	"slices"
)

// DeviceRecord is one device that answered a scan.
type DeviceRecord struct {
	Name     string
	Address  string
	Metadata map[string]string
}

// Board is the board identifier the device advertised, if any.
func (d *DeviceRecord) Board() string {
	return d.Metadata["board"]
}

// AuthRequired reports whether the device advertised password protected
// uploads.
func (d *DeviceRecord) AuthRequired() bool {
	return d.Metadata["auth_upload"] == "yes"
}

// DeviceRegistry is the read-only result of a scan, keyed by device name.
type DeviceRegistry struct {
	devices map[string]*DeviceRecord
}

func (r *DeviceRegistry) Get(name string) (*DeviceRecord, bool) {
	if r == nil {
		return nil, false
	}
	d, ok := r.devices[name]
	return d, ok
}

// Names returns the device names in lexical order.
func (r *DeviceRegistry) Names() []string {
	if r == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(r.devices))
}

func (r *DeviceRegistry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.devices)
}

// Records returns the devices ordered by name.
func (r *DeviceRegistry) Records() []*DeviceRecord {
	names := r.Names()
	records := make([]*DeviceRecord, 0, len(names))
	for _, name := range names {
		records = append(records, r.devices[name])
	}
	return records
}

// registryBuilder accumulates scan answers. It belongs to a single scan and
// is never shared.
type registryBuilder struct {
	devices map[string]*DeviceRecord
}

func newRegistryBuilder() *registryBuilder {
	return &registryBuilder{devices: make(map[string]*DeviceRecord)}
}

// put records d, replacing any earlier answer under the same name. Records
// without a name are dropped.
func (b *registryBuilder) put(d *DeviceRecord) bool {
	if d == nil || d.Name == "" {
		return false
	}
	b.devices[d.Name] = d
	return true
}

func (b *registryBuilder) freeze() *DeviceRegistry {
	return &DeviceRegistry{devices: maps.Clone(b.devices)}
}
