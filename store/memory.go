package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Memory is an in-memory Repository used by tests and database-less
// development runs. All methods are safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	devices    map[uuid.UUID]Device
	nodes      map[uuid.UUID]map[string]Node
	flags      map[uuid.UUID]CommandFlags
	reports    map[uuid.UUID]DiagnosticsReport
	order      []uuid.UUID
	nextNodeID uint
}

func NewMemory() *Memory {
	return &Memory{
		devices: make(map[uuid.UUID]Device),
		nodes:   make(map[uuid.UUID]map[string]Node),
		flags:   make(map[uuid.UUID]CommandFlags),
		reports: make(map[uuid.UUID]DiagnosticsReport),
	}
}

func (m *Memory) FindDevice(id uuid.UUID) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return &d, nil
}

func (m *Memory) FindDeviceByName(name string) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if d := m.devices[id]; d.DisplayName == name {
			return &d, nil
		}
	}
	return nil, ErrDeviceNotFound
}

func (m *Memory) ListDevices() ([]Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	devices := make([]Device, 0, len(m.order))
	for _, id := range m.order {
		devices = append(devices, m.devices[id])
	}
	return devices, nil
}

func (m *Memory) UpsertDevice(d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	existing, ok := m.devices[d.DeviceID]
	if !ok {
		d.CreatedAt = now
		m.order = append(m.order, d.DeviceID)
	} else {
		d.CreatedAt = existing.CreatedAt
	}
	d.UpdatedAt = now
	m.devices[d.DeviceID] = *d
	return nil
}

func (m *Memory) EnsureFlags(deviceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flags[deviceID]; !ok {
		m.flags[deviceID] = CommandFlags{DeviceID: deviceID, UpdatedAt: time.Now()}
	}
	return nil
}

func (m *Memory) Flags(deviceID uuid.UUID) (*CommandFlags, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.flags[deviceID]
	if !ok {
		return nil, ErrFlagsMissing
	}
	return &f, nil
}

func (m *Memory) SetFlag(deviceID uuid.UUID, flag Flag, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.flags[deviceID]
	if !ok {
		return ErrFlagsMissing
	}
	switch flag {
	case FlagDiscoveryReady:
		f.DiscoveryReady = value
	case FlagDiagnosticsReady:
		f.DiagnosticsReady = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFlag, flag)
	}
	f.UpdatedAt = time.Now()
	m.flags[deviceID] = f
	return nil
}

func (m *Memory) UpsertNode(n *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byAddr, ok := m.nodes[n.DeviceID]
	if !ok {
		byAddr = make(map[string]Node)
		m.nodes[n.DeviceID] = byAddr
	}
	now := time.Now()
	if existing, ok := byAddr[n.Address]; ok {
		n.ID = existing.ID
		n.CreatedAt = existing.CreatedAt
	} else {
		m.nextNodeID++
		n.ID = m.nextNodeID
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	byAddr[n.Address] = *n
	return nil
}

func (m *Memory) ListNodes(deviceID uuid.UUID) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byAddr := m.nodes[deviceID]
	nodes := make([]Node, 0, len(byAddr))
	for _, n := range byAddr {
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (m *Memory) UpsertDiagnostics(deviceID uuid.UUID, report datatypes.JSON) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[deviceID] = DiagnosticsReport{DeviceID: deviceID, Report: report, UpdatedAt: time.Now()}
	return nil
}

func (m *Memory) Diagnostics(deviceID uuid.UUID) (*DiagnosticsReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rep, ok := m.reports[deviceID]
	if !ok {
		return nil, ErrDiagnosticsNotFound
	}
	return &rep, nil
}

var _ Repository = (*Memory)(nil)
var _ Repository = (*GormRepository)(nil)
