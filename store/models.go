package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/hubfleet/hubfleet/proto"
)

// Device is the virtual copy of a physical hub. Created on the device's
// first announce, checkin-updated on every announce after that. The bridge
// never deletes device records; that is an administrative action.
type Device struct {
	DeviceID          uuid.UUID `gorm:"primaryKey;type:uuid" json:"device_id"`
	ConnectPassphrase string    `gorm:"size:1024" json:"-"`
	DisplayName       string    `gorm:"size:128;index" json:"display_name"`
	LastCheckin       time.Time `json:"last_checkin"`
	CurrentState      string    `gorm:"size:32;default:''" json:"current_state"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Device) TableName() string { return "hub_devices" }

// ListenChannel is the topic the cloud receives this device's traffic on.
func (d *Device) ListenChannel(root string) string {
	return proto.ListenChannel(root, d.DeviceID)
}

// TalkChannel is the topic the cloud sends this device's commands on.
func (d *Device) TalkChannel(root string) string {
	return proto.TalkChannel(root, d.DeviceID)
}

// Node is a sub-device discovered on a hub's local mesh network. Upserted
// keyed by (device, address) each time a discovery response lists it.
type Node struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	DeviceID      uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_node_device_address" json:"device_id"`
	Address       string    `gorm:"size:64;uniqueIndex:idx_node_device_address" json:"address"`
	NodeID        string    `gorm:"size:512" json:"node_id"`
	OperatingMode string    `gorm:"size:512" json:"operating_mode"`
	NetworkID     string    `gorm:"size:512" json:"network_id"`
	ParentAddress string    `gorm:"size:64" json:"parent_address"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (Node) TableName() string { return "hub_nodes" }

// CommandFlags holds one readiness boolean per long-running command family.
// Exactly one row exists per device once its announce has been processed.
type CommandFlags struct {
	DeviceID         uuid.UUID `gorm:"primaryKey;type:uuid" json:"device_id"`
	DiscoveryReady   bool      `gorm:"default:false" json:"discovery_ready"`
	DiagnosticsReady bool      `gorm:"default:false" json:"diagnostics_ready"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (CommandFlags) TableName() string { return "hub_command_flags" }

// DiagnosticsReport stores the latest opaque report per device.
type DiagnosticsReport struct {
	DeviceID  uuid.UUID      `gorm:"primaryKey;type:uuid" json:"device_id"`
	Report    datatypes.JSON `json:"report"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (DiagnosticsReport) TableName() string { return "hub_diagnostics" }
