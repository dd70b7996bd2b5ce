package store

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Flag names a per-device readiness flag.
type Flag string

const (
	FlagDiscoveryReady   Flag = "discovery_ready"
	FlagDiagnosticsReady Flag = "diagnostics_ready"
)

var (
	ErrDeviceNotFound = errors.New("store: device not found")

	// ErrFlagsMissing indicates a device row exists without its flags row,
	// which means a prior announce failed partway through. Callers abort the
	// current operation only; the startup reconciliation pass repairs it.
	ErrFlagsMissing = errors.New("store: command flags record missing")

	ErrUnknownFlag = errors.New("store: unknown flag")

	ErrDiagnosticsNotFound = errors.New("store: no diagnostics report")
)

// Repository is the storage surface the bridge depends on. Implementations
// must make UpsertDevice and UpsertNode atomic per key so simultaneous
// writers cannot create duplicate rows.
type Repository interface {
	FindDevice(id uuid.UUID) (*Device, error)
	FindDeviceByName(name string) (*Device, error)
	ListDevices() ([]Device, error)
	UpsertDevice(d *Device) error

	// EnsureFlags creates the flags row for a device if absent. Idempotent.
	EnsureFlags(deviceID uuid.UUID) error
	Flags(deviceID uuid.UUID) (*CommandFlags, error)
	SetFlag(deviceID uuid.UUID, flag Flag, value bool) error

	UpsertNode(n *Node) error
	ListNodes(deviceID uuid.UUID) ([]Node, error)

	UpsertDiagnostics(deviceID uuid.UUID, report datatypes.JSON) error
	Diagnostics(deviceID uuid.UUID) (*DiagnosticsReport, error)
}
