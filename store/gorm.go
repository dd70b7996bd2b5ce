package store

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRepository implements Repository on a gorm-managed database.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) FindDevice(id uuid.UUID) (*Device, error) {
	var d Device
	err := r.db.First(&d, "device_id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find device %s: %w", id, err)
	}
	return &d, nil
}

func (r *GormRepository) FindDeviceByName(name string) (*Device, error) {
	var d Device
	err := r.db.First(&d, "display_name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find device by name %q: %w", name, err)
	}
	return &d, nil
}

func (r *GormRepository) ListDevices() ([]Device, error) {
	var devices []Device
	if err := r.db.Order("created_at").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return devices, nil
}

// UpsertDevice inserts the device or, when the id already exists, updates its
// mutable columns. ON CONFLICT serializes simultaneous first announces.
func (r *GormRepository) UpsertDevice(d *Device) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"connect_passphrase", "display_name", "last_checkin", "current_state", "updated_at",
		}),
	}).Create(d).Error
	if err != nil {
		return fmt.Errorf("upsert device %s: %w", d.DeviceID, err)
	}
	return nil
}

func (r *GormRepository) EnsureFlags(deviceID uuid.UUID) error {
	err := r.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&CommandFlags{DeviceID: deviceID}).Error
	if err != nil {
		return fmt.Errorf("ensure flags for %s: %w", deviceID, err)
	}
	return nil
}

func (r *GormRepository) Flags(deviceID uuid.UUID) (*CommandFlags, error) {
	var f CommandFlags
	err := r.db.First(&f, "device_id = ?", deviceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFlagsMissing
	}
	if err != nil {
		return nil, fmt.Errorf("flags for %s: %w", deviceID, err)
	}
	return &f, nil
}

func (r *GormRepository) SetFlag(deviceID uuid.UUID, flag Flag, value bool) error {
	column, err := flagColumn(flag)
	if err != nil {
		return err
	}
	tx := r.db.Model(&CommandFlags{}).Where("device_id = ?", deviceID).Update(column, value)
	if tx.Error != nil {
		return fmt.Errorf("set %s for %s: %w", flag, deviceID, tx.Error)
	}
	if tx.RowsAffected == 0 {
		return ErrFlagsMissing
	}
	return nil
}

func flagColumn(flag Flag) (string, error) {
	switch flag {
	case FlagDiscoveryReady:
		return "discovery_ready", nil
	case FlagDiagnosticsReady:
		return "diagnostics_ready", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFlag, flag)
	}
}

func (r *GormRepository) UpsertNode(n *Node) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}, {Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"node_id", "operating_mode", "network_id", "parent_address", "updated_at",
		}),
	}).Create(n).Error
	if err != nil {
		return fmt.Errorf("upsert node (%s, %s): %w", n.DeviceID, n.Address, err)
	}
	return nil
}

func (r *GormRepository) ListNodes(deviceID uuid.UUID) ([]Node, error) {
	var nodes []Node
	if err := r.db.Where("device_id = ?", deviceID).Order("address").Find(&nodes).Error; err != nil {
		return nil, fmt.Errorf("list nodes for %s: %w", deviceID, err)
	}
	return nodes, nil
}

func (r *GormRepository) UpsertDiagnostics(deviceID uuid.UUID, report datatypes.JSON) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"report", "updated_at"}),
	}).Create(&DiagnosticsReport{DeviceID: deviceID, Report: report}).Error
	if err != nil {
		return fmt.Errorf("upsert diagnostics for %s: %w", deviceID, err)
	}
	return nil
}

func (r *GormRepository) Diagnostics(deviceID uuid.UUID) (*DiagnosticsReport, error) {
	var rep DiagnosticsReport
	err := r.db.First(&rep, "device_id = ?", deviceID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDiagnosticsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("diagnostics for %s: %w", deviceID, err)
	}
	return &rep, nil
}
