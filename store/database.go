package store

import (
	"fmt"
	"log/slog"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	embeddedPort     = 5433
	embeddedDataPath = "./db_data"
	embeddedDSN      = "host=127.0.0.1 port=5433 user=postgres password=postgres dbname=hubfleet sslmode=disable"
)

// DB wraps gorm.DB and keeps a reference to the embedded server if one was
// started.
type DB struct {
	*gorm.DB
	embedded *embeddedpostgres.EmbeddedPostgres
}

// Open connects to PostgreSQL and migrates the schema. With embedded=true a
// local PostgreSQL instance is booted first and dsn is ignored; this is the
// zero-setup development mode.
func Open(dsn string, embedded bool) (*DB, error) {
	var ep *embeddedpostgres.EmbeddedPostgres
	if embedded {
		slog.Info("Starting embedded PostgreSQL", "port", embeddedPort, "data_path", embeddedDataPath)
		ep = embeddedpostgres.NewDatabase(embeddedpostgres.DefaultConfig().
			Username("postgres").
			Password("postgres").
			Database("hubfleet").
			Port(embeddedPort).
			DataPath(embeddedDataPath))
		if err := ep.Start(); err != nil {
			return nil, fmt.Errorf("start embedded postgres: %w", err)
		}
		dsn = embeddedDSN
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		if ep != nil {
			ep.Stop()
		}
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&Device{}, &Node{}, &CommandFlags{}, &DiagnosticsReport{}); err != nil {
		if ep != nil {
			ep.Stop()
		}
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &DB{DB: db, embedded: ep}, nil
}

func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	if err == nil {
		sqlDB.Close()
	}
	if d.embedded != nil {
		if err := d.embedded.Stop(); err != nil {
			return fmt.Errorf("stop embedded postgres: %w", err)
		}
	}
	return nil
}
