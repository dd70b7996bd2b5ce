// Package config loads bridge configuration from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

// Config holds all bridge configuration.
type Config struct {
	RootChannel string
	BridgeID    uuid.UUID
	Broker      BrokerConfig
	Queue       QueueConfig
	HTTPAddr    string
	Database    DatabaseConfig
	EnableMCP   bool
}

// BrokerConfig points at the pub/sub broker.
type BrokerConfig struct {
	Host string
	Port int
}

// QueueConfig points at the command queue.
type QueueConfig struct {
	URL     string
	Subject string
}

// DatabaseConfig selects between an external PostgreSQL and the embedded
// development instance. An empty DSN with Embedded=false selects the
// in-memory repository.
type DatabaseConfig struct {
	DSN      string
	Embedded bool
}

// defaultBridgeID identifies the bridge itself on the wire. Firmware treats
// the all-f sender as the cloud.
const defaultBridgeID = "ffffffff-ffff-ffff-ffff-ffffffffffff"

// Load reads configuration from environment variables, loading .env first if
// one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	brokerPort, err := strconv.Atoi(getEnv("HUBFLEET_BROKER_PORT", "9000"))
	if err != nil {
		return nil, fmt.Errorf("HUBFLEET_BROKER_PORT: %w", err)
	}

	bridgeID, err := uuid.Parse(getEnv("HUBFLEET_BRIDGE_ID", defaultBridgeID))
	if err != nil {
		return nil, fmt.Errorf("HUBFLEET_BRIDGE_ID: %w", err)
	}

	return &Config{
		RootChannel: getEnv("HUBFLEET_ROOT_CHANNEL", "hubfleet"),
		BridgeID:    bridgeID,
		Broker: BrokerConfig{
			Host: getEnv("HUBFLEET_BROKER_HOST", "localhost"),
			Port: brokerPort,
		},
		Queue: QueueConfig{
			URL:     getEnv("HUBFLEET_NATS_URL", nats.DefaultURL),
			Subject: getEnv("HUBFLEET_CMD_SUBJECT", "hubfleet.commands"),
		},
		HTTPAddr: getEnv("HUBFLEET_HTTP_ADDR", ":8080"),
		Database: DatabaseConfig{
			DSN:      os.Getenv("DATABASE_URL"),
			Embedded: getEnv("HUBFLEET_EMBEDDED_DB", "false") == "true",
		},
		EnableMCP: getEnv("HUBFLEET_MCP", "false") == "true",
	}, nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
