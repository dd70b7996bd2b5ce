package bridge

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventDeviceAnnounced     EventKind = "device_announced"
	EventNodesDiscovered     EventKind = "nodes_discovered"
	EventDiagnosticsReceived EventKind = "diagnostics_received"
)

// Event describes one lifecycle change, for live consumers like the
// websocket feed.
type Event struct {
	Kind        EventKind `json:"kind"`
	DeviceID    uuid.UUID `json:"device_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Nodes       int       `json:"nodes,omitempty"`
	Time        time.Time `json:"time"`
}
