// Package bridge wires announce handling, device lifecycle and command
// dispatch between the pub/sub transport and the storage repository.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/hubfleet/hubfleet/proto"
	"github.com/hubfleet/hubfleet/store"
	"github.com/hubfleet/hubfleet/transport"
)

// Transport is the slice of the broker client the bridge uses.
type Transport interface {
	Subscribe(topic string, handler transport.HandlerFunc) error
	Publish(topic string, pkt proto.Packet) (transport.DeliveryInfo, error)
}

// Bridge routes announce and direct-message traffic between the fleet and
// storage. All handler invocations happen sequentially on the transport's
// receive goroutine.
type Bridge struct {
	transport Transport
	repo      store.Repository
	root      string
	senderID  string

	now     func() time.Time
	onEvent func(Event)
}

func New(t Transport, repo store.Repository, root string, senderID uuid.UUID) *Bridge {
	return &Bridge{
		transport: t,
		repo:      repo,
		root:      root,
		senderID:  senderID.String(),
		now:       time.Now,
	}
}

// OnEvent registers a callback invoked after each lifecycle change. Set it
// before Start; the callback runs on the receive goroutine and must be quick.
func (b *Bridge) OnEvent(fn func(Event)) {
	b.onEvent = fn
}

// Start reconciles existing device records and subscribes the announce
// channel. After Start returns, the bridge is serving traffic.
func (b *Bridge) Start() error {
	if err := b.reconcile(); err != nil {
		return err
	}
	if err := b.transport.Subscribe(proto.AnnounceChannel(b.root), b.HandleAnnounce); err != nil {
		return fmt.Errorf("subscribe announce channel: %w", err)
	}
	slog.Info("Bridge started", "root", b.root)
	return nil
}

// reconcile repairs partial announce failures from earlier runs: every known
// device gets its flags row and an active listen subscription before new
// traffic is accepted.
func (b *Bridge) reconcile() error {
	devices, err := b.repo.ListDevices()
	if err != nil {
		return fmt.Errorf("load devices: %w", err)
	}
	for i := range devices {
		d := &devices[i]
		if err := b.repo.EnsureFlags(d.DeviceID); err != nil {
			return fmt.Errorf("reconcile flags for %s: %w", d.DeviceID, err)
		}
		if err := b.transport.Subscribe(d.ListenChannel(b.root), b.HandleDirect); err != nil {
			return fmt.Errorf("subscribe listen channel for %s: %w", d.DeviceID, err)
		}
	}
	slog.Info("Restored device subscriptions", "devices", len(devices))
	return nil
}

// HandleAnnounce processes a registration/check-in packet from the shared
// announce channel. Invalid packets are logged and dropped.
func (b *Bridge) HandleAnnounce(topic string, pkt proto.Packet) {
	var ann proto.AnnouncePayload
	if pkt.Payload == nil {
		slog.Error("Announce packet has no payload", "topic", topic)
		return
	}
	if err := json.Unmarshal(pkt.Payload, &ann); err != nil {
		slog.Error("Invalid announce payload", "topic", topic, "error", err)
		return
	}
	if ann.DeviceID == "" || ann.ConnectPassphrase == "" {
		slog.Error("Announce missing device_id or connect_passphrase", "topic", topic)
		return
	}
	deviceID, err := uuid.Parse(ann.DeviceID)
	if err != nil {
		slog.Error("Announce device_id is not a UUID", "device_id", ann.DeviceID, "error", err)
		return
	}

	device, err := b.repo.FindDevice(deviceID)
	switch {
	case errors.Is(err, store.ErrDeviceNotFound):
		device = &store.Device{
			DeviceID:          deviceID,
			ConnectPassphrase: ann.ConnectPassphrase,
			DisplayName:       ann.DisplayName,
			LastCheckin:       b.now(),
		}
		if err := b.registerDevice(device); err != nil {
			slog.Error("Failed to register device", "device_id", deviceID, "error", err)
			return
		}
		slog.Info("Registered new device", "device_id", deviceID, "name", ann.DisplayName)

	case err != nil:
		slog.Error("Device lookup failed", "device_id", deviceID, "error", err)
		return

	default:
		device.LastCheckin = b.now()
		if err := b.repo.UpsertDevice(device); err != nil {
			slog.Error("Failed to update checkin", "device_id", deviceID, "error", err)
			return
		}
		slog.Info("Device checked in", "device_id", deviceID)
	}

	b.emit(Event{Kind: EventDeviceAnnounced, DeviceID: deviceID, DisplayName: device.DisplayName, Time: b.now()})

	if _, err := b.transport.Publish(device.TalkChannel(b.root), proto.NewPacket(proto.CmdAnnounceAck, b.senderID)); err != nil {
		slog.Error("Failed to acknowledge announce", "device_id", deviceID, "error", err)
	}
}

// registerDevice creates the device record, its flags row and the dedicated
// listen subscription. Runs exactly once per device, at first-announce time.
func (b *Bridge) registerDevice(device *store.Device) error {
	if err := b.repo.UpsertDevice(device); err != nil {
		return err
	}
	if err := b.repo.EnsureFlags(device.DeviceID); err != nil {
		return err
	}
	if err := b.transport.Subscribe(device.ListenChannel(b.root), b.HandleDirect); err != nil {
		return fmt.Errorf("subscribe listen channel: %w", err)
	}
	return nil
}

// HandleDirect processes a packet from a device's listen channel and
// dispatches on its command code.
func (b *Bridge) HandleDirect(topic string, pkt proto.Packet) {
	if pkt.SenderID == "" {
		slog.Error("Direct message without sender id", "topic", topic)
		return
	}
	senderID, err := uuid.Parse(pkt.SenderID)
	if err != nil {
		slog.Error("Direct message sender is not a UUID", "sender_id", pkt.SenderID, "error", err)
		return
	}

	device, err := b.repo.FindDevice(senderID)
	if errors.Is(err, store.ErrDeviceNotFound) {
		// Protocol violation: traffic from a sender that never announced.
		slog.Error("Dropping message from unregistered sender", "sender_id", senderID, "topic", topic)
		return
	}
	if err != nil {
		slog.Error("Device lookup failed", "sender_id", senderID, "error", err)
		return
	}

	if pkt.Command == nil {
		// Unsolicited device message, not part of the protocol yet.
		slog.Warn("Unsolicited message from device", "device_id", device.DeviceID)
		return
	}

	switch *pkt.Command {
	case proto.CmdPong:
		slog.Info("Device responded to ping", "device_id", device.DeviceID)

	case proto.CmdDiscovery:
		b.handleDiscovery(device, pkt)

	case proto.CmdDiagnostics:
		b.handleDiagnostics(device, pkt)

	default:
		slog.Warn("No handler for command", "command", pkt.Command.String(), "device_id", device.DeviceID)
	}
}

func (b *Bridge) handleDiscovery(device *store.Device, pkt proto.Packet) {
	var descriptors []proto.NodeDescriptor
	if err := json.Unmarshal(pkt.Payload, &descriptors); err != nil {
		slog.Error("Invalid discovery payload", "device_id", device.DeviceID, "error", err)
		return
	}
	if len(descriptors) == 0 {
		slog.Info("Discovery returned no nodes", "device_id", device.DeviceID)
		return
	}

	for _, nd := range descriptors {
		node := &store.Node{
			DeviceID:      device.DeviceID,
			Address:       nd.Address,
			NodeID:        nd.NodeID,
			OperatingMode: nd.OperatingMode,
			NetworkID:     nd.NetworkID,
			ParentAddress: nd.ParentDevice,
		}
		if err := b.repo.UpsertNode(node); err != nil {
			slog.Error("Node upsert failed", "device_id", device.DeviceID, "address", nd.Address, "error", err)
		}
	}
	slog.Info("Discovery processed", "device_id", device.DeviceID, "nodes", len(descriptors))

	if err := b.repo.SetFlag(device.DeviceID, store.FlagDiscoveryReady, true); err != nil {
		slog.Error("Failed to set discovery flag", "device_id", device.DeviceID, "error", err)
		return
	}
	b.emit(Event{Kind: EventNodesDiscovered, DeviceID: device.DeviceID, Nodes: len(descriptors), Time: b.now()})
}

func (b *Bridge) handleDiagnostics(device *store.Device, pkt proto.Packet) {
	if len(pkt.Payload) == 0 {
		slog.Error("Diagnostics packet has no payload", "device_id", device.DeviceID)
		return
	}
	if err := b.repo.UpsertDiagnostics(device.DeviceID, datatypes.JSON(pkt.Payload)); err != nil {
		slog.Error("Failed to store diagnostics report", "device_id", device.DeviceID, "error", err)
		return
	}
	if err := b.repo.SetFlag(device.DeviceID, store.FlagDiagnosticsReady, true); err != nil {
		slog.Error("Failed to set diagnostics flag", "device_id", device.DeviceID, "error", err)
		return
	}
	slog.Info("Diagnostics report stored", "device_id", device.DeviceID, "size", len(pkt.Payload))
	b.emit(Event{Kind: EventDiagnosticsReceived, DeviceID: device.DeviceID, Time: b.now()})
}

// SendCommand publishes cmd with no payload to every listed device and
// returns delivery info keyed by display name.
func (b *Bridge) SendCommand(cmd proto.Command, devices ...*store.Device) map[string]transport.DeliveryInfo {
	infos := make(map[string]transport.DeliveryInfo, len(devices))
	for _, d := range devices {
		slog.Info("Sending command", "command", cmd.String(), "device_id", d.DeviceID)
		info, err := b.transport.Publish(d.TalkChannel(b.root), proto.NewPacket(cmd, b.senderID))
		if err != nil {
			slog.Error("Publish failed", "device_id", d.DeviceID, "command", cmd.String(), "error", err)
		}
		infos[d.DisplayName] = info
	}
	return infos
}

// SendCommandByName resolves display names through the repository before
// sending. Names with no matching record are skipped.
func (b *Bridge) SendCommandByName(cmd proto.Command, names ...string) (map[string]transport.DeliveryInfo, error) {
	devices := make([]*store.Device, 0, len(names))
	for _, name := range names {
		d, err := b.repo.FindDeviceByName(name)
		if errors.Is(err, store.ErrDeviceNotFound) {
			slog.Warn("No device with name", "name", name)
			continue
		}
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return b.SendCommand(cmd, devices...), nil
}

// DispatchQueued sends one queued command to a registered device. The queue
// consumer calls this for every valid queue entry.
func (b *Bridge) DispatchQueued(deviceID uuid.UUID, cmd proto.Command) error {
	device, err := b.repo.FindDevice(deviceID)
	if err != nil {
		return fmt.Errorf("lookup device %s: %w", deviceID, err)
	}
	if _, err := b.transport.Publish(device.TalkChannel(b.root), proto.NewPacket(cmd, b.senderID)); err != nil {
		return err
	}
	slog.Info("Dispatched queued command", "device_id", deviceID, "command", cmd.String())
	return nil
}

func (b *Bridge) emit(ev Event) {
	if b.onEvent != nil {
		b.onEvent(ev)
	}
}
