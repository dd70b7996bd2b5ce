// hubsim simulates one hub device against a running broker and bridge. It
// announces on start, re-announces periodically, and answers ping, discovery
// and diagnostics commands with canned data.
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/hubfleet/hubfleet/proto"
	"github.com/hubfleet/hubfleet/transport"
)

func main() {
	brokerAddr := flag.String("broker", "localhost:9000", "broker address")
	id := flag.String("id", uuid.NewString(), "device UUID")
	name := flag.String("name", "sim-hub", "display name")
	passphrase := flag.String("passphrase", "opensesame", "connect passphrase")
	root := flag.String("root", "hubfleet", "root channel")
	interval := flag.Duration("announce-every", time.Minute, "re-announce interval")
	flag.Parse()

	logger := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(logger))

	deviceID, err := uuid.Parse(*id)
	if err != nil {
		slog.Error("Invalid device id", "error", err)
		os.Exit(1)
	}

	host, portStr, err := net.SplitHostPort(*brokerAddr)
	if err != nil {
		slog.Error("Invalid broker address", "error", err)
		os.Exit(1)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		slog.Error("Invalid broker port", "error", err)
		os.Exit(1)
	}

	client := transport.NewClient(transport.NewTCPConn())
	if err := client.Connect(host, port); err != nil {
		slog.Error("Failed to connect", "error", err)
		os.Exit(1)
	}

	sim := &simulator{
		client:   client,
		deviceID: deviceID,
		root:     *root,
		announce: proto.AnnouncePayload{
			DeviceID:          deviceID.String(),
			ConnectPassphrase: *passphrase,
			DisplayName:       *name,
		},
	}

	// Commands for this device arrive on its talk channel.
	if err := client.Subscribe(proto.TalkChannel(*root, deviceID), sim.handleCommand); err != nil {
		slog.Error("Failed to subscribe talk channel", "error", err)
		os.Exit(1)
	}
	client.Start()

	sim.sendAnnounce()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for range ticker.C {
		sim.sendAnnounce()
	}
}

type simulator struct {
	client   *transport.Client
	deviceID uuid.UUID
	root     string
	announce proto.AnnouncePayload
}

func (s *simulator) sendAnnounce() {
	payload, err := json.Marshal(s.announce)
	if err != nil {
		slog.Error("Failed to marshal announce", "error", err)
		return
	}
	pkt := proto.Packet{SenderID: s.deviceID.String(), Payload: payload}
	if _, err := s.client.Publish(proto.AnnounceChannel(s.root), pkt); err != nil {
		slog.Error("Announce failed", "error", err)
		return
	}
	slog.Info("Announced", "device_id", s.deviceID)
}

func (s *simulator) handleCommand(topic string, pkt proto.Packet) {
	if pkt.Command == nil {
		slog.Warn("Command packet without command", "topic", topic)
		return
	}
	slog.Info("Command received", "command", pkt.Command.String())

	switch *pkt.Command {
	case proto.CmdAnnounceAck:
		slog.Info("Announce acknowledged")

	case proto.CmdPing:
		s.reply(proto.CmdPong, nil)

	case proto.CmdDiscovery:
		s.reply(proto.CmdDiscovery, []proto.NodeDescriptor{
			{Address: "0x01", NodeID: "node-coord", OperatingMode: "coordinator", NetworkID: "mesh-1"},
			{Address: "0x12", NodeID: "node-a", OperatingMode: "router", NetworkID: "mesh-1", ParentDevice: "0x01"},
			{Address: "0x1f", NodeID: "node-b", OperatingMode: "end-device", NetworkID: "mesh-1", ParentDevice: "0x12"},
		})

	case proto.CmdDiagnostics:
		s.reply(proto.CmdDiagnostics, map[string]any{
			"uptime_s":  int(time.Since(startTime).Seconds()),
			"free_mem":  81920,
			"firmware":  "sim-1.0.0",
			"wifi_rssi": -52,
		})

	default:
		s.reply(proto.CmdNack, nil)
	}
}

func (s *simulator) reply(cmd proto.Command, payload any) {
	pkt := proto.NewPacket(cmd, s.deviceID.String())
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			slog.Error("Failed to marshal reply payload", "error", err)
			return
		}
		pkt.Payload = raw
	}
	if _, err := s.client.Publish(proto.ListenChannel(s.root, s.deviceID), pkt); err != nil {
		slog.Error("Reply failed", "command", cmd.String(), "error", err)
	}
}

var startTime = time.Now()
