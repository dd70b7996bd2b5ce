package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hubfleet/hubfleet/proto"
	"github.com/hubfleet/hubfleet/store"
	"github.com/hubfleet/hubfleet/transport"
)

// Commander is the slice of the bridge the tools use to send commands.
type Commander interface {
	SendCommandByName(cmd proto.Command, names ...string) (map[string]transport.DeliveryInfo, error)
}

// Tools binds the fleet repository and command dispatch to MCP tool handlers.
type Tools struct {
	repo      store.Repository
	commander Commander
}

func NewTools(repo store.Repository, commander Commander) *Tools {
	return &Tools{repo: repo, commander: commander}
}

// Register adds all fleet tools to the MCP server.
func (t *Tools) Register(s *MCPServer) {
	listDevicesTool := mcp.NewTool("list_devices",
		mcp.WithDescription("List all registered hub devices with their last check-in time"),
	)
	s.Server.AddTool(listDevicesTool, t.handleListDevices)

	listNodesTool := mcp.NewTool("list_nodes",
		mcp.WithDescription("List the mesh nodes discovered behind a hub device"),
		mcp.WithString("device_id",
			mcp.Required(),
			mcp.Description("UUID of the hub device"),
		),
	)
	s.Server.AddTool(listNodesTool, t.handleListNodes)

	diagnosticsTool := mcp.NewTool("get_diagnostics",
		mcp.WithDescription("Get the latest diagnostics report a hub device sent"),
		mcp.WithString("device_id",
			mcp.Required(),
			mcp.Description("UUID of the hub device"),
		),
	)
	s.Server.AddTool(diagnosticsTool, t.handleGetDiagnostics)

	sendCommandTool := mcp.NewTool("send_command",
		mcp.WithDescription("Send a command to a hub device by display name"),
		mcp.WithString("device",
			mcp.Required(),
			mcp.Description("Display name of the hub device"),
		),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Command name to send"),
			mcp.Enum("ping", "diagnostics", "discovery"),
		),
	)
	s.Server.AddTool(sendCommandTool, t.handleSendCommand)
}

func (t *Tools) handleListDevices(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := t.repo.ListDevices()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error listing devices: %v", err)), err
	}

	result := map[string]interface{}{
		"devices": devices,
		"count":   len(devices),
	}
	resultBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(resultBytes)), nil
}

func (t *Tools) handleListNodes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, res := t.requireDeviceID(request)
	if res != nil {
		return res, nil
	}

	nodes, err := t.repo.ListNodes(deviceID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Error listing nodes: %v", err)), err
	}

	result := map[string]interface{}{
		"device_id": deviceID,
		"nodes":     nodes,
		"count":     len(nodes),
	}
	resultBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(resultBytes)), nil
}

func (t *Tools) handleGetDiagnostics(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, res := t.requireDeviceID(request)
	if res != nil {
		return res, nil
	}

	report, err := t.repo.Diagnostics(deviceID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("No diagnostics for device %s: %v", deviceID, err)), err
	}

	resultBytes, _ := json.Marshal(report)
	return mcp.NewToolResultText(string(resultBytes)), nil
}

func (t *Tools) handleSendCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	device, err := request.RequireString("device")
	if err != nil {
		return mcp.NewToolResultError("device is required and must be a string"), err
	}
	name, err := request.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError("command is required and must be a string"), err
	}

	cmd, err := proto.ParseCommand(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), err
	}

	infos, err := t.commander.SendCommandByName(cmd, device)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to send command: %v", err)), err
	}
	if len(infos) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("No device named %q", device)), nil
	}

	resultBytes, _ := json.Marshal(infos)
	return mcp.NewToolResultText(string(resultBytes)), nil
}

func (t *Tools) requireDeviceID(request mcp.CallToolRequest) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := request.RequireString("device_id")
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError("device_id is required and must be a string")
	}
	deviceID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError(fmt.Sprintf("device_id is not a UUID: %v", err))
	}
	return deviceID, nil
}
