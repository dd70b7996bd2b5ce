package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hubfleet/hubfleet/proto"
	"github.com/hubfleet/hubfleet/store"
)

func (s *Server) HandleListDevices(wr http.ResponseWriter, r *http.Request) {
	devices, err := s.repo.ListDevices()
	if err != nil {
		s.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, devices)
}

func (s *Server) HandleDeviceDetail(wr http.ResponseWriter, r *http.Request) {
	device, ok := s.deviceFromURL(wr, r)
	if !ok {
		return
	}
	writeJSON(wr, http.StatusOK, device)
}

// HandleDeviceNodes returns the device's node inventory. Reading the
// inventory consumes the discovery_ready flag, so pollers can tell fresh
// results from stale ones.
func (s *Server) HandleDeviceNodes(wr http.ResponseWriter, r *http.Request) {
	device, ok := s.deviceFromURL(wr, r)
	if !ok {
		return
	}
	nodes, err := s.repo.ListNodes(device.DeviceID)
	if err != nil {
		s.handleError(wr, err)
		return
	}
	if err := s.repo.SetFlag(device.DeviceID, store.FlagDiscoveryReady, false); err != nil {
		slog.Warn("Failed to reset discovery flag", "device_id", device.DeviceID, "error", err)
	}
	writeJSON(wr, http.StatusOK, nodes)
}

func (s *Server) HandleDeviceFlags(wr http.ResponseWriter, r *http.Request) {
	device, ok := s.deviceFromURL(wr, r)
	if !ok {
		return
	}
	flags, err := s.repo.Flags(device.DeviceID)
	if err != nil {
		s.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusOK, flags)
}

// HandleDeviceDiagnostics returns the latest report and consumes the
// diagnostics_ready flag.
func (s *Server) HandleDeviceDiagnostics(wr http.ResponseWriter, r *http.Request) {
	device, ok := s.deviceFromURL(wr, r)
	if !ok {
		return
	}
	report, err := s.repo.Diagnostics(device.DeviceID)
	if err != nil {
		s.handleError(wr, err)
		return
	}
	if err := s.repo.SetFlag(device.DeviceID, store.FlagDiagnosticsReady, false); err != nil {
		slog.Warn("Failed to reset diagnostics flag", "device_id", device.DeviceID, "error", err)
	}
	writeJSON(wr, http.StatusOK, report)
}

type commandRequest struct {
	Command string   `json:"command"`
	Devices []string `json:"devices,omitempty"`
}

// HandleDeviceCommand sends one command to the device in the URL.
func (s *Server) HandleDeviceCommand(wr http.ResponseWriter, r *http.Request) {
	device, ok := s.deviceFromURL(wr, r)
	if !ok {
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(wr, "Invalid request body", http.StatusBadRequest)
		return
	}
	cmd, err := proto.ParseCommand(req.Command)
	if err != nil {
		http.Error(wr, err.Error(), http.StatusBadRequest)
		return
	}
	infos := s.commander.SendCommand(cmd, device)
	writeJSON(wr, http.StatusAccepted, infos)
}

// HandleBroadcastCommand sends one command to the devices named in the body.
func (s *Server) HandleBroadcastCommand(wr http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(wr, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Devices) == 0 {
		http.Error(wr, "No devices named", http.StatusBadRequest)
		return
	}
	cmd, err := proto.ParseCommand(req.Command)
	if err != nil {
		http.Error(wr, err.Error(), http.StatusBadRequest)
		return
	}
	infos, err := s.commander.SendCommandByName(cmd, req.Devices...)
	if err != nil {
		s.handleError(wr, err)
		return
	}
	writeJSON(wr, http.StatusAccepted, infos)
}

func (s *Server) deviceFromURL(wr http.ResponseWriter, r *http.Request) (*store.Device, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(wr, "Invalid device id", http.StatusBadRequest)
		return nil, false
	}
	device, err := s.repo.FindDevice(id)
	if err != nil {
		s.handleError(wr, err)
		return nil, false
	}
	return device, true
}

func (s *Server) handleError(wr http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrDeviceNotFound),
		errors.Is(err, store.ErrFlagsMissing),
		errors.Is(err, store.ErrDiagnosticsNotFound):
		http.Error(wr, err.Error(), http.StatusNotFound)
	default:
		slog.Error("Request failed", "error", err)
		http.Error(wr, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(wr http.ResponseWriter, status int, v any) {
	wr.Header().Set("Content-Type", "application/json; charset=utf-8")
	wr.WriteHeader(status)
	if err := json.NewEncoder(wr).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
