// Package web exposes the fleet state and command dispatch over a JSON HTTP
// API, plus a websocket feed of live bridge events.
package web

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hubfleet/hubfleet/proto"
	"github.com/hubfleet/hubfleet/store"
	"github.com/hubfleet/hubfleet/transport"
)

// Commander is the slice of the bridge the API uses to send commands.
type Commander interface {
	SendCommand(cmd proto.Command, devices ...*store.Device) map[string]transport.DeliveryInfo
	SendCommandByName(cmd proto.Command, names ...string) (map[string]transport.DeliveryInfo, error)
}

// Server serves the fleet API.
type Server struct {
	repo      store.Repository
	commander Commander
	events    *EventHub
	httpSrv   *http.Server
}

func NewServer(addr string, repo store.Repository, commander Commander, events *EventHub) *Server {
	s := &Server{repo: repo, commander: commander, events: events}
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Routes()}
	return s
}

// Routes builds the API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/devices", s.HandleListDevices)
		r.Get("/devices/{id}", s.HandleDeviceDetail)
		r.Get("/devices/{id}/nodes", s.HandleDeviceNodes)
		r.Get("/devices/{id}/flags", s.HandleDeviceFlags)
		r.Get("/devices/{id}/diagnostics", s.HandleDeviceDiagnostics)
		r.Post("/devices/{id}/commands", s.HandleDeviceCommand)
		r.Post("/commands", s.HandleBroadcastCommand)
	})
	if s.events != nil {
		r.Get("/ws/events", s.events.HandleWS)
	}
	return r
}

// Start serves HTTP until Shutdown. Blocks; run on its own goroutine.
func (s *Server) Start() error {
	slog.Info("Web API listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.events != nil {
		s.events.Close()
	}
	return s.httpSrv.Shutdown(ctx)
}
