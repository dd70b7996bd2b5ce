package broker

import (
	"bufio"
	"encoding/json"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/hubfleet/hubfleet/proto"
)

// TCPServer accepts framed connections and routes their subscribe,
// unsubscribe and publish frames through a Broker.
type TCPServer struct {
	Addr     string
	broker   *Broker
	listener net.Listener

	cmu        sync.RWMutex
	sessions   map[string]*session
	maxClients int
}

func NewTCPServer(addr string, b *Broker) *TCPServer {
	return &TCPServer{Addr: addr, broker: b, maxClients: 64, sessions: make(map[string]*session)}
}

// Start binds the listener and serves connections on a background goroutine.
func (t *TCPServer) Start() error {
	slog.Info("Starting broker", "addr", t.Addr)

	l, err := net.Listen("tcp", t.Addr)
	if err != nil {
		return err
	}
	t.listener = l
	go t.serve()
	return nil
}

// ListenAddr reports the bound address, useful when Addr requested port 0.
func (t *TCPServer) ListenAddr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *TCPServer) serve() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			return // exits goroutine when listener is closed
		}

		t.cmu.RLock()
		sessionCount := len(t.sessions)
		t.cmu.RUnlock()

		if sessionCount >= t.maxClients {
			slog.Warn("Max clients reached, rejecting connection", "remote_addr", conn.RemoteAddr())
			conn.Close()
			continue
		}

		go t.handleConnection(conn)
	}
}

func (t *TCPServer) handleConnection(c net.Conn) {
	ip := c.RemoteAddr().String()
	sess := newSession(c)
	slog.Info("Client connected", "addr", ip, "id", sess.id)

	t.cmu.Lock()
	t.sessions[sess.id] = sess
	t.cmu.Unlock()

	defer func() {
		t.cmu.Lock()
		delete(t.sessions, sess.id)
		t.cmu.Unlock()

		t.broker.Drop(sess)
		c.Close()
		slog.Info("Client disconnected", "addr", ip, "id", sess.id)
	}()

	reader := bufio.NewScanner(c)
	reader.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for reader.Scan() {
		line := reader.Bytes()
		var f proto.Frame
		if err := json.Unmarshal(line, &f); err != nil {
			slog.Warn("Invalid JSON frame received", "error", err, "data", string(line))
			continue
		}

		switch f.Type {
		case proto.FrameSubscribe, proto.FrameUnsubscribe:
			var sub proto.SubscriptionPayload
			if err := json.Unmarshal(f.Payload, &sub); err != nil {
				slog.Warn("Invalid subscription payload", "error", err, "data", string(line))
				continue
			}
			for _, topic := range sub.Topics {
				if f.Type == proto.FrameSubscribe {
					t.broker.Subscribe(topic, sess)
				} else {
					t.broker.Unsubscribe(topic, sess)
				}
			}
		case proto.FramePublish:
			t.broker.Publish(f)
		default:
			slog.Warn("Unhandled frame type", "type", f.Type, "id", sess.id)
		}
	}

	if err := reader.Err(); err != nil {
		slog.Warn("Connection error", "addr", ip, "error", err)
	}
}

func (t *TCPServer) Shutdown() error {
	slog.Info("Shutting down broker", "addr", t.Addr)
	if t.listener != nil {
		if err := t.listener.Close(); err != nil {
			return err
		}
	}

	t.cmu.Lock()
	defer t.cmu.Unlock()
	for _, sess := range t.sessions {
		sess.conn.Close()
	}
	return nil
}

// session is one connected client of the broker.
type session struct {
	id   string
	conn net.Conn
	wmu  sync.Mutex
}

func newSession(conn net.Conn) *session {
	return &session{id: "session-" + uuid.NewString(), conn: conn}
}

func (s *session) ID() string { return s.id }

func (s *session) Send(f proto.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err = s.conn.Write(data)
	return err
}
