package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/hubfleet/hubfleet/proto"
)

// Conn is a framed connection to the pub/sub broker.
type Conn interface {
	Connect(addr string) error
	Send(f proto.Frame) error
	Read() (proto.Frame, error) // for one-at-a-time processing
	Close() error
}

// TCPConn speaks newline-delimited JSON frames over TCP.
type TCPConn struct {
	mu      sync.Mutex // serializes writes; the receive loop and publishers share the socket
	conn    net.Conn
	scanner *bufio.Scanner
}

func NewTCPConn() *TCPConn {
	return &TCPConn{}
}

func (t *TCPConn) Connect(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	t.conn = conn
	t.scanner = bufio.NewScanner(conn)
	t.scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return nil
}

func (t *TCPConn) Send(f proto.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.conn.Write(data)
	return err
}

func (t *TCPConn) Read() (proto.Frame, error) {
	for t.scanner.Scan() {
		var f proto.Frame
		if err := json.Unmarshal(t.scanner.Bytes(), &f); err != nil {
			slog.Warn("Invalid JSON frame received", "error", err, "data", string(t.scanner.Bytes()))
			continue
		}
		return f, nil
	}

	if err := t.scanner.Err(); err != nil {
		return proto.Frame{}, err
	}

	return proto.Frame{}, fmt.Errorf("connection closed")
}

func (t *TCPConn) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}
