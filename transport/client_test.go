package transport

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hubfleet/hubfleet/proto"
)

// MockConn scripts inbound frames and records outbound ones.
type MockConn struct {
	mu       sync.Mutex
	sent     []proto.Frame
	inbound  chan proto.Frame
	closed   chan struct{}
	closeErr error
	sendErr  error
}

func NewMockConn() *MockConn {
	return &MockConn{
		inbound: make(chan proto.Frame, 16),
		closed:  make(chan struct{}),
	}
}

func (m *MockConn) Connect(addr string) error { return nil }

func (m *MockConn) Send(f proto.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, f)
	return nil
}

func (m *MockConn) Read() (proto.Frame, error) {
	select {
	case f, ok := <-m.inbound:
		if !ok {
			return proto.Frame{}, errors.New("connection closed")
		}
		return f, nil
	case <-m.closed:
		return proto.Frame{}, errors.New("connection closed")
	}
}

func (m *MockConn) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return m.closeErr
}

func (m *MockConn) Sent() []proto.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]proto.Frame, len(m.sent))
	copy(result, m.sent)
	return result
}

func (m *MockConn) Deliver(topic string, pkt proto.Packet) {
	data, _ := json.Marshal(pkt)
	m.inbound <- proto.Frame{Type: proto.FramePublish, Topic: topic, Payload: data}
}

func TestClientSubscribeSendsFrame(t *testing.T) {
	conn := NewMockConn()
	client := NewClient(conn)

	err := client.Subscribe("hubfleet/announce", func(string, proto.Packet) {})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	sent := conn.Sent()
	if len(sent) != 1 {
		t.Fatalf("Expected 1 frame sent, got %d", len(sent))
	}
	if sent[0].Type != proto.FrameSubscribe {
		t.Errorf("Expected subscribe frame, got %q", sent[0].Type)
	}
	var sub proto.SubscriptionPayload
	if err := json.Unmarshal(sent[0].Payload, &sub); err != nil {
		t.Fatalf("Invalid subscription payload: %v", err)
	}
	if len(sub.Topics) != 1 || sub.Topics[0] != "hubfleet/announce" {
		t.Errorf("Unexpected topics %v", sub.Topics)
	}
}

func TestClientDispatchExactTopic(t *testing.T) {
	conn := NewMockConn()
	client := NewClient(conn)

	received := make(chan proto.Packet, 1)
	client.Subscribe("hubfleet/announce", func(topic string, pkt proto.Packet) {
		received <- pkt
	})
	client.Start()
	defer client.Stop()

	conn.Deliver("hubfleet/announce", proto.NewPacket(proto.CmdPing, "sender-1"))

	select {
	case pkt := <-received:
		if pkt.Command == nil || *pkt.Command != proto.CmdPing {
			t.Errorf("Unexpected packet %+v", pkt)
		}
		if pkt.SenderID != "sender-1" {
			t.Errorf("Expected sender-1, got %q", pkt.SenderID)
		}
	case <-time.After(time.Second):
		t.Fatal("Handler was not invoked")
	}
}

func TestClientDispatchWildcard(t *testing.T) {
	conn := NewMockConn()
	client := NewClient(conn)

	received := make(chan string, 1)
	client.Subscribe("hubfleet/#", func(topic string, pkt proto.Packet) {
		received <- topic
	})
	client.Start()
	defer client.Stop()

	conn.Deliver("hubfleet/6b429ab7-8d25-4a9d-8419-897b1b4f4577", proto.NewPacket(proto.CmdPong, ""))

	select {
	case topic := <-received:
		if topic != "hubfleet/6b429ab7-8d25-4a9d-8419-897b1b4f4577" {
			t.Errorf("Unexpected topic %q", topic)
		}
	case <-time.After(time.Second):
		t.Fatal("Wildcard handler was not invoked")
	}
}

func TestClientMalformedPacketDropped(t *testing.T) {
	conn := NewMockConn()
	client := NewClient(conn)

	received := make(chan proto.Packet, 2)
	client.Subscribe("hubfleet/announce", func(topic string, pkt proto.Packet) {
		received <- pkt
	})
	client.Start()
	defer client.Stop()

	// Garbage payload must be dropped without killing the loop.
	conn.inbound <- proto.Frame{Type: proto.FramePublish, Topic: "hubfleet/announce", Payload: json.RawMessage(`"oops"`)}
	conn.Deliver("hubfleet/announce", proto.NewPacket(proto.CmdPing, ""))

	select {
	case pkt := <-received:
		if pkt.Command == nil || *pkt.Command != proto.CmdPing {
			t.Errorf("Expected the valid packet after the malformed one, got %+v", pkt)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive loop did not survive malformed packet")
	}
}

func TestClientPublishDeliveryInfo(t *testing.T) {
	conn := NewMockConn()
	client := NewClient(conn)

	info, err := client.Publish("hubfleet/x/cloud", proto.NewPacket(proto.CmdPing, ""))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if info.Code != DeliverySuccess {
		t.Errorf("Expected success, got %v", info.Code)
	}
	if info.MessageID == 0 {
		t.Error("Expected a non-zero message id")
	}

	info2, _ := client.Publish("hubfleet/x/cloud", proto.NewPacket(proto.CmdPing, ""))
	if info2.MessageID == info.MessageID {
		t.Error("Expected message ids to increase")
	}
}

func TestClientPublishFailure(t *testing.T) {
	conn := NewMockConn()
	conn.sendErr = errors.New("broken pipe")
	client := NewClient(conn)

	info, err := client.Publish("hubfleet/x/cloud", proto.NewPacket(proto.CmdPing, ""))
	if err == nil {
		t.Fatal("Expected publish error")
	}
	if info.Code != DeliveryFailure {
		t.Errorf("Expected failure code, got %v", info.Code)
	}
	if info.Reason == "" {
		t.Error("Expected a failure reason")
	}
}

func TestClientStopIdempotent(t *testing.T) {
	conn := NewMockConn()
	client := NewClient(conn)
	client.Start()

	done := make(chan struct{})
	go func() {
		client.Stop()
		client.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestClientStopJoinsReceiveLoop(t *testing.T) {
	conn := NewMockConn()
	client := NewClient(conn)

	blocked := make(chan struct{})
	client.Subscribe("hubfleet/announce", func(string, proto.Packet) {
		close(blocked)
	})
	client.Start()

	conn.Deliver("hubfleet/announce", proto.NewPacket(proto.CmdPing, ""))
	<-blocked

	client.Stop()

	// After Stop returns, nothing may be dispatched anymore.
	select {
	case conn.inbound <- proto.Frame{Type: proto.FramePublish, Topic: "hubfleet/announce"}:
	default:
	}
	time.Sleep(50 * time.Millisecond)
}
