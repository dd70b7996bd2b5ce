package broker

import (
	"errors"
	"sync"
	"testing"

	"github.com/hubfleet/hubfleet/proto"
)

// MockSubscriber records frames delivered to it.
type MockSubscriber struct {
	id      string
	mu      sync.Mutex
	frames  []proto.Frame
	sendErr error
}

func NewMockSubscriber(id string) *MockSubscriber {
	return &MockSubscriber{id: id}
}

func (m *MockSubscriber) ID() string { return m.id }

func (m *MockSubscriber) Send(f proto.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.frames = append(m.frames, f)
	return nil
}

func (m *MockSubscriber) Frames() []proto.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]proto.Frame, len(m.frames))
	copy(result, m.frames)
	return result
}

func TestBrokerPublishToSubscriber(t *testing.T) {
	b := NewBroker()
	sub := NewMockSubscriber("s1")

	b.Subscribe("hubfleet/announce", sub)
	b.Publish(proto.Frame{Type: proto.FramePublish, Topic: "hubfleet/announce"})

	if got := len(sub.Frames()); got != 1 {
		t.Fatalf("Expected 1 frame, got %d", got)
	}
}

func TestBrokerWildcardSubscription(t *testing.T) {
	b := NewBroker()
	sub := NewMockSubscriber("s1")

	b.Subscribe("hubfleet/#", sub)
	b.Publish(proto.Frame{Type: proto.FramePublish, Topic: "hubfleet/some-device/cloud"})
	b.Publish(proto.Frame{Type: proto.FramePublish, Topic: "other/topic"})

	frames := sub.Frames()
	if len(frames) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(frames))
	}
	if frames[0].Topic != "hubfleet/some-device/cloud" {
		t.Errorf("Unexpected topic %q", frames[0].Topic)
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()
	sub := NewMockSubscriber("s1")

	b.Subscribe("hubfleet/announce", sub)
	b.Unsubscribe("hubfleet/announce", sub)
	b.Publish(proto.Frame{Type: proto.FramePublish, Topic: "hubfleet/announce"})

	if got := len(sub.Frames()); got != 0 {
		t.Errorf("Expected no frames after unsubscribe, got %d", got)
	}
}

func TestBrokerDropRemovesAllSubscriptions(t *testing.T) {
	b := NewBroker()
	sub := NewMockSubscriber("s1")
	other := NewMockSubscriber("s2")

	b.Subscribe("hubfleet/announce", sub)
	b.Subscribe("hubfleet/#", sub)
	b.Subscribe("hubfleet/announce", other)

	b.Drop(sub)
	b.Publish(proto.Frame{Type: proto.FramePublish, Topic: "hubfleet/announce"})

	if got := len(sub.Frames()); got != 0 {
		t.Errorf("Expected dropped session to receive nothing, got %d", got)
	}
	if got := len(other.Frames()); got != 1 {
		t.Errorf("Expected surviving session to receive 1 frame, got %d", got)
	}
}

func TestBrokerSendErrorDoesNotBlockOthers(t *testing.T) {
	b := NewBroker()
	broken := NewMockSubscriber("broken")
	broken.sendErr = errors.New("write failed")
	healthy := NewMockSubscriber("healthy")

	b.Subscribe("hubfleet/announce", broken)
	b.Subscribe("hubfleet/announce", healthy)
	b.Publish(proto.Frame{Type: proto.FramePublish, Topic: "hubfleet/announce"})

	if got := len(healthy.Frames()); got != 1 {
		t.Errorf("Expected healthy subscriber to receive the frame, got %d", got)
	}
}
