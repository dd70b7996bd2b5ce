package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hubfleet/hubfleet/proto"
)

// HandlerFunc is invoked once per inbound packet on a subscribed topic.
// Handlers run sequentially on the receive goroutine and must not block
// indefinitely, or they stall all subsequent dispatch.
type HandlerFunc func(topic string, pkt proto.Packet)

type DeliveryCode int

const (
	DeliverySuccess DeliveryCode = iota
	DeliveryFailure
)

func (c DeliveryCode) String() string {
	if c == DeliverySuccess {
		return "success"
	}
	return "failure"
}

// DeliveryInfo reports the outcome of handing a packet to the broker. It is
// not an end-to-end acknowledgement; the device may still never see the
// message.
type DeliveryInfo struct {
	MessageID uint64       `json:"message_id"`
	Code      DeliveryCode `json:"code"`
	Reason    string       `json:"reason"`
}

// Client is a long-lived connection to the pub/sub broker. A single
// background goroutine drives the receive loop and dispatches each inbound
// publish frame to the handler registered for its topic.
type Client struct {
	conn Conn

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	nextID   atomic.Uint64
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewClient(conn Conn) *Client {
	return &Client{
		conn:     conn,
		handlers: make(map[string]HandlerFunc),
		done:     make(chan struct{}),
	}
}

// Connect dials the broker. Connection failures are returned to the caller;
// the client never retries on its own, the supervising process decides the
// retry policy.
func (c *Client) Connect(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	if err := c.conn.Connect(addr); err != nil {
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	slog.Info("Connected to broker", "addr", addr)
	return nil
}

// Start spawns the receive loop. Call after Connect and after the initial
// subscriptions are registered.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.readLoop()
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		frame, err := c.conn.Read()
		if err != nil {
			select {
			case <-c.done:
			default:
				slog.Warn("Receive loop closed", "error", err)
			}
			return
		}
		if frame.Type != proto.FramePublish {
			slog.Warn("Unexpected frame type", "type", frame.Type, "topic", frame.Topic)
			continue
		}

		pkt, err := proto.Decode(frame.Payload)
		if err != nil {
			slog.Warn("Dropping malformed packet", "topic", frame.Topic, "error", err)
			continue
		}

		handler := c.match(frame.Topic)
		if handler == nil {
			slog.Warn("Unhandled channel", "topic", frame.Topic)
			continue
		}
		slog.Debug("Packet received", "topic", frame.Topic, "sender", pkt.SenderID, "size", len(frame.Payload))
		handler(frame.Topic, pkt)
	}
}

func (c *Client) match(topic string) HandlerFunc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if h, ok := c.handlers[topic]; ok {
		return h
	}
	for pattern, h := range c.handlers {
		if proto.TopicMatches(pattern, topic) {
			return h
		}
	}
	return nil
}

// Subscribe registers a handler for topic and tells the broker to route
// matching traffic here. Register each topic exactly once; a second call for
// the same topic replaces the handler.
func (c *Client) Subscribe(topic string, handler HandlerFunc) error {
	c.mu.Lock()
	c.handlers[topic] = handler
	c.mu.Unlock()

	payload, err := json.Marshal(proto.SubscriptionPayload{Topics: []string{topic}})
	if err != nil {
		return err
	}
	slog.Debug("Subscribing", "topic", topic)
	return c.conn.Send(proto.Frame{Type: proto.FrameSubscribe, Payload: payload})
}

func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.handlers, topic)
	c.mu.Unlock()

	payload, err := json.Marshal(proto.SubscriptionPayload{Topics: []string{topic}})
	if err != nil {
		return err
	}
	slog.Debug("Unsubscribing", "topic", topic)
	return c.conn.Send(proto.Frame{Type: proto.FrameUnsubscribe, Payload: payload})
}

// Publish enqueues a packet for delivery on topic. The returned DeliveryInfo
// carries a locally assigned message id and a success/failure code.
func (c *Client) Publish(topic string, pkt proto.Packet) (DeliveryInfo, error) {
	id := c.nextID.Add(1)

	data, err := json.Marshal(pkt)
	if err != nil {
		encErr := &proto.EncodeError{Err: err}
		return DeliveryInfo{MessageID: id, Code: DeliveryFailure, Reason: encErr.Error()}, encErr
	}
	if err := c.conn.Send(proto.Frame{Type: proto.FramePublish, Topic: topic, Payload: data}); err != nil {
		return DeliveryInfo{MessageID: id, Code: DeliveryFailure, Reason: err.Error()},
			fmt.Errorf("publish %s: %w", topic, err)
	}
	slog.Debug("Packet published", "topic", topic, "message_id", id, "size", len(data))
	return DeliveryInfo{MessageID: id, Code: DeliverySuccess, Reason: "success"}, nil
}

// Subscriptions returns the currently registered topics.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	topics := make([]string, 0, len(c.handlers))
	for topic := range c.handlers {
		topics = append(topics, topic)
	}
	return topics
}

// Stop closes the connection and waits for the receive loop to exit.
// Idempotent and safe to call from any goroutine.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
		if err := c.conn.Close(); err != nil {
			slog.Warn("Error closing broker connection", "error", err)
		}
		c.wg.Wait()
		slog.Info("Broker client stopped")
	})
}
