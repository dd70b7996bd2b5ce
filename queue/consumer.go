// Package queue drains command entries from a message queue and hands them to
// the bridge for delivery. External services enqueue commands instead of
// talking to the broker directly.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/hubfleet/hubfleet/proto"
)

// DefaultPollTimeout bounds each blocking fetch so the consumer notices
// context cancellation promptly.
const DefaultPollTimeout = 50 * time.Millisecond

// Dispatcher delivers one dequeued command to a device.
type Dispatcher interface {
	DispatchQueued(deviceID uuid.UUID, cmd proto.Command) error
}

// Consumer subscribes a NATS subject and forwards each queue entry to the
// dispatcher. An entry is a JSON object mapping device UUIDs to command codes:
//
//	{"6e1f6f2a-...": 4, "9c0b13d1-...": 1}
type Consumer struct {
	nc          *nats.Conn
	subject     string
	dispatcher  Dispatcher
	pollTimeout time.Duration
}

func NewConsumer(url, subject string, d Dispatcher) (*Consumer, error) {
	nc, err := nats.Connect(url,
		nats.Name("hubfleet-bridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect queue %s: %w", url, err)
	}
	slog.Info("Connected to command queue", "url", url, "subject", subject)
	return &Consumer{nc: nc, subject: subject, dispatcher: d, pollTimeout: DefaultPollTimeout}, nil
}

// Run polls the subject until ctx is cancelled. Entry-level failures are
// logged and skipped; only subscription-level failures abort the loop.
func (c *Consumer) Run(ctx context.Context) error {
	sub, err := c.nc.SubscribeSync(c.subject)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.subject, err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := sub.NextMsg(c.pollTimeout)
		if errors.Is(err, nats.ErrTimeout) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read queue: %w", err)
		}
		c.handle(msg.Data)
	}
}

// handle parses one queue entry and dispatches every valid pair in it.
func (c *Consumer) handle(data []byte) {
	var entry map[string]int
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.Error("Malformed queue entry", "error", err, "size", len(data))
		return
	}
	for rawID, code := range entry {
		deviceID, err := uuid.Parse(rawID)
		if err != nil {
			slog.Error("Queue entry key is not a device UUID", "key", rawID, "error", err)
			continue
		}
		cmd := proto.Command(code)
		if !cmd.Registered() {
			slog.Error("Queue entry carries unknown command code", "device_id", deviceID, "code", code)
			continue
		}
		if err := c.dispatcher.DispatchQueued(deviceID, cmd); err != nil {
			slog.Error("Failed to dispatch queued command", "device_id", deviceID, "command", cmd.String(), "error", err)
		}
	}
}

func (c *Consumer) Close() {
	c.nc.Drain()
	slog.Info("Command queue consumer closed")
}
