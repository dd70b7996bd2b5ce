package proto

import (
	"encoding/json"
)

// Frame is the broker-level wire message: one JSON object per line. Packets
// ride inside publish frames as the payload.
type Frame struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	FramePublish     = "publish"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
)

// SubscriptionPayload lists the topics a subscribe or unsubscribe frame
// applies to.
type SubscriptionPayload struct {
	Topics []string `json:"topics"`
}
