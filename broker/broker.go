// Package broker implements a minimal pub/sub broker speaking the frame
// protocol. Production deployments point the bridge at an external broker;
// this one serves development and integration tests.
package broker

import (
	"log/slog"
	"sync"

	"github.com/hubfleet/hubfleet/proto"
)

// Subscriber is a connected session frames can be fanned out to.
type Subscriber interface {
	Send(f proto.Frame) error
	ID() string
}

type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[Subscriber]struct{} // Map topic pattern to hashset of sessions
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[Subscriber]struct{}),
	}
}

func (b *Broker) Subscribe(pattern string, sub Subscriber) {
	slog.Debug("Subscribing", "pattern", pattern, "sessionId", sub.ID())
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[pattern] == nil {
		b.subs[pattern] = make(map[Subscriber]struct{})
	}
	b.subs[pattern][sub] = struct{}{}
}

// Publish fans the frame out to every session whose pattern matches the
// frame's topic, including prefix wildcards.
func (b *Broker) Publish(f proto.Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sentCount := 0
	for pattern, sessions := range b.subs {
		if !proto.TopicMatches(pattern, f.Topic) {
			continue
		}
		for sub := range sessions {
			if err := sub.Send(f); err != nil {
				slog.Warn("There was an error publishing a frame to a subscriber", "topic", f.Topic, "sessionId", sub.ID(), "error", err.Error())
				continue
			}
			sentCount++
		}
	}
	slog.Debug("Frame published", "topic", f.Topic, "subscribers", sentCount, "size", len(f.Payload))
}

func (b *Broker) Unsubscribe(pattern string, sub Subscriber) {
	slog.Debug("Unsubscribing", "pattern", pattern, "sessionId", sub.ID())
	b.mu.Lock()
	defer b.mu.Unlock()

	if sessions, ok := b.subs[pattern]; ok {
		if _, exists := sessions[sub]; exists {
			delete(sessions, sub)
		} else {
			slog.Warn("Did not find session in pattern to unsubscribe", "pattern", pattern, "sessionId", sub.ID())
		}
		if len(sessions) == 0 {
			delete(b.subs, pattern)
		}
	}
}

// Drop removes the session from every pattern it subscribed to.
func (b *Broker) Drop(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for pattern, sessions := range b.subs {
		delete(sessions, sub)
		if len(sessions) == 0 {
			delete(b.subs, pattern)
		}
	}
}
