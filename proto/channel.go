package proto

import (
	"strings"

	"github.com/google/uuid"
)

// Channel topics are derived from a root namespace and the device id. UUIDs
// are fixed-length and cannot contain '/', so the three families can never
// collide for any valid device id.

// AnnounceChannel is the shared registration/check-in topic.
func AnnounceChannel(root string) string {
	return root + "/announce"
}

// ListenChannel is the per-device topic the cloud subscribes to for traffic
// coming from the device.
func ListenChannel(root string, deviceID uuid.UUID) string {
	return root + "/" + deviceID.String()
}

// TalkChannel is the per-device topic the cloud publishes commands on; the
// device subscribes to it.
func TalkChannel(root string, deviceID uuid.UUID) string {
	return ListenChannel(root, deviceID) + "/cloud"
}

// TopicMatches reports whether topic falls under pattern. Patterns are exact
// topics, or prefix wildcards ending in "/#" which match the prefix itself
// and anything below it.
func TopicMatches(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "/#"); ok {
		return topic == prefix || strings.HasPrefix(topic, prefix+"/")
	}
	return false
}
