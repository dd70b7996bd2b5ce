package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		cmd      Command
		senderID string
		payload  any
	}{
		{"no payload", CmdPing, "6b429ab7-8d25-4a9d-8419-897b1b4f4577", nil},
		{"no sender", CmdAnnounceAck, "", nil},
		{"object payload", CmdDiagnostics, "6b429ab7-8d25-4a9d-8419-897b1b4f4577", map[string]string{"uptime": "412"}},
		{"list payload", CmdDiscovery, "6b429ab7-8d25-4a9d-8419-897b1b4f4577", []int{1, 2, 3}},
		{"ack is zero", CmdAck, "", "ok"},
		{"negative code", CmdNack, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.cmd, tt.senderID, tt.payload)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			pkt, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if pkt.Command == nil {
				t.Fatal("Expected command to be present")
			}
			if *pkt.Command != tt.cmd {
				t.Errorf("Expected command %v, got %v", tt.cmd, *pkt.Command)
			}
			if pkt.SenderID != tt.senderID {
				t.Errorf("Expected sender %q, got %q", tt.senderID, pkt.SenderID)
			}

			if tt.payload == nil {
				if pkt.Payload != nil {
					t.Errorf("Expected no payload, got %s", pkt.Payload)
				}
				return
			}
			want, _ := json.Marshal(tt.payload)
			if !bytes.Equal(pkt.Payload, want) {
				t.Errorf("Expected payload %s, got %s", want, pkt.Payload)
			}
		})
	}
}

func TestEncodeUnserializablePayload(t *testing.T) {
	_, err := Encode(CmdDiagnostics, "", make(chan int))
	if err == nil {
		t.Fatal("Expected encode error for unserializable payload")
	}
	var encodeErr *EncodeError
	if !errors.As(err, &encodeErr) {
		t.Errorf("Expected *EncodeError, got %T", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "{{{"},
		{"wrong shape", `"just a string"`},
		{"number", `42`},
		{"non-integer command", `{"command": "ping"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if err == nil {
				t.Fatal("Expected decode error")
			}
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Errorf("Expected *DecodeError, got %T", err)
			}
		})
	}
}

func TestDecodeUnknownCommand(t *testing.T) {
	for _, code := range []int{-3, 6, 99, 1000000} {
		pkt, err := Decode([]byte(`{"command": ` + jsonInt(code) + `}`))
		if err != nil {
			t.Fatalf("Decode failed for code %d: %v", code, err)
		}
		if pkt.Command == nil || *pkt.Command != CmdUnknown {
			t.Errorf("Expected code %d to decode as CmdUnknown, got %v", code, pkt.Command)
		}
	}
}

func TestDecodeMissingCommand(t *testing.T) {
	pkt, err := Decode([]byte(`{"sender_id": "abc", "payload": {"x": 1}}`))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if pkt.Command != nil {
		t.Errorf("Expected nil command, got %v", *pkt.Command)
	}
}

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("discovery")
	if err != nil {
		t.Fatalf("ParseCommand failed: %v", err)
	}
	if cmd != CmdDiscovery {
		t.Errorf("Expected CmdDiscovery, got %v", cmd)
	}

	if _, err := ParseCommand("reboot"); err == nil {
		t.Error("Expected error for unregistered name")
	}
}

func jsonInt(v int) string {
	data, _ := json.Marshal(v)
	return string(data)
}
