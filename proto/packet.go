package proto

import (
	"encoding/json"
)

// Packet is the envelope exchanged with hub devices. Command is a pointer so
// that a message carrying no command at all (an unsolicited device message)
// is distinguishable from CmdAck, which encodes as 0.
type Packet struct {
	Command  *Command        `json:"command,omitempty"`
	SenderID string          `json:"sender_id,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// NewPacket builds a payload-less packet.
func NewPacket(cmd Command, senderID string) Packet {
	return Packet{Command: &cmd, SenderID: senderID}
}

type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return "encode packet: " + e.Err.Error() }
func (e *EncodeError) Unwrap() error { return e.Err }

type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode packet: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// Encode serializes a packet envelope. A nil payload is omitted from the
// wire form entirely.
func Encode(cmd Command, senderID string, payload any) ([]byte, error) {
	p := NewPacket(cmd, senderID)
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, &EncodeError{Err: err}
		}
		p.Payload = raw
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, &EncodeError{Err: err}
	}
	return data, nil
}

// Decode parses a packet envelope. Malformed input yields a DecodeError;
// unknown command codes decode to CmdUnknown rather than failing.
func Decode(data []byte) (Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return Packet{}, &DecodeError{Err: err}
	}
	return p, nil
}

// AnnouncePayload is carried by packets on the announce channel.
type AnnouncePayload struct {
	DeviceID          string `json:"device_id"`
	ConnectPassphrase string `json:"connect_passphrase"`
	DisplayName       string `json:"display_name"`
}

// NodeDescriptor is one element of a discovery response payload, describing a
// node on the hub's local mesh network.
type NodeDescriptor struct {
	Address       string `json:"address"`
	NodeID        string `json:"node_id"`
	OperatingMode string `json:"operating_mode"`
	NetworkID     string `json:"network_id"`
	ParentDevice  string `json:"parent_device"`
}
