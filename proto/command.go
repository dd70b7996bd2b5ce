package proto

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Command is the closed set of command codes understood by both the cloud
// bridge and hub firmware. The integer values ride on the wire; changing them
// requires a coordinated firmware rollout.
type Command int

const (
	CmdUnknown     Command = -2
	CmdNack        Command = -1
	CmdAck         Command = 0
	CmdPing        Command = 1
	CmdPong        Command = 2
	CmdDiagnostics Command = 3
	CmdDiscovery   Command = 4
	CmdAnnounceAck Command = 5
)

var commandNames = map[Command]string{
	CmdUnknown:     "unknown",
	CmdNack:        "nack",
	CmdAck:         "ack",
	CmdPing:        "ping",
	CmdPong:        "pong",
	CmdDiagnostics: "diagnostics",
	CmdDiscovery:   "discovery",
	CmdAnnounceAck: "announce_ack",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "command(" + strconv.Itoa(int(c)) + ")"
}

// Registered reports whether c is one of the known command codes.
func (c Command) Registered() bool {
	_, ok := commandNames[c]
	return ok
}

// ParseCommand resolves a command name like "ping" or "discovery".
func ParseCommand(name string) (Command, error) {
	for cmd, n := range commandNames {
		if n == name {
			return cmd, nil
		}
	}
	return CmdUnknown, fmt.Errorf("unknown command name %q", name)
}

// UnmarshalJSON maps out-of-registry integers to CmdUnknown so packets from
// devices running newer firmware decode instead of failing.
func (c *Command) UnmarshalJSON(data []byte) error {
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if cmd := Command(v); cmd.Registered() {
		*c = cmd
	} else {
		*c = CmdUnknown
	}
	return nil
}
