package queue

import (
	"testing"

	"github.com/google/uuid"

	"github.com/hubfleet/hubfleet/proto"
)

type recordingDispatcher struct {
	calls []dispatchCall
	err   error
}

type dispatchCall struct {
	deviceID uuid.UUID
	cmd      proto.Command
}

func (r *recordingDispatcher) DispatchQueued(deviceID uuid.UUID, cmd proto.Command) error {
	r.calls = append(r.calls, dispatchCall{deviceID: deviceID, cmd: cmd})
	return r.err
}

func TestHandleDispatchesValidEntries(t *testing.T) {
	d := &recordingDispatcher{}
	c := &Consumer{dispatcher: d}
	id := uuid.New()

	c.handle([]byte(`{"` + id.String() + `": 4}`))

	if len(d.calls) != 1 {
		t.Fatalf("Expected 1 dispatch, got %d", len(d.calls))
	}
	if d.calls[0].deviceID != id {
		t.Errorf("Dispatched to %s", d.calls[0].deviceID)
	}
	if d.calls[0].cmd != proto.CmdDiscovery {
		t.Errorf("Dispatched command %v", d.calls[0].cmd)
	}
}

func TestHandleSkipsInvalidKeys(t *testing.T) {
	d := &recordingDispatcher{}
	c := &Consumer{dispatcher: d}
	id := uuid.New()

	c.handle([]byte(`{"not-a-uuid": 1, "` + id.String() + `": 1}`))

	if len(d.calls) != 1 {
		t.Fatalf("Expected only the valid pair dispatched, got %d calls", len(d.calls))
	}
	if d.calls[0].deviceID != id {
		t.Errorf("Dispatched to %s", d.calls[0].deviceID)
	}
}

func TestHandleSkipsUnknownCommandCodes(t *testing.T) {
	d := &recordingDispatcher{}
	c := &Consumer{dispatcher: d}

	c.handle([]byte(`{"` + uuid.NewString() + `": 99}`))

	if len(d.calls) != 0 {
		t.Fatalf("Expected no dispatch for unknown code, got %d", len(d.calls))
	}
}

func TestHandleIgnoresMalformedEntries(t *testing.T) {
	d := &recordingDispatcher{}
	c := &Consumer{dispatcher: d}

	c.handle([]byte(`["not", "an", "object"]`))
	c.handle([]byte(`{broken`))

	if len(d.calls) != 0 {
		t.Fatalf("Expected no dispatch, got %d", len(d.calls))
	}
}
