package tbs

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/user/wearlink-blue/bearer"
	"github.com/user/wearlink-blue/codec"
	"github.com/user/wearlink-blue/event"
	"github.com/user/wearlink-blue/gate"
)

type fakeRegistry struct {
	connected []bearer.DeviceID
	recent    []bearer.DeviceID
}

func (r *fakeRegistry) Connected() []bearer.DeviceID         { return r.connected }
func (r *fakeRegistry) RecentlyConnected() []bearer.DeviceID { return r.recent }

type notifyLog struct {
	mu   sync.Mutex
	byTo map[uint16][][]byte
}

func newNotifyLog() *notifyLog { return &notifyLog{byTo: make(map[uint16][][]byte)} }

func (l *notifyLog) Notify(dev bearer.DeviceID, charUUID uint16, value []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byTo[charUUID] = append(l.byTo[charUUID], append([]byte{}, value...))
	return true
}

func (l *notifyLog) count(charUUID uint16) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byTo[charUUID])
}

func (l *notifyLog) last(charUUID uint16) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	vs := l.byTo[charUUID]
	if len(vs) == 0 {
		return nil
	}
	return vs[len(vs)-1]
}

type commandLog struct {
	calls []event.CallCommand
}

func (c *commandLog) DispatchMedia(event.MediaCommand) {}
func (c *commandLog) DispatchCall(cmd event.CallCommand) {
	c.calls = append(c.calls, cmd)
}

func callMeta(state codec.CallState, id, number, name string) CallMetadata {
	return CallMetadata{
		PhoneNumber: number,
		CallerName:  name,
		State:       state,
		CallID:      id,
		Timestamp:   time.Now(),
	}
}

func TestApplyNotifiesStateAndName(t *testing.T) {
	reg := &fakeRegistry{connected: []bearer.DeviceID{"chip"}}
	log := newNotifyLog()
	m := New(gate.New("TBS/test", reg, log), nil)

	m.Apply(callMeta(codec.CallIncoming, "c1", "+15551234", "Jane Doe"))

	if got := log.last(codec.CharCallState); !bytes.Equal(got, []byte{0x01, byte(codec.CallIncoming), 0x00}) {
		t.Errorf("call state = % X", got)
	}
	if got := log.last(codec.CharCallFriendlyName); string(got) != "Jane Doe" {
		t.Errorf("friendly name = %q", got)
	}
	if m.State() != codec.CallIncoming {
		t.Errorf("tracked state = %s", m.State())
	}
}

func TestApplyIdleEmitsTerminationBeforeState(t *testing.T) {
	reg := &fakeRegistry{connected: []bearer.DeviceID{"chip"}}
	log := newNotifyLog()
	m := New(gate.New("TBS/test", reg, log), nil)

	m.Apply(callMeta(codec.CallIncoming, "c1", "+15551234", "Jane Doe"))

	reason := codec.ReasonNoAnswer
	end := callMeta(codec.CallIdle, "c1", "+15551234", "Jane Doe")
	end.TerminationReason = &reason
	m.Apply(end)

	if got := log.last(codec.CharTerminationReason); !bytes.Equal(got, []byte{0x01, byte(codec.ReasonNoAnswer)}) {
		t.Errorf("termination = % X", got)
	}
	if got := log.last(codec.CharCallState); !bytes.Equal(got, codec.EncodeCallState(codec.CallIdle)) {
		t.Errorf("call state = % X", got)
	}
	// The final friendly-name emission carries the last known name.
	if got := log.last(codec.CharCallFriendlyName); string(got) != "Jane Doe" {
		t.Errorf("final name = %q", got)
	}
}

func TestApplyForcesRenotifyOnNewCallID(t *testing.T) {
	reg := &fakeRegistry{connected: []bearer.DeviceID{"chip"}}
	log := newNotifyLog()
	m := New(gate.New("TBS/test", reg, log), nil)

	m.Apply(callMeta(codec.CallIncoming, "c1", "+15551111", "A"))
	sends := log.count(codec.CharCallState)

	// Same encoded bytes, different logical call: must re-notify.
	m.Apply(callMeta(codec.CallIncoming, "c2", "+15552222", "B"))
	if log.count(codec.CharCallState) != sends+1 {
		t.Error("new call id did not force a call state notification")
	}
}

func TestConsecutiveTerminationsAlwaysEmit(t *testing.T) {
	reg := &fakeRegistry{connected: []bearer.DeviceID{"chip"}}
	log := newNotifyLog()
	m := New(gate.New("TBS/test", reg, log), nil)

	reason := codec.ReasonLocalParty
	for i, id := range []string{"c1", "c2"} {
		m.Apply(callMeta(codec.CallActive, id, "+15551234", "Jane"))
		end := callMeta(codec.CallIdle, id, "+15551234", "Jane")
		end.TerminationReason = &reason
		m.Apply(end)
		if got := log.count(codec.CharTerminationReason); got != i+1 {
			t.Fatalf("after call %d: %d termination notifications", i+1, got)
		}
	}
}

func TestSyncSnapshotsCurrentStateToRecent(t *testing.T) {
	reg := &fakeRegistry{connected: []bearer.DeviceID{"chip"}}
	log := newNotifyLog()
	m := New(gate.New("TBS/test", reg, log), nil)

	m.Apply(callMeta(codec.CallActive, "c1", "+15551234", "Jane Doe"))
	stateSends := log.count(codec.CharCallState)

	reg.recent = []bearer.DeviceID{"late"}
	m.Sync()
	if log.count(codec.CharCallState) != stateSends+1 {
		t.Fatal("sync did not snapshot call state")
	}
	if got := log.last(codec.CharCallFriendlyName); string(got) != "Jane Doe" {
		t.Errorf("snapshot name = %q", got)
	}
	// Termination reasons are per-event, never part of the snapshot.
	if log.count(codec.CharTerminationReason) != 0 {
		t.Error("sync emitted a termination reason")
	}
}

func TestControlWriteDispatchesCallCommands(t *testing.T) {
	reg := &fakeRegistry{connected: []bearer.DeviceID{"chip"}}
	sink := &commandLog{}
	m := New(gate.New("TBS/test", reg, newNotifyLog()), sink)

	for _, tc := range []struct {
		op   byte
		want event.CallCommand
	}{
		{OpAccept, event.CallAccept},
		{OpReject, event.CallReject},
		{OpEnd, event.CallEnd},
	} {
		sink.calls = nil
		if err := m.HandleControlWrite([]byte{tc.op}); err != nil {
			t.Fatalf("opcode 0x%02X: %v", tc.op, err)
		}
		if len(sink.calls) != 1 || sink.calls[0] != tc.want {
			t.Errorf("opcode 0x%02X dispatched %v", tc.op, sink.calls)
		}
	}
}

func TestControlWriteRejectsHoldAndUnknown(t *testing.T) {
	reg := &fakeRegistry{connected: []bearer.DeviceID{"chip"}}
	sink := &commandLog{}
	m := New(gate.New("TBS/test", reg, newNotifyLog()), sink)

	for _, op := range []byte{OpHold, OpUnhold, 0x7F} {
		if err := m.HandleControlWrite([]byte{op}); err == nil {
			t.Errorf("opcode 0x%02X accepted", op)
		}
	}
	if len(sink.calls) != 0 {
		t.Errorf("rejected opcodes dispatched %v", sink.calls)
	}
}
