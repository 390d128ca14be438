package session

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/user/wearlink-blue/bearer"
	"github.com/user/wearlink-blue/codec"
	"github.com/user/wearlink-blue/config"
	"github.com/user/wearlink-blue/event"
)

// fakeBearer is an in-memory bearer: Connect immediately reports the
// peer as a connected device, Notify records deliveries.
type fakeBearer struct {
	mu          sync.Mutex
	handler     bearer.Handler
	services    []bearer.Service
	serving     bool
	starts      int
	stops       int
	connectErr  error
	bonded      map[bearer.DeviceID]bool
	bondCalls   int
	notified    map[uint16][][]byte
	notifyCount int
}

func newFakeBearer() *fakeBearer {
	return &fakeBearer{
		bonded:   make(map[bearer.DeviceID]bool),
		notified: make(map[uint16][][]byte),
	}
}

func (f *fakeBearer) SetHandler(h bearer.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeBearer) getHandler() bearer.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *fakeBearer) StartServer(services []bearer.Service) error {
	f.mu.Lock()
	f.services = services
	f.serving = true
	f.starts++
	f.mu.Unlock()
	h := f.getHandler()
	for _, svc := range services {
		chars := make([]uint16, 0, len(svc.Characteristics))
		for _, ch := range svc.Characteristics {
			chars = append(chars, ch.UUID)
		}
		h.ServiceRegistered(svc.UUID, chars)
	}
	return nil
}

func (f *fakeBearer) StopServer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.serving = false
	f.stops++
	return nil
}

func (f *fakeBearer) Connect(peer string) error {
	f.mu.Lock()
	err := f.connectErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.getHandler().DeviceConnected(bearer.DeviceID(peer))
	return nil
}

func (f *fakeBearer) Disconnect(peer string) error {
	f.getHandler().DeviceDisconnected(bearer.DeviceID(peer))
	return nil
}

func (f *fakeBearer) Notify(dev bearer.DeviceID, charUUID uint16, value []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified[charUUID] = append(f.notified[charUUID], append([]byte{}, value...))
	f.notifyCount++
	return true
}

func (f *fakeBearer) Bonded(dev bearer.DeviceID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bonded[dev]
}

func (f *fakeBearer) Bond(dev bearer.DeviceID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bondCalls++
	f.bonded[dev] = true
	return nil
}

func (f *fakeBearer) lastNotified(charUUID uint16) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	vs := f.notified[charUUID]
	if len(vs) == 0 {
		return nil
	}
	return append([]byte{}, vs[len(vs)-1]...)
}

func (f *fakeBearer) notifiedCount(charUUID uint16) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.notified[charUUID])
}

type sinkLog struct {
	mu    sync.Mutex
	media []event.MediaCommand
	calls []event.CallCommand
}

func (s *sinkLog) DispatchMedia(cmd event.MediaCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media = append(s.media, cmd)
}

func (s *sinkLog) DispatchCall(cmd event.CallCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, cmd)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Timing.StartBarrierMs = 5
	cfg.Timing.RestartCooldownMs = 20
	cfg.Timing.DialJitterMs = 10
	cfg.Timing.RedialGapMs = 20
	cfg.Timing.DialingWatchdogMs = 50
	return cfg
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startSession(t *testing.T) (*Session, *fakeBearer, *sinkLog) {
	t.Helper()
	fb := newFakeBearer()
	sink := &sinkLog{}
	s := New(testConfig(), fb, sink)
	s.Start()
	t.Cleanup(s.Stop)
	return s, fb, sink
}

func TestConnectRunsServerFirstChoreography(t *testing.T) {
	s, fb, _ := startSession(t)

	s.Connect("chip-1")
	waitFor(t, "connected state", func() bool { return s.State() == StateConnected })

	fb.mu.Lock()
	starts, services := fb.starts, fb.services
	fb.mu.Unlock()
	if starts != 1 {
		t.Errorf("server started %d times", starts)
	}
	if len(services) != 3 {
		t.Fatalf("registered %d services", len(services))
	}
	order := []uint16{codec.ServiceGenericAccess, codec.ServiceMediaControl, codec.ServiceTelephoneBearer}
	for i, want := range order {
		if services[i].UUID != want {
			t.Errorf("service[%d] = 0x%04X, want 0x%04X", i, services[i].UUID, want)
		}
	}
	if !s.Registry().IsConnected("chip-1") {
		t.Error("target not in registry")
	}
}

func TestInitialBurstAndBondOnConnect(t *testing.T) {
	s, fb, _ := startSession(t)

	s.Connect("chip-1")
	waitFor(t, "initial burst", func() bool {
		return fb.notifiedCount(codec.CharMediaState) > 0 && fb.notifiedCount(codec.CharCallState) > 0
	})

	// Defaults before any platform event was observed.
	if got := fb.lastNotified(codec.CharMediaState); !bytes.Equal(got, []byte{byte(codec.MediaInactive)}) {
		t.Errorf("burst media state = % X", got)
	}
	if got := fb.lastNotified(codec.CharCallState); !bytes.Equal(got, codec.EncodeCallState(codec.CallIdle)) {
		t.Errorf("burst call state = % X", got)
	}

	waitFor(t, "bond", func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		return fb.bondCalls == 1
	})

	// The burst clears the recent set.
	waitFor(t, "recent cleared", func() bool {
		return len(s.Registry().RecentlyConnected()) == 0
	})
}

func TestMediaUpdateFlowsToNotifications(t *testing.T) {
	s, fb, _ := startSession(t)
	s.Connect("chip-1")
	waitFor(t, "connected state", func() bool { return s.State() == StateConnected })

	s.UpdateMedia(event.MediaMetadataUpdate{
		Title:         "Song A",
		SourcePackage: "com.spotify.music",
		IsPlaying:     true,
		DurationMs:    120000,
	})

	waitFor(t, "title notification", func() bool {
		return string(fb.lastNotified(codec.CharTrackTitle)) == "Song A"
	})
	if got := fb.lastNotified(codec.CharMediaState); !bytes.Equal(got, []byte{byte(codec.MediaPlaying)}) {
		t.Errorf("media state = % X", got)
	}
	if got := fb.lastNotified(codec.CharTrackDuration); !bytes.Equal(got, codec.EncodeTime(120000)) {
		t.Errorf("duration = % X", got)
	}
}

func TestCallSignalDrivesCallState(t *testing.T) {
	s, fb, _ := startSession(t)
	s.Connect("chip-1")
	waitFor(t, "connected state", func() bool { return s.State() == StateConnected })

	s.SignalCall(event.CallSignal{State: event.TelephonyRinging, PhoneNumber: "+15551234"})
	waitFor(t, "incoming notification", func() bool {
		return bytes.Equal(fb.lastNotified(codec.CharCallState), codec.EncodeCallState(codec.CallIncoming))
	})
	if got := fb.lastNotified(codec.CharCallFriendlyName); string(got) != "+15551234" {
		t.Errorf("friendly name = %q", got)
	}

	s.SignalCall(event.CallSignal{State: event.TelephonyIdle})
	waitFor(t, "termination notification", func() bool {
		return bytes.Equal(fb.lastNotified(codec.CharTerminationReason),
			codec.EncodeTerminationReason(codec.ReasonNoAnswer))
	})
}

func TestDialingWatchdogForcesActive(t *testing.T) {
	s, fb, _ := startSession(t)
	s.Connect("chip-1")
	waitFor(t, "connected state", func() bool { return s.State() == StateConnected })

	s.SignalCall(event.CallSignal{State: event.TelephonyOffhook, PhoneNumber: "+15559876"})
	waitFor(t, "dialing notification", func() bool {
		return bytes.Equal(fb.lastNotified(codec.CharCallState), codec.EncodeCallState(codec.CallDialing))
	})

	// No activation signal arrives; the watchdog must force it.
	waitFor(t, "watchdog activation", func() bool {
		return bytes.Equal(fb.lastNotified(codec.CharCallState), codec.EncodeCallState(codec.CallActive))
	})
}

func TestControlPointWritesReachSink(t *testing.T) {
	s, fb, sink := startSession(t)
	s.Connect("chip-1")
	waitFor(t, "connected state", func() bool { return s.State() == StateConnected })

	h := fb.getHandler()
	h.CharacteristicWritten("chip-1", codec.CharMediaControlPoint, []byte{0x01})
	h.CharacteristicWritten("chip-1", codec.CharCallControlPoint, []byte{0x01})

	waitFor(t, "dispatched commands", func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.media) == 1 && len(sink.calls) == 1
	})
	if sink.media[0] != event.MediaPlay || sink.calls[0] != event.CallAccept {
		t.Errorf("dispatched %v / %v", sink.media, sink.calls)
	}
}

func TestTargetDisconnectRestartsAfterCooldown(t *testing.T) {
	s, fb, _ := startSession(t)
	s.Connect("chip-1")
	waitFor(t, "connected state", func() bool { return s.State() == StateConnected })

	fb.getHandler().DeviceDisconnected("chip-1")
	waitFor(t, "server restart", func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		return fb.stops >= 1 && fb.starts >= 2
	})
	waitFor(t, "server ready", func() bool { return s.State() == StateServerReady })

	if s.Registry().IsConnected("chip-1") {
		t.Error("disconnected target still registered")
	}
}

func TestExplicitDisconnectTearsDownAndRestarts(t *testing.T) {
	s, fb, _ := startSession(t)
	s.Connect("chip-1")
	waitFor(t, "connected state", func() bool { return s.State() == StateConnected })

	s.Disconnect()
	waitFor(t, "restart after disconnect", func() bool {
		fb.mu.Lock()
		defer fb.mu.Unlock()
		return fb.starts >= 2
	})
	// The dropped target is not re-dialed.
	if s.Registry().IsConnected("chip-1") {
		t.Error("target reconnected after explicit disconnect")
	}
}

func TestLateJoinerGetsSnapshotOfUnchangedState(t *testing.T) {
	s, fb, _ := startSession(t)
	s.Connect("chip-1")
	waitFor(t, "connected state", func() bool { return s.State() == StateConnected })

	s.UpdateMedia(event.MediaMetadataUpdate{Title: "Song A", SourcePackage: "com.spotify.music", IsPlaying: true})
	waitFor(t, "title notification", func() bool {
		return string(fb.lastNotified(codec.CharTrackTitle)) == "Song A"
	})
	before := fb.notifiedCount(codec.CharTrackTitle)

	// A second device attaches; the unchanged snapshot must go to it.
	fb.getHandler().DeviceConnected("chip-2")
	waitFor(t, "late joiner snapshot", func() bool {
		return fb.notifiedCount(codec.CharTrackTitle) > before
	})
}

func TestConnectFailureReturnsToServerReady(t *testing.T) {
	fb := newFakeBearer()
	fb.connectErr = fmt.Errorf("peer unreachable")
	s := New(testConfig(), fb, nil)
	s.Start()
	t.Cleanup(s.Stop)

	s.Connect("chip-1")
	waitFor(t, "server ready after failed connect", func() bool {
		return s.State() == StateServerReady
	})
}
