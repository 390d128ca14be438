package feed

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/user/wearlink-blue/event"
)

// recordingController captures every session call the feed makes.
type recordingController struct {
	mu          sync.Mutex
	connects    []string
	disconnects int
	media       []event.MediaMetadataUpdate
	calls       []event.CallSignal
	names       []string
}

func (r *recordingController) Connect(peer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connects = append(r.connects, peer)
}

func (r *recordingController) Disconnect() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnects++
}

func (r *recordingController) UpdateMedia(u event.MediaMetadataUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.media = append(r.media, u)
}

func (r *recordingController) SignalCall(sig event.CallSignal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, sig)
}

func (r *recordingController) NameHint(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
}

func (r *recordingController) snapshot() recordingController {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recordingController{
		connects:    append([]string{}, r.connects...),
		disconnects: r.disconnects,
		media:       append([]event.MediaMetadataUpdate{}, r.media...),
		calls:       append([]event.CallSignal{}, r.calls...),
		names:       append([]string{}, r.names...),
	}
}

func startServer(t *testing.T, ctrl Controller) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.sock")
	srv := NewServer(path)
	if ctrl != nil {
		srv.SetController(ctrl)
	}
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Stop)
	return srv, path
}

func dial(t *testing.T, path string) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", path)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn net.Conn, rec Record) {
	t.Helper()
	line, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		t.Fatal(err)
	}
}

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

func TestInboundRecordsReachController(t *testing.T) {
	ctrl := &recordingController{}
	_, path := startServer(t, ctrl)
	conn := dial(t, path)

	send(t, conn, Record{Type: TypeMedia, Media: &event.MediaMetadataUpdate{
		Title: "Song A", SourcePackage: "com.spotify.music", IsPlaying: true,
	}})
	send(t, conn, Record{Type: TypeCall, Call: &event.CallSignal{
		State: event.TelephonyRinging, PhoneNumber: "+15551234567",
	}})
	send(t, conn, Record{Type: TypeNameHint, Name: "Alice"})
	send(t, conn, Record{Type: TypeConnect, Peer: "aabbccdd-0000-1111-2222-333344445555"})
	send(t, conn, Record{Type: TypeDisconnect})

	waitFor(t, "all records", func() bool {
		s := ctrl.snapshot()
		return len(s.media) == 1 && len(s.calls) == 1 && len(s.names) == 1 &&
			len(s.connects) == 1 && s.disconnects == 1
	})

	s := ctrl.snapshot()
	if s.media[0].Title != "Song A" || !s.media[0].IsPlaying {
		t.Errorf("media = %+v", s.media[0])
	}
	if s.calls[0].State != event.TelephonyRinging || s.calls[0].PhoneNumber != "+15551234567" {
		t.Errorf("call = %+v", s.calls[0])
	}
	if s.names[0] != "Alice" {
		t.Errorf("name hint %q", s.names[0])
	}
	if s.connects[0] != "aabbccdd-0000-1111-2222-333344445555" {
		t.Errorf("connect peer %q", s.connects[0])
	}
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	ctrl := &recordingController{}
	_, path := startServer(t, ctrl)
	conn := dial(t, path)

	if _, err := conn.Write([]byte("not json\n\n")); err != nil {
		t.Fatal(err)
	}
	send(t, conn, Record{Type: "bogus_type"})
	send(t, conn, Record{Type: TypeMedia}) // media record without payload
	send(t, conn, Record{Type: TypeNameHint, Name: "after the noise"})

	waitFor(t, "the good record", func() bool {
		return len(ctrl.snapshot().names) == 1
	})
	if s := ctrl.snapshot(); len(s.media) != 0 {
		t.Errorf("payload-less media record got through: %+v", s.media)
	}
}

func TestRecordsBeforeControllerAreDropped(t *testing.T) {
	srv, path := startServer(t, nil)
	conn := dial(t, path)

	send(t, conn, Record{Type: TypeNameHint, Name: "too early"})

	ctrl := &recordingController{}
	srv.SetController(ctrl)
	send(t, conn, Record{Type: TypeNameHint, Name: "on time"})

	waitFor(t, "the late record", func() bool {
		return len(ctrl.snapshot().names) >= 1
	})
	s := ctrl.snapshot()
	if len(s.names) != 1 || s.names[0] != "on time" {
		t.Errorf("names = %v", s.names)
	}
}

func TestCommandsBroadcastToAllCollaborators(t *testing.T) {
	srv, path := startServer(t, &recordingController{})
	first := dial(t, path)
	second := dial(t, path)

	// Let both accepts land before broadcasting.
	time.Sleep(50 * time.Millisecond)

	srv.DispatchMedia(event.MediaPlay)
	srv.DispatchCall(event.CallAccept)

	for _, conn := range []net.Conn{first, second} {
		scanner := bufio.NewScanner(conn)
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var recs []Record
		for len(recs) < 2 && scanner.Scan() {
			var rec Record
			if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
				t.Fatal(err)
			}
			recs = append(recs, rec)
		}
		if len(recs) != 2 {
			t.Fatalf("collaborator read %d records", len(recs))
		}
		if recs[0].Type != TypeMediaCommand || recs[0].Command != string(event.MediaPlay) {
			t.Errorf("first record %+v", recs[0])
		}
		if recs[1].Type != TypeCallCommand || recs[1].Command != string(event.CallAccept) {
			t.Errorf("second record %+v", recs[1])
		}
	}
}

func TestStopRemovesSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.sock")
	srv := NewServer(path)
	srv.SetController(&recordingController{})
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	conn := dial(t, path)
	srv.Stop()

	if _, err := net.Dial("unix", path); err == nil {
		t.Error("socket still accepting after Stop")
	}
	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(buf); err == nil {
		t.Error("collaborator connection still open after Stop")
	}
}
