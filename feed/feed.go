// Package feed is the unix-socket bridge between this module and the
// platform collaborators (media-session poller, telephony observer,
// notification-text reader, telecom executor). Each direction is JSON
// lines: collaborators push media/call/name-hint records in, decoded
// control-point commands flow back out.
package feed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/wearlink-blue/event"
	"github.com/user/wearlink-blue/logger"
)

// Controller is the session surface the feed drives. *session.Session
// satisfies it.
type Controller interface {
	Connect(peer string)
	Disconnect()
	UpdateMedia(u event.MediaMetadataUpdate)
	SignalCall(sig event.CallSignal)
	NameHint(name string)
}

// Record is one line of the feed, either direction. Type selects which
// payload field is meaningful.
type Record struct {
	Type    string                     `json:"type"`
	Media   *event.MediaMetadataUpdate `json:"media,omitempty"`
	Call    *event.CallSignal          `json:"call,omitempty"`
	Name    string                     `json:"name,omitempty"`
	Peer    string                     `json:"peer,omitempty"`
	Command string                     `json:"command,omitempty"`
}

// Inbound record types.
const (
	TypeMedia      = "media"
	TypeCall       = "call"
	TypeNameHint   = "name_hint"
	TypeConnect    = "connect"
	TypeDisconnect = "disconnect"
)

// Outbound record types.
const (
	TypeMediaCommand = "media_command"
	TypeCallCommand  = "call_command"
)

// Server accepts collaborator connections on a unix socket. It is also
// the session's command sink: every decoded control-point command is
// broadcast to all connected collaborators.
type Server struct {
	path string

	mu       sync.Mutex
	ctrl     Controller
	listener net.Listener
	clients  map[net.Conn]bool
	closed   bool
	wg       sync.WaitGroup
}

const prefix = "Feed"

// NewServer creates a feed server on the given socket path. The
// controller is attached separately: the server doubles as the
// session's command sink, so it has to exist before the session does.
func NewServer(socketPath string) *Server {
	return &Server{
		path:    socketPath,
		clients: make(map[net.Conn]bool),
	}
}

// SetController attaches the session. Records arriving before this are
// dropped.
func (s *Server) SetController(ctrl Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl = ctrl
}

func (s *Server) controller() Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl
}

// Start opens the socket and begins accepting collaborators.
func (s *Server) Start() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating feed socket dir: %w", err)
	}
	os.Remove(s.path)
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.wg.Add(1)
	go s.accept(ln)
	logger.Info(prefix, "listening on %s", s.path)
	return nil
}

// Stop closes the socket and drops every collaborator.
func (s *Server) Stop() {
	s.mu.Lock()
	s.closed = true
	ln := s.listener
	conns := make([]net.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	s.wg.Wait()
	os.Remove(s.path)
}

func (s *Server) accept(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.clients[conn] = true
		s.mu.Unlock()
		logger.Debug(prefix, "collaborator attached")
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
		logger.Debug(prefix, "collaborator detached")
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warn(prefix, "bad record: %v", err)
			continue
		}
		s.handle(rec)
	}
}

func (s *Server) handle(rec Record) {
	ctrl := s.controller()
	if ctrl == nil {
		logger.Warn(prefix, "dropping %s record, no session attached", rec.Type)
		return
	}
	switch rec.Type {
	case TypeMedia:
		if rec.Media == nil {
			logger.Warn(prefix, "media record without payload")
			return
		}
		ctrl.UpdateMedia(*rec.Media)
	case TypeCall:
		if rec.Call == nil {
			logger.Warn(prefix, "call record without payload")
			return
		}
		ctrl.SignalCall(*rec.Call)
	case TypeNameHint:
		ctrl.NameHint(rec.Name)
	case TypeConnect:
		ctrl.Connect(rec.Peer)
	case TypeDisconnect:
		ctrl.Disconnect()
	default:
		logger.Warn(prefix, "unknown record type %q", rec.Type)
	}
}

// DispatchMedia broadcasts a media command to every collaborator.
func (s *Server) DispatchMedia(cmd event.MediaCommand) {
	s.broadcast(Record{Type: TypeMediaCommand, Command: string(cmd)})
}

// DispatchCall broadcasts a call command to every collaborator.
func (s *Server) DispatchCall(cmd event.CallCommand) {
	s.broadcast(Record{Type: TypeCallCommand, Command: string(cmd)})
}

func (s *Server) broadcast(rec Record) {
	line, err := json.Marshal(rec)
	if err != nil {
		logger.Warn(prefix, "marshaling %s: %v", rec.Type, err)
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	conns := make([]net.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if len(conns) == 0 {
		logger.Debug(prefix, "%s %q with no collaborator attached", rec.Type, rec.Command)
		return
	}
	for _, c := range conns {
		if _, err := c.Write(line); err != nil {
			logger.Warn(prefix, "writing to collaborator: %v", err)
		}
	}
}
