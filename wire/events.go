package wire

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/util"
)

// ConnectionEvent is one line of the connection audit trail.
type ConnectionEvent struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Role      string `json:"role,omitempty"`
	Peer      string `json:"peer,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// ConnectionEventLogger appends connection lifecycle events as JSON
// lines to connection_events.jsonl under the device's data directory.
type ConnectionEventLogger struct {
	mu     sync.Mutex
	path   string
	prefix string
}

func NewConnectionEventLogger(hardwareUUID string) *ConnectionEventLogger {
	dir := util.GetDeviceDir(hardwareUUID)
	return &ConnectionEventLogger{
		path:   filepath.Join(dir, "connection_events.jsonl"),
		prefix: util.ShortHash(hardwareUUID) + " Events",
	}
}

// Log appends one event. Failures are logged and swallowed: the audit
// trail never blocks the link.
func (l *ConnectionEventLogger) Log(event, role, peer, detail string) {
	entry := ConnectionEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Event:     event,
		Role:      role,
		Peer:      peer,
		Detail:    detail,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		logger.Warn(l.prefix, "marshaling %s event: %v", event, err)
		return
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		logger.Warn(l.prefix, "creating event log dir: %v", err)
		return
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		logger.Warn(l.prefix, "opening event log: %v", err)
		return
	}
	defer f.Close()
	if _, err := f.Write(line); err != nil {
		logger.Warn(l.prefix, "appending event log: %v", err)
	}
}
