package wire

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/util"
)

const healthSnapshotInterval = 5 * time.Second

// SocketStats tracks traffic over one link.
type SocketStats struct {
	Role             string `json:"role"`
	Peer             string `json:"peer"`
	ConnectedAt      string `json:"connected_at"`
	MessagesSent     int64  `json:"messages_sent"`
	MessagesReceived int64  `json:"messages_received"`
	LastActivity     string `json:"last_activity"`
}

type healthSnapshot struct {
	Timestamp   string         `json:"timestamp"`
	Connections []*SocketStats `json:"connections"`
}

// SocketHealthMonitor snapshots per-link traffic counters to
// socket_health.json on a fixed interval.
type SocketHealthMonitor struct {
	mu     sync.Mutex
	stats  map[string]*SocketStats
	path   string
	prefix string
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

func NewSocketHealthMonitor(hardwareUUID string) *SocketHealthMonitor {
	return &SocketHealthMonitor{
		stats:  make(map[string]*SocketStats),
		path:   filepath.Join(util.GetDeviceDir(hardwareUUID), "socket_health.json"),
		prefix: util.ShortHash(hardwareUUID) + " Health",
		stop:   make(chan struct{}),
	}
}

// Start begins the periodic snapshot loop.
func (m *SocketHealthMonitor) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(healthSnapshotInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.writeSnapshot()
			case <-m.stop:
				m.writeSnapshot()
				return
			}
		}
	}()
}

// Stop ends the loop after a final snapshot.
func (m *SocketHealthMonitor) Stop() {
	m.once.Do(func() { close(m.stop) })
	m.wg.Wait()
}

func statsKey(role, peer string) string {
	return role + "|" + peer
}

func (m *SocketHealthMonitor) RecordConnection(role, peer string) {
	now := time.Now().UTC().Format(time.RFC3339)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[statsKey(role, peer)] = &SocketStats{
		Role:         role,
		Peer:         peer,
		ConnectedAt:  now,
		LastActivity: now,
	}
}

func (m *SocketHealthMonitor) RemoveConnection(role, peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stats, statsKey(role, peer))
}

func (m *SocketHealthMonitor) RecordMessageSent(role, peer string) {
	m.touch(role, peer, func(s *SocketStats) { s.MessagesSent++ })
}

func (m *SocketHealthMonitor) RecordMessageReceived(role, peer string) {
	m.touch(role, peer, func(s *SocketStats) { s.MessagesReceived++ })
}

func (m *SocketHealthMonitor) touch(role, peer string, f func(*SocketStats)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[statsKey(role, peer)]
	if !ok {
		return
	}
	f(s)
	s.LastActivity = time.Now().UTC().Format(time.RFC3339)
}

func (m *SocketHealthMonitor) writeSnapshot() {
	m.mu.Lock()
	snap := healthSnapshot{Timestamp: time.Now().UTC().Format(time.RFC3339)}
	for _, s := range m.stats {
		copied := *s
		snap.Connections = append(snap.Connections, &copied)
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		logger.Warn(m.prefix, "marshaling health snapshot: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		logger.Warn(m.prefix, "creating health dir: %v", err)
		return
	}
	tmp := fmt.Sprintf("%s.tmp.%d", m.path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		logger.Warn(m.prefix, "writing health snapshot: %v", err)
		return
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		logger.Warn(m.prefix, "publishing health snapshot: %v", err)
	}
}
