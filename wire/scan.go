package wire

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/util"
	"github.com/user/wearlink-blue/wire/advertising"
)

const scanPollInterval = 500 * time.Millisecond

// ScanResult is one advertiser discovered in the socket directory.
type ScanResult struct {
	UUID         string
	LocalName    string
	ServiceUUIDs []uint16
}

// Scanner polls the socket directory for advertising payloads.
// Discovery is delivered once per advertiser per scan session.
type Scanner struct {
	prefix string
	mu     sync.Mutex
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewScanner creates a scanner. The ownerUUID only labels log lines.
func NewScanner(ownerUUID string) *Scanner {
	return &Scanner{prefix: util.ShortHash(ownerUUID) + " Scan"}
}

// Start begins polling and invokes found for each newly seen
// advertiser. Restarting an active scanner is an error no-op.
func (s *Scanner) Start(found func(ScanResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		logger.Warn(s.prefix, "scan already running")
		return
	}
	stop := make(chan struct{})
	s.stop = stop
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		seen := make(map[string]bool)
		ticker := time.NewTicker(scanPollInterval)
		defer ticker.Stop()
		for {
			s.poll(seen, found)
			select {
			case <-ticker.C:
			case <-stop:
				return
			}
		}
	}()
}

// Stop ends polling and waits for the scan goroutine.
func (s *Scanner) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	s.wg.Wait()
}

func (s *Scanner) poll(seen map[string]bool, found func(ScanResult)) {
	entries, err := os.ReadDir(util.GetSocketDir())
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "wearlink-") || !strings.HasSuffix(name, ".adv") {
			continue
		}
		uuid := strings.TrimSuffix(strings.TrimPrefix(name, "wearlink-"), ".adv")
		if seen[uuid] {
			continue
		}
		payload, err := os.ReadFile(filepath.Join(util.GetSocketDir(), name))
		if err != nil {
			continue
		}
		structures, err := advertising.Decode(payload)
		if err != nil {
			logger.Warn(s.prefix, "bad advertising payload from %s: %v", util.ShortHash(uuid), err)
			continue
		}
		seen[uuid] = true
		result := ScanResult{UUID: uuid, ServiceUUIDs: advertising.ServiceUUIDs(structures)}
		if n, ok := advertising.LocalName(structures); ok {
			result.LocalName = n
		}
		logger.Debug(s.prefix, "discovered %s (%q)", util.ShortHash(uuid), result.LocalName)
		found(result)
	}
}
