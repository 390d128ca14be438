package smp

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Bond is one stored pairing.
type Bond struct {
	PeerID   string    `json:"peer_id"`
	LTK      string    `json:"ltk"` // hex
	BondedAt time.Time `json:"bonded_at"`
}

// BondStore persists link keys per peer as JSON under the device
// directory. Only link keys: protocol state is never persisted.
type BondStore struct {
	mu    sync.Mutex
	path  string
	bonds map[string]Bond
}

// NewBondStore loads (or initializes) the store at path.
func NewBondStore(path string) *BondStore {
	s := &BondStore{path: path, bonds: make(map[string]Bond)}
	if data, err := os.ReadFile(path); err == nil {
		var bonds []Bond
		if json.Unmarshal(data, &bonds) == nil {
			for _, b := range bonds {
				s.bonds[b.PeerID] = b
			}
		}
	}
	return s
}

// IsBonded reports whether a bond with the peer exists.
func (s *BondStore) IsBonded(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.bonds[peerID]
	return ok
}

// LTK returns the stored key for a peer.
func (s *BondStore) LTK(peerID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bonds[peerID]
	if !ok {
		return nil, false
	}
	ltk, err := hex.DecodeString(b.LTK)
	if err != nil {
		return nil, false
	}
	return ltk, true
}

// Store saves a new bond and flushes the file.
func (s *BondStore) Store(peerID string, ltk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bonds[peerID] = Bond{
		PeerID:   peerID,
		LTK:      hex.EncodeToString(ltk),
		BondedAt: time.Now(),
	}
	return s.flushLocked()
}

// Forget drops a bond.
func (s *BondStore) Forget(peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bonds, peerID)
	return s.flushLocked()
}

// flushLocked writes atomically: temp file then rename.
func (s *BondStore) flushLocked() error {
	bonds := make([]Bond, 0, len(s.bonds))
	for _, b := range s.bonds {
		bonds = append(bonds, b)
	}
	data, err := json.MarshalIndent(bonds, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
