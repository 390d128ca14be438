package att

import (
	"fmt"
	"sort"
	"sync"
)

// MaxPreparedBytes caps the total queued long-write payload per link.
const MaxPreparedBytes = 4096

type preparedFragment struct {
	offset uint16
	value  []byte
}

// PrepareQueue accumulates Prepare Write fragments on one link until an
// Execute Write commits or cancels them.
type PrepareQueue struct {
	mu     sync.Mutex
	queued map[uint16][]preparedFragment
	total  int
}

func NewPrepareQueue() *PrepareQueue {
	return &PrepareQueue{queued: make(map[uint16][]preparedFragment)}
}

// Add queues one fragment.
func (q *PrepareQueue) Add(handle uint16, offset uint16, value []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.total+len(value) > MaxPreparedBytes {
		return fmt.Errorf("prepare queue full (%d bytes)", q.total)
	}
	frag := preparedFragment{offset: offset, value: append([]byte{}, value...)}
	q.queued[handle] = append(q.queued[handle], frag)
	q.total += len(value)
	return nil
}

// Commit assembles the queued fragments per handle, ordered by offset,
// and empties the queue. Gaps are an error; overlapping fragments let
// the later write win, as a sequential client produces.
func (q *PrepareQueue) Commit() (map[uint16][]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	assembled := make(map[uint16][]byte, len(q.queued))
	for handle, frags := range q.queued {
		sort.SliceStable(frags, func(i, j int) bool { return frags[i].offset < frags[j].offset })
		var value []byte
		for _, f := range frags {
			if int(f.offset) > len(value) {
				q.reset()
				return nil, fmt.Errorf("gap at offset %d on handle 0x%04X", f.offset, handle)
			}
			if int(f.offset) < len(value) {
				value = value[:f.offset]
			}
			value = append(value, f.value...)
		}
		assembled[handle] = value
	}
	q.reset()
	return assembled, nil
}

// Cancel discards everything queued.
func (q *PrepareQueue) Cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reset()
}

func (q *PrepareQueue) reset() {
	q.queued = make(map[uint16][]preparedFragment)
	q.total = 0
}
