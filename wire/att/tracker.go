package att

import (
	"fmt"
	"sync"
	"time"
)

// DefaultRequestTimeout matches the 30 second ATT transaction timeout.
const DefaultRequestTimeout = 30 * time.Second

// Response is what a waiting requester receives: the decoded response
// packet or an error (ATT error response, timeout, disconnect).
type Response struct {
	Packet Packet
	Error  error
}

// RequestTracker enforces the single-outstanding-request rule of ATT:
// a client must not issue a second request before the first one's
// response arrives.
type RequestTracker struct {
	mu             sync.Mutex
	pendingOpcode  uint8
	responseChan   chan Response
	timeoutTimer   *time.Timer
	requestTimeout time.Duration
}

// NewRequestTracker creates a tracker. A zero timeout selects the
// default.
func NewRequestTracker(timeout time.Duration) *RequestTracker {
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	return &RequestTracker{requestTimeout: timeout}
}

// StartRequest registers an outstanding request and returns the channel
// its response will arrive on. Fails if a request is already pending.
func (rt *RequestTracker) StartRequest(opcode uint8) (<-chan Response, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.responseChan != nil {
		return nil, fmt.Errorf("att: request 0x%02X already outstanding", rt.pendingOpcode)
	}

	ch := make(chan Response, 1)
	rt.pendingOpcode = opcode
	rt.responseChan = ch
	rt.timeoutTimer = time.AfterFunc(rt.requestTimeout, func() {
		rt.fail(fmt.Errorf("att: request 0x%02X timed out after %s", opcode, rt.requestTimeout))
	})
	return ch, nil
}

// HandleResponse routes an inbound response (or error response) to the
// waiter. Returns false when nothing was pending or the opcode does not
// match.
func (rt *RequestTracker) HandleResponse(pkt Packet) bool {
	rt.mu.Lock()
	ch := rt.responseChan
	pending := rt.pendingOpcode
	if ch == nil {
		rt.mu.Unlock()
		return false
	}

	if errResp, ok := pkt.(*ErrorResponse); ok {
		if errResp.RequestOpcode != pending {
			rt.mu.Unlock()
			return false
		}
		rt.clearLocked()
		rt.mu.Unlock()
		ch <- Response{Error: NewError(errResp.Code, errResp.RequestOpcode, errResp.Handle)}
		return true
	}

	if pkt.Opcode() != ResponseOpcode(pending) {
		rt.mu.Unlock()
		return false
	}
	rt.clearLocked()
	rt.mu.Unlock()
	ch <- Response{Packet: pkt}
	return true
}

// FailRequest aborts the pending request with an error.
func (rt *RequestTracker) FailRequest(err error) {
	rt.fail(err)
}

// CancelPending aborts the pending request at disconnect time.
func (rt *RequestTracker) CancelPending() {
	rt.fail(fmt.Errorf("att: connection closed"))
}

func (rt *RequestTracker) fail(err error) {
	rt.mu.Lock()
	ch := rt.responseChan
	if ch == nil {
		rt.mu.Unlock()
		return
	}
	rt.clearLocked()
	rt.mu.Unlock()
	ch <- Response{Error: err}
}

func (rt *RequestTracker) clearLocked() {
	if rt.timeoutTimer != nil {
		rt.timeoutTimer.Stop()
		rt.timeoutTimer = nil
	}
	rt.responseChan = nil
	rt.pendingOpcode = 0
}
