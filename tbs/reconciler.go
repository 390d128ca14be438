package tbs

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/user/wearlink-blue/codec"
	"github.com/user/wearlink-blue/event"
	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/wearerr"
)

// CallMetadata is the reconciler's view of the single tracked call.
type CallMetadata struct {
	PhoneNumber       string
	CallerName        string
	State             codec.CallState
	CallID            string
	Timestamp         time.Time
	TerminationReason *codec.TerminationReason
	IsIncoming        bool
}

// Thresholds are the timing heuristics the reconciler disambiguates
// with. Zero values are replaced by the documented defaults.
type Thresholds struct {
	DialJitter      time.Duration // second OFFHOOK within this window is signaling jitter
	RedialGap       time.Duration // OFFHOOK while ACTIVE after this gap is a new call
	DialingWatchdog time.Duration // force DIALING -> ACTIVE after this
}

// DefaultThresholds returns the tuned values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DialJitter:      500 * time.Millisecond,
		RedialGap:       1000 * time.Millisecond,
		DialingWatchdog: 5 * time.Second,
	}
}

// WatchdogRequest asks the session to deliver a WatchdogFired after
// Delay, stamped with CallID so a fire against a stale call is
// detectable.
type WatchdogRequest struct {
	CallID string
	Delay  time.Duration
}

// Reconciler is the call state machine. It merges the three-state
// telephony signal with asynchronously arriving caller-name hints and
// a watchdog timer into TBS call states. The session drives it from a
// single goroutine; the lock exists for direct use in tests.
type Reconciler struct {
	mu           sync.Mutex
	thresholds   Thresholds
	policy       *NamePolicy
	now          func() time.Time
	cur          CallMetadata
	lastAccepted time.Time
	everActive   bool
}

const reconcilerPrefix = "TBS/reconciler"

// NewReconciler creates a reconciler with the given thresholds and
// name policy. A nil policy gets the default deny list.
func NewReconciler(t Thresholds, policy *NamePolicy) *Reconciler {
	if t.DialJitter == 0 {
		t.DialJitter = DefaultThresholds().DialJitter
	}
	if t.RedialGap == 0 {
		t.RedialGap = DefaultThresholds().RedialGap
	}
	if t.DialingWatchdog == 0 {
		t.DialingWatchdog = DefaultThresholds().DialingWatchdog
	}
	if policy == nil {
		policy = NewNamePolicy(nil)
	}
	return &Reconciler{
		thresholds: t,
		policy:     policy,
		now:        time.Now,
		cur:        CallMetadata{State: codec.CallIdle},
	}
}

// SetClock replaces the time source. Test hook.
func (r *Reconciler) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Current returns a copy of the tracked call metadata.
func (r *Reconciler) Current() CallMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur
}

// Signal feeds one telephony state-change event through the machine.
// The returned update is nil when the signal was absorbed as a
// duplicate; the watchdog request is non-nil when a DIALING state was
// entered and needs its activation timer armed.
func (r *Reconciler) Signal(sig event.TelephonyState, number string) (*CallMetadata, *WatchdogRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	switch sig {
	case event.TelephonyRinging:
		return r.onRinging(number, now)
	case event.TelephonyOffhook:
		return r.onOffhook(number, now)
	case event.TelephonyIdle:
		return r.onIdle(now), nil
	default:
		logger.Warn(reconcilerPrefix, "unknown telephony signal %q ignored", sig)
		return nil, nil
	}
}

func (r *Reconciler) onRinging(number string, now time.Time) (*CallMetadata, *WatchdogRequest) {
	if r.cur.State != codec.CallIdle {
		// Carrier retrigger of the ring we already track.
		logger.Debug(reconcilerPrefix, "RINGING while %s, duplicate dropped", r.cur.State)
		return nil, nil
	}

	name := number
	if name == "" {
		name = PlaceholderIncoming
	}
	r.cur = CallMetadata{
		PhoneNumber: number,
		CallerName:  name,
		State:       codec.CallIncoming,
		CallID:      uuid.NewString(),
		Timestamp:   now,
		IsIncoming:  true,
	}
	r.everActive = false
	r.lastAccepted = now
	logger.Info(reconcilerPrefix, "IDLE -> INCOMING (%s, call %s)", number, r.cur.CallID)
	u := r.cur
	return &u, nil
}

func (r *Reconciler) onOffhook(number string, now time.Time) (*CallMetadata, *WatchdogRequest) {
	switch r.cur.State {
	case codec.CallIdle:
		// No prior state: an outgoing call. Some carriers never emit a
		// second OFFHOOK for the answer, so a watchdog forces the
		// activation if nothing else does.
		name := number
		if name == "" {
			name = PlaceholderUnknown
		}
		r.cur = CallMetadata{
			PhoneNumber: number,
			CallerName:  name,
			State:       codec.CallDialing,
			CallID:      uuid.NewString(),
			Timestamp:   now,
			IsIncoming:  false,
		}
		r.everActive = false
		r.lastAccepted = now
		logger.Info(reconcilerPrefix, "IDLE -> DIALING (call %s)", r.cur.CallID)
		u := r.cur
		return &u, &WatchdogRequest{CallID: r.cur.CallID, Delay: r.thresholds.DialingWatchdog}

	case codec.CallIncoming:
		r.cur.State = codec.CallActive
		r.cur.Timestamp = now
		r.everActive = true
		r.lastAccepted = now
		logger.Info(reconcilerPrefix, "INCOMING -> ACTIVE (call %s)", r.cur.CallID)
		u := r.cur
		return &u, nil

	case codec.CallDialing:
		if now.Sub(r.lastAccepted) <= r.thresholds.DialJitter {
			logger.Debug(reconcilerPrefix, "OFFHOOK within %s of DIALING, jitter dropped", r.thresholds.DialJitter)
			return nil, nil
		}
		r.cur.State = codec.CallActive
		r.cur.Timestamp = now
		r.everActive = true
		r.lastAccepted = now
		logger.Info(reconcilerPrefix, "DIALING -> ACTIVE (call %s)", r.cur.CallID)
		u := r.cur
		return &u, nil

	case codec.CallActive:
		if now.Sub(r.lastAccepted) <= r.thresholds.RedialGap {
			logger.Debug(reconcilerPrefix, "OFFHOOK within %s of ACTIVE, duplicate dropped", r.thresholds.RedialGap)
			return nil, nil
		}
		// A second outgoing call without an intervening IDLE
		// (call-waiting or immediate redial). Track the new call.
		name := number
		if name == "" {
			name = PlaceholderUnknown
		}
		r.cur = CallMetadata{
			PhoneNumber: number,
			CallerName:  name,
			State:       codec.CallDialing,
			CallID:      uuid.NewString(),
			Timestamp:   now,
			IsIncoming:  false,
		}
		r.everActive = false
		r.lastAccepted = now
		logger.Info(reconcilerPrefix, "ACTIVE -> DIALING, new call %s", r.cur.CallID)
		u := r.cur
		return &u, &WatchdogRequest{CallID: r.cur.CallID, Delay: r.thresholds.DialingWatchdog}

	default:
		logger.Debug(reconcilerPrefix, "OFFHOOK while %s dropped", r.cur.State)
		return nil, nil
	}
}

// onIdle handles the idle signal from any state, attributing a
// termination reason. A call that rang and was never answered is
// NO_ANSWER; anything that got past that is attributed to the local
// party, chosen here as the single consistent convention.
func (r *Reconciler) onIdle(now time.Time) *CallMetadata {
	if r.cur.State == codec.CallIdle {
		return nil
	}

	reason := codec.ReasonLocalParty
	if r.cur.State == codec.CallIncoming && !r.everActive {
		reason = codec.ReasonNoAnswer
	}

	r.cur.State = codec.CallIdle
	r.cur.Timestamp = now
	r.cur.TerminationReason = &reason
	r.lastAccepted = now
	logger.Info(reconcilerPrefix, "-> IDLE, termination %s (call %s)", reason, r.cur.CallID)

	u := r.cur
	// The call is over; keep only the id so a watchdog for it is
	// recognizably stale.
	r.cur = CallMetadata{State: codec.CallIdle, CallID: r.cur.CallID}
	r.everActive = false
	return &u
}

// WatchdogFired resolves a dialing-activation watchdog. The fire is
// stale when the call it was armed for is gone or no longer DIALING.
func (r *Reconciler) WatchdogFired(callID string) (*CallMetadata, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur.CallID != callID || r.cur.State != codec.CallDialing {
		logger.Debug(reconcilerPrefix, "watchdog for call %s stale (now %s/%s)", callID, r.cur.State, r.cur.CallID)
		return nil, wearerr.ErrStaleWatchdog
	}

	r.cur.State = codec.CallActive
	r.cur.Timestamp = r.now()
	r.everActive = true
	r.lastAccepted = r.cur.Timestamp
	logger.Info(reconcilerPrefix, "watchdog forced DIALING -> ACTIVE (call %s)", callID)
	u := r.cur
	return &u, nil
}

// NameHint applies an out-of-band caller-name hint. Returns the
// updated metadata when the name changed, nil otherwise. Hints during
// IDLE are meaningless and dropped.
func (r *Reconciler) NameHint(name string) *CallMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur.State == codec.CallIdle {
		return nil
	}
	upgraded, changed := r.policy.Upgrade(r.cur.CallerName, name, r.cur.PhoneNumber)
	if !changed {
		logger.Debug(reconcilerPrefix, "name hint %q rejected (keeping %q)", name, r.cur.CallerName)
		return nil
	}
	r.cur.CallerName = upgraded
	logger.Info(reconcilerPrefix, "caller name -> %q", upgraded)
	u := r.cur
	return &u
}
