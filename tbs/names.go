package tbs

import "strings"

// Placeholder friendly names used before the name-inference
// collaborator has supplied anything better.
const (
	PlaceholderIncoming = "Incoming Call"
	PlaceholderUnknown  = "Unknown Number"
)

// defaultDenyList rejects promotional and system banners that the
// notification-text collaborator sometimes misreads as caller names.
// Matching is case-insensitive substring.
var defaultDenyList = []string{
	"spam protection",
	"suspected spam",
	"call protect",
	"verified call",
	"screening call",
}

// NamePolicy applies the caller-name upgrade rules. Extra deny-list
// entries come from config.
type NamePolicy struct {
	deny []string
}

// NewNamePolicy builds a policy with the default deny list plus extras.
func NewNamePolicy(extraDeny []string) *NamePolicy {
	deny := make([]string, 0, len(defaultDenyList)+len(extraDeny))
	deny = append(deny, defaultDenyList...)
	deny = append(deny, extraDeny...)
	return &NamePolicy{deny: deny}
}

// Upgrade decides whether a newly arrived name hint replaces the
// current friendly name. number is the call's phone number, used to
// recognize a bare-number downgrade. Rules:
//
//   - deny-listed hints are always rejected
//   - a placeholder or bare number upgrades to any concrete name
//   - a concrete name is never downgraded to a bare number
//   - once concrete, first-stable-name-wins: no concrete-to-concrete
//     replacement, which avoids flicker from near-simultaneous hint
//     sources
func (p *NamePolicy) Upgrade(current, candidate, number string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || candidate == current {
		return current, false
	}
	if p.denied(candidate) {
		return current, false
	}

	currentConcrete := isConcrete(current, number)
	candidateConcrete := isConcrete(candidate, number)

	if currentConcrete {
		// First stable name wins, and never downgrade to a number.
		return current, false
	}
	if candidateConcrete {
		return candidate, true
	}
	// Neither is concrete; a number still beats an empty or placeholder
	// value.
	if current == "" || isPlaceholder(current) {
		return candidate, true
	}
	return current, false
}

func (p *NamePolicy) denied(name string) bool {
	lower := strings.ToLower(name)
	for _, d := range p.deny {
		if strings.Contains(lower, strings.ToLower(d)) {
			return true
		}
	}
	return false
}

// isConcrete reports whether a value is a real resolved name rather
// than a placeholder or the call's own number.
func isConcrete(name, number string) bool {
	if name == "" || isPlaceholder(name) {
		return false
	}
	if number != "" && name == number {
		return false
	}
	return !looksLikeNumber(name)
}

func isPlaceholder(name string) bool {
	switch name {
	case PlaceholderIncoming, PlaceholderUnknown, "Unknown", "Unknown Caller":
		return true
	}
	return false
}

// looksLikeNumber reports whether a string is a bare phone number.
func looksLikeNumber(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return true
}
