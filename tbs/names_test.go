package tbs

import "testing"

func TestUpgradePlaceholderToConcreteName(t *testing.T) {
	p := NewNamePolicy(nil)

	got, changed := p.Upgrade(PlaceholderIncoming, "Jane Doe", "+15551234")
	if !changed || got != "Jane Doe" {
		t.Errorf("Upgrade = %q, %v", got, changed)
	}
}

func TestUpgradeNumberToConcreteName(t *testing.T) {
	p := NewNamePolicy(nil)

	got, changed := p.Upgrade("+15551234", "Jane Doe", "+15551234")
	if !changed || got != "Jane Doe" {
		t.Errorf("Upgrade = %q, %v", got, changed)
	}
}

func TestConcreteNameNeverDowngradesToNumber(t *testing.T) {
	p := NewNamePolicy(nil)

	got, changed := p.Upgrade("Jane Doe", "+15551234", "+15551234")
	if changed || got != "Jane Doe" {
		t.Errorf("Upgrade = %q, %v", got, changed)
	}
}

func TestFirstStableNameWins(t *testing.T) {
	p := NewNamePolicy(nil)

	got, changed := p.Upgrade("Jane Doe", "Jane D.", "+15551234")
	if changed || got != "Jane Doe" {
		t.Errorf("concrete-to-concrete replacement: %q, %v", got, changed)
	}
}

func TestDenyListRejectsBanners(t *testing.T) {
	p := NewNamePolicy([]string{"telemarketer"})

	for _, hint := range []string{
		"Suspected Spam",
		"call protect alert",
		"Telemarketer Likely",
	} {
		if got, changed := p.Upgrade(PlaceholderIncoming, hint, ""); changed {
			t.Errorf("deny-listed %q accepted as %q", hint, got)
		}
	}
}

func TestNumberBeatsPlaceholder(t *testing.T) {
	p := NewNamePolicy(nil)

	got, changed := p.Upgrade(PlaceholderIncoming, "+1 555 987-6543", "")
	if !changed || got != "+1 555 987-6543" {
		t.Errorf("Upgrade = %q, %v", got, changed)
	}
}

func TestEmptyAndIdenticalHintsIgnored(t *testing.T) {
	p := NewNamePolicy(nil)

	if _, changed := p.Upgrade("Jane Doe", "", ""); changed {
		t.Error("empty hint accepted")
	}
	if _, changed := p.Upgrade("Jane Doe", "Jane Doe", ""); changed {
		t.Error("identical hint reported as change")
	}
}

func TestLooksLikeNumber(t *testing.T) {
	for _, tc := range []struct {
		s    string
		want bool
	}{
		{"+15551234", true},
		{"(555) 123-4567", true},
		{"Jane Doe", false},
		{"5th Avenue Florist", false},
		{"", false},
	} {
		if got := looksLikeNumber(tc.s); got != tc.want {
			t.Errorf("looksLikeNumber(%q) = %v", tc.s, got)
		}
	}
}
