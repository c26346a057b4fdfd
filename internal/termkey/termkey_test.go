package termkey

import "testing"

func TestBuildPriority(t *testing.T) {
	cases := []struct {
		name string
		id   Identity
		want string
	}{
		{"iterm wins", Identity{ITermSessionID: "w0t0p0:ABC", TTY: "ttys001"}, "ITERM:w0t0p0:ABC"},
		{"kitty next", Identity{KittyWindowID: "7", TTY: "ttys001"}, "KITTY:7"},
		{"tty over pid", Identity{TTY: "ttys001", PID: 42}, "TTY:ttys001"},
		{"pid last", Identity{PID: 42}, "PID:42"},
		{"pid zero is empty", Identity{PID: 0}, ""},
	}
	for _, c := range cases {
		got, ok := Build(c.id)
		if c.want == "" {
			if ok {
				t.Errorf("%s: expected no key, got %q", c.name, got)
			}
			continue
		}
		if !ok || got != c.want {
			t.Errorf("%s: got (%q, %v), want %q", c.name, got, ok, c.want)
		}
	}
}

func TestParsePrefixAliases(t *testing.T) {
	if Parse("ITERM2:foo").Prefix != ITerm {
		t.Error("ITERM2 should canonicalize to ITERM")
	}
	if Parse("WindowsTerminal:foo").Prefix != WT {
		t.Error("WindowsTerminal should canonicalize to WT")
	}
	if Parse("WINDOWSTERMINAL:foo").Prefix != WT {
		t.Error("WINDOWSTERMINAL should canonicalize to WT")
	}
}

func TestExtractPID(t *testing.T) {
	cases := map[string]*int{
		"PID:42":                   intPtrT(42),
		"DISCOVERED:PID:7":         intPtrT(7),
		"DISCOVERED:TTY:ttys001:9": intPtrT(9),
		"TTY:ttys001":              nil,
		"":                         nil,
	}
	for key, want := range cases {
		got := ExtractPID(key)
		if (got == nil) != (want == nil) {
			t.Errorf("ExtractPID(%q) = %v, want %v", key, got, want)
			continue
		}
		if got != nil && *got != *want {
			t.Errorf("ExtractPID(%q) = %d, want %d", key, *got, *want)
		}
	}
}

func intPtrT(n int) *int { return &n }

func TestExtractITermUUID(t *testing.T) {
	cases := map[string]string{
		"w0t0p0:ABCD-1234":      "ABCD-1234",
		"ABCD-1234":             "ABCD-1234",
		"ITERM:w1t2p3:UUID-XYZ": "UUID-XYZ",
	}
	for in, want := range cases {
		if got := ExtractITermUUID(in); got != want {
			t.Errorf("ExtractITermUUID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatchEmptyNeverMatches(t *testing.T) {
	if Match("TTY:ttys001", "") || Match("", "TTY:ttys001") || Match("", "") {
		t.Error("empty key must never match")
	}
}

func TestMatchSelf(t *testing.T) {
	for _, k := range []string{"ITERM:w0t0p0:UUID", "TTY:ttys001", "PID:42", "DISCOVERED:PID:1"} {
		if !Match(k, k) {
			t.Errorf("Match(%q, %q) should be true", k, k)
		}
	}
}

func TestMatchITermIgnoresWindowTabPane(t *testing.T) {
	a := "ITERM:w0t0p0:SAME-UUID"
	b := "ITERM:w1t2p3:SAME-UUID"
	if !Match(a, b) {
		t.Errorf("expected iTerm keys with same uuid to match: %q vs %q", a, b)
	}
}

func TestMatchTTYToleratesDevPrefixAndPIDSuffix(t *testing.T) {
	if !Match("DISCOVERED:TTY:ttys001:42", "TTY:/dev/ttys001") {
		t.Error("DISCOVERED:TTY:ttys001:N should match TTY:/dev/ttys001 for any N")
	}
	if !Match("DISCOVERED:TTY:ttys001:99", "TTY:/dev/ttys001") {
		t.Error("DISCOVERED:TTY:ttys001:N should match TTY:/dev/ttys001 for any N")
	}
}

func TestMatchPID(t *testing.T) {
	if !Match("PID:42", "DISCOVERED:PID:42") {
		t.Error("matching pids across discovered/declared should match")
	}
	if Match("PID:42", "PID:43") {
		t.Error("different pids should not match")
	}
}

func TestMatchDifferentPrefixesNeverMatch(t *testing.T) {
	if Match("TTY:ttys001", "PID:1") {
		t.Error("different prefixes should not match even with coincidental values")
	}
}
