// Package termkey implements the canonical terminal identifier used to name
// a terminal pane/tab across the many shapes different terminal emulators
// and hook integrations report it in.
package termkey

import (
	"fmt"
	"strconv"
	"strings"
)

// Prefix identifies which terminal-identity scheme produced a key.
type Prefix string

const (
	ITerm   Prefix = "ITERM"
	TTY     Prefix = "TTY"
	PID     Prefix = "PID"
	Kitty   Prefix = "KITTY"
	WezTerm Prefix = "WEZTERM"
	WT      Prefix = "WT"
	Term    Prefix = "TERM"
	Unknown Prefix = "UNKNOWN"
)

// DiscoveredTag marks a key synthesized by the process scanner rather than
// declared by the owning process: "DISCOVERED:PREFIX:value".
const DiscoveredTag = "DISCOVERED"

// Identity is the set of self-reported terminal-identity fields a session
// start/activity event may carry. Build picks the richest one present.
type Identity struct {
	ITermSessionID string
	KittyWindowID  string
	WezTermPaneID  string
	WTSessionID    string
	TermSessionID  string
	TTY            string
	PID            int
}

// Parsed is the decomposition of a terminal_key string (§4.1).
type Parsed struct {
	Prefix       Prefix
	Value        string
	PID          *int
	UUID         string
	TTY          string
	IsDiscovered bool
	InnerKey     string // key with "DISCOVERED:" stripped, set iff IsDiscovered
}

// canonicalPrefix tolerates emulator-reported shape variants (§4.1).
func canonicalPrefix(raw string) Prefix {
	switch strings.ToUpper(raw) {
	case "ITERM", "ITERM2":
		return ITerm
	case "TTY":
		return TTY
	case "PID":
		return PID
	case "KITTY":
		return Kitty
	case "WEZTERM":
		return WezTerm
	case "WT", "WINDOWSTERMINAL":
		return WT
	case "TERM":
		return Term
	default:
		return Unknown
	}
}

// Parse decomposes a terminal_key into its structured fields.
func Parse(key string) Parsed {
	p := Parsed{Prefix: Unknown}
	if key == "" {
		return p
	}

	rest := key
	if strings.HasPrefix(rest, DiscoveredTag+":") {
		p.IsDiscovered = true
		rest = strings.TrimPrefix(rest, DiscoveredTag+":")
		p.InnerKey = rest
	}

	idx := strings.Index(rest, ":")
	var prefixRaw, value string
	if idx < 0 {
		prefixRaw, value = rest, ""
	} else {
		prefixRaw, value = rest[:idx], rest[idx+1:]
	}
	p.Prefix = canonicalPrefix(prefixRaw)
	p.Value = value

	switch p.Prefix {
	case PID:
		if n, err := strconv.Atoi(value); err == nil {
			p.PID = &n
		}
	case TTY:
		p.TTY = value
		if p.IsDiscovered {
			// DISCOVERED:TTY:<tty>:<pid>
			if li := strings.LastIndex(value, ":"); li >= 0 {
				if n, err := strconv.Atoi(value[li+1:]); err == nil {
					p.PID = &n
				}
			}
		}
	case ITerm:
		p.UUID = ExtractITermUUID(value)
	}

	return p
}

// Build constructs a terminal_key from whichever identity field is richest.
// Priority: iTerm session id, Kitty window id, WezTerm pane id, WT session,
// TERM session id, TTY, PID > 0. Returns ("", false) when nothing is set.
func Build(id Identity) (string, bool) {
	switch {
	case id.ITermSessionID != "":
		return fmt.Sprintf("%s:%s", ITerm, id.ITermSessionID), true
	case id.KittyWindowID != "":
		return fmt.Sprintf("%s:%s", Kitty, id.KittyWindowID), true
	case id.WezTermPaneID != "":
		return fmt.Sprintf("%s:%s", WezTerm, id.WezTermPaneID), true
	case id.WTSessionID != "":
		return fmt.Sprintf("%s:%s", WT, id.WTSessionID), true
	case id.TermSessionID != "":
		return fmt.Sprintf("%s:%s", Term, id.TermSessionID), true
	case id.TTY != "":
		return fmt.Sprintf("%s:%s", TTY, id.TTY), true
	case id.PID > 0:
		return fmt.Sprintf("%s:%d", PID, id.PID), true
	default:
		return "", false
	}
}

// ExtractPID reads a PID out of PID:n, DISCOVERED:PID:n, or
// DISCOVERED:TTY:<tty>:<pid> shaped keys. Returns nil when none is present.
func ExtractPID(key string) *int {
	return Parse(key).PID
}

// ExtractITermUUID pulls the UUID out of an iTerm session-id value shaped
// "w<n>t<n>p<n>:UUID" (everything after the last colon), tolerating a
// leading "ITERM:" prefix and a bare UUID with no colon at all.
func ExtractITermUUID(value string) string {
	value = strings.TrimPrefix(value, string(ITerm)+":")
	idx := strings.LastIndex(value, ":")
	if idx < 0 {
		return value
	}
	return value[idx+1:]
}

// normalizeTTY strips an optional "/dev/" prefix and an optional trailing
// ":<pid>" suffix so "/dev/ttys001" and "ttys001:42" compare equal to
// "ttys001".
func normalizeTTY(value string) string {
	v := strings.TrimPrefix(value, "/dev/")
	if idx := strings.LastIndex(v, ":"); idx >= 0 {
		if _, err := strconv.Atoi(v[idx+1:]); err == nil {
			v = v[:idx]
		}
	}
	return v
}

// Match is the canonical equality used everywhere two terminal keys are
// compared (§4.1). Empty key on either side is never a match.
func Match(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}

	pa, pb := Parse(a), Parse(b)

	switch {
	case pa.Prefix == ITerm && pb.Prefix == ITerm:
		return pa.UUID != "" && pa.UUID == pb.UUID
	case pa.Prefix == TTY && pb.Prefix == TTY:
		return normalizeTTY(pa.Value) == normalizeTTY(pb.Value)
	case pa.Prefix == PID && pb.Prefix == PID:
		return pa.PID != nil && pb.PID != nil && *pa.PID == *pb.PID
	default:
		return pa.Prefix == pb.Prefix && pa.Prefix != Unknown && pa.Value == pb.Value
	}
}
