package cluster

import (
	"strings"
)

// Mode selects how disallowed fields are handled.
type Mode string

const (
	// ModeOmit drops disallowed fields from the payload entirely.
	ModeOmit Mode = "omit"
	// ModeRedact keeps the key but replaces the value with a marker.
	ModeRedact Mode = "redact"
)

// RedactionMarker replaces a disallowed field value under ModeRedact. The
// marker carries no trace of the original value.
var RedactionMarker = map[string]any{
	"_redacted": true,
	"_reason":   "insufficient_permissions",
}

// AllFilteredMarker is returned when every clustered field was removed, so
// callers can distinguish "no permitted data" from "no data at all".
var AllFilteredMarker = map[string]any{
	"_rbacRedacted": true,
	"_message":      "all fields removed by role policy",
}

// Apply filters a flat data payload for the role. Keys of the form
// "<cluster>.<field>" are checked against the policy; keys without a
// cluster prefix are structural and pass through untouched. The input map
// is never mutated, and applying the same policy twice yields the same
// result.
func (p Policy) Apply(role string, data map[string]any, mode Mode) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	clustered, removed := 0, 0
	for key, value := range data {
		c, field, ok := splitKey(key)
		if !ok {
			out[key] = value
			continue
		}
		clustered++
		if p.Allows(role, c, field) {
			out[key] = value
			continue
		}
		removed++
		if mode == ModeRedact {
			out[key] = RedactionMarker
		}
	}
	if clustered > 0 && removed == clustered && len(out) == 0 {
		return AllFilteredMarker
	}
	return out
}

// splitKey parses "<cluster>.<field>". Keys whose prefix is not a known
// cluster are treated as structural.
func splitKey(key string) (Cluster, string, bool) {
	prefix, field, ok := strings.Cut(key, ".")
	if !ok || field == "" {
		return "", "", false
	}
	c := Cluster(prefix)
	for _, known := range Clusters {
		if c == known {
			return c, field, true
		}
	}
	return "", "", false
}
