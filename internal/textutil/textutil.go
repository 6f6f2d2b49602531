// Package textutil holds small text shaping helpers shared by the session
// translation layer and the trackers. Internal to avoid committing to public
// API stability prematurely.
package textutil

import (
	"encoding/json"
	"fmt"
)

// Truncate clips s to at most max runes, appending an ellipsis when clipped.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

// TruncateRaw clips s to at most max runes without an ellipsis marker.
func TruncateRaw(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// Stringify renders an arbitrary tool result as display text. Maps are
// pretty-printed as JSON; everything else falls back to fmt formatting.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		b, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}
