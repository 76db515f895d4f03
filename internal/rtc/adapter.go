package rtc

import "strings"

// NormalizeCallUpdate converts a vendor call payload into a CallUpdate.
// Vendor payloads are duck-typed: the same logical field appears under
// different names across SDK revisions, so every lookup here is a fallback
// chain. This is the only place such lookups are allowed.
func NormalizeCallUpdate(raw map[string]any) (CallUpdate, bool) {
	if raw == nil {
		return CallUpdate{}, false
	}

	id := stringField(raw, "callID", "call_id", "id")
	if id == "" {
		return CallUpdate{}, false
	}

	state := strings.ToLower(stringField(raw, "state", "status"))
	if state == "" {
		return CallUpdate{}, false
	}

	dir := normalizeDirection(stringField(raw, "direction"))

	caller := stringField(raw, "caller_id_number", "callerNumber", "caller", "from")
	callee := stringField(raw, "destination_number", "destinationNumber", "callee", "to")

	u := CallUpdate{
		ID:        id,
		State:     CallState(state),
		Direction: dir,
	}
	if dir == DirectionOutbound {
		u.Remote = callee
		u.Local = caller
	} else {
		u.Remote = caller
		u.Local = callee
	}
	return u, true
}

func normalizeDirection(v string) Direction {
	switch strings.ToLower(v) {
	case "outbound", "outgoing":
		return DirectionOutbound
	default:
		// Vendor revisions omit direction on some inbound notifications.
		return DirectionInbound
	}
}

func stringField(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
