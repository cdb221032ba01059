// Package leads forwards caller supplied contact details to downstream
// tracking systems. Delivery is best effort: failures are logged and dropped,
// and nothing here ever reports an error back to the chat request.
package leads

import (
	"encoding/json"
	"strings"
)

// Lead is passed through opaquely; only email and phone are inspected.
type Lead map[string]interface{}

// ParseLead accepts a JSON object and ignores anything else (null, arrays, strings).
func ParseLead(raw json.RawMessage) Lead {
	if len(raw) == 0 {
		return nil
	}
	var lead Lead
	if err := json.Unmarshal(raw, &lead); err != nil {
		return nil
	}
	return lead
}

// HasContact reports whether the lead carries a usable email or phone value.
func HasContact(lead Lead) bool {
	return present(lead["email"]) || present(lead["phone"])
}

func present(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return t
	case float64:
		return t != 0
	default:
		return true
	}
}

// Event is one lead stamped with the time it was captured.
type Event struct {
	Ts   int64
	Lead Lead
}

// MarshalJSON flattens the event into {ts, ...lead}. Lead fields are written
// after ts, so a caller supplied ts wins.
func (e Event) MarshalJSON() ([]byte, error) {
	body := make(map[string]interface{}, len(e.Lead)+1)
	body["ts"] = e.Ts
	for k, v := range e.Lead {
		body[k] = v
	}
	return json.Marshal(body)
}
