// Package legacy reconstructs normalized per-recipient send state from
// messages written before the sendstate model existed. Old records kept
// flat, loosely-typed attribute lists (who was sent to, who read, who
// errored); this package reads them defensively and replays them through
// the sendstate reducer exactly once.
package legacy

// Record is the type-erased bag of legacy message attributes, as decoded
// from the stored JSON column. Historical data has unknown integrity, so
// every accessor tolerates missing keys and wrong shapes by returning
// empty rather than failing.
type Record map[string]any

// Attribute keys written by pre-sendstate clients.
const (
	keyRecipients  = "recipients"
	keySentTo      = "sent_to"
	keyDeliveredTo = "delivered_to"
	keyReadBy      = "read_by"
	keySent        = "sent"
	keyErrors      = "errors"
)

// errorEntry is one legacy send error. Old clients recorded the failed
// recipient under either of two fields depending on their vintage.
type errorEntry struct {
	Identifier string
	Number     string
}

// stringList reads a list-of-identifiers attribute. Non-list values yield
// nil; non-string elements are skipped.
func (r Record) stringList(key string) []string {
	if r == nil {
		return nil
	}
	raw, ok := r[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, el := range v {
			if s, ok := el.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// sentFlag reads the boolean-ish legacy "sent" marker. JSON decoding can
// surface it as a bool, a number, or a string.
func (r Record) sentFlag() bool {
	if r == nil {
		return false
	}
	switch v := r[keySent].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		return v != "" && v != "false" && v != "0"
	default:
		return false
	}
}

// errorEntries reads the legacy errors list. Malformed entries are dropped.
func (r Record) errorEntries() []errorEntry {
	if r == nil {
		return nil
	}
	raw, ok := r[keyErrors].([]any)
	if !ok {
		return nil
	}
	out := make([]errorEntry, 0, len(raw))
	for _, el := range raw {
		fields, ok := el.(map[string]any)
		if !ok {
			continue
		}
		var e errorEntry
		if s, ok := fields["identifier"].(string); ok {
			e.Identifier = s
		}
		if s, ok := fields["number"].(string); ok {
			e.Number = s
		}
		if e.Identifier == "" && e.Number == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Empty reports whether the record carries no delivery-relevant attributes.
func (r Record) Empty() bool {
	if len(r) == 0 {
		return true
	}
	for _, key := range []string{keyRecipients, keySentTo, keyDeliveredTo, keyReadBy, keySent, keyErrors} {
		if _, ok := r[key]; ok {
			return false
		}
	}
	return true
}
