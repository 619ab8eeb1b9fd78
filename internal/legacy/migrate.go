package legacy

import (
	"time"

	"github.com/juanlucasl/sendtrack/internal/sendstate"
)

// Resolver maps a legacy identifier (phone number or account ID) to a
// stable conversation ID. It must be pure and synchronous; unknown
// identifiers return ok=false and the entry is dropped from migration.
type Resolver func(identifier string) (conversationID string, ok bool)

// Message is the read-only view of a stored message that migration needs.
type Message struct {
	Outgoing bool
	SentAt   time.Time
	States   sendstate.Map // existing normalized state, nil or empty if none
	Attrs    Record        // legacy attributes
}

// Migrate reconstructs the normalized send-state map for a legacy outgoing
// message. It returns ok=false ("no migration needed") when the message is
// not outgoing or already has normalized state; callers must then leave
// existing state untouched. The input is never mutated.
//
// Every resolved recipient is seeded Pending at the message's send time,
// then the derived legacy events plus one synthetic event for our own
// conversation (Sent if the legacy sent flag was set, Failed otherwise)
// are folded through the reducer. Because the reducer is monotonic, the
// fixed derivation order only decides which events are redundant, not the
// final result.
func Migrate(msg Message, resolve Resolver, ourConversationID string) (sendstate.Map, bool) {
	if !msg.Outgoing || len(msg.States) > 0 {
		return nil, false
	}

	sentAt := msg.SentAt
	seed := sendstate.RecipientState{Status: sendstate.StatusPending, UpdatedAt: &sentAt}

	out := sendstate.Map{}
	for _, id := range msg.Attrs.stringList(keyRecipients) {
		if conversationID, ok := resolve(id); ok {
			out[conversationID] = seed
		}
	}

	events := DeriveEvents(msg.Attrs, resolve)

	ownStatus := sendstate.StatusFailed
	if msg.Attrs.sentFlag() {
		ownStatus = sendstate.StatusSent
	}
	events = append(events, sendstate.Event{RecipientID: ourConversationID, Status: ownStatus})

	for _, ev := range events {
		cur, ok := out[ev.RecipientID]
		if !ok {
			// Recipient appeared in a later list but not in recipients;
			// it still belongs in the map, seeded the same way.
			cur = seed
		}
		out[ev.RecipientID] = sendstate.Reduce(cur, ev)
	}

	return out, true
}

// DeriveEvents turns legacy attribute lists into an ordered event
// sequence: errors, then sent_to, delivered_to and read_by. Legacy data
// has no per-recipient timestamps, so every event carries none and the
// reducer keeps the seeded send time. Unresolvable identifiers are
// dropped.
func DeriveEvents(rec Record, resolve Resolver) []sendstate.Event {
	var events []sendstate.Event

	for _, e := range rec.errorEntries() {
		conversationID, ok := resolveError(e, resolve)
		if !ok {
			continue
		}
		events = append(events, sendstate.Event{RecipientID: conversationID, Status: sendstate.StatusFailed})
	}

	lists := []struct {
		key    string
		status sendstate.DeliveryStatus
	}{
		{keySentTo, sendstate.StatusSent},
		{keyDeliveredTo, sendstate.StatusDelivered},
		{keyReadBy, sendstate.StatusRead},
	}
	for _, l := range lists {
		for _, id := range rec.stringList(l.key) {
			conversationID, ok := resolve(id)
			if !ok {
				continue
			}
			events = append(events, sendstate.Event{RecipientID: conversationID, Status: l.status})
		}
	}

	return events
}

// resolveError tries both legacy error identifier fields, first match wins.
func resolveError(e errorEntry, resolve Resolver) (string, bool) {
	if e.Identifier != "" {
		if id, ok := resolve(e.Identifier); ok {
			return id, true
		}
	}
	if e.Number != "" {
		if id, ok := resolve(e.Number); ok {
			return id, true
		}
	}
	return "", false
}
