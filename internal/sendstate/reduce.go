// Package sendstate models per-recipient delivery state for outgoing
// messages: a closed status set with a total merge order, and a monotonic
// reducer that folds delivery events into it. Events may arrive out of
// their real-world order (live receipts race, and migration replays
// history), so the reducer never lets a recipient's recorded progress
// move backwards.
package sendstate

import "time"

// RecipientState is the tracked state for one (message, recipient) pair.
// UpdatedAt is nil when no event has carried timestamp information yet.
type RecipientState struct {
	Status    DeliveryStatus `json:"status"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
}

// Event is a transient delivery update for one recipient. A nil UpdatedAt
// means the event carries no new timestamp information.
type Event struct {
	RecipientID string
	Status      DeliveryStatus
	UpdatedAt   *time.Time
}

// Map holds the normalized send state for every recipient of one message,
// keyed by recipient conversation ID.
type Map map[string]RecipientState

// Reduce merges one event into a recipient's current state. Higher-rank
// events win and take the event timestamp when one is present, keeping the
// stored timestamp otherwise. Equal or lower rank is a no-op: the event
// carries no more progress information than we already have. Pure and
// total; commutative and idempotent with respect to the final status.
func Reduce(cur RecipientState, ev Event) RecipientState {
	if Rank(ev.Status) <= Rank(cur.Status) {
		return cur
	}
	next := RecipientState{Status: ev.Status, UpdatedAt: cur.UpdatedAt}
	if ev.UpdatedAt != nil {
		next.UpdatedAt = ev.UpdatedAt
	}
	return next
}

// Apply folds an event into the map, defaulting a recipient that has never
// been seen to Pending with no timestamp.
func (m Map) Apply(ev Event) {
	cur, ok := m[ev.RecipientID]
	if !ok {
		cur = RecipientState{Status: StatusPending}
	}
	m[ev.RecipientID] = Reduce(cur, ev)
}

// CountByStatus tallies recipients per status.
func (m Map) CountByStatus() map[DeliveryStatus]int {
	out := make(map[DeliveryStatus]int)
	for _, st := range m {
		out[st.Status]++
	}
	return out
}
