package sendstate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []DeliveryStatus{
	StatusPending, StatusFailed, StatusSent, StatusDelivered, StatusRead,
}

func TestRankOrder(t *testing.T) {
	require.Less(t, Rank(StatusPending), Rank(StatusFailed))
	require.Less(t, Rank(StatusFailed), Rank(StatusSent))
	require.Less(t, Rank(StatusSent), Rank(StatusDelivered))
	require.Less(t, Rank(StatusDelivered), Rank(StatusRead))
}

func TestRankUnknownStatus(t *testing.T) {
	assert.Equal(t, 0, Rank(DeliveryStatus("garbage")))
	assert.False(t, Known(DeliveryStatus("garbage")))
	assert.True(t, Known(StatusDelivered))
}

func TestReduceMonotonic(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			cur := RecipientState{Status: from}
			got := Reduce(cur, Event{RecipientID: "a", Status: to})
			assert.GreaterOrEqual(t, Rank(got.Status), Rank(from),
				"reduce(%s, %s) regressed to %s", from, to, got.Status)
		}
	}
}

func TestReduceIdempotent(t *testing.T) {
	ts := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			cur := RecipientState{Status: from}
			ev := Event{RecipientID: "a", Status: to, UpdatedAt: &ts}
			once := Reduce(cur, ev)
			twice := Reduce(once, ev)
			assert.Equal(t, once, twice)
		}
	}
}

func TestReduceLowerRankIsNoOp(t *testing.T) {
	ts := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	later := ts.Add(time.Hour)

	cur := RecipientState{Status: StatusDelivered, UpdatedAt: &ts}
	got := Reduce(cur, Event{RecipientID: "a", Status: StatusSent, UpdatedAt: &later})

	// Lower rank never changes status and never touches the timestamp.
	assert.Equal(t, cur, got)
}

func TestReduceTimestampMerge(t *testing.T) {
	seed := time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	evTime := seed.Add(time.Minute)

	t.Run("event with timestamp replaces stored value", func(t *testing.T) {
		cur := RecipientState{Status: StatusPending, UpdatedAt: &seed}
		got := Reduce(cur, Event{RecipientID: "a", Status: StatusSent, UpdatedAt: &evTime})
		require.Equal(t, StatusSent, got.Status)
		require.NotNil(t, got.UpdatedAt)
		assert.True(t, got.UpdatedAt.Equal(evTime))
	})

	t.Run("event without timestamp keeps stored value", func(t *testing.T) {
		cur := RecipientState{Status: StatusPending, UpdatedAt: &seed}
		got := Reduce(cur, Event{RecipientID: "a", Status: StatusRead})
		require.Equal(t, StatusRead, got.Status)
		require.NotNil(t, got.UpdatedAt)
		assert.True(t, got.UpdatedAt.Equal(seed))
	})
}

func TestReduceOrderIndependentFinalStatus(t *testing.T) {
	events := []Event{
		{RecipientID: "a", Status: StatusFailed},
		{RecipientID: "a", Status: StatusSent},
		{RecipientID: "a", Status: StatusRead},
		{RecipientID: "a", Status: StatusDelivered},
	}

	fold := func(order []int) DeliveryStatus {
		st := RecipientState{Status: StatusPending}
		for _, i := range order {
			st = Reduce(st, events[i])
		}
		return st.Status
	}

	want := fold([]int{0, 1, 2, 3})
	require.Equal(t, StatusRead, want)

	var permute func(rest, acc []int)
	permute = func(rest, acc []int) {
		if len(rest) == 0 {
			assert.Equal(t, want, fold(acc), "order %v", acc)
			return
		}
		for i := range rest {
			next := make([]int, 0, len(rest)-1)
			next = append(next, rest[:i]...)
			next = append(next, rest[i+1:]...)
			chosen := append(append([]int{}, acc...), rest[i])
			permute(next, chosen)
		}
	}
	permute([]int{0, 1, 2, 3}, nil)
}

func TestMapApplyDefaultsToPending(t *testing.T) {
	m := Map{}
	m.Apply(Event{RecipientID: "cnv_1", Status: StatusDelivered})

	st, ok := m["cnv_1"]
	require.True(t, ok)
	assert.Equal(t, StatusDelivered, st.Status)
	assert.Nil(t, st.UpdatedAt)
}

func TestMapCountByStatus(t *testing.T) {
	m := Map{
		"a": {Status: StatusSent},
		"b": {Status: StatusSent},
		"c": {Status: StatusRead},
	}
	counts := m.CountByStatus()
	assert.Equal(t, 2, counts[StatusSent])
	assert.Equal(t, 1, counts[StatusRead])
	assert.Equal(t, 0, counts[StatusFailed])
}
