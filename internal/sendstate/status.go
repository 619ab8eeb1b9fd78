package sendstate

type DeliveryStatus string

const (
	StatusPending   DeliveryStatus = "pending"
	StatusFailed    DeliveryStatus = "failed"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
)

// statusRank is the merge-precedence order over delivery statuses. Failed
// sits above Pending because a failed send is more information than no
// attempt, but below Sent so that a retried send that succeeded supersedes
// the earlier failure. The table is the authority, not declaration order.
var statusRank = map[DeliveryStatus]int{
	StatusPending:   0,
	StatusFailed:    1,
	StatusSent:      2,
	StatusDelivered: 3,
	StatusRead:      4,
}

// Rank returns the merge precedence of a status. Unknown statuses rank as
// Pending so malformed persisted data can never outrank real progress.
func Rank(s DeliveryStatus) int {
	return statusRank[s]
}

// Known reports whether s is one of the closed set of delivery statuses.
func Known(s DeliveryStatus) bool {
	_, ok := statusRank[s]
	return ok
}
