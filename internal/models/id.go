package models

import (
	"fmt"
	mrand "math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewID returns a prefixed, lexicographically sortable identifier, e.g.
// cnv_01H... or msg_01H...
func NewID(prefix string) string {
	t := time.Now()
	entropy := ulid.Monotonic(mrand.New(mrand.NewSource(t.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return fmt.Sprintf("%s_%s", prefix, id.String())
}
