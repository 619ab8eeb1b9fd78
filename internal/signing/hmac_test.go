package signing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundtrip(t *testing.T) {
	payload := []byte(`{"message_id":"msg_1","type":"read"}`)

	sig, ts := Sign("secret", payload)
	require.NotEmpty(t, sig)
	assert.True(t, Verify("secret", payload, ts, sig))
}

func TestVerifyRejectsTampering(t *testing.T) {
	payload := []byte(`{"message_id":"msg_1"}`)
	sig, ts := Sign("secret", payload)

	assert.False(t, Verify("secret", []byte(`{"message_id":"msg_2"}`), ts, sig))
	assert.False(t, Verify("other-secret", payload, ts, sig))
	assert.False(t, Verify("secret", payload, ts+1, sig))
	assert.False(t, Verify("secret", payload, ts, "v1=deadbeef"))
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	payload := []byte(`{}`)
	stale := time.Now().Add(-MaxSkew - time.Minute).Unix()
	sig := SignAt("secret", payload, stale)

	assert.False(t, Verify("secret", payload, stale, sig))
}
