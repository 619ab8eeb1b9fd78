// Package signing authenticates receipt callbacks from the delivery
// transport: HMAC-SHA256 over "<unix timestamp>.<body>", sent as
// "v1=<hex>" alongside the timestamp header.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MaxSkew is how far a signed timestamp may drift from local time before
// the signature is rejected, bounding replay of captured callbacks.
const MaxSkew = 5 * time.Minute

// Sign computes the signature for a payload at the current time.
func Sign(secret string, payload []byte) (signature string, timestamp int64) {
	timestamp = time.Now().Unix()
	return SignAt(secret, payload, timestamp), timestamp
}

// SignAt computes the signature for a payload at an explicit timestamp.
func SignAt(secret string, payload []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", timestamp, payload)
	return "v1=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature and rejects timestamps outside MaxSkew.
func Verify(secret string, payload []byte, timestamp int64, signature string) bool {
	skew := time.Since(time.Unix(timestamp, 0))
	if skew > MaxSkew || skew < -MaxSkew {
		return false
	}
	expected := SignAt(secret, payload, timestamp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
