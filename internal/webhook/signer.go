// Package webhook signs, enqueues and delivers merchant event notifications.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrBadSignature = errors.New("webhook signature mismatch")
	ErrStaleWebhook = errors.New("webhook timestamp outside tolerance")
	ErrBadTimestamp = errors.New("malformed webhook timestamp")
)

// Sign computes the signature header value for a payload at the given unix
// timestamp. The timestamp is bound into the MAC so a captured delivery cannot
// be replayed later.
func Sign(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a received signature and timestamp against the payload.
// tolerance bounds acceptable clock skew in either direction.
func Verify(secret, signature, timestamp string, payload []byte, tolerance time.Duration, now time.Time) error {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrBadTimestamp
	}
	skew := now.Unix() - ts
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > tolerance {
		return ErrStaleWebhook
	}
	expected := Sign(secret, ts, payload)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
