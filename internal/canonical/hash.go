package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed keys. The version suffix leaves room
// for changing the derivation without colliding with old keys.
const (
	DomainQueueEntry = "henscopos/queue-entry/v1"
)

// Hash computes SHA-256 over domain, a 0x00 separator, and data.
func Hash(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// IdempotencyKey derives the key sent with a queued mutation. It is computed
// once at enqueue time and stored with the entry, so a resend after a lost
// response carries the same key as the original request. The entry id keeps
// two identical edits (same payload, same route) distinct.
func IdempotencyKey(deviceID, entryID, table, action string, payload []byte) (string, error) {
	obj := map[string]any{
		"device":  deviceID,
		"entry":   entryID,
		"table":   table,
		"action":  action,
		"payload": string(payload),
	}
	data, err := Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("idempotency key: %w", err)
	}
	return Hash(DomainQueueEntry, data), nil
}
