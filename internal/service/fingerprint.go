package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// hashTimeLayout is the canonical timestamp rendering inside the fingerprint.
// Fixed so that the same instant always serializes identically.
const hashTimeLayout = time.RFC3339Nano

// payloadHash fingerprints the business fields of an event: a SHA-256 over a
// pipe-joined serialization in fixed field order. The received time is
// deliberately excluded so that byte-for-byte resubmissions of the same fact
// hash identically no matter when they arrive.
func payloadHash(eventID string, eventTime time.Time, machineID string, durationMs int64, defectCount int, lineID, factoryID string) string {
	payload := fmt.Sprintf("%s|%s|%s|%d|%d|%s|%s",
		eventID,
		eventTime.UTC().Format(hashTimeLayout),
		machineID,
		durationMs,
		defectCount,
		lineID,
		factoryID,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
