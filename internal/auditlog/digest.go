package auditlog

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
)

// Two distinct digests are derived from canonical JSON object literals:
//
// - Fingerprint identifies the *logical* submitted event. It excludes id,
//   request_id, created_at and checksum, so a pure retry maps to the same
//   fingerprint while a re-submission with a changed body diverges.
// - Checksum identifies the *materialized* stored record. It is recomputable
//   from persisted fields alone, which is what makes tamper verification
//   possible without any stored secret.
//
// Keep the two input field sets distinct; merging them would break
// idempotent-replay detection.

// Fingerprint hashes the caller-controlled fields of a submission.
func Fingerprint(action, resourceType, resourceID string, actorID *string, payload json.RawMessage) string {
	return digest(map[string]any{
		"action":        action,
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"actor_id":      actorIDValue(actorID),
		"payload":       CanonicalPayload(payload),
	})
}

// RecordFingerprint recomputes the fingerprint of an already-stored record.
func RecordFingerprint(r Record) string {
	return Fingerprint(r.Action, r.ResourceType, r.ResourceID, r.ActorID, r.Payload)
}

// Checksum hashes the fully materialized record fields.
func Checksum(id, requestID string, actorID *string, action, resourceType, resourceID string, payload json.RawMessage) string {
	return digest(map[string]any{
		"id":            id,
		"request_id":    requestID,
		"actor_id":      actorIDValue(actorID),
		"action":        action,
		"resource_type": resourceType,
		"resource_id":   resourceID,
		"payload":       CanonicalPayload(payload),
	})
}

// RecordChecksum recomputes the checksum of a record from its persisted
// fields. It must match the formula used at ingestion exactly.
func RecordChecksum(r Record) string {
	return Checksum(r.ID, r.RequestID, r.ActorID, r.Action, r.ResourceType, r.ResourceID, r.Payload)
}

// DigestEqual compares two digests in constant time. All fingerprint and
// checksum comparisons go through this so mismatches never become a timing
// oracle.
func DigestEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func digest(doc map[string]any) string {
	sum := sha256.Sum256(CanonicalJSON(doc))
	return hex.EncodeToString(sum[:])
}

func actorIDValue(actorID *string) any {
	if actorID == nil {
		return nil
	}
	return *actorID
}
