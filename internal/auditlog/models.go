package auditlog

import (
	"encoding/json"
	"errors"
	"time"
)

// Record is an immutable, append-only audit log entry.
//
// Invariants:
// - Records are never updated or deleted after creation.
// - request_id is globally unique: exactly one record per idempotency key, forever.
// - checksum is a pure function of {id, request_id, actor_id, action,
//   resource_type, resource_id, canonical(payload)} and must be reproducible
//   bit-for-bit at verification time.
//
// Storage (Postgres):
// - Table audit_logs with a unique index on request_id.
// - Composite index on (created_at, id) for keyset scans.
// - Trigger rejects UPDATE/DELETE unconditionally (see migrations/).

type Record struct {
	ID        string `json:"id" db:"id"`
	RequestID string `json:"request_id" db:"request_id"`

	// ActorID is the subject performing the action, when known.
	ActorID *string `json:"actor_id" db:"actor_id"`

	// Action is a dotted verb, e.g. "user.login".
	Action       string `json:"action" db:"action"`
	ResourceType string `json:"resource_type" db:"resource_type"`
	ResourceID   string `json:"resource_id" db:"resource_id"`

	// Payload holds the caller-defined detail in canonical form (stored as JSONB).
	Payload json.RawMessage `json:"payload" db:"payload"`

	// Checksum is the lowercase hex sha-256 over the canonical form of the
	// materialized record.
	Checksum string `json:"checksum" db:"checksum"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// MaxFieldLen bounds action, resource_type and resource_id.
const MaxFieldLen = 255

var (
	ErrInvalidArgument = errors.New("auditlog: invalid argument")
	ErrNotFound        = errors.New("auditlog: record not found")

	// ErrDuplicateRequestID is the storage-level uniqueness violation on
	// request_id. The ingestion path treats it as the signal to reconcile
	// against the already-committed record.
	ErrDuplicateRequestID = errors.New("auditlog: duplicate request_id")

	// ErrRequestIDConflict means the same request_id was submitted with a
	// different body (divergent fingerprints).
	ErrRequestIDConflict = errors.New("auditlog: request_id reused with different body")

	// ErrMutationForbidden marks any attempted update or delete of a
	// persisted record. Always a programming/integration error.
	ErrMutationForbidden = errors.New("auditlog: records are append-only")
)
