package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service orchestrates idempotent ingestion, keyset listing and tamper
// verification of audit log records.
//
// Concurrency model: no in-process locking. The request_id uniqueness
// constraint in storage is the linearization point among concurrent callers
// of the same key; every loser converges on the winner's outcome by
// re-reading and fingerprint-comparing. A conflict costs one extra read,
// not a retry loop.
type Service struct {
	repo  Repository
	cache ReplayCache
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

// NewService builds a Service. cache may be nil to disable the replay
// fast path.
func NewService(repo Repository, cache ReplayCache) *Service {
	return &Service{repo: repo, cache: cache, clock: time.Now}
}

// IngestInput is one submission. RequestID is the caller-supplied
// idempotency key and must be a UUID.
type IngestInput struct {
	RequestID    string
	ActorID      *string
	Action       string
	ResourceType string
	ResourceID   string
	Payload      json.RawMessage
}

// Ingest creates the record for in.RequestID exactly once. The bool result
// is true when this call created the record and false on idempotent replay.
// A replay with a divergent body fails with ErrRequestIDConflict and writes
// nothing.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (Record, bool, error) {
	if err := validateIngest(in); err != nil {
		return Record{}, false, err
	}

	payload := CanonicalPayload(in.Payload)
	fingerprint := Fingerprint(in.Action, in.ResourceType, in.ResourceID, in.ActorID, payload)

	// Fast path for hot retries. A hit still goes through the fingerprint
	// comparison; a stale or missing entry falls through to the insert.
	if s.cache != nil {
		if id, ok := s.cache.Get(ctx, in.RequestID); ok {
			if existing, err := s.repo.FindByID(ctx, id); err == nil {
				return s.reconcile(existing, fingerprint)
			}
		}
	}

	rec := Record{
		ID:           uuid.NewString(),
		RequestID:    in.RequestID,
		ActorID:      in.ActorID,
		Action:       in.Action,
		ResourceType: in.ResourceType,
		ResourceID:   in.ResourceID,
		Payload:      payload,
		CreatedAt:    s.clock().UTC(),
	}
	rec.Checksum = RecordChecksum(rec)

	insertErr := s.repo.Insert(ctx, rec)
	if insertErr == nil {
		if s.cache != nil {
			s.cache.Set(ctx, in.RequestID, rec.ID)
		}
		return rec, true, nil
	}
	if !errors.Is(insertErr, ErrDuplicateRequestID) {
		return Record{}, false, insertErr
	}

	// The uniqueness constraint rejected the row: either a prior record
	// exists or a concurrent insert committed first. Re-read and compare.
	existing, err := s.repo.FindByRequestID(ctx, in.RequestID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// A conflict was reported but no row is visible now. Treat the
			// original failure as transient and let the caller retry.
			return Record{}, false, insertErr
		}
		return Record{}, false, err
	}

	out, created, err := s.reconcile(existing, fingerprint)
	if err == nil && s.cache != nil {
		s.cache.Set(ctx, in.RequestID, out.ID)
	}
	return out, created, err
}

// reconcile decides between idempotent replay and conflict for a record
// that already holds the submitted request_id.
func (s *Service) reconcile(existing Record, fingerprint string) (Record, bool, error) {
	if DigestEqual(RecordFingerprint(existing), fingerprint) {
		return existing, false, nil
	}
	return Record{}, false, ErrRequestIDConflict
}

// List returns one page of the log in (created_at DESC, id DESC) order.
func (s *Service) List(ctx context.Context, f ListFilters) (ListResult, error) {
	limit := f.Limit
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 1 || limit > MaxPageSize {
		return ListResult{}, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidArgument, MaxPageSize)
	}
	if f.ActorID != nil {
		if err := uuid.Validate(*f.ActorID); err != nil {
			return ListResult{}, fmt.Errorf("%w: actor_id must be a valid UUID", ErrInvalidArgument)
		}
	}

	q := ListQuery{
		ActorID:    f.ActorID,
		ActionTerm: f.Action,
		IP:         f.IP,
		// One extra row proves more data exists; it is dropped before use.
		Limit: limit + 1,
	}
	if f.From != nil {
		from := f.From.UTC().Truncate(time.Second)
		q.From = &from
	}
	if f.To != nil {
		// Inclusive at second granularity: open upper bound one second up.
		to := f.To.UTC().Truncate(time.Second).Add(time.Second)
		q.ToExclusive = &to
	}
	if c, ok := DecodeCursor(f.Cursor); ok {
		q.Cursor = &c
	}

	items, err := s.repo.List(ctx, q)
	if err != nil {
		return ListResult{}, err
	}

	out := ListResult{Items: items}
	if len(items) > limit {
		out.Items = items[:limit]
		out.HasMore = true
		out.NextCursor = EncodeCursor(out.Items[limit-1])
	}
	return out, nil
}

// VerifyResult reports whether a stored record still matches its checksum.
type VerifyResult struct {
	ID               string `json:"id"`
	Valid            bool   `json:"valid"`
	StoredChecksum   string `json:"stored_checksum"`
	ExpectedChecksum string `json:"expected_checksum"`
}

// Verify recomputes a record's checksum from its persisted fields. A false
// result means the record was mutated through some channel outside this
// package's contract, e.g. direct storage tampering.
func (s *Service) Verify(ctx context.Context, id string) (VerifyResult, error) {
	if err := uuid.Validate(id); err != nil {
		return VerifyResult{}, fmt.Errorf("%w: id must be a valid UUID", ErrInvalidArgument)
	}
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return VerifyResult{}, err
	}
	expected := RecordChecksum(rec)
	return VerifyResult{
		ID:               rec.ID,
		Valid:            DigestEqual(rec.Checksum, expected),
		StoredChecksum:   rec.Checksum,
		ExpectedChecksum: expected,
	}, nil
}

func validateIngest(in IngestInput) error {
	if err := uuid.Validate(in.RequestID); err != nil {
		return fmt.Errorf("%w: request_id must be a valid UUID", ErrInvalidArgument)
	}
	if in.ActorID != nil {
		if err := uuid.Validate(*in.ActorID); err != nil {
			return fmt.Errorf("%w: actor_id must be a valid UUID", ErrInvalidArgument)
		}
	}
	for _, f := range []struct{ name, value string }{
		{"action", in.Action},
		{"resource_type", in.ResourceType},
		{"resource_id", in.ResourceID},
	} {
		if f.value == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidArgument, f.name)
		}
		if len(f.value) > MaxFieldLen {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidArgument, f.name, MaxFieldLen)
		}
	}
	return nil
}
