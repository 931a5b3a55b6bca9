package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func seedRecord(t *testing.T, repo *MemoryRepo, id, requestID string, at time.Time, action, payload string, actorID *string) Record {
	t.Helper()
	rec := Record{
		ID:           id,
		RequestID:    requestID,
		ActorID:      actorID,
		Action:       action,
		ResourceType: "session",
		ResourceID:   "s-1",
		Payload:      CanonicalPayload(json.RawMessage(payload)),
		CreatedAt:    at,
	}
	rec.Checksum = RecordChecksum(rec)
	if err := repo.Insert(context.Background(), rec); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	return rec
}

func seedUUID(n int) string {
	return fmt.Sprintf("00000000-0000-4000-8000-%012x", n)
}

func TestList_DescendingOrderWithIDTieBreak(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)
	at := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	// Two records sharing one timestamp: the higher id must come first.
	seedRecord(t, repo, "00000000-0000-4000-8000-00000000fff0", seedUUID(1), at, "user.login", `{}`, nil)
	seedRecord(t, repo, "00000000-0000-4000-8000-00000000fff1", seedUUID(2), at, "user.login", `{}`, nil)

	res, err := svc.List(context.Background(), ListFilters{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(res.Items))
	}
	if res.Items[0].ID != "00000000-0000-4000-8000-00000000fff1" {
		t.Fatalf("tie-break must order ids descending, got %s first", res.Items[0].ID)
	}
}

func TestList_KeysetPaginationIsComplete(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	const total = 7
	for i := 0; i < total; i++ {
		// Two of the records share a timestamp to exercise the tie-break
		// across a page boundary.
		at := base.Add(time.Duration(i/2) * time.Second)
		seedRecord(t, repo, seedUUID(i), seedUUID(100+i), at, "user.login", `{}`, nil)
	}

	var (
		seen   = map[string]struct{}{}
		order  []string
		cursor string
	)
	for {
		res, err := svc.List(context.Background(), ListFilters{Limit: 3, Cursor: cursor})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, r := range res.Items {
			if _, dup := seen[r.ID]; dup {
				t.Fatalf("record %s returned twice", r.ID)
			}
			seen[r.ID] = struct{}{}
			order = append(order, r.ID)
		}
		if !res.HasMore {
			if res.NextCursor != "" {
				t.Fatalf("no cursor expected on the final page")
			}
			break
		}
		if res.NextCursor == "" {
			t.Fatalf("has_more without a cursor")
		}
		cursor = res.NextCursor
	}

	if len(seen) != total {
		t.Fatalf("expected %d records across all pages, got %d", total, len(seen))
	}
	for i := 1; i < len(order); i++ {
		prev, cur := order[i-1], order[i]
		a, _ := repo.FindByID(context.Background(), prev)
		b, _ := repo.FindByID(context.Background(), cur)
		if b.CreatedAt.After(a.CreatedAt) || (b.CreatedAt.Equal(a.CreatedAt) && cur > prev) {
			t.Fatalf("order violated between %s and %s", prev, cur)
		}
	}
}

func TestList_Filters(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	actor := "9b2f67ae-21bb-4bfc-9a99-000000000001"

	seedRecord(t, repo, seedUUID(0), seedUUID(100), base, "user.login", `{"ip":"127.0.0.1"}`, &actor)
	seedRecord(t, repo, seedUUID(1), seedUUID(101), base.Add(time.Minute), "user.logout", `{"ip":"10.0.0.1"}`, nil)
	seedRecord(t, repo, seedUUID(2), seedUUID(102), base.Add(2*time.Minute), "billing.charge", `{}`, nil)

	ctx := context.Background()

	res, err := svc.List(ctx, ListFilters{Action: "USER."})
	if err != nil {
		t.Fatalf("action filter: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("case-insensitive substring match expected 2, got %d", len(res.Items))
	}

	res, err = svc.List(ctx, ListFilters{ActorID: &actor})
	if err != nil {
		t.Fatalf("actor filter: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != seedUUID(0) {
		t.Fatalf("actor filter mismatch: %+v", res.Items)
	}

	res, err = svc.List(ctx, ListFilters{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("ip filter: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != seedUUID(1) {
		t.Fatalf("ip filter mismatch: %+v", res.Items)
	}

	// from/to are inclusive at second granularity.
	from := base.Add(time.Minute)
	to := base.Add(time.Minute)
	res, err = svc.List(ctx, ListFilters{From: &from, To: &to})
	if err != nil {
		t.Fatalf("range filter: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].ID != seedUUID(1) {
		t.Fatalf("range filter mismatch: %+v", res.Items)
	}
}

func TestList_MalformedCursorStartsFromBeginning(t *testing.T) {
	repo := NewMemoryRepo()
	svc := newTestService(repo)
	seedRecord(t, repo, seedUUID(0), seedUUID(100), time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC), "user.login", `{}`, nil)

	for _, cursor := range []string{"garbage", "not-a-time|id", "|", "2026-02-01T12:00:00Z|"} {
		res, err := svc.List(context.Background(), ListFilters{Cursor: cursor})
		if err != nil {
			t.Fatalf("cursor %q: %v", cursor, err)
		}
		if len(res.Items) != 1 {
			t.Fatalf("cursor %q must reset to the first page", cursor)
		}
	}
}

func TestList_LimitBounds(t *testing.T) {
	svc := newTestService(NewMemoryRepo())

	if _, err := svc.List(context.Background(), ListFilters{Limit: MaxPageSize + 1}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for oversized limit, got %v", err)
	}
	if _, err := svc.List(context.Background(), ListFilters{Limit: -1}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for negative limit, got %v", err)
	}
	if _, err := svc.List(context.Background(), ListFilters{}); err != nil {
		t.Fatalf("zero limit must default, got %v", err)
	}
}

func TestEncodeDecodeCursorRoundTrip(t *testing.T) {
	rec := Record{ID: seedUUID(7), CreatedAt: time.Date(2026, 2, 1, 12, 0, 1, 500000000, time.UTC)}
	c, ok := DecodeCursor(EncodeCursor(rec))
	if !ok {
		t.Fatalf("round trip must decode")
	}
	if c.ID != rec.ID || !c.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("round trip mismatch: %+v", c)
	}
}
