package auditlog

import (
	"strings"
	"time"
)

// Listing is keyset-paginated over (created_at DESC, id DESC). The pair is
// always unique because id is globally unique, so the order is total even
// when many records share one created_at. Keyset beats offset here: no
// skipped or duplicated rows under concurrent inserts, and page cost is
// independent of depth.

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// ListFilters are the caller-facing filters, AND-combined.
type ListFilters struct {
	// From and To bound created_at inclusively at second granularity.
	From *time.Time
	To   *time.Time

	// ActorID is an exact match.
	ActorID *string

	// Action is a case-insensitive substring match.
	Action string

	// IP matches payload.ip exactly.
	IP string

	// Limit is the page size (1..MaxPageSize); 0 means DefaultPageSize.
	Limit int

	// Cursor is the opaque resume point from a previous page. Malformed or
	// absent cursors start from the beginning.
	Cursor string
}

// ListResult is one page of the descending scan.
type ListResult struct {
	Items      []Record
	HasMore    bool
	NextCursor string
}

// Cursor is the decoded resume point: the sort key of the last row returned.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// EncodeCursor renders a record's sort key as "<created_at>|<id>".
func EncodeCursor(r Record) string {
	return r.CreatedAt.UTC().Format(time.RFC3339Nano) + "|" + r.ID
}

// DecodeCursor parses an opaque cursor. It reports ok=false for anything it
// cannot parse; callers treat that as "no cursor" rather than an error.
func DecodeCursor(s string) (Cursor, bool) {
	if s == "" {
		return Cursor{}, false
	}
	parts := strings.SplitN(s, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Cursor{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return Cursor{}, false
	}
	return Cursor{CreatedAt: ts, ID: parts[1]}, true
}
