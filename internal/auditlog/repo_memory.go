package auditlog

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryRepo is an in-memory Repository useful for tests. It models the
// storage guarantees the Postgres schema provides: request_id uniqueness
// and an append-only table.
// It is not intended for production use.

type MemoryRepo struct {
	mu        sync.Mutex
	byID      map[string]Record
	byRequest map[string]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byID:      make(map[string]Record),
		byRequest: make(map[string]string),
	}
}

func (m *MemoryRepo) Insert(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byRequest[r.RequestID]; exists {
		return ErrDuplicateRequestID
	}
	if _, exists := m.byID[r.ID]; exists {
		return ErrDuplicateRequestID
	}
	m.byID[r.ID] = r
	m.byRequest[r.RequestID] = r.ID
	return nil
}

func (m *MemoryRepo) FindByID(ctx context.Context, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryRepo) FindByRequestID(ctx context.Context, requestID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byRequest[requestID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return m.byID[id], nil
}

func (m *MemoryRepo) List(ctx context.Context, q ListQuery) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Record
	for _, r := range m.byID {
		if !matches(r, q) {
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func matches(r Record, q ListQuery) bool {
	if q.From != nil && r.CreatedAt.Before(*q.From) {
		return false
	}
	if q.ToExclusive != nil && !r.CreatedAt.Before(*q.ToExclusive) {
		return false
	}
	if q.ActorID != nil {
		if r.ActorID == nil || *r.ActorID != *q.ActorID {
			return false
		}
	}
	if q.ActionTerm != "" && !strings.Contains(strings.ToLower(r.Action), strings.ToLower(q.ActionTerm)) {
		return false
	}
	if q.IP != "" && payloadIP(r) != q.IP {
		return false
	}
	if q.Cursor != nil {
		if r.CreatedAt.After(q.Cursor.CreatedAt) {
			return false
		}
		if r.CreatedAt.Equal(q.Cursor.CreatedAt) && r.ID >= q.Cursor.ID {
			return false
		}
	}
	return true
}

func payloadIP(r Record) string {
	v, err := DecodeValue(r.Payload)
	if err != nil {
		return ""
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	ip, _ := obj["ip"].(string)
	return ip
}

// Update and Delete exist only to model the storage boundary: the real
// table rejects both with a trigger. They always fail.

func (m *MemoryRepo) Update(ctx context.Context, r Record) error {
	return ErrMutationForbidden
}

func (m *MemoryRepo) Delete(ctx context.Context, id string) error {
	return ErrMutationForbidden
}

// Tamper mutates a stored record outside the append-only contract. Tests
// use it to simulate direct storage tampering for verification checks.
func (m *MemoryRepo) Tamper(id string, fn func(*Record)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return false
	}
	fn(&r)
	m.byID[id] = r
	return true
}

// Len reports the number of stored records.
func (m *MemoryRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}
