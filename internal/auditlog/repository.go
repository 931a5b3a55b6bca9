package auditlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Repository is the persistence contract for audit log records.
//
// It is append-only: there are no Update/Delete methods, and the storage
// schema additionally rejects mutation with a trigger so a bypass attempt
// fails loudly instead of going unnoticed.

type Repository interface {
	// Insert writes a new record. It returns ErrDuplicateRequestID when the
	// request_id uniqueness constraint rejects the row.
	Insert(ctx context.Context, r Record) error

	FindByID(ctx context.Context, id string) (Record, error)
	FindByRequestID(ctx context.Context, requestID string) (Record, error)

	// List returns up to q.Limit records in (created_at DESC, id DESC) order.
	List(ctx context.Context, q ListQuery) ([]Record, error)
}

// ListQuery is the storage-level query the pagination engine issues. Bounds
// are already normalized (ToExclusive is the open upper bound) and Limit
// already includes the has-more probe row.
type ListQuery struct {
	From        *time.Time
	ToExclusive *time.Time
	ActorID     *string
	ActionTerm  string
	IP          string
	Cursor      *Cursor
	Limit       int
}

// PostgresRepo implements Repository against the audit_logs table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const recordColumns = "id, request_id, actor_id, action, resource_type, resource_id, payload, checksum, created_at"

func (r *PostgresRepo) Insert(ctx context.Context, rec Record) error {
	const q = `
INSERT INTO audit_logs (id, request_id, actor_id, action, resource_type, resource_id, payload, checksum, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	actorID := sql.NullString{}
	if rec.ActorID != nil {
		actorID = sql.NullString{String: *rec.ActorID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q,
		rec.ID,
		rec.RequestID,
		actorID,
		rec.Action,
		rec.ResourceType,
		rec.ResourceID,
		[]byte(rec.Payload),
		rec.Checksum,
		rec.CreatedAt,
	)
	if err != nil {
		return translatePgError("insert audit log", err)
	}
	return nil
}

func (r *PostgresRepo) FindByID(ctx context.Context, id string) (Record, error) {
	const q = `
SELECT id, request_id, actor_id, action, resource_type, resource_id, payload, checksum, created_at
FROM audit_logs
WHERE id = $1
`
	return scanRecord(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) FindByRequestID(ctx context.Context, requestID string) (Record, error) {
	const q = `
SELECT id, request_id, actor_id, action, resource_type, resource_id, payload, checksum, created_at
FROM audit_logs
WHERE request_id = $1
`
	return scanRecord(r.db.QueryRowContext(ctx, q, requestID))
}

func (r *PostgresRepo) List(ctx context.Context, q ListQuery) ([]Record, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if q.From != nil {
		conds = append(conds, "created_at >= "+arg(*q.From))
	}
	if q.ToExclusive != nil {
		conds = append(conds, "created_at < "+arg(*q.ToExclusive))
	}
	if q.ActorID != nil {
		conds = append(conds, "actor_id = "+arg(*q.ActorID))
	}
	if q.ActionTerm != "" {
		conds = append(conds, "LOWER(action) LIKE "+arg("%"+strings.ToLower(q.ActionTerm)+"%"))
	}
	if q.IP != "" {
		conds = append(conds, "payload->>'ip' = "+arg(q.IP))
	}
	if q.Cursor != nil {
		ts := arg(q.Cursor.CreatedAt)
		id := arg(q.Cursor.ID)
		conds = append(conds, fmt.Sprintf("(created_at < %s OR (created_at = %s AND id < %s))", ts, ts, id))
	}

	sb := strings.Builder{}
	sb.WriteString("SELECT " + recordColumns + " FROM audit_logs")
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY created_at DESC, id DESC LIMIT " + arg(q.Limit))

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecordRow(rows)
		if err != nil {
			return nil, fmt.Errorf("list audit logs: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row *sql.Row) (Record, error) {
	rec, err := scanRecordRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func scanRecordRow(s rowScanner) (Record, error) {
	var (
		rec     Record
		actorID sql.NullString
		payload []byte
	)
	if err := s.Scan(
		&rec.ID,
		&rec.RequestID,
		&actorID,
		&rec.Action,
		&rec.ResourceType,
		&rec.ResourceID,
		&payload,
		&rec.Checksum,
		&rec.CreatedAt,
	); err != nil {
		return Record{}, err
	}
	if actorID.Valid {
		rec.ActorID = &actorID.String
	}
	rec.Payload = json.RawMessage(payload)
	return rec, nil
}

// translatePgError maps Postgres failures onto the package sentinels:
// 23505 is the request_id uniqueness violation, and the append-only trigger
// raises with a message this side recognizes as a forbidden mutation.
func translatePgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return fmt.Errorf("%s: %w: %s", op, ErrDuplicateRequestID, pgErr.ConstraintName)
		case strings.Contains(pgErr.Message, "append-only"):
			return fmt.Errorf("%s: %w", op, ErrMutationForbidden)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
