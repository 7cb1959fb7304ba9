package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	campus "github.com/campushq/campus/internal"
	"github.com/campushq/campus/internal/storage"
)

const defaultListLimit = 50

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// InsertActivities batch-inserts activity events.
func (s *Store) InsertActivities(ctx context.Context, events []campus.Activity) error {
	if len(events) == 0 {
		return nil
	}

	// cols must match the INSERT column list below.
	const cols = 8
	placeholders := make([]string, len(events))
	args := make([]any, 0, len(events)*cols)
	for i, e := range events {
		placeholders[i] = "(?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args,
			e.ID, nullStr(e.TenantID), e.UserID, string(e.Kind), e.EntityID,
			nullStr(e.Detail), nullStr(e.RequestID), e.CreatedAt.UTC().Format(timeLayout),
		)
	}

	query := `INSERT INTO activity_events
		(id, tenant_id, user_id, kind, entity_id, detail, request_id, created_at)
		VALUES ` + strings.Join(placeholders, ", ") + `
		ON CONFLICT(id) DO NOTHING`
	_, err := s.write.ExecContext(ctx, query, args...)
	return err
}

// ListActivities returns events matching the filter, newest first.
func (s *Store) ListActivities(ctx context.Context, f storage.ActivityFilter) ([]campus.Activity, error) {
	var clauses []string
	var args []any
	if f.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.TenantID != "" {
		clauses = append(clauses, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, string(f.Kind))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit, max(f.Offset, 0))

	rows, err := s.read.QueryContext(ctx,
		`SELECT id, tenant_id, user_id, kind, entity_id, detail, request_id, created_at
		 FROM activity_events`+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []campus.Activity{}
	for rows.Next() {
		var a campus.Activity
		var tenant, detail, requestID sql.NullString
		var kind, createdAt string
		if err := rows.Scan(&a.ID, &tenant, &a.UserID, &kind, &a.EntityID, &detail, &requestID, &createdAt); err != nil {
			return nil, err
		}
		a.TenantID = tenant.String
		a.Kind = campus.ActivityKind(kind)
		a.Detail = detail.String
		a.RequestID = requestID.String
		if t, e := time.Parse(timeLayout, createdAt); e == nil {
			a.CreatedAt = t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PruneActivities deletes events created before the cutoff and returns how
// many were removed.
func (s *Store) PruneActivities(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.write.ExecContext(ctx,
		`DELETE FROM activity_events WHERE created_at < ?`, before.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
