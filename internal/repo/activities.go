package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"agendaviva/internal/domain"
)

const activityColumns = `id,title,description,kind,date,time,recurrence_json,capacity,requires_approval,state,tags_json,location,location_url,price,free,duration_minutes,cancellation_policy,photos_json,created_at,updated_at`

func (r Repo) InsertActivity(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	recurrence, err := marshalJSON(a.Recurrence)
	if err != nil {
		return fmt.Errorf("marshal recurrence: %w", err)
	}
	tags, err := marshalJSON(a.Tags)
	if err != nil {
		return err
	}
	photos, err := marshalJSON(a.Photos)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO activities(`+activityColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Title, nullable(a.Description), a.Kind, nullableStringPtr(a.Date), nullable(a.Time), recurrence,
		nullableIntPtr(a.Capacity), boolInt(a.RequiresApproval), a.State, tags, nullable(a.Location), nullable(a.LocationURL),
		a.Price, boolInt(a.Free), nullableIntPtr(a.DurationMinutes), nullable(a.CancellationPolicy), photos,
		a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) UpdateActivity(ctx context.Context, tx *sql.Tx, a domain.Activity) error {
	recurrence, err := marshalJSON(a.Recurrence)
	if err != nil {
		return fmt.Errorf("marshal recurrence: %w", err)
	}
	tags, err := marshalJSON(a.Tags)
	if err != nil {
		return err
	}
	photos, err := marshalJSON(a.Photos)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE activities SET title=?, description=?, kind=?, date=?, time=?, recurrence_json=?, capacity=?, requires_approval=?, state=?, tags_json=?, location=?, location_url=?, price=?, free=?, duration_minutes=?, cancellation_policy=?, photos_json=?, updated_at=? WHERE id=?`,
		a.Title, nullable(a.Description), a.Kind, nullableStringPtr(a.Date), nullable(a.Time), recurrence,
		nullableIntPtr(a.Capacity), boolInt(a.RequiresApproval), a.State, tags, nullable(a.Location), nullable(a.LocationURL),
		a.Price, boolInt(a.Free), nullableIntPtr(a.DurationMinutes), nullable(a.CancellationPolicy), photos,
		a.UpdatedAt, a.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	return scanActivity(r.DB.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=?`, id))
}

func (r Repo) GetActivityTx(ctx context.Context, tx *sql.Tx, id string) (domain.Activity, error) {
	return scanActivity(tx.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id=?`, id))
}

type ActivityFilters struct {
	State  string
	Search string
	Tag    string
	Limit  int
}

func (r Repo) ListActivities(ctx context.Context, f ActivityFilters) ([]domain.Activity, error) {
	clauses := []string{"state != 'deleted'"}
	var args []any
	if f.State != "" {
		clauses = []string{"state=?"}
		args = append(args, f.State)
	}
	if f.Search != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ?)")
		pat := "%" + f.Search + "%"
		args = append(args, pat, pat)
	}
	if f.Tag != "" {
		clauses = append(clauses, "tags_json LIKE ?")
		args = append(args, "%"+quoteJSONString(f.Tag)+"%")
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := `SELECT ` + activityColumns + ` FROM activities ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivityRows(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

type activityScanner interface {
	Scan(dest ...any) error
}

func scanActivity(row *sql.Row) (domain.Activity, error) {
	a, err := scanActivityFrom(row)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func scanActivityRows(rows *sql.Rows) (domain.Activity, error) {
	return scanActivityFrom(rows)
}

func scanActivityFrom(s activityScanner) (domain.Activity, error) {
	var a domain.Activity
	var description, date, tim, recurrence, tags, location, locationURL, policy, photos sql.NullString
	var capacity, duration sql.NullInt64
	var requiresApproval, free int
	err := s.Scan(&a.ID, &a.Title, &description, &a.Kind, &date, &tim, &recurrence, &capacity, &requiresApproval,
		&a.State, &tags, &location, &locationURL, &a.Price, &free, &duration, &policy, &photos, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.Description = description.String
	a.Time = tim.String
	a.Location = location.String
	a.LocationURL = locationURL.String
	a.CancellationPolicy = policy.String
	a.RequiresApproval = requiresApproval != 0
	a.Free = free != 0
	if date.Valid {
		a.Date = &date.String
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		a.Capacity = &c
	}
	if duration.Valid {
		d := int(duration.Int64)
		a.DurationMinutes = &d
	}
	if hasJSON(recurrence) {
		var rule domain.RecurrenceRule
		if err := json.Unmarshal([]byte(recurrence.String), &rule); err != nil {
			return a, fmt.Errorf("unmarshal recurrence for %s: %w", a.ID, err)
		}
		a.Recurrence = &rule
	}
	if hasJSON(tags) {
		if err := json.Unmarshal([]byte(tags.String), &a.Tags); err != nil {
			return a, err
		}
	}
	if hasJSON(photos) {
		if err := json.Unmarshal([]byte(photos.String), &a.Photos); err != nil {
			return a, err
		}
	}
	return a, nil
}

// hasJSON reports whether the column holds a real JSON document. Rows written
// before marshalJSON filtered typed nils may carry a literal "null".
func hasJSON(ns sql.NullString) bool {
	return ns.Valid && ns.String != "" && ns.String != "null"
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// quoteJSONString matches a tag inside a tags_json array without a JSON1 extension.
func quoteJSONString(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
