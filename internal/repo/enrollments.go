package repo

import (
	"context"
	"database/sql"
	"strings"

	"agendaviva/internal/domain"
)

const enrollmentColumns = `id,activity_id,user_id,occurrence_date,state,notes,created_at,approved_at,cancelled_at`

func (r Repo) InsertEnrollment(ctx context.Context, tx *sql.Tx, e domain.Enrollment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO enrollments(`+enrollmentColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.ActivityID, e.UserID, e.OccurrenceDate, e.State, nullable(e.Notes), e.CreatedAt,
		nullableStringPtr(e.ApprovedAt), nullableStringPtr(e.CancelledAt))
	return err
}

func (r Repo) UpdateEnrollment(ctx context.Context, tx *sql.Tx, e domain.Enrollment) error {
	res, err := tx.ExecContext(ctx, `UPDATE enrollments SET state=?, notes=?, approved_at=?, cancelled_at=? WHERE id=?`,
		e.State, nullable(e.Notes), nullableStringPtr(e.ApprovedAt), nullableStringPtr(e.CancelledAt), e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetEnrollment(ctx context.Context, id string) (domain.Enrollment, error) {
	return scanEnrollment(r.DB.QueryRowContext(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id=?`, id))
}

func (r Repo) GetEnrollmentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Enrollment, error) {
	return scanEnrollment(tx.QueryRowContext(ctx, `SELECT `+enrollmentColumns+` FROM enrollments WHERE id=?`, id))
}

// ActiveEnrollmentTx returns the caller's non-cancelled enrollment for an
// occurrence, if any. At most one exists per the partial unique index.
func (r Repo) ActiveEnrollmentTx(ctx context.Context, tx *sql.Tx, userID, activityID, date string) (domain.Enrollment, error) {
	return scanEnrollment(tx.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE user_id=? AND activity_id=? AND occurrence_date=? AND state != 'cancelled'`,
		userID, activityID, date))
}

// AcceptedCountTx counts accepted enrollments for one occurrence. Reading it
// inside the write transaction is what keeps capacity decisions serialized.
func (r Repo) AcceptedCountTx(ctx context.Context, tx *sql.Tx, activityID, date string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrollments WHERE activity_id=? AND occurrence_date=? AND state='accepted'`,
		activityID, date).Scan(&n)
	return n, err
}

// OldestWaitlistedTx returns the longest-waiting waitlisted enrollment for an
// occurrence, ordering by creation time with id as tie-breaker.
func (r Repo) OldestWaitlistedTx(ctx context.Context, tx *sql.Tx, activityID, date string) (domain.Enrollment, error) {
	return scanEnrollment(tx.QueryRowContext(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE activity_id=? AND occurrence_date=? AND state='waitlisted' ORDER BY created_at ASC, id ASC LIMIT 1`,
		activityID, date))
}

type EnrollmentFilters struct {
	ActivityID     string
	UserID         string
	OccurrenceDate string
	State          string
	Limit          int
}

func (r Repo) ListEnrollments(ctx context.Context, f EnrollmentFilters) ([]domain.Enrollment, error) {
	var clauses []string
	var args []any
	if f.ActivityID != "" {
		clauses = append(clauses, "activity_id=?")
		args = append(args, f.ActivityID)
	}
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.OccurrenceDate != "" {
		clauses = append(clauses, "occurrence_date=?")
		args = append(args, f.OccurrenceDate)
	}
	if f.State != "" {
		clauses = append(clauses, "state=?")
		args = append(args, f.State)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments ` + where + ` ORDER BY created_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Enrollment
	for rows.Next() {
		var e domain.Enrollment
		var notes, approvedAt, cancelledAt sql.NullString
		if err := rows.Scan(&e.ID, &e.ActivityID, &e.UserID, &e.OccurrenceDate, &e.State, &notes, &e.CreatedAt, &approvedAt, &cancelledAt); err != nil {
			return nil, err
		}
		e.Notes = notes.String
		if approvedAt.Valid {
			e.ApprovedAt = &approvedAt.String
		}
		if cancelledAt.Valid {
			e.CancelledAt = &cancelledAt.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// AcceptedCounts returns accepted enrollment counts per occurrence date.
func (r Repo) AcceptedCounts(ctx context.Context, activityID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT occurrence_date, COUNT(*) FROM enrollments WHERE activity_id=? AND state='accepted' GROUP BY occurrence_date`,
		activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var date string
		var n int
		if err := rows.Scan(&date, &n); err != nil {
			return nil, err
		}
		res[date] = n
	}
	return res, rows.Err()
}

// UserEnrollmentStates returns the caller's live enrollment state per
// occurrence date for one activity.
func (r Repo) UserEnrollmentStates(ctx context.Context, userID, activityID string) (map[string]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT occurrence_date, state FROM enrollments WHERE user_id=? AND activity_id=? AND state != 'cancelled'`,
		userID, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]string{}
	for rows.Next() {
		var date, state string
		if err := rows.Scan(&date, &state); err != nil {
			return nil, err
		}
		res[date] = state
	}
	return res, rows.Err()
}

func scanEnrollment(row *sql.Row) (domain.Enrollment, error) {
	var e domain.Enrollment
	var notes, approvedAt, cancelledAt sql.NullString
	err := row.Scan(&e.ID, &e.ActivityID, &e.UserID, &e.OccurrenceDate, &e.State, &notes, &e.CreatedAt, &approvedAt, &cancelledAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.Notes = notes.String
	if approvedAt.Valid {
		e.ApprovedAt = &approvedAt.String
	}
	if cancelledAt.Valid {
		e.CancelledAt = &cancelledAt.String
	}
	return e, nil
}
