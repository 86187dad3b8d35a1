package engine

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"agendaviva/internal/config"
	"agendaviva/internal/domain"
	"agendaviva/internal/engine/authz"
	"agendaviva/internal/events"
	"agendaviva/internal/repo"
	"agendaviva/internal/schedule"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time

	locks *occurrenceLocks
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
		locks:  newOccurrenceLocks(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Outcome reports how an enrollment mutation resolved. A capacity conflict
// on approval is an outcome, not an error: the enrollment lands back on the
// waitlist and the request still succeeds.
type Outcome string

const (
	OutcomeAccepted         Outcome = "accepted"
	OutcomePending          Outcome = "pending"
	OutcomeWaitlisted       Outcome = "waitlisted"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeCapacityConflict Outcome = "capacity_conflict"
)

func (e Engine) windowDays() (int, int) {
	if e.Config != nil && e.Config.Availability.HorizonDays > 0 {
		return e.Config.Availability.LookbackDays, e.Config.Availability.HorizonDays
	}
	return 1, schedule.HorizonDays
}

func (e Engine) window(now time.Time) (time.Time, time.Time) {
	lookback, horizon := e.windowDays()
	return schedule.Window(now, lookback, horizon)
}

func validateActivity(a domain.Activity) error {
	if a.Title == "" {
		return validationf("title is required")
	}
	switch a.Kind {
	case domain.KindSingle:
		if a.Date == nil {
			return validationf("single activity requires a date")
		}
		if _, err := schedule.ParseDate(*a.Date); err != nil {
			return validationf("invalid date %q", *a.Date)
		}
		if a.Recurrence != nil {
			return validationf("single activity must not carry a recurrence rule")
		}
	case domain.KindRecurring:
		if a.Recurrence == nil {
			return validationf("recurring activity requires a recurrence rule")
		}
		if err := schedule.ValidateRule(*a.Recurrence); err != nil {
			return validationf("invalid recurrence: %v", err)
		}
		if a.Date != nil {
			return validationf("recurring activity must not carry a fixed date")
		}
	default:
		return validationf("invalid kind %q", a.Kind)
	}
	if a.Capacity != nil && *a.Capacity <= 0 {
		return validationf("capacity must be positive")
	}
	if a.Price < 0 {
		return validationf("price must not be negative")
	}
	if a.DurationMinutes != nil && *a.DurationMinutes <= 0 {
		return validationf("duration_minutes must be positive")
	}
	return nil
}

// CreateActivity stores a new activity in draft state unless a state is given.
func (e Engine) CreateActivity(ctx context.Context, p authz.Principal, a domain.Activity) (domain.Activity, error) {
	if !p.IsAdmin() {
		return domain.Activity{}, authz.Forbiddenf("only admins manage activities")
	}
	if a.State == "" {
		a.State = domain.ActivityDraft
	}
	if a.State != domain.ActivityDraft && a.State != domain.ActivityPublished {
		return domain.Activity{}, validationf("invalid state %q", a.State)
	}
	if a.Free {
		a.Price = 0
	}
	if err := validateActivity(a); err != nil {
		return domain.Activity{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = now
	a.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertActivity(ctx, tx, a); err != nil {
		return domain.Activity{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ActivityCreated, "activity", a.ID, p.UserID, events.EventPayload{"title": a.Title, "state": a.State}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

// UpdateActivity replaces the mutable fields of an activity. Lifecycle state
// changes go through PublishActivity and DeleteActivity.
func (e Engine) UpdateActivity(ctx context.Context, p authz.Principal, a domain.Activity) (domain.Activity, error) {
	if !p.IsAdmin() {
		return domain.Activity{}, authz.Forbiddenf("only admins manage activities")
	}
	existing, err := e.Repo.GetActivity(ctx, a.ID)
	if err != nil {
		return domain.Activity{}, err
	}
	if existing.State == domain.ActivityDeleted {
		return domain.Activity{}, conflictf("activity %s is deleted", a.ID)
	}
	a.State = existing.State
	a.CreatedAt = existing.CreatedAt
	if a.Free {
		a.Price = 0
	}
	if err := validateActivity(a); err != nil {
		return domain.Activity{}, err
	}
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateActivity(ctx, tx, a); err != nil {
		return domain.Activity{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ActivityUpdated, "activity", a.ID, p.UserID, events.EventPayload{"title": a.Title}); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

// PublishActivity moves a draft activity to published.
func (e Engine) PublishActivity(ctx context.Context, p authz.Principal, id string) (domain.Activity, error) {
	return e.setActivityState(ctx, p, id, domain.ActivityPublished, events.ActivityPublished)
}

// DeleteActivity soft-deletes an activity. Enrollment history stays behind.
func (e Engine) DeleteActivity(ctx context.Context, p authz.Principal, id string) (domain.Activity, error) {
	return e.setActivityState(ctx, p, id, domain.ActivityDeleted, events.ActivityDeleted)
}

func (e Engine) setActivityState(ctx context.Context, p authz.Principal, id, state, evtType string) (domain.Activity, error) {
	if !p.IsAdmin() {
		return domain.Activity{}, authz.Forbiddenf("only admins manage activities")
	}
	a, err := e.Repo.GetActivity(ctx, id)
	if err != nil {
		return domain.Activity{}, err
	}
	if a.State == domain.ActivityDeleted {
		return domain.Activity{}, conflictf("activity %s is deleted", id)
	}
	if a.State == state {
		return domain.Activity{}, conflictf("activity %s already %s", id, state)
	}
	a.State = state
	a.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Activity{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateActivity(ctx, tx, a); err != nil {
		return domain.Activity{}, err
	}
	if err := e.Events.Append(ctx, tx, evtType, "activity", a.ID, p.UserID, nil); err != nil {
		return domain.Activity{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

// EnsureTag returns the tag with the given name, creating it if needed.
func (e Engine) EnsureTag(ctx context.Context, p authz.Principal, name string) (domain.Tag, error) {
	if !p.IsAdmin() {
		return domain.Tag{}, authz.Forbiddenf("only admins manage tags")
	}
	if name == "" {
		return domain.Tag{}, validationf("tag name is required")
	}
	t, err := e.Repo.GetTagByName(ctx, name)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Tag{}, err
	}
	t = domain.Tag{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertTag(ctx, t); err != nil {
		return domain.Tag{}, err
	}
	return t, nil
}

// EnrollOptions are parameters for creating an enrollment.
type EnrollOptions struct {
	ActivityID     string
	OccurrenceDate string
	Notes          string
}

// Enroll creates an enrollment for one occurrence of a published activity.
// The state is decided atomically against current capacity: a free slot
// yields accepted, or pending when the activity requires approval; a full
// occurrence yields waitlisted.
func (e Engine) Enroll(ctx context.Context, p authz.Principal, opts EnrollOptions) (domain.Enrollment, Outcome, error) {
	if !p.CanEnroll() {
		return domain.Enrollment{}, "", authz.Forbiddenf("account not approved for enrollment")
	}
	a, err := e.Repo.GetActivity(ctx, opts.ActivityID)
	if err != nil {
		return domain.Enrollment{}, "", err
	}
	if a.State == domain.ActivityDeleted {
		return domain.Enrollment{}, "", repo.ErrNotFound
	}
	if a.State != domain.ActivityPublished {
		return domain.Enrollment{}, "", conflictf("activity %s is not published", a.ID)
	}
	if opts.OccurrenceDate == "" {
		if a.Kind != domain.KindSingle || a.Date == nil {
			return domain.Enrollment{}, "", validationf("occurrence_date is required")
		}
		opts.OccurrenceDate = *a.Date
	}
	if err := e.validOccurrence(a, opts.OccurrenceDate); err != nil {
		return domain.Enrollment{}, "", err
	}

	unlock := e.locks.lock(a.ID, opts.OccurrenceDate)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Enrollment{}, "", err
	}
	defer tx.Rollback()

	_, err = e.Repo.ActiveEnrollmentTx(ctx, tx, p.UserID, a.ID, opts.OccurrenceDate)
	if err == nil {
		return domain.Enrollment{}, "", conflictf("already enrolled for %s on %s", a.ID, opts.OccurrenceDate)
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.Enrollment{}, "", err
	}

	hasSlot, err := e.hasSlotTx(ctx, tx, a, opts.OccurrenceDate)
	if err != nil {
		return domain.Enrollment{}, "", err
	}
	now := e.now().UTC().Format(time.RFC3339)
	enr := domain.Enrollment{
		ID:             uuid.NewString(),
		ActivityID:     a.ID,
		UserID:         p.UserID,
		OccurrenceDate: opts.OccurrenceDate,
		Notes:          opts.Notes,
		CreatedAt:      now,
	}
	switch {
	case !hasSlot:
		enr.State = domain.EnrollmentWaitlisted
	case a.RequiresApproval:
		enr.State = domain.EnrollmentPending
	default:
		enr.State = domain.EnrollmentAccepted
		enr.ApprovedAt = &now
	}
	if err := e.Repo.InsertEnrollment(ctx, tx, enr); err != nil {
		return domain.Enrollment{}, "", err
	}
	if err := e.Events.Append(ctx, tx, events.EnrollmentCreated, "enrollment", enr.ID, p.UserID, events.EventPayload{
		"activity_id":     a.ID,
		"occurrence_date": enr.OccurrenceDate,
		"state":           enr.State,
	}); err != nil {
		return domain.Enrollment{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.Enrollment{}, "", err
	}
	return enr, Outcome(enr.State), nil
}

// Approve confirms a pending or waitlisted enrollment. Capacity is checked
// again inside the transaction; if the occurrence filled up in the meantime
// the enrollment is waitlisted and the outcome reports the conflict.
func (e Engine) Approve(ctx context.Context, p authz.Principal, id string) (domain.Enrollment, Outcome, error) {
	if !p.IsAdmin() {
		return domain.Enrollment{}, "", authz.Forbiddenf("only admins approve enrollments")
	}
	enr, err := e.Repo.GetEnrollment(ctx, id)
	if err != nil {
		return domain.Enrollment{}, "", err
	}

	unlock := e.locks.lock(enr.ActivityID, enr.OccurrenceDate)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Enrollment{}, "", err
	}
	defer tx.Rollback()

	enr, err = e.Repo.GetEnrollmentTx(ctx, tx, id)
	if err != nil {
		return domain.Enrollment{}, "", err
	}
	switch enr.State {
	case domain.EnrollmentPending, domain.EnrollmentWaitlisted:
	case domain.EnrollmentCancelled:
		return domain.Enrollment{}, "", conflictf("enrollment %s is cancelled", id)
	default:
		return domain.Enrollment{}, "", conflictf("enrollment %s already %s", id, enr.State)
	}
	a, err := e.Repo.GetActivityTx(ctx, tx, enr.ActivityID)
	if err != nil {
		return domain.Enrollment{}, "", err
	}
	hasSlot, err := e.hasSlotTx(ctx, tx, a, enr.OccurrenceDate)
	if err != nil {
		return domain.Enrollment{}, "", err
	}
	outcome := OutcomeAccepted
	now := e.now().UTC().Format(time.RFC3339)
	if hasSlot {
		enr.State = domain.EnrollmentAccepted
		enr.ApprovedAt = &now
	} else {
		enr.State = domain.EnrollmentWaitlisted
		outcome = OutcomeCapacityConflict
	}
	if err := e.Repo.UpdateEnrollment(ctx, tx, enr); err != nil {
		return domain.Enrollment{}, "", err
	}
	if err := e.Events.Append(ctx, tx, events.EnrollmentApproved, "enrollment", enr.ID, p.UserID, events.EventPayload{
		"state":   enr.State,
		"outcome": outcome,
	}); err != nil {
		return domain.Enrollment{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.Enrollment{}, "", err
	}
	return enr, outcome, nil
}

// Reject cancels a pending or waitlisted enrollment. Accepted enrollments
// hold a slot and must go through Cancel so the waitlist moves up.
func (e Engine) Reject(ctx context.Context, p authz.Principal, id string) (domain.Enrollment, Outcome, error) {
	if !p.IsAdmin() {
		return domain.Enrollment{}, "", authz.Forbiddenf("only admins reject enrollments")
	}
	enr, err := e.Repo.GetEnrollment(ctx, id)
	if err != nil {
		return domain.Enrollment{}, "", err
	}

	unlock := e.locks.lock(enr.ActivityID, enr.OccurrenceDate)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Enrollment{}, "", err
	}
	defer tx.Rollback()

	enr, err = e.Repo.GetEnrollmentTx(ctx, tx, id)
	if err != nil {
		return domain.Enrollment{}, "", err
	}
	switch enr.State {
	case domain.EnrollmentPending, domain.EnrollmentWaitlisted:
	case domain.EnrollmentCancelled:
		return domain.Enrollment{}, "", conflictf("enrollment %s is cancelled", id)
	default:
		return domain.Enrollment{}, "", conflictf("cannot reject %s enrollment %s", enr.State, id)
	}
	now := e.now().UTC().Format(time.RFC3339)
	enr.State = domain.EnrollmentCancelled
	enr.CancelledAt = &now
	if err := e.Repo.UpdateEnrollment(ctx, tx, enr); err != nil {
		return domain.Enrollment{}, "", err
	}
	if err := e.Events.Append(ctx, tx, events.EnrollmentRejected, "enrollment", enr.ID, p.UserID, nil); err != nil {
		return domain.Enrollment{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.Enrollment{}, "", err
	}
	return enr, OutcomeCancelled, nil
}

// Cancel moves an enrollment to cancelled. Owners cancel their own; admins
// cancel any. Freeing an accepted slot promotes the oldest waitlisted
// enrollment in the same transaction.
func (e Engine) Cancel(ctx context.Context, p authz.Principal, id string) (domain.Enrollment, Outcome, error) {
	enr, err := e.Repo.GetEnrollment(ctx, id)
	if err != nil {
		return domain.Enrollment{}, "", err
	}
	if enr.UserID != p.UserID && !p.IsAdmin() {
		return domain.Enrollment{}, "", authz.Forbiddenf("enrollment %s belongs to another user", id)
	}

	unlock := e.locks.lock(enr.ActivityID, enr.OccurrenceDate)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Enrollment{}, "", err
	}
	defer tx.Rollback()

	enr, err = e.Repo.GetEnrollmentTx(ctx, tx, id)
	if err != nil {
		return domain.Enrollment{}, "", err
	}
	if enr.State == domain.EnrollmentCancelled {
		return domain.Enrollment{}, "", conflictf("enrollment %s already cancelled", id)
	}
	wasAccepted := enr.State == domain.EnrollmentAccepted
	now := e.now().UTC().Format(time.RFC3339)
	enr.State = domain.EnrollmentCancelled
	enr.CancelledAt = &now
	if err := e.Repo.UpdateEnrollment(ctx, tx, enr); err != nil {
		return domain.Enrollment{}, "", err
	}
	if err := e.Events.Append(ctx, tx, events.EnrollmentCancelled, "enrollment", enr.ID, p.UserID, events.EventPayload{
		"activity_id":     enr.ActivityID,
		"occurrence_date": enr.OccurrenceDate,
	}); err != nil {
		return domain.Enrollment{}, "", err
	}
	if wasAccepted {
		if _, err := e.promoteTx(ctx, tx, enr.ActivityID, enr.OccurrenceDate, p.UserID); err != nil {
			return domain.Enrollment{}, "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Enrollment{}, "", err
	}
	return enr, OutcomeCancelled, nil
}

// SetEnrollmentState is the admin override. It reaches any target state from
// any non-terminal state and skips the capacity check, but still promotes
// from the waitlist when the change frees an accepted slot.
func (e Engine) SetEnrollmentState(ctx context.Context, p authz.Principal, id, target string) (domain.Enrollment, Outcome, error) {
	if !p.IsAdmin() {
		return domain.Enrollment{}, "", authz.Forbiddenf("only admins override enrollment state")
	}
	switch target {
	case domain.EnrollmentPending, domain.EnrollmentAccepted, domain.EnrollmentWaitlisted, domain.EnrollmentCancelled:
	default:
		return domain.Enrollment{}, "", validationf("invalid state %q", target)
	}
	enr, err := e.Repo.GetEnrollment(ctx, id)
	if err != nil {
		return domain.Enrollment{}, "", err
	}

	unlock := e.locks.lock(enr.ActivityID, enr.OccurrenceDate)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Enrollment{}, "", err
	}
	defer tx.Rollback()

	enr, err = e.Repo.GetEnrollmentTx(ctx, tx, id)
	if err != nil {
		return domain.Enrollment{}, "", err
	}
	if enr.State == domain.EnrollmentCancelled {
		return domain.Enrollment{}, "", conflictf("enrollment %s is cancelled", id)
	}
	if enr.State == target {
		return domain.Enrollment{}, "", conflictf("enrollment %s already %s", id, target)
	}
	from := enr.State
	now := e.now().UTC().Format(time.RFC3339)
	enr.State = target
	switch target {
	case domain.EnrollmentAccepted:
		enr.ApprovedAt = &now
	case domain.EnrollmentCancelled:
		enr.CancelledAt = &now
	}
	if err := e.Repo.UpdateEnrollment(ctx, tx, enr); err != nil {
		return domain.Enrollment{}, "", err
	}
	if err := e.Events.Append(ctx, tx, events.EnrollmentOverride, "enrollment", enr.ID, p.UserID, events.EventPayload{
		"from": from,
		"to":   target,
	}); err != nil {
		return domain.Enrollment{}, "", err
	}
	if from == domain.EnrollmentAccepted && target != domain.EnrollmentAccepted {
		if _, err := e.promoteTx(ctx, tx, enr.ActivityID, enr.OccurrenceDate, p.UserID); err != nil {
			return domain.Enrollment{}, "", err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Enrollment{}, "", err
	}
	return enr, Outcome(target), nil
}

// promoteTx moves the oldest waitlisted enrollment into the freed slot,
// re-running the create decision: approval-required activities promote to
// pending, the rest straight to accepted. Promotion respects capacity: an
// override that packed the occurrence past its limit leaves the waitlist
// untouched until real room exists.
func (e Engine) promoteTx(ctx context.Context, tx *sql.Tx, activityID, date, actorID string) (*domain.Enrollment, error) {
	a, err := e.Repo.GetActivityTx(ctx, tx, activityID)
	if err != nil {
		return nil, err
	}
	hasSlot, err := e.hasSlotTx(ctx, tx, a, date)
	if err != nil {
		return nil, err
	}
	if !hasSlot {
		return nil, nil
	}
	w, err := e.Repo.OldestWaitlistedTx(ctx, tx, activityID, date)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	if a.RequiresApproval {
		w.State = domain.EnrollmentPending
	} else {
		w.State = domain.EnrollmentAccepted
		w.ApprovedAt = &now
	}
	if err := e.Repo.UpdateEnrollment(ctx, tx, w); err != nil {
		return nil, err
	}
	if err := e.Events.Append(ctx, tx, events.EnrollmentPromoted, "enrollment", w.ID, actorID, events.EventPayload{
		"activity_id":     activityID,
		"occurrence_date": date,
		"state":           w.State,
	}); err != nil {
		return nil, err
	}
	return &w, nil
}

func (e Engine) hasSlotTx(ctx context.Context, tx *sql.Tx, a domain.Activity, date string) (bool, error) {
	if a.Capacity == nil {
		return true, nil
	}
	n, err := e.Repo.AcceptedCountTx(ctx, tx, a.ID, date)
	if err != nil {
		return false, err
	}
	return n < *a.Capacity, nil
}

func (e Engine) validOccurrence(a domain.Activity, date string) error {
	if _, err := schedule.ParseDate(date); err != nil {
		return validationf("invalid occurrence date %q", date)
	}
	lookback, horizon := e.windowDays()
	if !schedule.WithinWindow(e.now(), date, lookback, horizon) {
		return validationf("occurrence %s is outside the enrollment window", date)
	}
	switch a.Kind {
	case domain.KindSingle:
		if a.Date == nil || *a.Date != date {
			return validationf("activity %s has no occurrence on %s", a.ID, date)
		}
	case domain.KindRecurring:
		if a.Recurrence == nil {
			return validationf("activity %s has no recurrence rule", a.ID)
		}
		ok, err := schedule.Matches(*a.Recurrence, date)
		if err != nil {
			return validationf("invalid occurrence date %q: %v", date, err)
		}
		if !ok {
			return validationf("activity %s has no occurrence on %s", a.ID, date)
		}
	}
	return nil
}
