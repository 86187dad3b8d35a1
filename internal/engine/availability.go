package engine

import (
	"context"
	"time"

	"agendaviva/internal/domain"
	"agendaviva/internal/engine/authz"
	"agendaviva/internal/repo"
	"agendaviva/internal/schedule"
)

const defaultMaxOccurrences = 100

// Occurrences materializes the availability view for one activity: the
// occurrence dates inside the display window joined with accepted counts
// and the caller's own enrollment state. Nothing is persisted.
func (e Engine) Occurrences(ctx context.Context, p authz.Principal, activityID, from, to string) ([]domain.Occurrence, error) {
	a, err := e.Repo.GetActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if a.State == domain.ActivityDeleted {
		return nil, repo.ErrNotFound
	}
	if a.State != domain.ActivityPublished && !p.IsAdmin() {
		return nil, repo.ErrNotFound
	}

	lo, hi, err := e.clampWindow(e.now(), from, to)
	if err != nil {
		return nil, err
	}
	if hi.Before(lo) {
		return []domain.Occurrence{}, nil
	}

	entries, err := e.expandActivity(a, lo, hi)
	if err != nil {
		return nil, err
	}
	counts, err := e.Repo.AcceptedCounts(ctx, activityID)
	if err != nil {
		return nil, err
	}
	var callerStates map[string]string
	if p.UserID != "" {
		callerStates, err = e.Repo.UserEnrollmentStates(ctx, p.UserID, activityID)
		if err != nil {
			return nil, err
		}
	}

	out := make([]domain.Occurrence, 0, len(entries))
	for _, entry := range entries {
		occ := domain.Occurrence{
			ActivityID:    activityID,
			Date:          entry.Date,
			Time:          entry.Time,
			AcceptedCount: counts[entry.Date],
			HasCapacity:   true,
		}
		if a.Capacity != nil {
			slots := *a.Capacity - occ.AcceptedCount
			if slots < 0 {
				slots = 0
			}
			occ.SlotsAvailable = &slots
			occ.HasCapacity = slots > 0
		}
		if state, ok := callerStates[entry.Date]; ok {
			s := state
			occ.CallerState = &s
		}
		out = append(out, occ)
	}
	return out, nil
}

// NextOccurrence returns the first upcoming occurrence date, if any.
func (e Engine) NextOccurrence(a domain.Activity, now time.Time) *schedule.Entry {
	lo, hi := e.window(now)
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if today.After(lo) {
		lo = today
	}
	entries, err := e.expandActivity(a, lo, hi)
	if err != nil || len(entries) == 0 {
		return nil
	}
	return &entries[0]
}

// OccursInRange reports whether the activity has at least one occurrence in
// the display window clamped to the optional from/to dates.
func (e Engine) OccursInRange(a domain.Activity, now time.Time, from, to string) (bool, error) {
	lo, hi, err := e.clampWindow(now, from, to)
	if err != nil {
		return false, err
	}
	if hi.Before(lo) {
		return false, nil
	}
	entries, err := e.expandActivity(a, lo, hi)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}

// clampWindow narrows the display window to the optional from/to bounds.
func (e Engine) clampWindow(now time.Time, from, to string) (time.Time, time.Time, error) {
	lo, hi := e.window(now)
	if from != "" {
		d, err := schedule.ParseDate(from)
		if err != nil {
			return lo, hi, validationf("invalid from date %q", from)
		}
		if d.After(lo) {
			lo = d
		}
	}
	if to != "" {
		d, err := schedule.ParseDate(to)
		if err != nil {
			return lo, hi, validationf("invalid to date %q", to)
		}
		if d.Before(hi) {
			hi = d
		}
	}
	return lo, hi, nil
}

func (e Engine) expandActivity(a domain.Activity, lo, hi time.Time) ([]schedule.Entry, error) {
	switch a.Kind {
	case domain.KindSingle:
		if a.Date == nil {
			return nil, nil
		}
		d, err := schedule.ParseDate(*a.Date)
		if err != nil {
			return nil, validationf("activity %s has invalid date %q", a.ID, *a.Date)
		}
		if d.Before(truncate(lo)) || d.After(truncate(hi)) {
			return nil, nil
		}
		return []schedule.Entry{{Date: *a.Date, Time: a.Time}}, nil
	case domain.KindRecurring:
		if a.Recurrence == nil {
			return nil, nil
		}
		entries, err := schedule.Expand(*a.Recurrence, lo, hi)
		if err != nil {
			return nil, err
		}
		max := defaultMaxOccurrences
		if e.Config != nil && e.Config.Availability.MaxOccurrences > 0 {
			max = e.Config.Availability.MaxOccurrences
		}
		if len(entries) > max {
			entries = entries[:max]
		}
		return entries, nil
	}
	return nil, nil
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
