package engine_test

import (
	"errors"
	"testing"

	"agendaviva/internal/domain"
	"agendaviva/internal/engine"
	"agendaviva/internal/repo"
)

func TestOccurrencesJoinsCountsAndCallerState(t *testing.T) {
	env := newTestEnv(t)
	a := publishedWeekly(t, env, intptr(2), false)

	if _, _, err := env.Engine.Enroll(env.Ctx, member("u1"), engine.EnrollOptions{ActivityID: a.ID, OccurrenceDate: "2026-01-07"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.Enroll(env.Ctx, member("u2"), engine.EnrollOptions{ActivityID: a.ID, OccurrenceDate: "2026-01-07"}); err != nil {
		t.Fatal(err)
	}

	occs, err := env.Engine.Occurrences(env.Ctx, member("u1"), a.ID, "", "")
	if err != nil {
		t.Fatalf("occurrences: %v", err)
	}
	if len(occs) == 0 {
		t.Fatalf("expected occurrences inside the window")
	}
	byDate := make(map[string]domain.Occurrence, len(occs))
	for _, o := range occs {
		byDate[o.Date] = o
	}
	full, ok := byDate["2026-01-07"]
	if !ok {
		t.Fatalf("2026-01-07 missing from window: %v", occs)
	}
	if full.AcceptedCount != 2 || full.HasCapacity {
		t.Fatalf("2026-01-07 = count %d capacity %v, want full", full.AcceptedCount, full.HasCapacity)
	}
	if full.SlotsAvailable == nil || *full.SlotsAvailable != 0 {
		t.Fatalf("2026-01-07 slots = %v, want 0", full.SlotsAvailable)
	}
	if full.CallerState == nil || *full.CallerState != domain.EnrollmentAccepted {
		t.Fatalf("caller state = %v, want accepted", full.CallerState)
	}
	open, ok := byDate["2026-01-12"]
	if !ok {
		t.Fatalf("2026-01-12 missing from window")
	}
	if open.AcceptedCount != 0 || !open.HasCapacity || open.CallerState != nil {
		t.Fatalf("2026-01-12 should be untouched: %+v", open)
	}
}

func TestOccurrencesWindowClamp(t *testing.T) {
	env := newTestEnv(t)
	a := publishedWeekly(t, env, nil, false)

	occs, err := env.Engine.Occurrences(env.Ctx, member("u1"), a.ID, "2026-01-12", "2026-01-14")
	if err != nil {
		t.Fatal(err)
	}
	if len(occs) != 2 {
		t.Fatalf("got %d occurrences, want Mon 12 and Wed 14: %v", len(occs), occs)
	}
	if occs[0].Date != "2026-01-12" || occs[1].Date != "2026-01-14" {
		t.Fatalf("unexpected dates %s, %s", occs[0].Date, occs[1].Date)
	}
	// An inverted range is empty, not an error.
	occs, err = env.Engine.Occurrences(env.Ctx, member("u1"), a.ID, "2026-01-20", "2026-01-10")
	if err != nil || len(occs) != 0 {
		t.Fatalf("inverted range = %v, %v", occs, err)
	}
	_, err = env.Engine.Occurrences(env.Ctx, member("u1"), a.ID, "not-a-date", "")
	var verr engine.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("bad from = %v, want validation error", err)
	}
}

func TestOccurrencesVisibility(t *testing.T) {
	env := newTestEnv(t)
	draft, err := env.Engine.CreateActivity(env.Ctx, admin, domain.Activity{
		Title: "Members only preview",
		Kind:  domain.KindSingle,
		Date:  strptr("2026-01-10"),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.Occurrences(env.Ctx, member("u1"), draft.ID, "", "")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("draft for non-admin = %v, want not found", err)
	}
	if _, err := env.Engine.Occurrences(env.Ctx, admin, draft.ID, "", ""); err != nil {
		t.Fatalf("draft for admin: %v", err)
	}
	if _, err := env.Engine.DeleteActivity(env.Ctx, admin, draft.ID); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.Occurrences(env.Ctx, admin, draft.ID, "", "")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("deleted activity = %v, want not found", err)
	}
}

func TestNextOccurrence(t *testing.T) {
	env := newTestEnv(t)
	a := publishedWeekly(t, env, nil, false)

	next := env.Engine.NextOccurrence(a, env.Engine.Now())
	if next == nil {
		t.Fatalf("expected a next occurrence")
	}
	if next.Date != "2026-01-05" || next.Time != "19:00" {
		t.Fatalf("next = %s %s, want 2026-01-05 19:00", next.Date, next.Time)
	}
}
