package server

import (
	"agendaviva/internal/domain"
	"agendaviva/internal/engine"
	"agendaviva/internal/schedule"
)

type CreateActivityRequest struct {
	Title              string                 `json:"title"`
	Description        *string                `json:"description,omitempty"`
	Kind               string                 `json:"kind" enum:"single,recurring"`
	Date               *string                `json:"date,omitempty" format:"date"`
	Time               *string                `json:"time,omitempty"`
	Recurrence         *domain.RecurrenceRule `json:"recurrence,omitempty"`
	Capacity           *int                   `json:"capacity,omitempty"`
	RequiresApproval   *bool                  `json:"requires_approval,omitempty"`
	State              *string                `json:"state,omitempty" enum:"draft,published"`
	Tags               []string               `json:"tags,omitempty"`
	Location           *string                `json:"location,omitempty"`
	LocationURL        *string                `json:"location_url,omitempty"`
	Price              *float64               `json:"price,omitempty"`
	Free               *bool                  `json:"free,omitempty"`
	DurationMinutes    *int                   `json:"duration_minutes,omitempty"`
	CancellationPolicy *string                `json:"cancellation_policy,omitempty"`
	Photos             []string               `json:"photos,omitempty"`
}

type OccurrenceRef struct {
	Date string `json:"date" format:"date"`
	Time string `json:"time,omitempty"`
}

type ActivityResponse struct {
	ID                 string                 `json:"id"`
	Title              string                 `json:"title"`
	Description        string                 `json:"description,omitempty"`
	Kind               string                 `json:"kind"`
	Date               *string                `json:"date,omitempty"`
	Time               string                 `json:"time,omitempty"`
	Recurrence         *domain.RecurrenceRule `json:"recurrence,omitempty"`
	Capacity           *int                   `json:"capacity,omitempty"`
	RequiresApproval   bool                   `json:"requires_approval"`
	State              string                 `json:"state"`
	Tags               []string               `json:"tags,omitempty"`
	Location           string                 `json:"location,omitempty"`
	LocationURL        string                 `json:"location_url,omitempty"`
	Price              float64                `json:"price"`
	Free               bool                   `json:"free"`
	DurationMinutes    *int                   `json:"duration_minutes,omitempty"`
	CancellationPolicy string                 `json:"cancellation_policy,omitempty"`
	Photos             []string               `json:"photos,omitempty"`
	NextOccurrence     *OccurrenceRef         `json:"next_occurrence,omitempty"`
	CreatedAt          string                 `json:"created_at"`
	UpdatedAt          string                 `json:"updated_at"`
}

func activityResponse(a domain.Activity, next *schedule.Entry) ActivityResponse {
	resp := ActivityResponse{
		ID:                 a.ID,
		Title:              a.Title,
		Description:        a.Description,
		Kind:               a.Kind,
		Date:               a.Date,
		Time:               a.Time,
		Recurrence:         a.Recurrence,
		Capacity:           a.Capacity,
		RequiresApproval:   a.RequiresApproval,
		State:              a.State,
		Tags:               a.Tags,
		Location:           a.Location,
		LocationURL:        a.LocationURL,
		Price:              a.Price,
		Free:               a.Free,
		DurationMinutes:    a.DurationMinutes,
		CancellationPolicy: a.CancellationPolicy,
		Photos:             a.Photos,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
	if next != nil {
		resp.NextOccurrence = &OccurrenceRef{Date: next.Date, Time: next.Time}
	}
	return resp
}

type OccurrenceResponse struct {
	ActivityID     string  `json:"activity_id"`
	Date           string  `json:"date" format:"date"`
	Time           string  `json:"time,omitempty"`
	AcceptedCount  int     `json:"accepted_count"`
	SlotsAvailable *int    `json:"slots_available,omitempty"`
	HasCapacity    bool    `json:"has_capacity"`
	CallerState    *string `json:"caller_enrollment_state,omitempty"`
}

func occurrenceResponse(o domain.Occurrence) OccurrenceResponse {
	return OccurrenceResponse{
		ActivityID:     o.ActivityID,
		Date:           o.Date,
		Time:           o.Time,
		AcceptedCount:  o.AcceptedCount,
		SlotsAvailable: o.SlotsAvailable,
		HasCapacity:    o.HasCapacity,
		CallerState:    o.CallerState,
	}
}

// OccurrenceDate may be omitted for single activities, which enroll into
// their one fixed date.
type CreateEnrollmentRequest struct {
	ActivityID     string  `json:"activity_id"`
	OccurrenceDate string  `json:"occurrence_date,omitempty" format:"date"`
	Notes          *string `json:"notes,omitempty"`
}

type EnrollmentResponse struct {
	ID             string  `json:"id"`
	ActivityID     string  `json:"activity_id"`
	UserID         string  `json:"user_id"`
	OccurrenceDate string  `json:"occurrence_date"`
	State          string  `json:"state"`
	Outcome        string  `json:"outcome,omitempty"`
	Notes          string  `json:"notes,omitempty"`
	CreatedAt      string  `json:"created_at"`
	ApprovedAt     *string `json:"approved_at,omitempty"`
	CancelledAt    *string `json:"cancelled_at,omitempty"`
}

func enrollmentResponse(e domain.Enrollment, outcome engine.Outcome) EnrollmentResponse {
	return EnrollmentResponse{
		ID:             e.ID,
		ActivityID:     e.ActivityID,
		UserID:         e.UserID,
		OccurrenceDate: e.OccurrenceDate,
		State:          e.State,
		Outcome:        string(outcome),
		Notes:          e.Notes,
		CreatedAt:      e.CreatedAt,
		ApprovedAt:     e.ApprovedAt,
		CancelledAt:    e.CancelledAt,
	}
}

func mapEnrollments(items []domain.Enrollment) []EnrollmentResponse {
	res := make([]EnrollmentResponse, 0, len(items))
	for _, e := range items {
		res = append(res, enrollmentResponse(e, ""))
	}
	return res
}

type StatusUpdateRequest struct {
	State string `json:"state" enum:"pending,accepted,waitlisted,cancelled"`
}

type TagRequest struct {
	Name string `json:"name"`
}

type TagResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	UserID     string `json:"user_id"`
	Payload    string `json:"payload_json,omitempty"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		UserID:     e.UserID,
		Payload:    e.Payload,
	}
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type WhoAmIResponse struct {
	UserID   string   `json:"user_id"`
	Roles    []string `json:"roles"`
	Approved bool     `json:"approved"`
	Source   string   `json:"source,omitempty"`
}

type DevLoginRequest struct {
	UserID   string   `json:"user_id"`
	Roles    []string `json:"roles,omitempty"`
	Approved bool     `json:"approved,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
