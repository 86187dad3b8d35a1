package domain

// Activity kinds.
const (
	KindSingle    = "single"
	KindRecurring = "recurring"
)

// Activity lifecycle states.
const (
	ActivityDraft     = "draft"
	ActivityPublished = "published"
	ActivityDeleted   = "deleted"
)

// Recurrence frequencies.
const (
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
	FreqMonthly = "monthly"
)

// Enrollment states. Cancelled is terminal.
const (
	EnrollmentPending    = "pending"
	EnrollmentAccepted   = "accepted"
	EnrollmentCancelled  = "cancelled"
	EnrollmentWaitlisted = "waitlisted"
)

type RecurrenceRule struct {
	Frequency       string  `json:"frequency" enum:"daily,weekly,monthly"`
	DaysOfWeek      []int   `json:"days_of_week,omitempty"`
	DaysOfMonth     []int   `json:"days_of_month,omitempty"`
	TimeOfDay       string  `json:"time_of_day,omitempty"`
	StartDate       string  `json:"start_date" format:"date"`
	EndDate         *string `json:"end_date,omitempty" format:"date"`
	OccurrenceLimit *int    `json:"occurrence_limit,omitempty"`
}

type Activity struct {
	ID                 string          `json:"id"`
	Title              string          `json:"title"`
	Description        string          `json:"description,omitempty"`
	Kind               string          `json:"kind" enum:"single,recurring"`
	Date               *string         `json:"date,omitempty" format:"date"`
	Time               string          `json:"time,omitempty"`
	Recurrence         *RecurrenceRule `json:"recurrence,omitempty"`
	Capacity           *int            `json:"capacity,omitempty"`
	RequiresApproval   bool            `json:"requires_approval"`
	State              string          `json:"state" enum:"draft,published,deleted"`
	Tags               []string        `json:"tags,omitempty"`
	Location           string          `json:"location,omitempty"`
	LocationURL        string          `json:"location_url,omitempty"`
	Price              float64         `json:"price"`
	Free               bool            `json:"free"`
	DurationMinutes    *int            `json:"duration_minutes,omitempty"`
	CancellationPolicy string          `json:"cancellation_policy,omitempty"`
	Photos             []string        `json:"photos,omitempty"`
	CreatedAt          string          `json:"created_at" format:"date-time"`
	UpdatedAt          string          `json:"updated_at" format:"date-time"`
}

// Enrollment is one user's enrollment in one occurrence of an activity.
// Rows are never deleted; cancellation is final and re-enrolling creates
// a new row.
type Enrollment struct {
	ID             string  `json:"id"`
	ActivityID     string  `json:"activity_id"`
	UserID         string  `json:"user_id"`
	OccurrenceDate string  `json:"occurrence_date" format:"date"`
	State          string  `json:"state" enum:"pending,accepted,cancelled,waitlisted"`
	Notes          string  `json:"notes,omitempty"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	ApprovedAt     *string `json:"approved_at,omitempty" format:"date-time"`
	CancelledAt    *string `json:"cancelled_at,omitempty" format:"date-time"`
}

// Occurrence is a derived availability row; it is never persisted.
type Occurrence struct {
	ActivityID     string  `json:"activity_id"`
	Date           string  `json:"date" format:"date"`
	Time           string  `json:"time,omitempty"`
	AcceptedCount  int     `json:"accepted_count"`
	SlotsAvailable *int    `json:"slots_available,omitempty"`
	HasCapacity    bool    `json:"has_capacity"`
	CallerState    *string `json:"caller_enrollment_state,omitempty"`
}

type Tag struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string   `json:"id"`
	UserID    string   `json:"user_id"`
	Name      string   `json:"name,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	KeyHash   string   `json:"key_hash"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	UserID     string `json:"user_id"`
	Payload    string `json:"payload_json"`
}
