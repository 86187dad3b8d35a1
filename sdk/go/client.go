package agendavivasdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal AgendaViva HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Activity represents the API activity model (partial).
type Activity struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Kind             string   `json:"kind"`
	State            string   `json:"state"`
	Date             *string  `json:"date,omitempty"`
	Time             string   `json:"time,omitempty"`
	Capacity         *int     `json:"capacity,omitempty"`
	RequiresApproval bool     `json:"requires_approval"`
	Tags             []string `json:"tags"`
}

// Occurrence is one concrete date of an activity with availability.
type Occurrence struct {
	ActivityID     string  `json:"activity_id"`
	Date           string  `json:"date"`
	Time           string  `json:"time,omitempty"`
	AcceptedCount  int     `json:"accepted_count"`
	SlotsAvailable *int    `json:"slots_available,omitempty"`
	HasCapacity    bool    `json:"has_capacity"`
	CallerState    *string `json:"caller_enrollment_state,omitempty"`
}

// Enrollment represents one user's claim on an occurrence.
type Enrollment struct {
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

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	UserID     string `json:"user_id"`
	Payload    string `json:"payload_json,omitempty"`
}

// PaginatedEvents wraps event listings with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Activities lists published activities, optionally filtered by tag.
func (c *Client) Activities(ctx context.Context, tag string) ([]Activity, error) {
	endpoint := "v0/activities"
	if tag != "" {
		endpoint += "?tag=" + url.QueryEscape(tag)
	}
	var resp struct {
		Items []Activity `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Activity fetches one activity by id.
func (c *Client) Activity(ctx context.Context, id string) (Activity, error) {
	var resp Activity
	err := c.do(ctx, http.MethodGet, "v0/activities/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Occurrences returns the availability window for an activity.
func (c *Client) Occurrences(ctx context.Context, activityID, from, to string) ([]Occurrence, error) {
	endpoint := fmt.Sprintf("v0/activities/%s/occurrences", url.PathEscape(activityID))
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Occurrence `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Enroll requests a slot on an occurrence. The returned enrollment's state
// tells whether it was accepted, queued for approval, or waitlisted.
func (c *Client) Enroll(ctx context.Context, activityID, occurrenceDate, notes string) (Enrollment, error) {
	body := map[string]any{
		"activity_id":     activityID,
		"occurrence_date": occurrenceDate,
	}
	if notes != "" {
		body["notes"] = notes
	}
	var resp Enrollment
	err := c.do(ctx, http.MethodPost, "v0/enrollments", body, &resp)
	return resp, err
}

// CancelEnrollment cancels an enrollment. Cancellation is final.
func (c *Client) CancelEnrollment(ctx context.Context, id string) (Enrollment, error) {
	var resp Enrollment
	endpoint := fmt.Sprintf("v0/enrollments/%s/cancel", url.PathEscape(id))
	err := c.do(ctx, http.MethodPut, endpoint, nil, &resp)
	return resp, err
}

// ApproveEnrollment approves a pending or waitlisted enrollment (admin).
func (c *Client) ApproveEnrollment(ctx context.Context, id string) (Enrollment, error) {
	var resp Enrollment
	endpoint := fmt.Sprintf("v0/enrollments/%s/approve", url.PathEscape(id))
	err := c.do(ctx, http.MethodPut, endpoint, nil, &resp)
	return resp, err
}

// SetEnrollmentState force-sets an enrollment state (admin).
func (c *Client) SetEnrollmentState(ctx context.Context, id, state string) (Enrollment, error) {
	body := map[string]any{"state": state}
	var resp Enrollment
	endpoint := fmt.Sprintf("v0/enrollments/%s/status", url.PathEscape(id))
	err := c.do(ctx, http.MethodPut, endpoint, body, &resp)
	return resp, err
}

// MyEnrollments lists the caller's enrollments.
func (c *Client) MyEnrollments(ctx context.Context, state string) ([]Enrollment, error) {
	endpoint := "v0/me/enrollments"
	if state != "" {
		endpoint += "?state=" + url.QueryEscape(state)
	}
	var resp struct {
		Items []Enrollment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Events returns recent events (admin).
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing (admin).
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := "v0/events"
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
