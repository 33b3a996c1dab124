package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"aria/internal/models"

	"golang.org/x/time/rate"
)

// HTTPProvider talks to a Composio-style calendar action API. One instance is
// scoped to a single user's connected account; the rate limiter protects the
// upstream quota shared across a turn's parallel calendar fan-out.
type HTTPProvider struct {
	baseURL     string
	apiKey      string
	entityID    string
	permissions PermissionSet
	limiter     *rate.Limiter
	client      *http.Client
}

// NewHTTPProvider creates a provider for one user's calendar connection.
func NewHTTPProvider(baseURL, apiKey, entityID string, permissions PermissionSet) *HTTPProvider {
	return &HTTPProvider{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		entityID:    entityID,
		permissions: permissions,
		limiter:     rate.NewLimiter(rate.Every(time.Minute/50), 10), // 50 calls/min, burst 10
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// wireEvent is the provider's event payload shape.
type wireEvent struct {
	ID           string   `json:"id"`
	Summary      string   `json:"summary"`
	Description  string   `json:"description,omitempty"`
	Location     string   `json:"location,omitempty"`
	Attendees    []string `json:"attendees,omitempty"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	CalendarID   string   `json:"calendar_id"`
	CalendarName string   `json:"calendar_name,omitempty"`
}

func (w *wireEvent) toModel() models.CalendarEvent {
	start, _ := time.Parse(time.RFC3339, w.StartTime)
	end, _ := time.Parse(time.RFC3339, w.EndTime)
	return models.CalendarEvent{
		ID:           w.ID,
		Title:        w.Summary,
		Description:  w.Description,
		Location:     w.Location,
		Attendees:    w.Attendees,
		Start:        start,
		End:          end,
		CalendarID:   w.CalendarID,
		CalendarName: w.CalendarName,
	}
}

func eventInput(calendarID string, event *models.CalendarEvent) map[string]interface{} {
	input := map[string]interface{}{
		"summary":     event.Title,
		"start_time":  event.Start.Format(time.RFC3339),
		"end_time":    event.End.Format(time.RFC3339),
		"calendar_id": calendarID,
	}
	if event.Description != "" {
		input["description"] = event.Description
	}
	if event.Location != "" {
		input["location"] = event.Location
	}
	if len(event.Attendees) > 0 {
		input["attendees"] = event.Attendees
	}
	return input
}

// ListCalendars lists all calendars readable by the connected account.
func (p *HTTPProvider) ListCalendars(ctx context.Context) ([]models.Calendar, error) {
	if err := p.permissions.Check(CapabilityRead); err != nil {
		return nil, err
	}

	raw, err := p.callAction(ctx, "CALENDAR_LIST_CALENDARS", map[string]interface{}{})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Calendars []struct {
			ID         string `json:"id"`
			Summary    string `json:"summary"`
			Primary    bool   `json:"primary"`
			AccessRole string `json:"access_role"`
		} `json:"calendars"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse calendars response: %w", err)
	}

	calendars := make([]models.Calendar, 0, len(payload.Calendars))
	for _, c := range payload.Calendars {
		calendars = append(calendars, models.Calendar{
			ID:       c.ID,
			Name:     c.Summary,
			Primary:  c.Primary,
			CanWrite: c.AccessRole == "owner" || c.AccessRole == "writer",
		})
	}
	return calendars, nil
}

// ListEvents lists events in a window on one calendar.
func (p *HTTPProvider) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]models.CalendarEvent, error) {
	if err := p.permissions.Check(CapabilityRead); err != nil {
		return nil, err
	}

	raw, err := p.callAction(ctx, "CALENDAR_LIST_EVENTS", map[string]interface{}{
		"calendar_id": calendarID,
		"time_min":    from.Format(time.RFC3339),
		"time_max":    to.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	return parseEventList(raw)
}

// SearchEvents performs a provider-side text search in a window.
func (p *HTTPProvider) SearchEvents(ctx context.Context, calendarID, query string, from, to time.Time) ([]models.CalendarEvent, error) {
	if err := p.permissions.Check(CapabilityRead); err != nil {
		return nil, err
	}

	raw, err := p.callAction(ctx, "CALENDAR_LIST_EVENTS", map[string]interface{}{
		"calendar_id": calendarID,
		"query":       query,
		"time_min":    from.Format(time.RFC3339),
		"time_max":    to.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	return parseEventList(raw)
}

// GetEvent fetches one event by ID. Returns ErrNotFound for missing events so
// that delete verification can distinguish "gone" from "provider failure".
func (p *HTTPProvider) GetEvent(ctx context.Context, calendarID, eventID string) (*models.CalendarEvent, error) {
	if err := p.permissions.Check(CapabilityRead); err != nil {
		return nil, err
	}

	raw, err := p.callAction(ctx, "CALENDAR_GET_EVENT", map[string]interface{}{
		"calendar_id": calendarID,
		"event_id":    eventID,
	})
	if err != nil {
		if strings.Contains(err.Error(), "status 404") {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("failed to parse event response: %w", err)
	}
	if w.ID == "" {
		return nil, ErrNotFound
	}
	event := w.toModel()
	return &event, nil
}

// CreateEvent creates an event and returns the provider's stored copy.
func (p *HTTPProvider) CreateEvent(ctx context.Context, calendarID string, event *models.CalendarEvent) (*models.CalendarEvent, error) {
	if err := p.permissions.Check(CapabilityWrite); err != nil {
		return nil, err
	}

	raw, err := p.callAction(ctx, "CALENDAR_CREATE_EVENT", eventInput(calendarID, event))
	if err != nil {
		return nil, err
	}

	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("failed to parse create response: %w", err)
	}
	created := w.toModel()
	return &created, nil
}

// UpdateEvent updates an existing event in place.
func (p *HTTPProvider) UpdateEvent(ctx context.Context, calendarID string, event *models.CalendarEvent) (*models.CalendarEvent, error) {
	if err := p.permissions.Check(CapabilityWrite); err != nil {
		return nil, err
	}
	if event.ID == "" {
		return nil, fmt.Errorf("event ID is required for update")
	}

	input := eventInput(calendarID, event)
	input["event_id"] = event.ID

	raw, err := p.callAction(ctx, "CALENDAR_UPDATE_EVENT", input)
	if err != nil {
		return nil, err
	}

	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("failed to parse update response: %w", err)
	}
	updated := w.toModel()
	return &updated, nil
}

// DeleteEvent removes an event.
func (p *HTTPProvider) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := p.permissions.Check(CapabilityDelete); err != nil {
		return err
	}

	_, err := p.callAction(ctx, "CALENDAR_DELETE_EVENT", map[string]interface{}{
		"calendar_id": calendarID,
		"event_id":    eventID,
	})
	return err
}

func parseEventList(raw json.RawMessage) ([]models.CalendarEvent, error) {
	var payload struct {
		Events []wireEvent `json:"events"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse events response: %w", err)
	}
	events := make([]models.CalendarEvent, 0, len(payload.Events))
	for i := range payload.Events {
		events = append(events, payload.Events[i].toModel())
	}
	return events, nil
}

// callAction executes one provider action and returns the response data blob.
func (p *HTTPProvider) callAction(ctx context.Context, action string, input map[string]interface{}) (json.RawMessage, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	payload := map[string]interface{}{
		"entity_id": p.entityID,
		"input":     input,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := p.baseURL + "/actions/" + action + "/execute"
	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		log.Printf("❌ [CALENDAR] API error (status %d) for action %s: %s", resp.StatusCode, action, string(respBody))
		if resp.StatusCode == 429 {
			return nil, fmt.Errorf("rate limit exceeded, please try again later")
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(respBody, &envelope); err == nil && len(envelope.Data) > 0 {
		return envelope.Data, nil
	}
	return respBody, nil
}
