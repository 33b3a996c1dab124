package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"aria/internal/calendar"
	"aria/internal/models"
)

// fakeLLM replays scripted responses. Tool-loop responses pop off toolQueue;
// structured calls pop off structuredQueue as raw JSON.
type fakeLLM struct {
	toolQueue       []*LLMResult
	structuredQueue []string
	completeReply   string
	completeErr     error
	structuredErr   error
	toolErr         error

	toolCallsSeen       int
	structuredCallsSeen int
	completeMessages    [][]map[string]interface{}
}

func (f *fakeLLM) Complete(ctx context.Context, cfg *models.LLMConfig, messages []map[string]interface{}) (string, error) {
	f.completeMessages = append(f.completeMessages, messages)
	if f.completeErr != nil {
		return "", f.completeErr
	}
	if f.completeReply == "" {
		return "ok", nil
	}
	return f.completeReply, nil
}

func (f *fakeLLM) CompleteWithTools(ctx context.Context, cfg *models.LLMConfig, messages []map[string]interface{}, tools []map[string]interface{}) (*LLMResult, error) {
	f.toolCallsSeen++
	if f.toolErr != nil {
		return nil, f.toolErr
	}
	if len(f.toolQueue) == 0 {
		return &LLMResult{Content: "done"}, nil
	}
	next := f.toolQueue[0]
	f.toolQueue = f.toolQueue[1:]
	return next, nil
}

func (f *fakeLLM) StructuredComplete(ctx context.Context, cfg *models.LLMConfig, messages []map[string]interface{}, schemaName string, schema map[string]interface{}, out interface{}) error {
	f.structuredCallsSeen++
	if f.structuredErr != nil {
		return f.structuredErr
	}
	if len(f.structuredQueue) == 0 {
		return fmt.Errorf("no scripted structured response")
	}
	next := f.structuredQueue[0]
	f.structuredQueue = f.structuredQueue[1:]
	return json.Unmarshal([]byte(next), out)
}

// fakeCalendar is an in-memory calendar provider.
type fakeCalendar struct {
	calendars []models.Calendar
	events    map[string]*models.CalendarEvent // by event ID

	searchErr  error
	listErr    error
	getErr     error
	nextID     int
	failVerify bool // GetEvent returns not-found for everything after a write
	created    int
	updated    int
	deleted    int
}

func newFakeCalendar(calendars ...models.Calendar) *fakeCalendar {
	if len(calendars) == 0 {
		calendars = []models.Calendar{{ID: "cal-1", Name: "Personal", Primary: true, CanWrite: true}}
	}
	return &fakeCalendar{
		calendars: calendars,
		events:    make(map[string]*models.CalendarEvent),
	}
}

func (f *fakeCalendar) addEvent(event models.CalendarEvent) {
	if event.ID == "" {
		f.nextID++
		event.ID = fmt.Sprintf("evt-%d", f.nextID)
	}
	if event.CalendarID == "" {
		event.CalendarID = f.calendars[0].ID
	}
	copied := event
	f.events[event.ID] = &copied
}

func (f *fakeCalendar) ListCalendars(ctx context.Context) ([]models.Calendar, error) {
	return f.calendars, nil
}

func (f *fakeCalendar) ListEvents(ctx context.Context, calendarID string, from, to time.Time) ([]models.CalendarEvent, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.CalendarEvent
	for _, e := range f.events {
		if e.CalendarID != calendarID {
			continue
		}
		if e.Start.Before(from) || e.Start.After(to) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (f *fakeCalendar) SearchEvents(ctx context.Context, calendarID, query string, from, to time.Time) ([]models.CalendarEvent, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.ListEvents(ctx, calendarID, from, to)
}

func (f *fakeCalendar) GetEvent(ctx context.Context, calendarID, eventID string) (*models.CalendarEvent, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.failVerify {
		return nil, calendar.ErrNotFound
	}
	event, ok := f.events[eventID]
	if !ok {
		return nil, calendar.ErrNotFound
	}
	copied := *event
	return &copied, nil
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, calendarID string, event *models.CalendarEvent) (*models.CalendarEvent, error) {
	f.created++
	f.nextID++
	copied := *event
	copied.ID = fmt.Sprintf("evt-%d", f.nextID)
	copied.CalendarID = calendarID
	if copied.CalendarID == "" {
		copied.CalendarID = f.calendars[0].ID
	}
	f.events[copied.ID] = &copied
	out := copied
	return &out, nil
}

func (f *fakeCalendar) UpdateEvent(ctx context.Context, calendarID string, event *models.CalendarEvent) (*models.CalendarEvent, error) {
	f.updated++
	existing, ok := f.events[event.ID]
	if !ok {
		return nil, calendar.ErrNotFound
	}
	copied := *event
	if copied.CalendarID == "" {
		copied.CalendarID = existing.CalendarID
	}
	f.events[event.ID] = &copied
	out := copied
	return &out, nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	f.deleted++
	delete(f.events, eventID)
	return nil
}

// fakeConversations holds messages in memory.
type fakeConversations struct {
	messages []models.Message
}

func (f *fakeConversations) EnsureThread(ctx context.Context, userID, threadID string) (*models.Thread, error) {
	if threadID == "" {
		threadID = "thread-1"
	}
	return &models.Thread{ThreadID: threadID, UserID: userID}, nil
}

func (f *fakeConversations) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.MessageID == "" {
		msg.MessageID = fmt.Sprintf("msg-%d", len(f.messages)+1)
	}
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeConversations) RecentMessages(ctx context.Context, threadID string, limit int) ([]models.Message, error) {
	return f.messages, nil
}

func (f *fakeConversations) RecentAssistantMessages(ctx context.Context, threadID string, limit int) ([]models.Message, error) {
	var out []models.Message
	for _, m := range f.messages {
		if m.Role == models.RoleAssistant {
			out = append(out, m)
		}
	}
	return out, nil
}

// fakeMemory records queued writes.
type fakeMemory struct {
	queued  []string // "bucket/key=value"
	profile models.PreferenceProfile
}

func (f *fakeMemory) UpsertFact(ctx context.Context, userID, bucket, key, value, source string, confidence float64) error {
	return nil
}

func (f *fakeMemory) ForgetFact(ctx context.Context, userID, bucket, key string) error {
	return nil
}

func (f *fakeMemory) Profile(ctx context.Context, userID string) (*models.PreferenceProfile, error) {
	copied := f.profile
	return &copied, nil
}

func (f *fakeMemory) QueueWrite(ctx context.Context, userID, bucket, key, value, source string, confidence float64) {
	f.queued = append(f.queued, fmt.Sprintf("%s/%s=%s", bucket, key, value))
}

func (f *fakeMemory) HasFact(ctx context.Context, userID, bucket, key, value string) bool {
	return false
}
