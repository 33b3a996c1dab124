package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"aria/internal/calendar"
	"aria/internal/models"
)

// Calendar tool names. The tool-calling loop special-cases the mutating ones
// for duplicate detection and write verification.
const (
	ToolCalendarListCalendars = "calendar_list_calendars"
	ToolCalendarListEvents    = "calendar_list_events"
	ToolCalendarSearchEvents  = "calendar_search_events"
	ToolCalendarGetEvent      = "calendar_get_event"
	ToolCalendarCreateEvent   = "calendar_create_event"
	ToolCalendarUpdateEvent   = "calendar_update_event"
	ToolCalendarDeleteEvent   = "calendar_delete_event"
)

// RegisterCalendarTools wires calendar tools backed by the given provider
// into the registry.
func RegisterCalendarTools(registry *Registry, provider calendar.Provider) {
	registry.Register(&Tool{
		Name:        ToolCalendarListCalendars,
		Description: "List the user's calendars with their IDs and write access.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			calendars, err := provider.ListCalendars(ctx)
			if err != nil {
				return "", err
			}
			return marshalResult(calendars)
		},
	})

	registry.Register(&Tool{
		Name:        ToolCalendarListEvents,
		Description: "List events on a calendar in a time window. Times are RFC3339.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"calendar_id": map[string]interface{}{"type": "string"},
				"from":        map[string]interface{}{"type": "string", "description": "RFC3339 start of window"},
				"to":          map[string]interface{}{"type": "string", "description": "RFC3339 end of window"},
			},
			"required": []string{"calendar_id", "from", "to"},
		},
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			from, to, err := parseWindow(args)
			if err != nil {
				return "", err
			}
			events, err := provider.ListEvents(ctx, stringArg(args, "calendar_id"), from, to)
			if err != nil {
				return "", err
			}
			return marshalResult(events)
		},
	})

	registry.Register(&Tool{
		Name:        ToolCalendarSearchEvents,
		Description: "Search events on a calendar by text within a time window.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"calendar_id": map[string]interface{}{"type": "string"},
				"query":       map[string]interface{}{"type": "string"},
				"from":        map[string]interface{}{"type": "string"},
				"to":          map[string]interface{}{"type": "string"},
			},
			"required": []string{"calendar_id", "query", "from", "to"},
		},
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			from, to, err := parseWindow(args)
			if err != nil {
				return "", err
			}
			events, err := provider.SearchEvents(ctx, stringArg(args, "calendar_id"), stringArg(args, "query"), from, to)
			if err != nil {
				return "", err
			}
			return marshalResult(events)
		},
	})

	registry.Register(&Tool{
		Name:        ToolCalendarGetEvent,
		Description: "Fetch one event by its ID.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"calendar_id": map[string]interface{}{"type": "string"},
				"event_id":    map[string]interface{}{"type": "string"},
			},
			"required": []string{"calendar_id", "event_id"},
		},
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			event, err := provider.GetEvent(ctx, stringArg(args, "calendar_id"), stringArg(args, "event_id"))
			if err != nil {
				return "", err
			}
			return marshalResult(event)
		},
	})

	registry.Register(&Tool{
		Name:        ToolCalendarCreateEvent,
		Description: "Create a calendar event. Times are RFC3339.",
		Parameters:  eventWriteParameters(false),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			event, err := EventFromArgs(args)
			if err != nil {
				return "", err
			}
			created, err := provider.CreateEvent(ctx, stringArg(args, "calendar_id"), event)
			if err != nil {
				return "", err
			}
			return marshalResult(created)
		},
	})

	registry.Register(&Tool{
		Name:        ToolCalendarUpdateEvent,
		Description: "Update an existing calendar event by ID. Times are RFC3339.",
		Parameters:  eventWriteParameters(true),
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			event, err := EventFromArgs(args)
			if err != nil {
				return "", err
			}
			event.ID = stringArg(args, "event_id")
			if event.ID == "" {
				return "", fmt.Errorf("event_id is required")
			}
			updated, err := provider.UpdateEvent(ctx, stringArg(args, "calendar_id"), event)
			if err != nil {
				return "", err
			}
			return marshalResult(updated)
		},
	})

	registry.Register(&Tool{
		Name:        ToolCalendarDeleteEvent,
		Description: "Delete a calendar event by ID.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"calendar_id": map[string]interface{}{"type": "string"},
				"event_id":    map[string]interface{}{"type": "string"},
			},
			"required": []string{"calendar_id", "event_id"},
		},
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			if err := provider.DeleteEvent(ctx, stringArg(args, "calendar_id"), stringArg(args, "event_id")); err != nil {
				return "", err
			}
			return `{"deleted":true}`, nil
		},
	})
}

func eventWriteParameters(withID bool) map[string]interface{} {
	properties := map[string]interface{}{
		"calendar_id": map[string]interface{}{"type": "string"},
		"title":       map[string]interface{}{"type": "string"},
		"description": map[string]interface{}{"type": "string"},
		"location":    map[string]interface{}{"type": "string"},
		"start":       map[string]interface{}{"type": "string", "description": "RFC3339 start time"},
		"end":         map[string]interface{}{"type": "string", "description": "RFC3339 end time"},
	}
	required := []string{"calendar_id", "title", "start", "end"}
	if withID {
		properties["event_id"] = map[string]interface{}{"type": "string"}
		required = append(required, "event_id")
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// EventFromArgs builds a calendar event from tool-call arguments. Exported so
// the tool-calling loop can inspect a proposed write before executing it.
func EventFromArgs(args map[string]interface{}) (*models.CalendarEvent, error) {
	start, err := time.Parse(time.RFC3339, stringArg(args, "start"))
	if err != nil {
		return nil, fmt.Errorf("invalid start time: %w", err)
	}
	end, err := time.Parse(time.RFC3339, stringArg(args, "end"))
	if err != nil {
		return nil, fmt.Errorf("invalid end time: %w", err)
	}
	title := stringArg(args, "title")
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	return &models.CalendarEvent{
		Title:       title,
		Description: stringArg(args, "description"),
		Location:    stringArg(args, "location"),
		Start:       start,
		End:         end,
		CalendarID:  stringArg(args, "calendar_id"),
	}, nil
}

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func parseWindow(args map[string]interface{}) (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, stringArg(args, "from"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid from time: %w", err)
	}
	to, err := time.Parse(time.RFC3339, stringArg(args, "to"))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid to time: %w", err)
	}
	return from, to, nil
}

func marshalResult(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data), nil
}
