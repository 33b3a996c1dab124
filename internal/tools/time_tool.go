package tools

import (
	"context"
	"fmt"
	"time"
)

// ToolCurrentTime reports the current time in the user's timezone. The model
// needs it to turn "tomorrow at 7" into RFC3339 tool arguments.
const ToolCurrentTime = "get_current_time"

// RegisterTimeTool wires the current-time tool for a given timezone.
func RegisterTimeTool(registry *Registry, timezone string) {
	registry.Register(&Tool{
		Name:        ToolCurrentTime,
		Description: "Get the current date and time in the user's timezone.",
		Parameters: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
		ExecuteFunc: func(ctx context.Context, args map[string]interface{}) (string, error) {
			loc := time.Local
			if timezone != "" {
				if parsed, err := time.LoadLocation(timezone); err == nil {
					loc = parsed
				}
			}
			now := time.Now().In(loc)
			return fmt.Sprintf(`{"now":%q,"weekday":%q,"timezone":%q}`,
				now.Format(time.RFC3339), now.Weekday().String(), loc.String()), nil
		},
	})
}
