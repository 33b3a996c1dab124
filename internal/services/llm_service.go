package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aria/internal/models"
)

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// LLMResult is the outcome of one model call: text, tool calls, or both.
type LLMResult struct {
	Content   string
	ToolCalls []ToolCall
}

// LLMClient is the language-model collaborator. One call type: messages in,
// text and/or tool calls out. Structured extraction rides the same endpoint
// with a json_schema response format.
type LLMClient interface {
	Complete(ctx context.Context, cfg *models.LLMConfig, messages []map[string]interface{}) (string, error)
	CompleteWithTools(ctx context.Context, cfg *models.LLMConfig, messages []map[string]interface{}, tools []map[string]interface{}) (*LLMResult, error)
	StructuredComplete(ctx context.Context, cfg *models.LLMConfig, messages []map[string]interface{}, schemaName string, schema map[string]interface{}, out interface{}) error
}

// LLMService calls any OpenAI-compatible chat completions endpoint.
type LLMService struct {
	client *http.Client
}

// NewLLMService creates the HTTP-backed LLM client.
func NewLLMService() *LLMService {
	return &LLMService{
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

// Complete performs a plain text completion.
func (s *LLMService) Complete(ctx context.Context, cfg *models.LLMConfig, messages []map[string]interface{}) (string, error) {
	result, err := s.call(ctx, cfg, map[string]interface{}{
		"model":    cfg.Model,
		"messages": messages,
	})
	if err != nil {
		return "", err
	}
	if result.Content == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return result.Content, nil
}

// CompleteWithTools performs a completion with tool specs attached. The caller
// decides what to do with returned tool calls.
func (s *LLMService) CompleteWithTools(ctx context.Context, cfg *models.LLMConfig, messages []map[string]interface{}, tools []map[string]interface{}) (*LLMResult, error) {
	payload := map[string]interface{}{
		"model":    cfg.Model,
		"messages": messages,
	}
	if len(tools) > 0 {
		payload["tools"] = tools
		payload["tool_choice"] = "auto"
	}
	return s.call(ctx, cfg, payload)
}

// StructuredComplete performs a zero-temperature extraction call with a strict
// JSON schema and unmarshals the result into out.
func (s *LLMService) StructuredComplete(ctx context.Context, cfg *models.LLMConfig, messages []map[string]interface{}, schemaName string, schema map[string]interface{}, out interface{}) error {
	result, err := s.call(ctx, cfg, map[string]interface{}{
		"model":       cfg.Model,
		"messages":    messages,
		"temperature": 0,
		"response_format": map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   schemaName,
				"strict": true,
				"schema": schema,
			},
		},
	})
	if err != nil {
		return err
	}

	content := strings.TrimSpace(result.Content)
	// Some providers wrap JSON in a markdown fence despite the response format.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	if content == "" {
		return fmt.Errorf("empty structured response from model")
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("failed to parse structured response: %w", err)
	}
	return nil
}

func (s *LLMService) call(ctx context.Context, cfg *models.LLMConfig, payload map[string]interface{}) (*LLMResult, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content   string `json:"content"`
				ToolCalls []struct {
					ID       string `json:"id"`
					Type     string `json:"type"`
					Function struct {
						Name      string `json:"name"`
						Arguments string `json:"arguments"`
					} `json:"function"`
				} `json:"tool_calls"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	msg := response.Choices[0].Message
	result := &LLMResult{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}
