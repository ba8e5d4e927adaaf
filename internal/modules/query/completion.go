package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/fluent-backend/internal/modules/prompts"
	"github.com/yungbote/fluent-backend/internal/platform/openai"
)

// Completer isolates the hosted model. Everything downstream of it is
// deterministic.
type Completer interface {
	Complete(ctx context.Context, p prompts.Prompt) (string, error)
	// CompleteStructured returns the JSON object described by p.Schema.
	CompleteStructured(ctx context.Context, p prompts.Prompt) (map[string]any, error)
}

type openAICompleter struct {
	ai openai.Client
}

func NewOpenAICompleter(ai openai.Client) Completer {
	return &openAICompleter{ai: ai}
}

func (c *openAICompleter) Complete(ctx context.Context, p prompts.Prompt) (string, error) {
	return c.ai.GenerateText(ctx, p.System, p.User)
}

func (c *openAICompleter) CompleteStructured(ctx context.Context, p prompts.Prompt) (map[string]any, error) {
	if p.Structured() {
		return c.ai.GenerateJSON(ctx, p.System, p.User, p.SchemaName, p.Schema)
	}
	raw, err := c.ai.GenerateText(ctx, p.System, p.User)
	if err != nil {
		return nil, err
	}
	return DecodeStructured(raw)
}

// StripFences removes a surrounding markdown code fence and its language tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		tag := strings.TrimSpace(s[:nl])
		if tag == "" || !strings.ContainsAny(tag, " {[(") {
			s = s[nl+1:]
		}
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// DecodeStructured parses a model reply into a JSON object. Fenced replies,
// prose around the object and JSON encoded as a string are accepted.
func DecodeStructured(raw string) (map[string]any, error) {
	s := StripFences(raw)
	if s == "" {
		return nil, ErrEmptyCompletion
	}
	if strings.HasPrefix(s, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			s = StripFences(inner)
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in reply")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	return obj, nil
}

func stringField(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(fmt.Sprint(v))
	default:
		return ""
	}
}
