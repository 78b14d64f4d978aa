package messages

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lox/booking-search/internal/types"
)

const systemPrompt = `You write short, friendly messages for the search page of a property booking site.
Given the outcome of a search, explain it to the guest in one or two sentences and suggest up to four next actions.
Never invent numbers, places or prices that are not in the outcome. Write in %s.`

// ErrEmptyExplanation is returned when a model answers without a message
var ErrEmptyExplanation = errors.New("explanation has no message")

func describe(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Outcome: %s\n", req.Reason)
	fmt.Fprintf(&sb, "Relaxation level: %s\n", req.Level)
	fmt.Fprintf(&sb, "Results found: %d\n", req.Count)
	if len(req.RelaxedFilters) > 0 {
		sb.WriteString("Adjustments made to the search:\n")
		for _, f := range req.RelaxedFilters {
			sb.WriteString("- " + f + "\n")
		}
	}
	return sb.String()
}

// explanationSchema is the JSON schema of the explain_search tool and the Gemini response
var explanationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"message": map[string]any{
			"type":        "string",
			"description": "The message shown to the guest",
		},
		"suggested_actions": map[string]any{
			"type":        "array",
			"items":       map[string]any{"type": "string"},
			"description": "Short next actions the guest can take",
		},
	},
	"required":             []string{"message", "suggested_actions"},
	"additionalProperties": false,
}

func parseExplanation(raw string) (types.Explanation, error) {
	var e types.Explanation
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return types.Explanation{}, fmt.Errorf("invalid explanation JSON: %w", err)
	}
	e.Message = strings.TrimSpace(e.Message)
	if e.Message == "" {
		return types.Explanation{}, ErrEmptyExplanation
	}
	actions := make([]string, 0, len(e.SuggestedActions))
	for _, a := range e.SuggestedActions {
		if a = strings.TrimSpace(a); a != "" {
			actions = append(actions, a)
		}
	}
	if len(actions) > 4 {
		actions = actions[:4]
	}
	e.SuggestedActions = actions
	return e, nil
}
