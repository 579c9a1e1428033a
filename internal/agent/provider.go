package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Provider abstracts the chat-completions backend used for planning, query
// generation and summarization.
type Provider interface {
	// Complete returns the raw text of a completion.
	Complete(ctx context.Context, system, user string) (string, error)
	// CompleteJSON requests a JSON object completion and decodes it into out.
	CompleteJSON(ctx context.Context, system, user string, out any) error
}

// decodeModelJSON decodes a model completion into out, tolerating the usual
// artifacts: markdown fences, prose around the object, trailing commas and
// single quotes. It first tries the text as-is, then a repaired version,
// then the outermost brace-delimited slice of the repaired text.
func decodeModelJSON(text string, out any) error {
	text = stripFences(text)
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return nil
	}
	if err := unmarshalBraceSlice(text, out); err == nil {
		return nil
	}
	if repaired, err := jsonrepair.JSONRepair(text); err == nil {
		if err := json.Unmarshal([]byte(repaired), out); err == nil {
			return nil
		}
		if err := unmarshalBraceSlice(repaired, out); err == nil {
			return nil
		}
	}
	return fmt.Errorf("model output is not valid JSON: %q", truncate(text, 200))
}

// unmarshalBraceSlice decodes the outermost brace-delimited slice of text.
func unmarshalBraceSlice(text string, out any) error {
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "}]")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON value found")
	}
	return json.Unmarshal([]byte(text[start:end+1]), out)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		// drop the language tag line
		if !strings.ContainsAny(s[:idx], "{[") {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
