package model

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"pasteflow/internal/pipeline"
)

var fencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*)```$")

type rawIntent struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Confidence  string `json:"confidence"`
}

// ParseIntents extracts stage-1 candidates from free-form model output: an
// optional fenced code block is stripped, the remainder parsed as a JSON
// object or array. Entries without a title are dropped; confidence is coerced
// to low/medium/high, defaulting to medium. Malformed output yields an empty
// list so stage 1 degrades instead of failing the run.
func ParseIntents(raw string) []pipeline.IntentCandidate {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return nil
	}

	var items []rawIntent
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		var single rawIntent
		if err := json.Unmarshal([]byte(cleaned), &single); err != nil {
			log.Warn().Msg("failed to parse stage1 output; returning empty list")
			return nil
		}
		items = []rawIntent{single}
	}

	intents := make([]pipeline.IntentCandidate, 0, len(items))
	for _, item := range items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		confidence := strings.ToLower(strings.TrimSpace(item.Confidence))
		switch confidence {
		case "low", "medium", "high":
		default:
			confidence = "medium"
		}
		intents = append(intents, pipeline.IntentCandidate{
			Title:       title,
			Description: strings.TrimSpace(item.Description),
			Confidence:  confidence,
		})
	}
	return intents
}

func extractJSON(text string) string {
	stripped := strings.TrimSpace(text)
	if m := fencePattern.FindStringSubmatch(stripped); m != nil {
		return strings.TrimSpace(m[1])
	}
	return stripped
}
