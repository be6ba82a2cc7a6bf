package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pasteflow/internal/pipeline"
)

func TestParseIntentsPlainArray(t *testing.T) {
	raw := `[{"title":"Summarize","description":"Short summary","confidence":"high"}]`
	intents := ParseIntents(raw)
	require.Len(t, intents, 1)
	assert.Equal(t, pipeline.IntentCandidate{
		Title:       "Summarize",
		Description: "Short summary",
		Confidence:  "high",
	}, intents[0])
}

func TestParseIntentsStripsFence(t *testing.T) {
	raw := "```json\n[{\"title\":\"Translate\",\"confidence\":\"low\"}]\n```"
	intents := ParseIntents(raw)
	require.Len(t, intents, 1)
	assert.Equal(t, "Translate", intents[0].Title)
	assert.Equal(t, "low", intents[0].Confidence)
}

func TestParseIntentsStripsBareFence(t *testing.T) {
	raw := "```\n[{\"title\":\"Reformat\"}]\n```"
	intents := ParseIntents(raw)
	require.Len(t, intents, 1)
	assert.Equal(t, "Reformat", intents[0].Title)
}

func TestParseIntentsSingleObjectWraps(t *testing.T) {
	raw := `{"title":"Fix grammar","description":"","confidence":"medium"}`
	intents := ParseIntents(raw)
	require.Len(t, intents, 1)
	assert.Equal(t, "Fix grammar", intents[0].Title)
}

func TestParseIntentsMalformedDegradesToEmpty(t *testing.T) {
	assert.Empty(t, ParseIntents("I could not produce JSON, sorry."))
	assert.Empty(t, ParseIntents(""))
	assert.Empty(t, ParseIntents("[{broken"))
}

func TestParseIntentsDropsUntitledEntries(t *testing.T) {
	raw := `[{"title":"  "},{"title":"Keep me"},{"description":"no title"}]`
	intents := ParseIntents(raw)
	require.Len(t, intents, 1)
	assert.Equal(t, "Keep me", intents[0].Title)
}

func TestParseIntentsCoercesConfidence(t *testing.T) {
	cases := map[string]string{
		"HIGH":    "high",
		" Medium": "medium",
		"low":     "low",
		"certain": "medium",
		"":        "medium",
	}
	for in, want := range cases {
		raw := `[{"title":"t","confidence":"` + in + `"}]`
		intents := ParseIntents(raw)
		require.Len(t, intents, 1, "confidence %q", in)
		assert.Equal(t, want, intents[0].Confidence, "confidence %q", in)
	}
}

func TestParseIntentsTrimsFields(t *testing.T) {
	raw := `[{"title":" Summarize ","description":" A summary. "}]`
	intents := ParseIntents(raw)
	require.Len(t, intents, 1)
	assert.Equal(t, "Summarize", intents[0].Title)
	assert.Equal(t, "A summary.", intents[0].Description)
}
