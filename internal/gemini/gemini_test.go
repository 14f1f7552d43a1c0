package gemini

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyradar/internal/model"
)

func TestParseResponsePlainJSON(t *testing.T) {
	raw := `{"suggestedAngles": ["local impact", "policy fallout"], "verificationStatus": "VERIFIED", "verificationNotes": "Two wire services carry it."}`

	res, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"local impact", "policy fallout"}, res.SuggestedAngles)
	assert.Equal(t, model.VerificationVerified, res.VerificationStatus)
	assert.Equal(t, "Two wire services carry it.", res.VerificationNotes)
}

func TestParseResponseCodeFence(t *testing.T) {
	raw := "```json\n{\"suggestedAngles\": [\"angle\"], \"verificationStatus\": \"plausible\", \"verificationNotes\": \"\"}\n```"

	res, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationPlausible, res.VerificationStatus, "status is case-normalized")
}

func TestParseResponseSurroundingProse(t *testing.T) {
	raw := `Sure! Here is the analysis you asked for:
{"suggestedAngles": ["angle"], "verificationStatus": "DISPUTED", "verificationNotes": "Conflicting reports."}
Let me know if you need more.`

	res, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationDisputed, res.VerificationStatus)
}

func TestParseResponseErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no json", "I cannot help with that."},
		{"broken json", `{"suggestedAngles": [`},
		{"empty angles", `{"suggestedAngles": [], "verificationStatus": "VERIFIED"}`},
		{"unknown status", `{"suggestedAngles": ["a"], "verificationStatus": "MAYBE"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestBuildPromptIncludesContext(t *testing.T) {
	req := Request{
		Headline:       "Border checkpoint overwhelmed",
		Sources:        []model.Source{{Name: "Wire", URL: "https://example.com/a"}},
		KeywordWeights: map[string]float64{"border": 5},
		Inspiration:    []string{"Last week's winner"},
		AvoidTags:      []string{"clickbait"},
	}

	prompt := buildPrompt(req)

	assert.Contains(t, prompt, "Border checkpoint overwhelmed")
	assert.Contains(t, prompt, "https://example.com/a")
	assert.Contains(t, prompt, "border: 5.0")
	assert.Contains(t, prompt, "Last week's winner")
	assert.Contains(t, prompt, "clickbait")
	assert.Contains(t, prompt, "verificationStatus")
}

func TestBuildPromptTruncates(t *testing.T) {
	req := Request{Headline: strings.Repeat("very long headline ", 1000)}

	prompt := buildPrompt(req)
	assert.LessOrEqual(t, len([]rune(prompt)), maxPromptRunes)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, extractJSON(`noise {"a":1} trailer`))
	assert.Empty(t, extractJSON("no braces here"))
}
