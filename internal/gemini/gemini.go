// Package gemini is the text-generation collaborator. It builds the
// structured angle/verification prompt and parses the model's JSON reply.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"storyradar/internal/model"
)

// Request carries everything one enrichment call needs.
type Request struct {
	Headline       string
	Sources        []model.Source
	KeywordWeights map[string]float64 // matched topic profile weights
	Inspiration    []string           // recent high-performer headlines
	AvoidTags      []string           // frequent negative feedback tags
	Deep           bool               // expensive model tier
}

// AngleResult is the structured response contract.
type AngleResult struct {
	SuggestedAngles    []string                 `json:"suggestedAngles"`
	VerificationStatus model.VerificationStatus `json:"verificationStatus"`
	VerificationNotes  string                   `json:"verificationNotes"`
}

type Client struct {
	client    *genai.Client
	deepModel string
	fastModel string
}

func NewClient(ctx context.Context, apiKey, deepModel, fastModel string) (*Client, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: client, deepModel: deepModel, fastModel: fastModel}, nil
}

func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// SuggestAngles runs one enrichment call on the tier the request asks for.
func (c *Client) SuggestAngles(ctx context.Context, req Request) (*AngleResult, error) {
	name := c.fastModel
	if req.Deep {
		name = c.deepModel
	}
	m := c.client.GenerativeModel(name)

	resp, err := m.GenerateContent(ctx, genai.Text(buildPrompt(req)))
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("empty response from model %s", name)
	}

	raw := fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0])
	return ParseResponse(raw)
}

const maxPromptRunes = 6000

func buildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("You are an editorial assistant for a breaking-news desk.\n\n")
	b.WriteString("STORY:\nHeadline: " + req.Headline + "\n")

	if len(req.Sources) > 0 {
		b.WriteString("Sources:\n")
		for _, s := range req.Sources {
			b.WriteString(fmt.Sprintf("- %s (%s)\n", s.Name, s.URL))
		}
	}

	if len(req.KeywordWeights) > 0 {
		keywords := make([]string, 0, len(req.KeywordWeights))
		for k := range req.KeywordWeights {
			keywords = append(keywords, k)
		}
		sort.Strings(keywords)
		b.WriteString("Topic keywords the desk weights for this category:\n")
		for _, k := range keywords {
			b.WriteString(fmt.Sprintf("- %s: %.1f\n", k, req.KeywordWeights[k]))
		}
	}

	if len(req.Inspiration) > 0 {
		b.WriteString("\nHeadlines of recent stories that performed very well:\n")
		for _, h := range req.Inspiration {
			b.WriteString("- " + h + "\n")
		}
	}
	if len(req.AvoidTags) > 0 {
		b.WriteString("\nEditors repeatedly flagged these problems recently, avoid them:\n")
		for _, t := range req.AvoidTags {
			b.WriteString("- " + t + "\n")
		}
	}

	b.WriteString(`
TASKS:
1. Suggest 2-4 distinct editorial angles for covering this story.
2. Assess how corroborated the story looks from its sources alone.

Respond with a single JSON object and nothing else:
{"suggestedAngles": ["..."], "verificationStatus": "UNVERIFIED|PLAUSIBLE|VERIFIED|DISPUTED|FLAGGED", "verificationNotes": "one or two sentences"}
`)

	return truncateRunes(b.String(), maxPromptRunes)
}

// truncateRunes cuts on a rune boundary, trying to end at a sentence.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	trimmed := string(runes[:max])
	if idx := strings.LastIndex(trimmed, ". "); idx > 1200 {
		trimmed = trimmed[:idx+1]
	}
	return trimmed
}

// ParseResponse decodes the model reply. Models wrap JSON in code fences or
// prose often enough that we carve out the outermost object first. Anything
// that still fails to decode or validate is an error the batch counts
// per-item.
func ParseResponse(raw string) (*AngleResult, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("no JSON object in response")
	}

	var res AngleResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(res.SuggestedAngles) == 0 {
		return nil, fmt.Errorf("response has no suggested angles")
	}
	res.VerificationStatus = model.VerificationStatus(strings.ToUpper(strings.TrimSpace(string(res.VerificationStatus))))
	if !model.ValidVerificationStatus(res.VerificationStatus) {
		return nil, fmt.Errorf("unknown verification status %q", res.VerificationStatus)
	}
	return &res, nil
}

// extractJSON returns the outermost {...} block, stripping markdown fences.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
