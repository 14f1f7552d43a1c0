// Package alert pushes high-priority unclaimed candidates to the external
// messaging channel, at most once per candidate.
package alert

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"storyradar/internal/logger"
	"storyradar/internal/metrics"
	"storyradar/internal/model"
)

// Store is the storage slice the dispatcher needs.
type Store interface {
	AlertableCandidates(ctx context.Context, limit int) ([]model.StoryCandidate, error)
	MarkAlertSent(ctx context.Context, id int64) error
}

// Messenger is the external messaging collaborator.
type Messenger interface {
	Send(ctx context.Context, text string) error
}

// Dispatcher sends one bounded batch per invocation.
type Dispatcher struct {
	store     Store
	messenger Messenger
	batchSize int
	log       *slog.Logger
}

func New(store Store, messenger Messenger, batchSize int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 5
	}
	return &Dispatcher{
		store:     store,
		messenger: messenger,
		batchSize: batchSize,
		log:       logger.Component("alert"),
	}
}

// Summary is the trigger-endpoint payload.
type Summary struct {
	Sent   int      `json:"sent"`
	Errors []string `json:"errors,omitempty"`
}

// Run selects the batch and sends each candidate. A failed send is recorded
// and the loop continues; the no-resend stamp is only written on success.
func (d *Dispatcher) Run(ctx context.Context) (*Summary, error) {
	candidates, err := d.store.AlertableCandidates(ctx, d.batchSize)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for i := range candidates {
		c := &candidates[i]

		if err := d.messenger.Send(ctx, FormatMessage(c)); err != nil {
			d.log.Warn("alert send failed", "candidate_id", c.ID, "error", err)
			metrics.Global.IncrementAlertFailures()
			summary.Errors = append(summary.Errors, fmt.Sprintf("candidate %d: %v", c.ID, err))
			continue
		}

		if err := d.store.MarkAlertSent(ctx, c.ID); err != nil {
			// The message went out; losing the stamp risks a resend, which
			// is worse silent than loud.
			d.log.Error("sent but could not stamp alert_sent_at", "candidate_id", c.ID, "error", err)
			summary.Errors = append(summary.Errors, fmt.Sprintf("candidate %d: stamp failed: %v", c.ID, err))
			continue
		}

		metrics.Global.IncrementAlertsSent()
		summary.Sent++
	}

	d.log.Info("alert dispatch complete", "sent", summary.Sent, "errors", len(summary.Errors))
	return summary, nil
}

const maxSourcesShown = 5

// FormatMessage renders one candidate as a Telegram HTML message.
func FormatMessage(c *model.StoryCandidate) string {
	var b strings.Builder

	b.WriteString("🚨 <b>Breaking candidate</b>\n")
	b.WriteString(fmt.Sprintf("<a href=\"%s\">%s</a>\n\n", c.SourceURL, html.EscapeString(c.Headline)))
	b.WriteString(fmt.Sprintf("📊 Relevance %d · Velocity %d", c.RelevanceScore, c.VelocityScore))
	if c.Category != "" {
		b.WriteString(" · " + html.EscapeString(c.Category))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("🔍 Verification: %s\n", c.Verification))

	if len(c.SuggestedAngles) > 0 {
		b.WriteString("💡 " + html.EscapeString(c.SuggestedAngles[0]) + "\n")
	}

	if len(c.Sources) > 0 {
		b.WriteString("\nSources:\n")
		for i, s := range c.Sources {
			if i == maxSourcesShown {
				break
			}
			b.WriteString(fmt.Sprintf("· <a href=\"%s\">%s</a>\n", s.URL, html.EscapeString(s.Name)))
		}
	} else {
		b.WriteString("\nSource: " + c.SourceURL + "\n")
	}

	return b.String()
}
