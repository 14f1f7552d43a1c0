// Package outcome evaluates the downstream fate of claimed candidates and
// ages out stale unclaimed ones. Both phases only write terminal states, so
// re-running the job never rewrites a decided row.
package outcome

import (
	"context"
	"log/slog"
	"time"

	"storyradar/internal/logger"
	"storyradar/internal/metrics"
	"storyradar/internal/model"
	"storyradar/internal/storage"
)

// Store is the storage slice the evaluator needs.
type Store interface {
	ClaimedReadyForEvaluation(ctx context.Context, minAge time.Duration) ([]storage.ClaimedStory, error)
	MeanPublishedPageviews(ctx context.Context) (float64, error)
	SetOutcome(ctx context.Context, id int64, outcome model.Outcome, pageviews *int64) error
	MarkStaleIgnored(ctx context.Context, cutoff time.Time) (int64, error)
}

// Evaluator runs both phases of one batch.
type Evaluator struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func New(store Store) *Evaluator {
	return &Evaluator{store: store, log: logger.Component("outcome"), now: time.Now}
}

const (
	// An article gets this long to accumulate pageviews before judgment.
	evaluationMinAge = 48 * time.Hour

	// Multiple of the benchmark that makes a story a high performer.
	highPerformerFactor = 1.5

	// Unclaimed candidates older than this are bulk-marked IGNORED.
	staleAge = 24 * time.Hour
)

// Summary is the trigger-endpoint payload.
type Summary struct {
	Evaluated              int     `json:"evaluated"`
	HighPerformers         int     `json:"highPerformers"`
	Published              int     `json:"published"`
	Ignored                int64   `json:"ignored"`
	AvgPageviews           float64 `json:"avgPageviews"`
	HighPerformerThreshold float64 `json:"highPerformerThreshold"`
}

// Run executes claimed-story evaluation then stale aging.
func (e *Evaluator) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	claimed, err := e.store.ClaimedReadyForEvaluation(ctx, evaluationMinAge)
	if err != nil {
		return nil, err
	}

	if len(claimed) > 0 {
		benchmark, err := e.store.MeanPublishedPageviews(ctx)
		if err != nil {
			return nil, err
		}
		summary.AvgPageviews = benchmark
		summary.HighPerformerThreshold = benchmark * highPerformerFactor

		for _, cs := range claimed {
			outcome := model.OutcomePublished
			if float64(cs.Pageviews) > summary.HighPerformerThreshold {
				outcome = model.OutcomeHighPerformer
			}
			pv := cs.Pageviews
			if err := e.store.SetOutcome(ctx, cs.CandidateID, outcome, &pv); err != nil {
				e.log.Warn("could not set outcome", "candidate_id", cs.CandidateID, "error", err)
				continue
			}
			summary.Evaluated++
			if outcome == model.OutcomeHighPerformer {
				summary.HighPerformers++
				e.log.Info("high performer",
					"candidate_id", cs.CandidateID, "headline", cs.Headline,
					"pageviews", cs.Pageviews, "threshold", summary.HighPerformerThreshold)
			} else {
				summary.Published++
			}
		}
	}

	ignored, err := e.store.MarkStaleIgnored(ctx, e.now().Add(-staleAge))
	if err != nil {
		return nil, err
	}
	summary.Ignored = ignored

	metrics.Global.AddOutcomesEvaluated(summary.Evaluated + int(summary.Ignored))
	e.log.Info("outcome evaluation complete",
		"evaluated", summary.Evaluated, "high_performers", summary.HighPerformers,
		"published", summary.Published, "ignored", summary.Ignored)
	return summary, nil
}
