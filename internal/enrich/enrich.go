// Package enrich is the AI angle & verification processor: a batch job that
// enriches the best unprocessed candidates through the text-generation
// collaborator, then runs the daily weight-learning pass behind a date guard.
package enrich

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storyradar/internal/gemini"
	"storyradar/internal/logger"
	"storyradar/internal/metrics"
	"storyradar/internal/model"
)

// Store is the storage slice the processor needs.
type Store interface {
	SelectEnrichable(ctx context.Context, limit int) ([]model.StoryCandidate, error)
	SaveEnrichment(ctx context.Context, id int64, angles []string, status model.VerificationStatus, notes string) error
	RecentHighPerformerHeadlines(ctx context.Context, since time.Time, limit int) ([]string, error)
	FrequentFeedbackTags(ctx context.Context, since time.Time, minCount int) ([]string, error)
	TopicProfiles(ctx context.Context) ([]model.TopicProfile, error)
	NewestProfileUpdate(ctx context.Context) (time.Time, error)
}

// Generator is the text-generation collaborator.
type Generator interface {
	SuggestAngles(ctx context.Context, req gemini.Request) (*gemini.AngleResult, error)
}

// Learner runs the daily reinforcement pass.
type Learner interface {
	ReinforceFromOutcomes(ctx context.Context) (int, error)
}

// Options tune the batch.
type Options struct {
	BatchSize         int // max candidates per run
	Concurrency       int // parallel generation calls
	DeepTierThreshold int // combined score above this uses the deep model
}

// Processor is one enrichment batch worker.
type Processor struct {
	store   Store
	gen     Generator
	learner Learner
	opts    Options
	log     *slog.Logger
	now     func() time.Time // swappable for the date-guard tests
}

func New(store Store, gen Generator, learner Learner, opts Options) *Processor {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Processor{
		store:   store,
		gen:     gen,
		learner: learner,
		opts:    opts,
		log:     logger.Component("enrich"),
		now:     time.Now,
	}
}

// Summary is the trigger-endpoint payload.
type Summary struct {
	Processed      int  `json:"processed"`
	Errors         int  `json:"errors"`
	Total          int  `json:"total"`
	WeightsUpdated bool `json:"weightsUpdated"`
}

const (
	inspirationWindow = 30 * 24 * time.Hour
	inspirationLimit  = 10
	avoidTagMinCount  = 3
)

// Run enriches one batch. Item failures are counted, never fatal; a failed
// candidate simply stays unenriched and is picked up by a later run while it
// is still inside the 24h selection window.
func (p *Processor) Run(ctx context.Context) (*Summary, error) {
	started := time.Now()
	defer func() { metrics.Global.RecordEnrichDuration(time.Since(started)) }()

	candidates, err := p.store.SelectEnrichable(ctx, p.opts.BatchSize)
	if err != nil {
		return nil, err
	}

	summary := &Summary{Total: len(candidates)}

	if len(candidates) > 0 {
		bundle := p.buildFeedbackBundle(ctx)
		profiles, err := p.store.TopicProfiles(ctx)
		if err != nil {
			return nil, err
		}
		weightsByCategory := make(map[string]map[string]float64, len(profiles))
		for _, prof := range profiles {
			weightsByCategory[prof.Category] = prof.KeywordWeights
		}

		type itemResult struct{ ok bool }
		results := make([]itemResult, len(candidates))

		sem := make(chan struct{}, p.opts.Concurrency)
		var wg sync.WaitGroup
		for i := range candidates {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()
				results[i].ok = p.enrichOne(ctx, &candidates[i], weightsByCategory, bundle)
			}(i)
		}
		wg.Wait()

		for _, r := range results {
			if r.ok {
				summary.Processed++
			} else {
				summary.Errors++
			}
		}
	}

	metrics.Global.AddEnriched(summary.Processed)
	metrics.Global.AddEnrichmentErrors(summary.Errors)

	// Daily weight learning, guarded by comparing the newest profile update
	// date to today. Not race-proof under concurrent triggers; accepted.
	updated, err := p.maybeRunDailyLearning(ctx)
	if err != nil {
		p.log.Warn("daily weight update failed", "error", err)
	}
	summary.WeightsUpdated = updated

	metrics.Global.SetLastRun()
	p.log.Info("enrichment run complete",
		"processed", summary.Processed, "errors", summary.Errors,
		"total", summary.Total, "weights_updated", summary.WeightsUpdated)
	return summary, nil
}

// feedbackBundle is the shared prompt context for the whole batch.
type feedbackBundle struct {
	inspiration []string
	avoidTags   []string
}

func (p *Processor) buildFeedbackBundle(ctx context.Context) feedbackBundle {
	var bundle feedbackBundle

	since := p.now().Add(-inspirationWindow)
	headlines, err := p.store.RecentHighPerformerHeadlines(ctx, since, inspirationLimit)
	if err != nil {
		p.log.Warn("could not load inspiration headlines", "error", err)
	} else {
		bundle.inspiration = headlines
	}

	tags, err := p.store.FrequentFeedbackTags(ctx, since, avoidTagMinCount)
	if err != nil {
		p.log.Warn("could not load avoid tags", "error", err)
	} else {
		bundle.avoidTags = tags
	}
	return bundle
}

func (p *Processor) enrichOne(ctx context.Context, c *model.StoryCandidate, weights map[string]map[string]float64, bundle feedbackBundle) bool {
	req := gemini.Request{
		Headline:    c.Headline,
		Sources:     c.Sources,
		Inspiration: bundle.inspiration,
		AvoidTags:   bundle.avoidTags,
		// Cost-aware tiering: only strong candidates get the deep model.
		Deep: c.RelevanceScore+c.VelocityScore > p.opts.DeepTierThreshold,
	}
	if c.Category != "" {
		req.KeywordWeights = weights[c.Category]
	}

	res, err := p.gen.SuggestAngles(ctx, req)
	if err != nil {
		p.log.Warn("enrichment failed", "candidate_id", c.ID, "error", err)
		return false
	}

	if err := p.store.SaveEnrichment(ctx, c.ID, res.SuggestedAngles, res.VerificationStatus, res.VerificationNotes); err != nil {
		p.log.Warn("could not persist enrichment", "candidate_id", c.ID, "error", err)
		return false
	}
	return true
}

func (p *Processor) maybeRunDailyLearning(ctx context.Context) (bool, error) {
	newest, err := p.store.NewestProfileUpdate(ctx)
	if err != nil {
		return false, err
	}

	now := p.now()
	if sameDate(newest, now) {
		return false, nil
	}

	n, err := p.learner.ReinforceFromOutcomes(ctx)
	if err != nil {
		return false, err
	}
	p.log.Info("daily weight update ran", "categories_adjusted", n)
	return true, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
