// Package ingest implements the ingestion aggregator: parallel fan-out over
// the source collaborators, dedup by source URL, synchronous scoring, and
// persistence of new story candidates.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"storyradar/internal/logger"
	"storyradar/internal/metrics"
	"storyradar/internal/model"
	"storyradar/internal/scoring"
	"storyradar/internal/sources"
	"storyradar/internal/storage"
)

// Store is the slice of storage the aggregator needs.
type Store interface {
	CandidateExists(ctx context.Context, sourceURL string) (bool, error)
	InsertCandidate(ctx context.Context, c *model.StoryCandidate) error
	TopicProfiles(ctx context.Context) ([]model.TopicProfile, error)
	RaiseSystemAlert(ctx context.Context, alertType, message string) error
	ResolveSystemAlert(ctx context.Context, alertType string) error
}

// Aggregator pulls from every source once per invocation.
type Aggregator struct {
	store      Store
	sources    []sources.Source
	thresholds scoring.Thresholds
	seen       *redis.Client // optional fast-path dedup; nil disables it
	log        *slog.Logger
}

const seenKeyTTL = 48 * time.Hour

func New(store Store, srcs []sources.Source, thresholds scoring.Thresholds, seen *redis.Client) *Aggregator {
	return &Aggregator{
		store:      store,
		sources:    srcs,
		thresholds: thresholds,
		seen:       seen,
		log:        logger.Component("ingest"),
	}
}

// Result is the per-source summary the trigger endpoint returns.
type Result struct {
	CreatedBySource map[string]int `json:"createdBySource"`
	TotalCreated    int            `json:"totalCreated"`
	Skipped         int            `json:"skipped"`
	FailedSources   []string       `json:"failedSources,omitempty"`
}

type sourceOutcome struct {
	name    string
	stories []model.RawStory
	err     error
}

// Run fans out to every source, tolerating individual source failures, then
// scores and persists the new items sequentially. Overlapping runs racing on
// the same URL resolve through the unique constraint (benign skip).
func (a *Aggregator) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	defer func() { metrics.Global.RecordIngestDuration(time.Since(started)) }()

	profiles, err := a.store.TopicProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("load topic profiles: %w", err)
	}

	outcomes := make([]sourceOutcome, len(a.sources))
	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src sources.Source) {
			defer wg.Done()
			stories, err := src.Fetch(ctx)
			outcomes[i] = sourceOutcome{name: src.Name(), stories: stories, err: err}
		}(i, src)
	}
	wg.Wait()

	res := &Result{CreatedBySource: make(map[string]int)}

	for _, out := range outcomes {
		alertType := "source:" + out.name

		if out.err != nil {
			a.log.Warn("source failed", "source", out.name, "error", out.err)
			metrics.Global.IncrementSourceFailures()
			res.FailedSources = append(res.FailedSources, out.name)
			if alertErr := a.store.RaiseSystemAlert(ctx, alertType, out.err.Error()); alertErr != nil {
				a.log.Warn("could not raise system alert", "type", alertType, "error", alertErr)
			}
			continue
		}
		if len(out.stories) == 0 {
			a.log.Warn("source returned no items", "source", out.name)
			if alertErr := a.store.RaiseSystemAlert(ctx, alertType, "source returned zero items"); alertErr != nil {
				a.log.Warn("could not raise system alert", "type", alertType, "error", alertErr)
			}
			continue
		}

		if alertErr := a.store.ResolveSystemAlert(ctx, alertType); alertErr != nil {
			a.log.Warn("could not resolve system alert", "type", alertType, "error", alertErr)
		}

		created, skipped := a.persistStories(ctx, out.stories, profiles)
		res.CreatedBySource[out.name] = created
		res.TotalCreated += created
		res.Skipped += skipped
	}

	metrics.Global.AddIngested(res.TotalCreated)
	metrics.Global.AddDuplicatesSkipped(res.Skipped)
	metrics.Global.SetLastRun()

	a.log.Info("ingestion run complete",
		"created", res.TotalCreated, "skipped", res.Skipped, "failed_sources", len(res.FailedSources))
	return res, nil
}

func (a *Aggregator) persistStories(ctx context.Context, stories []model.RawStory, profiles []model.TopicProfile) (created, skipped int) {
	for _, raw := range stories {
		if raw.SourceURL == "" || raw.Headline == "" {
			continue
		}

		if a.alreadySeen(ctx, raw.SourceURL) {
			skipped++
			continue
		}

		exists, err := a.store.CandidateExists(ctx, raw.SourceURL)
		if err != nil {
			a.log.Warn("dedup check failed", "url", raw.SourceURL, "error", err)
			continue
		}
		if exists {
			a.markSeen(ctx, raw.SourceURL)
			skipped++
			continue
		}

		sc := scoring.Score(raw.Headline, raw.Signals, profiles, a.thresholds)
		candidate := &model.StoryCandidate{
			SourceURL:      raw.SourceURL,
			Headline:       raw.Headline,
			Sources:        raw.Sources,
			RelevanceScore: sc.RelevanceScore,
			VelocityScore:  sc.VelocityScore,
			Category:       sc.Category,
			TopicClusterID: sc.TopicClusterID,
			AlertLevel:     sc.AlertLevel,
			Signals:        raw.Signals,
		}

		if err := a.store.InsertCandidate(ctx, candidate); err != nil {
			if err == storage.ErrDuplicate {
				// Lost the race with an overlapping run; the row exists now.
				skipped++
				continue
			}
			a.log.Warn("insert failed", "url", raw.SourceURL, "error", err)
			continue
		}

		a.markSeen(ctx, raw.SourceURL)
		created++
	}
	return created, skipped
}

// alreadySeen consults the optional redis cache. Cache errors never block
// ingestion; the database unique constraint is the source of truth.
func (a *Aggregator) alreadySeen(ctx context.Context, url string) bool {
	if a.seen == nil {
		return false
	}
	n, err := a.seen.Exists(ctx, "seen:"+url).Result()
	if err != nil {
		return false
	}
	return n > 0
}

func (a *Aggregator) markSeen(ctx context.Context, url string) {
	if a.seen == nil {
		return
	}
	if err := a.seen.Set(ctx, "seen:"+url, 1, seenKeyTTL).Err(); err != nil {
		logger.Debug("seen cache write failed", "url", url, "error", err)
	}
}
