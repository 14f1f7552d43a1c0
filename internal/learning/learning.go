// Package learning adjusts topic keyword weights from downstream outcomes,
// human feedback, and exemplar articles. Every mutation is a small bounded
// delta clamped to the model weight range; nothing here is a trained model.
package learning

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"storyradar/internal/logger"
	"storyradar/internal/metrics"
	"storyradar/internal/model"
	"storyradar/internal/storage"
)

// Store is the storage slice the engine needs.
type Store interface {
	TopicProfiles(ctx context.Context) ([]model.TopicProfile, error)
	SaveTopicProfiles(ctx context.Context, profiles []model.TopicProfile) error
	CategoryLearningStats(ctx context.Context, since time.Time) (map[string]*storage.CategoryStats, error)
}

// Engine applies the two adjustment paths into the same weight maps.
type Engine struct {
	store Store
}

func New(store Store) *Engine {
	return &Engine{store: store}
}

// Reinforcement deltas. The chosen delta is applied uniformly to every
// keyword in the category vector; attribution per keyword is deliberately
// not attempted (known limitation of the scheme).
const (
	deltaHighPerformer = 0.3
	deltaGoodFeedback  = 0.1
	deltaBadFeedback   = -0.1

	goodRatingMean = 4.0
	badRatingMean  = 2.0

	reinforcementWindow = 30 * 24 * time.Hour
)

// ReinforceFromOutcomes runs the daily reinforcement pass and returns the
// number of categories adjusted.
func (e *Engine) ReinforceFromOutcomes(ctx context.Context) (int, error) {
	profiles, err := e.store.TopicProfiles(ctx)
	if err != nil {
		return 0, fmt.Errorf("load profiles: %w", err)
	}
	stats, err := e.store.CategoryLearningStats(ctx, time.Now().Add(-reinforcementWindow))
	if err != nil {
		return 0, fmt.Errorf("load learning stats: %w", err)
	}

	var changed []model.TopicProfile
	for i := range profiles {
		p := &profiles[i]
		st, ok := stats[p.Category]
		if !ok {
			continue
		}

		delta := reinforcementDelta(st)
		if delta != 0 {
			for k, w := range p.KeywordWeights {
				p.KeywordWeights[k] = model.ClampWeight(w + delta)
			}
		}

		// Performance stats refresh even when the delta is zero.
		p.AvgEngagement = st.AvgEngagement
		p.ArticleCount += st.ArticleCount
		p.TopPerformers = mergeTopPerformers(p.TopPerformers, st.TopPerformers)

		changed = append(changed, *p)
		logger.Info("reinforced topic profile",
			"category", p.Category, "delta", delta,
			"high_performers", st.HighPerformers, "ratings", st.RatingCount)
	}

	if len(changed) == 0 {
		return 0, nil
	}
	if err := e.store.SaveTopicProfiles(ctx, changed); err != nil {
		return 0, fmt.Errorf("save profiles: %w", err)
	}
	metrics.Global.IncrementWeightUpdateRuns()
	return len(changed), nil
}

// reinforcementDelta picks the single scalar for one category.
func reinforcementDelta(st *storage.CategoryStats) float64 {
	if st.HighPerformers > 0 {
		return deltaHighPerformer
	}
	if st.RatingCount > 0 {
		mean := float64(st.RatingSum) / float64(st.RatingCount)
		if mean >= goodRatingMean {
			return deltaGoodFeedback
		}
		if mean <= badRatingMean {
			return deltaBadFeedback
		}
	}
	return 0
}

const maxTopPerformers = 5

func mergeTopPerformers(existing, fresh []model.TopPerformer) []model.TopPerformer {
	seen := make(map[int64]bool, len(existing))
	merged := make([]model.TopPerformer, 0, len(existing)+len(fresh))
	for _, tp := range append(fresh, existing...) {
		if seen[tp.ID] {
			continue
		}
		seen[tp.ID] = true
		merged = append(merged, tp)
		if len(merged) == maxTopPerformers {
			break
		}
	}
	return merged
}

// Exemplar calibration constants.
const (
	exemplarSeedWeight   = 1.5
	exemplarNudgeFactor  = 0.5
	exemplarRollbackStep = 0.5
)

// ApplyExemplar boosts the weights of every category the exemplar resembles:
// unseen keywords seed at exemplarSeedWeight, existing ones move halfway
// toward current+delta.
func (e *Engine) ApplyExemplar(ctx context.Context, fp *model.ExemplarFingerprint) error {
	if fp == nil || len(fp.Keywords) == 0 || len(fp.SimilarToCategories) == 0 {
		return nil
	}

	profiles, err := e.store.TopicProfiles(ctx)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	similar := make(map[string]bool, len(fp.SimilarToCategories))
	for _, c := range fp.SimilarToCategories {
		similar[c] = true
	}

	var changed []model.TopicProfile
	for i := range profiles {
		p := &profiles[i]
		if !similar[p.Category] {
			continue
		}
		for kw, delta := range fp.Keywords {
			key := NormalizeKeyword(kw)
			if key == "" {
				continue
			}
			if current, ok := p.KeywordWeights[key]; ok {
				p.KeywordWeights[key] = model.ClampWeight(current + delta*exemplarNudgeFactor)
			} else {
				p.KeywordWeights[key] = exemplarSeedWeight
			}
		}
		changed = append(changed, *p)
	}

	if len(changed) == 0 {
		return nil
	}
	return e.store.SaveTopicProfiles(ctx, changed)
}

// RollbackExemplar subtracts a flat exemplarRollbackStep from every keyword
// in the exemplar's normalized keyword set, on every category it matched.
// This is deliberately NOT the inverse of ApplyExemplar: a keyword boosted
// from 2.0 to 3.5 rolls back to 3.0, not 2.0. The asymmetry is inherited
// behavior and is kept until the intended learning semantics are decided.
func (e *Engine) RollbackExemplar(ctx context.Context, fp *model.ExemplarFingerprint) error {
	if fp == nil || len(fp.Keywords) == 0 || len(fp.SimilarToCategories) == 0 {
		return nil
	}

	profiles, err := e.store.TopicProfiles(ctx)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	similar := make(map[string]bool, len(fp.SimilarToCategories))
	for _, c := range fp.SimilarToCategories {
		similar[c] = true
	}

	keywords := make(map[string]bool, len(fp.Keywords))
	for kw := range fp.Keywords {
		if key := NormalizeKeyword(kw); key != "" {
			keywords[key] = true
		}
	}

	var changed []model.TopicProfile
	for i := range profiles {
		p := &profiles[i]
		if !similar[p.Category] {
			continue
		}
		touched := false
		for kw := range keywords {
			if current, ok := p.KeywordWeights[kw]; ok {
				p.KeywordWeights[kw] = model.ClampWeight(current - exemplarRollbackStep)
				touched = true
			}
		}
		if touched {
			changed = append(changed, *p)
		}
	}

	if len(changed) == 0 {
		return nil
	}
	return e.store.SaveTopicProfiles(ctx, changed)
}

// NormalizeKeyword lower-cases and strips everything that is not a letter,
// digit or space, collapsing runs of whitespace.
func NormalizeKeyword(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
