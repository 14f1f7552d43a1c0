package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"storyradar/internal/config"
	"storyradar/internal/logger"
	"storyradar/internal/model"
)

// TopicProfiles returns every profile, keyword weights decoded.
func (s *Store) TopicProfiles(ctx context.Context) ([]model.TopicProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, keyword_weights, avg_engagement, article_count, top_performers, last_updated
		FROM topic_profiles ORDER BY category
	`)
	if err != nil {
		return nil, fmt.Errorf("select profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.TopicProfile
	for rows.Next() {
		var (
			p              model.TopicProfile
			weightsJSON    []byte
			performersJSON []byte
		)
		if err := rows.Scan(&p.Category, &weightsJSON, &p.AvgEngagement, &p.ArticleCount, &performersJSON, &p.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		if err := json.Unmarshal(weightsJSON, &p.KeywordWeights); err != nil {
			return nil, fmt.Errorf("unmarshal weights: %w", err)
		}
		if err := json.Unmarshal(performersJSON, &p.TopPerformers); err != nil {
			return nil, fmt.Errorf("unmarshal performers: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// NewestProfileUpdate returns the most recent last_updated across profiles;
// the zero time when no profile exists. The enrichment processor compares
// its date against today for the once-per-day learning guard.
func (s *Store) NewestProfileUpdate(ctx context.Context) (time.Time, error) {
	var newest sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT MAX(last_updated) FROM topic_profiles`).Scan(&newest)
	if err != nil {
		return time.Time{}, fmt.Errorf("newest profile update: %w", err)
	}
	if !newest.Valid {
		return time.Time{}, nil
	}
	return newest.Time, nil
}

// SaveTopicProfiles upserts the given profiles in one transaction so a
// partial weight update never lands.
func (s *Store) SaveTopicProfiles(ctx context.Context, profiles []model.TopicProfile) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO topic_profiles (category, keyword_weights, avg_engagement, article_count, top_performers, last_updated)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (category) DO UPDATE SET
			keyword_weights = EXCLUDED.keyword_weights,
			avg_engagement = EXCLUDED.avg_engagement,
			article_count = EXCLUDED.article_count,
			top_performers = EXCLUDED.top_performers,
			last_updated = NOW()
	`
	for _, p := range profiles {
		weightsJSON, err := json.Marshal(p.KeywordWeights)
		if err != nil {
			return fmt.Errorf("marshal weights: %w", err)
		}
		performers := p.TopPerformers
		if performers == nil {
			performers = []model.TopPerformer{}
		}
		performersJSON, err := json.Marshal(performers)
		if err != nil {
			return fmt.Errorf("marshal performers: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, p.Category, weightsJSON, p.AvgEngagement, p.ArticleCount, performersJSON); err != nil {
			return fmt.Errorf("upsert profile %s: %w", p.Category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit profiles: %w", err)
	}
	return nil
}

// SeedTopicProfiles inserts the configured categories that do not exist yet.
// Existing profiles are left alone so learned weights survive restarts.
func (s *Store) SeedTopicProfiles(ctx context.Context, seeds []config.TopicSeed) (int, error) {
	query := `
		INSERT INTO topic_profiles (category, keyword_weights)
		VALUES ($1, $2)
		ON CONFLICT (category) DO NOTHING
	`
	created := 0
	for _, seed := range seeds {
		weights := make(map[string]float64, len(seed.Keywords))
		for k, w := range seed.Keywords {
			weights[k] = model.ClampWeight(w)
		}
		weightsJSON, err := json.Marshal(weights)
		if err != nil {
			return created, fmt.Errorf("marshal seed weights: %w", err)
		}
		res, err := s.db.ExecContext(ctx, query, seed.Category, weightsJSON)
		if err != nil {
			return created, fmt.Errorf("seed profile %s: %w", seed.Category, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			created++
			logger.Info("seeded topic profile", "category", seed.Category, "keywords", len(weights))
		}
	}
	return created, nil
}

// CategoryStats aggregates the learning inputs for one category over the
// reinforcement window.
type CategoryStats struct {
	Category       string
	HighPerformers int
	RatingSum      int
	RatingCount    int
	AvgEngagement  float64
	ArticleCount   int
	TopPerformers  []model.TopPerformer
}

// CategoryLearningStats collects per-category outcome and feedback stats
// since the given time: high-performer counts, feedback rating sums, and the
// top performing stories by snapshot pageviews.
func (s *Store) CategoryLearningStats(ctx context.Context, since time.Time) (map[string]*CategoryStats, error) {
	stats := make(map[string]*CategoryStats)
	get := func(category string) *CategoryStats {
		if st, ok := stats[category]; ok {
			return st
		}
		st := &CategoryStats{Category: category}
		stats[category] = st
		return st
	}

	// Outcome side: high performers and engagement per category.
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.category, c.id, c.headline, c.outcome, COALESCE(c.outcome_pageviews, 0)
		FROM story_candidates c
		WHERE c.category IS NOT NULL
		  AND c.outcome IN ($1, $2)
		  AND c.last_updated_at >= $3
	`, string(model.OutcomeHighPerformer), string(model.OutcomePublished), since)
	if err != nil {
		return nil, fmt.Errorf("select outcome stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			category, headline, outcome string
			id, pageviews               int64
		)
		if err := rows.Scan(&category, &id, &headline, &outcome, &pageviews); err != nil {
			return nil, fmt.Errorf("scan outcome stats: %w", err)
		}
		st := get(category)
		st.ArticleCount++
		st.AvgEngagement += float64(pageviews)
		if outcome == string(model.OutcomeHighPerformer) {
			st.HighPerformers++
			st.TopPerformers = append(st.TopPerformers, model.TopPerformer{
				ID: id, Headline: headline, Metric: pageviews,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Feedback side: ratings on stories in the category.
	fbRows, err := s.db.QueryContext(ctx, `
		SELECT c.category, f.rating
		FROM story_feedback f
		JOIN story_candidates c ON c.id = f.story_id
		WHERE c.category IS NOT NULL AND f.created_at >= $1
	`, since)
	if err != nil {
		return nil, fmt.Errorf("select feedback stats: %w", err)
	}
	defer fbRows.Close()

	for fbRows.Next() {
		var (
			category string
			rating   int
		)
		if err := fbRows.Scan(&category, &rating); err != nil {
			return nil, fmt.Errorf("scan feedback stats: %w", err)
		}
		st := get(category)
		st.RatingSum += rating
		st.RatingCount++
	}
	if err := fbRows.Err(); err != nil {
		return nil, err
	}

	// Finish the engagement means.
	for _, st := range stats {
		if st.ArticleCount > 0 {
			st.AvgEngagement /= float64(st.ArticleCount)
		}
	}
	return stats, nil
}
