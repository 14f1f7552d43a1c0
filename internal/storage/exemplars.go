package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"storyradar/internal/model"
)

// ErrNotFound is returned for lookups on absent rows.
var ErrNotFound = sql.ErrNoRows

// InsertExemplar creates a PENDING exemplar; duplicate URLs come back as
// ErrDuplicate.
func (s *Store) InsertExemplar(ctx context.Context, url string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO article_exemplars (url, status) VALUES ($1, $2) RETURNING id`,
		url, string(model.ExemplarPending),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, fmt.Errorf("insert exemplar: %w", err)
	}
	return id, nil
}

// GetExemplar fetches one exemplar by id.
func (s *Store) GetExemplar(ctx context.Context, id int64) (*model.ArticleExemplar, error) {
	var (
		e               model.ArticleExemplar
		status          string
		fingerprintJSON []byte
		analyzedAt      sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, url, status, fingerprint, analyzed_at, created_at
		FROM article_exemplars WHERE id = $1
	`, id).Scan(&e.ID, &e.URL, &status, &fingerprintJSON, &analyzedAt, &e.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get exemplar: %w", err)
	}

	e.Status = model.ExemplarStatus(status)
	if fingerprintJSON != nil {
		e.Fingerprint = &model.ExemplarFingerprint{}
		if err := json.Unmarshal(fingerprintJSON, e.Fingerprint); err != nil {
			return nil, fmt.Errorf("unmarshal fingerprint: %w", err)
		}
	}
	if analyzedAt.Valid {
		t := analyzedAt.Time
		e.AnalyzedAt = &t
	}
	return &e, nil
}

// UpdateExemplar writes the status and, when present, the fingerprint.
// ANALYZED transitions also stamp analyzed_at.
func (s *Store) UpdateExemplar(ctx context.Context, id int64, status model.ExemplarStatus, fp *model.ExemplarFingerprint) error {
	var fingerprintJSON interface{}
	if fp != nil {
		b, err := json.Marshal(fp)
		if err != nil {
			return fmt.Errorf("marshal fingerprint: %w", err)
		}
		fingerprintJSON = b
	}

	var analyzedAt interface{}
	if status == model.ExemplarAnalyzed {
		analyzedAt = time.Now()
	}

	query := `
		UPDATE article_exemplars
		SET status = $2,
		    fingerprint = COALESCE($3, fingerprint),
		    analyzed_at = COALESCE($4, analyzed_at)
		WHERE id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, id, string(status), fingerprintJSON, analyzedAt); err != nil {
		return fmt.Errorf("update exemplar: %w", err)
	}
	return nil
}

// DeleteExemplar removes the row. Weight rollback happens before this call.
func (s *Store) DeleteExemplar(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM article_exemplars WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete exemplar: %w", err)
	}
	return nil
}

// InsertFeedback appends one human rating. Feedback rows are never updated.
func (s *Store) InsertFeedback(ctx context.Context, fb *model.StoryFeedback) error {
	tags := fb.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO story_feedback (story_id, rating, tags, action)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, fb.StoryID, fb.Rating, tagsJSON, fb.Action).Scan(&fb.ID, &fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// FeedbackSince returns feedback rows created after the given time.
func (s *Store) FeedbackSince(ctx context.Context, since time.Time) ([]model.StoryFeedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, story_id, rating, tags, action, created_at
		FROM story_feedback
		WHERE created_at >= $1
		ORDER BY created_at DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("select feedback: %w", err)
	}
	defer rows.Close()

	var out []model.StoryFeedback
	for rows.Next() {
		var (
			fb       model.StoryFeedback
			tagsJSON []byte
			action   sql.NullString
		)
		if err := rows.Scan(&fb.ID, &fb.StoryID, &fb.Rating, &tagsJSON, &action, &fb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		fb.Action = action.String
		if err := json.Unmarshal(tagsJSON, &fb.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}

// FrequentFeedbackTags returns tags that appear on at least minCount
// feedback rows since the given time. These become "avoid" signals in the
// enrichment prompt.
func (s *Store) FrequentFeedbackTags(ctx context.Context, since time.Time, minCount int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tag, COUNT(*) AS n
		FROM story_feedback, jsonb_array_elements_text(tags) AS tag
		WHERE created_at >= $1
		GROUP BY tag
		HAVING COUNT(*) >= $2
		ORDER BY n DESC
	`, since, minCount)
	if err != nil {
		return nil, fmt.Errorf("select frequent tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var (
			tag string
			n   int
		)
		if err := rows.Scan(&tag, &n); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}
