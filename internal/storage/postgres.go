// Package storage is the relational store behind the pipeline. It owns the
// schema and every query; callers consume it through the narrow interfaces
// they declare themselves.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"storyradar/internal/logger"
	"storyradar/internal/model"
)

// ErrDuplicate marks a unique-constraint conflict the caller should treat
// as a benign skip (two overlapping ingestion runs racing on a source URL).
var ErrDuplicate = fmt.Errorf("duplicate row")

// Store wraps the Postgres connection.
type Store struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// Open connects, pings and initializes the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.Info("postgres connected")
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS story_candidates (
		id BIGSERIAL PRIMARY KEY,
		source_url TEXT UNIQUE NOT NULL,
		headline TEXT NOT NULL,
		sources JSONB NOT NULL DEFAULT '[]',
		relevance_score INT NOT NULL DEFAULT 0,
		velocity_score INT NOT NULL DEFAULT 0,
		category TEXT,
		topic_cluster_id TEXT,
		alert_level TEXT NOT NULL DEFAULT 'NONE',
		suggested_angles JSONB,
		verification_status TEXT NOT NULL DEFAULT 'UNVERIFIED',
		verification_notes TEXT,
		platform_signals JSONB,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		dismissed BOOLEAN NOT NULL DEFAULT FALSE,
		claimed_by_id BIGINT,
		article_id BIGINT,
		outcome TEXT,
		outcome_pageviews BIGINT,
		alert_sent_at TIMESTAMPTZ
	);
	CREATE INDEX IF NOT EXISTS idx_candidates_first_seen ON story_candidates(first_seen_at);
	CREATE INDEX IF NOT EXISTS idx_candidates_outcome ON story_candidates(outcome);
	CREATE INDEX IF NOT EXISTS idx_candidates_alert ON story_candidates(alert_level, alert_sent_at);

	CREATE TABLE IF NOT EXISTS topic_profiles (
		id BIGSERIAL PRIMARY KEY,
		category TEXT UNIQUE NOT NULL,
		keyword_weights JSONB NOT NULL DEFAULT '{}',
		avg_engagement DOUBLE PRECISION NOT NULL DEFAULT 0,
		article_count INT NOT NULL DEFAULT 0,
		top_performers JSONB NOT NULL DEFAULT '[]',
		last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS story_feedback (
		id BIGSERIAL PRIMARY KEY,
		story_id BIGINT NOT NULL REFERENCES story_candidates(id),
		rating INT NOT NULL CHECK (rating BETWEEN 1 AND 5),
		tags JSONB NOT NULL DEFAULT '[]',
		action TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_created ON story_feedback(created_at);

	CREATE TABLE IF NOT EXISTS article_exemplars (
		id BIGSERIAL PRIMARY KEY,
		url TEXT UNIQUE NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		fingerprint JSONB,
		analyzed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS articles (
		id BIGSERIAL PRIMARY KEY,
		headline TEXT NOT NULL,
		published_at TIMESTAMPTZ,
		total_pageviews BIGINT NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS system_alerts (
		id BIGSERIAL PRIMARY KEY,
		type TEXT UNIQUE NOT NULL,
		message TEXT NOT NULL,
		raised_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		resolved_at TIMESTAMPTZ
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// isUniqueViolation reports the pq unique_violation error class.
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// RaiseSystemAlert upserts a named operator alert, keyed by type so repeated
// failures stay a single open row.
func (s *Store) RaiseSystemAlert(ctx context.Context, alertType, message string) error {
	query := `
		INSERT INTO system_alerts (type, message, raised_at, resolved_at)
		VALUES ($1, $2, NOW(), NULL)
		ON CONFLICT (type) DO UPDATE SET
			message = EXCLUDED.message,
			raised_at = NOW(),
			resolved_at = NULL
	`
	if _, err := s.db.ExecContext(ctx, query, alertType, message); err != nil {
		return fmt.Errorf("raise system alert: %w", err)
	}
	return nil
}

// ResolveSystemAlert closes the alert of this type, if any is open.
func (s *Store) ResolveSystemAlert(ctx context.Context, alertType string) error {
	query := `UPDATE system_alerts SET resolved_at = NOW() WHERE type = $1 AND resolved_at IS NULL`
	if _, err := s.db.ExecContext(ctx, query, alertType); err != nil {
		return fmt.Errorf("resolve system alert: %w", err)
	}
	return nil
}

// SystemAlerts returns every alert row, open and resolved, newest first.
func (s *Store) SystemAlerts(ctx context.Context) ([]model.SystemAlert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, message, raised_at, resolved_at FROM system_alerts ORDER BY raised_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("select system alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.SystemAlert
	for rows.Next() {
		var a model.SystemAlert
		var resolved sql.NullTime
		if err := rows.Scan(&a.ID, &a.Type, &a.Message, &a.RaisedAt, &resolved); err != nil {
			return nil, fmt.Errorf("scan system alert: %w", err)
		}
		if resolved.Valid {
			t := resolved.Time
			a.ResolvedAt = &t
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// InsertArticle records an externally produced article (benchmark input).
func (s *Store) InsertArticle(ctx context.Context, a model.Article) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO articles (headline, published_at, total_pageviews) VALUES ($1, $2, $3) RETURNING id`,
		a.Headline, a.PublishedAt, a.TotalPageviews,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert article: %w", err)
	}
	return id, nil
}

// MeanPublishedPageviews is the outcome benchmark: the mean of
// total_pageviews over all published articles.
func (s *Store) MeanPublishedPageviews(ctx context.Context) (float64, error) {
	var mean sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT AVG(total_pageviews) FROM articles WHERE published_at IS NOT NULL`).Scan(&mean)
	if err != nil {
		return 0, fmt.Errorf("mean pageviews: %w", err)
	}
	if !mean.Valid {
		return 0, nil
	}
	return mean.Float64, nil
}
