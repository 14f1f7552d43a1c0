package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"storyradar/internal/model"
)

// candidateColumns is the scan order used by scanCandidate.
var candidateColumns = []string{
	"id", "source_url", "headline", "sources",
	"relevance_score", "velocity_score", "category", "topic_cluster_id",
	"alert_level", "suggested_angles", "verification_status", "verification_notes",
	"platform_signals", "first_seen_at", "last_updated_at", "dismissed",
	"claimed_by_id", "article_id", "outcome", "outcome_pageviews", "alert_sent_at",
}

// CandidateExists reports whether a row with this source URL is present.
func (s *Store) CandidateExists(ctx context.Context, sourceURL string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM story_candidates WHERE source_url = $1)`, sourceURL).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists check: %w", err)
	}
	return exists, nil
}

// InsertCandidate persists a freshly scored candidate. A unique-constraint
// conflict on source_url comes back as ErrDuplicate so the caller can skip.
func (s *Store) InsertCandidate(ctx context.Context, c *model.StoryCandidate) error {
	sourcesJSON, err := json.Marshal(c.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	var signalsJSON interface{}
	if c.Signals != nil {
		b, err := json.Marshal(c.Signals)
		if err != nil {
			return fmt.Errorf("marshal signals: %w", err)
		}
		signalsJSON = b
	}

	query := `
		INSERT INTO story_candidates
			(source_url, headline, sources, relevance_score, velocity_score,
			 category, topic_cluster_id, alert_level, verification_status, platform_signals)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10)
		RETURNING id, first_seen_at
	`
	err = s.db.QueryRowContext(ctx, query,
		c.SourceURL, c.Headline, sourcesJSON, c.RelevanceScore, c.VelocityScore,
		c.Category, c.TopicClusterID, string(c.AlertLevel), string(model.VerificationUnverified), signalsJSON,
	).Scan(&c.ID, &c.FirstSeenAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert candidate: %w", err)
	}
	return nil
}

// SelectEnrichable returns the unenriched, undismissed candidates seen in
// the last 24 hours, best relevance first, capped at limit.
func (s *Store) SelectEnrichable(ctx context.Context, limit int) ([]model.StoryCandidate, error) {
	q := s.sb.Select(candidateColumns...).
		From("story_candidates").
		Where("suggested_angles IS NULL").
		Where(sq.Eq{"dismissed": false}).
		Where(sq.Gt{"first_seen_at": time.Now().Add(-24 * time.Hour)}).
		OrderBy("relevance_score DESC").
		Limit(uint64(limit))

	return s.queryCandidates(ctx, q)
}

// SaveEnrichment writes the AI output onto the candidate row.
func (s *Store) SaveEnrichment(ctx context.Context, id int64, angles []string, status model.VerificationStatus, notes string) error {
	anglesJSON, err := json.Marshal(angles)
	if err != nil {
		return fmt.Errorf("marshal angles: %w", err)
	}
	query := `
		UPDATE story_candidates
		SET suggested_angles = $2, verification_status = $3, verification_notes = $4, last_updated_at = NOW()
		WHERE id = $1
	`
	if _, err := s.db.ExecContext(ctx, query, id, anglesJSON, string(status), notes); err != nil {
		return fmt.Errorf("save enrichment: %w", err)
	}
	return nil
}

// AlertableCandidates selects the dispatch batch: TELEGRAM tier, never sent,
// verified or plausible, unclaimed and undismissed.
func (s *Store) AlertableCandidates(ctx context.Context, limit int) ([]model.StoryCandidate, error) {
	q := s.sb.Select(candidateColumns...).
		From("story_candidates").
		Where(sq.Eq{"alert_level": string(model.AlertTelegram)}).
		Where("alert_sent_at IS NULL").
		Where(sq.Eq{"verification_status": []string{
			string(model.VerificationVerified), string(model.VerificationPlausible),
		}}).
		Where("claimed_by_id IS NULL").
		Where(sq.Eq{"dismissed": false}).
		OrderBy("relevance_score DESC").
		Limit(uint64(limit))

	return s.queryCandidates(ctx, q)
}

// MarkAlertSent stamps the permanent no-resend guard.
func (s *Store) MarkAlertSent(ctx context.Context, id int64) error {
	query := `UPDATE story_candidates SET alert_sent_at = NOW(), last_updated_at = NOW() WHERE id = $1 AND alert_sent_at IS NULL`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark alert sent: %w", err)
	}
	return nil
}

// ClaimedStory pairs a claimed candidate with its published article stats.
type ClaimedStory struct {
	CandidateID int64
	ArticleID   int64
	Headline    string
	Category    string
	Pageviews   int64
}

// ClaimedReadyForEvaluation returns claimed candidates whose linked article
// has been published for at least minAge.
func (s *Store) ClaimedReadyForEvaluation(ctx context.Context, minAge time.Duration) ([]ClaimedStory, error) {
	q := s.sb.Select("c.id", "a.id", "c.headline", "COALESCE(c.category, '')", "a.total_pageviews").
		From("story_candidates c").
		Join("articles a ON a.id = c.article_id").
		Where(sq.Eq{"c.outcome": string(model.OutcomeClaimed)}).
		Where("a.published_at IS NOT NULL").
		Where(sq.LtOrEq{"a.published_at": time.Now().Add(-minAge)})

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build claimed query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("select claimed: %w", err)
	}
	defer rows.Close()

	var out []ClaimedStory
	for rows.Next() {
		var cs ClaimedStory
		if err := rows.Scan(&cs.CandidateID, &cs.ArticleID, &cs.Headline, &cs.Category, &cs.Pageviews); err != nil {
			return nil, fmt.Errorf("scan claimed: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// SetOutcome moves a CLAIMED candidate to its terminal outcome and snapshots
// pageviews. The predicate keeps terminal rows untouched on re-runs.
func (s *Store) SetOutcome(ctx context.Context, id int64, outcome model.Outcome, pageviews *int64) error {
	query := `
		UPDATE story_candidates
		SET outcome = $2, outcome_pageviews = $3, last_updated_at = NOW()
		WHERE id = $1 AND outcome = $4
	`
	if _, err := s.db.ExecContext(ctx, query, id, string(outcome), pageviews, string(model.OutcomeClaimed)); err != nil {
		return fmt.Errorf("set outcome: %w", err)
	}
	return nil
}

// MarkStaleIgnored bulk-ages unclaimed, undismissed candidates first seen
// before the cutoff. Returns the number of rows marked.
func (s *Store) MarkStaleIgnored(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE story_candidates
		SET outcome = $1, last_updated_at = NOW()
		WHERE outcome IS NULL
		  AND claimed_by_id IS NULL
		  AND dismissed = FALSE
		  AND first_seen_at <= $2
	`
	res, err := s.db.ExecContext(ctx, query, string(model.OutcomeIgnored), cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark stale ignored: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecentHighPerformerHeadlines feeds the AI inspiration bundle.
func (s *Store) RecentHighPerformerHeadlines(ctx context.Context, since time.Time, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT headline FROM story_candidates
		WHERE outcome = $1 AND last_updated_at >= $2
		ORDER BY outcome_pageviews DESC NULLS LAST
		LIMIT $3
	`, string(model.OutcomeHighPerformer), since, limit)
	if err != nil {
		return nil, fmt.Errorf("select high performers: %w", err)
	}
	defer rows.Close()

	var headlines []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan headline: %w", err)
		}
		headlines = append(headlines, h)
	}
	return headlines, rows.Err()
}

// StoriesSince returns outcome-labeled candidates for the learning export.
func (s *Store) StoriesSince(ctx context.Context, since time.Time) ([]model.StoryCandidate, error) {
	q := s.sb.Select(candidateColumns...).
		From("story_candidates").
		Where(sq.GtOrEq{"first_seen_at": since}).
		OrderBy("first_seen_at DESC")
	return s.queryCandidates(ctx, q)
}

func (s *Store) queryCandidates(ctx context.Context, q sq.SelectBuilder) ([]model.StoryCandidate, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	defer rows.Close()

	var out []model.StoryCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanCandidate(rows *sql.Rows) (*model.StoryCandidate, error) {
	var (
		c              model.StoryCandidate
		sourcesJSON    []byte
		anglesJSON     []byte
		signalsJSON    []byte
		category       sql.NullString
		clusterID      sql.NullString
		notes          sql.NullString
		claimedBy      sql.NullInt64
		articleID      sql.NullInt64
		outcome        sql.NullString
		pageviews      sql.NullInt64
		alertSentAt    sql.NullTime
		verification   string
		alertLevel     string
	)

	err := rows.Scan(
		&c.ID, &c.SourceURL, &c.Headline, &sourcesJSON,
		&c.RelevanceScore, &c.VelocityScore, &category, &clusterID,
		&alertLevel, &anglesJSON, &verification, &notes,
		&signalsJSON, &c.FirstSeenAt, &c.LastUpdatedAt, &c.Dismissed,
		&claimedBy, &articleID, &outcome, &pageviews, &alertSentAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan candidate: %w", err)
	}

	c.AlertLevel = model.AlertLevel(alertLevel)
	c.Verification = model.VerificationStatus(verification)
	c.Category = category.String
	c.TopicClusterID = clusterID.String
	c.VerificationNotes = notes.String

	if err := json.Unmarshal(sourcesJSON, &c.Sources); err != nil {
		return nil, fmt.Errorf("unmarshal sources: %w", err)
	}
	if anglesJSON != nil {
		if err := json.Unmarshal(anglesJSON, &c.SuggestedAngles); err != nil {
			return nil, fmt.Errorf("unmarshal angles: %w", err)
		}
	}
	if signalsJSON != nil {
		c.Signals = &model.PlatformSignals{}
		if err := json.Unmarshal(signalsJSON, c.Signals); err != nil {
			return nil, fmt.Errorf("unmarshal signals: %w", err)
		}
	}
	if claimedBy.Valid {
		v := claimedBy.Int64
		c.ClaimedByID = &v
	}
	if articleID.Valid {
		v := articleID.Int64
		c.ArticleID = &v
	}
	if outcome.Valid {
		o := model.Outcome(outcome.String)
		c.Outcome = &o
	}
	if pageviews.Valid {
		v := pageviews.Int64
		c.OutcomePageviews = &v
	}
	if alertSentAt.Valid {
		t := alertSentAt.Time
		c.AlertSentAt = &t
	}
	return &c, nil
}
