// Package model holds the domain types shared across the discovery pipeline.
package model

import "time"

// AlertLevel is the coarse priority tier derived from combined relevance+velocity.
type AlertLevel string

const (
	AlertNone     AlertLevel = "NONE"
	AlertQueue    AlertLevel = "QUEUE"
	AlertTelegram AlertLevel = "TELEGRAM"
)

// VerificationStatus describes how corroborated a candidate is.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "UNVERIFIED"
	VerificationPlausible  VerificationStatus = "PLAUSIBLE"
	VerificationVerified   VerificationStatus = "VERIFIED"
	VerificationDisputed   VerificationStatus = "DISPUTED"
	VerificationFlagged    VerificationStatus = "FLAGGED"
)

// ValidVerificationStatus reports whether s is one of the known statuses.
func ValidVerificationStatus(s VerificationStatus) bool {
	switch s {
	case VerificationUnverified, VerificationPlausible, VerificationVerified,
		VerificationDisputed, VerificationFlagged:
		return true
	}
	return false
}

// Outcome is the terminal disposition of a candidate. CLAIMED is the only
// non-terminal value: it may still move to HIGH_PERFORMER or PUBLISHED.
type Outcome string

const (
	OutcomeClaimed       Outcome = "CLAIMED"
	OutcomeHighPerformer Outcome = "HIGH_PERFORMER"
	OutcomePublished     Outcome = "PUBLISHED"
	OutcomeIgnored       Outcome = "IGNORED"
)

// ExemplarStatus tracks the lifecycle of a submitted reference article.
type ExemplarStatus string

const (
	ExemplarPending      ExemplarStatus = "PENDING"
	ExemplarPreviewReady ExemplarStatus = "PREVIEW_READY"
	ExemplarAnalyzed     ExemplarStatus = "ANALYZED"
	ExemplarFailed       ExemplarStatus = "FAILED"
)

// Source is one attribution entry on a candidate.
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// SignalKind tags the PlatformSignals variant.
type SignalKind string

const (
	SignalDiscussion SignalKind = "discussion"
	SignalTrend      SignalKind = "trend"
)

// DiscussionMetrics are community metrics from a discussion source (Reddit).
type DiscussionMetrics struct {
	Score       int     `json:"score"`
	NumComments int     `json:"numComments"`
	AgeMinutes  float64 `json:"ageMinutes"`
}

// TrendMetrics are search-trend metrics (approximate traffic, rising flag).
type TrendMetrics struct {
	TrafficVolume int  `json:"trafficVolume"`
	Rising        bool `json:"rising"`
}

// PlatformSignals is a tagged variant so the scorer can switch on Kind
// instead of digging through an untyped blob.
type PlatformSignals struct {
	Kind       SignalKind         `json:"kind"`
	Discussion *DiscussionMetrics `json:"discussion,omitempty"`
	Trend      *TrendMetrics      `json:"trend,omitempty"`
}

// RawStory is the uniform shape every source collaborator returns.
type RawStory struct {
	Headline  string
	SourceURL string
	Sources   []Source
	Signals   *PlatformSignals
}

// StoryCandidate is a discovered news item awaiting or having received
// scoring and enrichment. SourceURL is the primary dedup key.
type StoryCandidate struct {
	ID                int64              `json:"id"`
	SourceURL         string             `json:"sourceUrl"`
	Headline          string             `json:"headline"`
	Sources           []Source           `json:"sources"`
	RelevanceScore    int                `json:"relevanceScore"`
	VelocityScore     int                `json:"velocityScore"`
	Category          string             `json:"category,omitempty"`
	TopicClusterID    string             `json:"topicClusterId,omitempty"`
	AlertLevel        AlertLevel         `json:"alertLevel"`
	SuggestedAngles   []string           `json:"suggestedAngles,omitempty"`
	Verification      VerificationStatus `json:"verificationStatus"`
	VerificationNotes string             `json:"verificationNotes,omitempty"`
	Signals           *PlatformSignals   `json:"platformSignals,omitempty"`
	FirstSeenAt       time.Time          `json:"firstSeenAt"`
	LastUpdatedAt     time.Time          `json:"lastUpdatedAt"`
	Dismissed         bool               `json:"dismissed"`
	ClaimedByID       *int64             `json:"claimedById,omitempty"`
	ArticleID         *int64             `json:"articleId,omitempty"`
	Outcome           *Outcome           `json:"outcome,omitempty"`
	OutcomePageviews  *int64             `json:"outcomePageviews,omitempty"`
	AlertSentAt       *time.Time         `json:"alertSentAt,omitempty"`
}

// Enriched reports whether the AI processor has handled this candidate.
func (c *StoryCandidate) Enriched() bool { return c.SuggestedAngles != nil }

// TopPerformer is one historical winner recorded on a topic profile.
type TopPerformer struct {
	ID       int64  `json:"id"`
	Headline string `json:"headline"`
	Metric   int64  `json:"metric"`
}

// TopicProfile is the learned keyword-weight vector for one editorial
// category. Weights stay inside [MinWeight, MaxWeight] at all times.
type TopicProfile struct {
	Category       string             `json:"category"`
	KeywordWeights map[string]float64 `json:"keywordWeights"`
	AvgEngagement  float64            `json:"avgEngagement"`
	ArticleCount   int                `json:"articleCount"`
	TopPerformers  []TopPerformer     `json:"topPerformers"`
	LastUpdated    time.Time          `json:"lastUpdated"`
}

// Weight clamp bounds for every learning-engine and exemplar mutation.
const (
	MinWeight = 0.5
	MaxWeight = 10.0
)

// ClampWeight forces w into the allowed keyword-weight range.
func ClampWeight(w float64) float64 {
	if w < MinWeight {
		return MinWeight
	}
	if w > MaxWeight {
		return MaxWeight
	}
	return w
}

// StoryFeedback is an append-only human rating on a candidate.
type StoryFeedback struct {
	ID        int64     `json:"id"`
	StoryID   int64     `json:"storyId"`
	Rating    int       `json:"rating"` // 1..5
	Tags      []string  `json:"tags"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"createdAt"`
}

// ExemplarFingerprint is the extracted keyword vector of a reference article.
type ExemplarFingerprint struct {
	Keywords            map[string]float64 `json:"keywords"`
	SimilarToCategories []string           `json:"similarToCategories"`
	Title               string             `json:"title,omitempty"`
	WordCount           int                `json:"wordCount,omitempty"`
}

// ArticleExemplar is an externally submitted reference article used to
// calibrate topic weights.
type ArticleExemplar struct {
	ID          int64                `json:"id"`
	URL         string               `json:"url"`
	Status      ExemplarStatus       `json:"status"`
	Fingerprint *ExemplarFingerprint `json:"fingerprint,omitempty"`
	AnalyzedAt  *time.Time           `json:"analyzedAt,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
}

// Article is a produced article the outcome evaluator benchmarks against.
type Article struct {
	ID             int64      `json:"id"`
	Headline       string     `json:"headline"`
	PublishedAt    *time.Time `json:"publishedAt,omitempty"`
	TotalPageviews int64      `json:"totalPageviews"`
}

// SystemAlert is a named operator-facing health alert, upserted by type and
// auto-resolved on the next success.
type SystemAlert struct {
	ID         int64      `json:"id"`
	Type       string     `json:"type"`
	Message    string     `json:"message"`
	RaisedAt   time.Time  `json:"raisedAt"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
}
