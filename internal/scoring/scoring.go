// Package scoring computes relevance and velocity scores for raw stories.
// Everything here is a pure function over its inputs so scores stay
// reproducible against fixed fixtures.
package scoring

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"storyradar/internal/model"
)

// Thresholds drive the alert-level tiering over combined relevance+velocity.
type Thresholds struct {
	Telegram int // combined score above this -> TELEGRAM
	Queue    int // combined score above this -> QUEUE
}

// DefaultThresholds mirror the production defaults in config.
var DefaultThresholds = Thresholds{Telegram: 140, Queue: 90}

// Result carries everything the aggregator attaches at creation time.
type Result struct {
	RelevanceScore int
	VelocityScore  int
	Category       string
	TopicClusterID string
	AlertLevel     model.AlertLevel
}

const (
	// relevanceFactor converts a matched-weight sum into the 0..100 range.
	// A single strong keyword (weight 5) lands at 50.
	relevanceFactor = 10

	baselineVelocity = 10 // no platform signals at all
	trendFloor       = 25 // trend item with no usable traffic number
)

// Score evaluates one story against the current topic profiles.
func Score(headline string, signals *model.PlatformSignals, profiles []model.TopicProfile, th Thresholds) Result {
	res := Result{
		VelocityScore: velocityScore(signals),
		AlertLevel:    model.AlertNone,
	}

	text := strings.ToLower(headline)

	bestSum := 0.0
	bestKeyword := ""
	for _, p := range profiles {
		sum, top := matchWeights(text, p.KeywordWeights)
		if sum > bestSum {
			bestSum = sum
			bestKeyword = top
			res.Category = p.Category
		}
	}

	if bestSum > 0 {
		rel := int(bestSum * relevanceFactor)
		if rel > 100 {
			rel = 100
		}
		res.RelevanceScore = rel
		res.TopicClusterID = clusterID(res.Category, bestKeyword)
	}

	combined := res.RelevanceScore + res.VelocityScore
	switch {
	case combined > th.Telegram:
		res.AlertLevel = model.AlertTelegram
	case combined > th.Queue:
		res.AlertLevel = model.AlertQueue
	}

	return res
}

// matchWeights sums the weights of every keyword present in text and returns
// the heaviest matched keyword. Keywords of three characters or fewer only
// count on a word boundary, so "ai" does not fire inside "said".
func matchWeights(text string, weights map[string]float64) (float64, string) {
	sum := 0.0
	top := ""
	topWeight := 0.0

	// Deterministic iteration keeps the cluster id stable across runs.
	keywords := make([]string, 0, len(weights))
	for k := range weights {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)

	for _, k := range keywords {
		kw := strings.ToLower(strings.TrimSpace(k))
		if kw == "" {
			continue
		}
		if !matchKeyword(text, kw) {
			continue
		}
		w := weights[k]
		sum += w
		if w > topWeight {
			topWeight = w
			top = kw
		}
	}
	return sum, top
}

func matchKeyword(text, kw string) bool {
	if len(kw) <= 3 && !strings.Contains(kw, " ") {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
		return re.MatchString(text)
	}
	return strings.Contains(text, kw)
}

func clusterID(category, keyword string) string {
	if keyword == "" {
		return category
	}
	return fmt.Sprintf("%s:%s", category, strings.ReplaceAll(keyword, " ", "-"))
}

// velocityScore blends platform signals into 0..100. Discussion metrics mix
// engagement, comment velocity and recency; trend metrics lean on reported
// traffic; anything else gets a low baseline.
func velocityScore(signals *model.PlatformSignals) int {
	if signals == nil {
		return baselineVelocity
	}

	switch signals.Kind {
	case model.SignalDiscussion:
		d := signals.Discussion
		if d == nil {
			return baselineVelocity
		}
		engagement := float64(d.Score) / 12.5
		if engagement > 40 {
			engagement = 40
		}
		discussion := float64(d.NumComments) / 10
		if discussion > 30 {
			discussion = 30
		}
		recency := 30 - d.AgeMinutes/2
		if recency < 0 {
			recency = 0
		}
		v := int(engagement + discussion + recency)
		if v > 100 {
			v = 100
		}
		return v

	case model.SignalTrend:
		t := signals.Trend
		if t == nil {
			return baselineVelocity
		}
		v := 0
		if t.Rising {
			v += 40
		}
		traffic := t.TrafficVolume / 2000
		if traffic > 50 {
			traffic = 50
		}
		v += traffic
		if v < trendFloor {
			v = trendFloor
		}
		if v > 100 {
			v = 100
		}
		return v
	}

	return baselineVelocity
}
