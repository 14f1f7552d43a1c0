package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyradar/internal/model"
)

func immigrationProfile() model.TopicProfile {
	return model.TopicProfile{
		Category: "Immigration",
		KeywordWeights: map[string]float64{
			"border":      5,
			"deportation": 4,
			"asylum":      3.5,
		},
	}
}

func TestScoreKeywordMatch(t *testing.T) {
	profiles := []model.TopicProfile{immigrationProfile()}

	res := Score("Major incident at the border crossing", nil, profiles, DefaultThresholds)

	assert.Equal(t, 50, res.RelevanceScore, "weight 5 x factor 10")
	assert.Equal(t, "Immigration", res.Category)
	assert.Equal(t, "Immigration:border", res.TopicClusterID)
	assert.Equal(t, 10, res.VelocityScore, "baseline with no signals")
	assert.Equal(t, model.AlertNone, res.AlertLevel)
}

func TestScoreNoMatch(t *testing.T) {
	profiles := []model.TopicProfile{immigrationProfile()}

	res := Score("Local bakery wins pie contest", nil, profiles, DefaultThresholds)

	assert.Equal(t, 0, res.RelevanceScore)
	assert.Empty(t, res.Category)
	assert.Empty(t, res.TopicClusterID)
}

func TestScoreRelevanceCappedAt100(t *testing.T) {
	profiles := []model.TopicProfile{{
		Category: "Stacked",
		KeywordWeights: map[string]float64{
			"alpha": 10,
			"bravo": 10,
		},
	}}

	res := Score("alpha meets bravo", nil, profiles, DefaultThresholds)
	assert.Equal(t, 100, res.RelevanceScore)
}

func TestShortKeywordNeedsWordBoundary(t *testing.T) {
	profiles := []model.TopicProfile{{
		Category:       "Tech",
		KeywordWeights: map[string]float64{"ai": 5},
	}}

	res := Score("The mayor said nothing new", nil, profiles, DefaultThresholds)
	assert.Equal(t, 0, res.RelevanceScore, "'ai' must not fire inside 'said'")

	res = Score("New AI model released", nil, profiles, DefaultThresholds)
	assert.Equal(t, 50, res.RelevanceScore)
}

func TestVelocityDiscussionBeatsStaleWire(t *testing.T) {
	// A 30-minute-old discussion thread with heavy engagement should far
	// outscore a plain wire item.
	hot := &model.PlatformSignals{
		Kind: model.SignalDiscussion,
		Discussion: &model.DiscussionMetrics{
			Score:       500,
			NumComments: 300,
			AgeMinutes:  30,
		},
	}

	hotScore := velocityScore(hot)
	wireScore := velocityScore(nil)

	// 40 (engagement capped) + 30 (comments capped) + 15 (recency) = 85.
	assert.Equal(t, 85, hotScore)
	assert.Equal(t, 10, wireScore)
	assert.Greater(t, hotScore, wireScore)
}

func TestVelocityDiscussionRecencyFloor(t *testing.T) {
	old := &model.PlatformSignals{
		Kind: model.SignalDiscussion,
		Discussion: &model.DiscussionMetrics{
			Score:       100,
			NumComments: 50,
			AgeMinutes:  600, // recency contribution bottoms out at 0
		},
	}
	assert.Equal(t, 13, velocityScore(old)) // 8 + 5 + 0
}

func TestVelocityTrend(t *testing.T) {
	tests := []struct {
		name string
		t    model.TrendMetrics
		want int
	}{
		{"rising with traffic", model.TrendMetrics{Rising: true, TrafficVolume: 50000}, 65},
		{"rising traffic capped", model.TrendMetrics{Rising: true, TrafficVolume: 1000000}, 90},
		{"floor applies", model.TrendMetrics{Rising: false, TrafficVolume: 0}, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &model.PlatformSignals{Kind: model.SignalTrend, Trend: &tt.t}
			assert.Equal(t, tt.want, velocityScore(s))
		})
	}
}

func TestAlertTiers(t *testing.T) {
	profiles := []model.TopicProfile{immigrationProfile()}
	signals := &model.PlatformSignals{
		Kind: model.SignalDiscussion,
		Discussion: &model.DiscussionMetrics{
			Score:       500,
			NumComments: 300,
			AgeMinutes:  30,
		},
	}

	// 50 relevance + 85 velocity = 135 -> QUEUE, not TELEGRAM.
	res := Score("Chaos at the border tonight", signals, profiles, DefaultThresholds)
	require.Equal(t, 135, res.RelevanceScore+res.VelocityScore)
	assert.Equal(t, model.AlertQueue, res.AlertLevel)

	// Add deportation (+40 relevance, capped math keeps it under 100) and the
	// combined score crosses the telegram line.
	res = Score("Border deportation order sparks protests", signals, profiles, DefaultThresholds)
	assert.Equal(t, model.AlertTelegram, res.AlertLevel)
}

func TestScoreDeterministicClusterChoice(t *testing.T) {
	profiles := []model.TopicProfile{{
		Category: "Immigration",
		KeywordWeights: map[string]float64{
			"border": 5,
			"asylum": 5,
		},
	}}

	// Ties on weight resolve the same way every run.
	first := Score("asylum seekers at the border", nil, profiles, DefaultThresholds)
	for i := 0; i < 20; i++ {
		again := Score("asylum seekers at the border", nil, profiles, DefaultThresholds)
		assert.Equal(t, first.TopicClusterID, again.TopicClusterID)
	}
}

func TestScorePicksHighestSumCategory(t *testing.T) {
	profiles := []model.TopicProfile{
		immigrationProfile(),
		{
			Category:       "Politics",
			KeywordWeights: map[string]float64{"congress": 2},
		},
	}

	res := Score("Congress debates border funding", nil, profiles, DefaultThresholds)
	assert.Equal(t, "Immigration", res.Category, "weight 5 beats weight 2")
}
