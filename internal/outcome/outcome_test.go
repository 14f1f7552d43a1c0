package outcome

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyradar/internal/model"
	"storyradar/internal/storage"
)

type fakeOutcomeStore struct {
	claimed   []storage.ClaimedStory
	benchmark float64
	staleN    int64

	outcomes   map[int64]model.Outcome
	pageviews  map[int64]int64
	setErr     map[int64]error
	cutoffSeen time.Time
}

func newFakeOutcomeStore() *fakeOutcomeStore {
	return &fakeOutcomeStore{
		outcomes:  make(map[int64]model.Outcome),
		pageviews: make(map[int64]int64),
		setErr:    make(map[int64]error),
	}
}

func (f *fakeOutcomeStore) ClaimedReadyForEvaluation(ctx context.Context, minAge time.Duration) ([]storage.ClaimedStory, error) {
	return f.claimed, nil
}

func (f *fakeOutcomeStore) MeanPublishedPageviews(ctx context.Context) (float64, error) {
	return f.benchmark, nil
}

func (f *fakeOutcomeStore) SetOutcome(ctx context.Context, id int64, outcome model.Outcome, pageviews *int64) error {
	if err := f.setErr[id]; err != nil {
		return err
	}
	f.outcomes[id] = outcome
	if pageviews != nil {
		f.pageviews[id] = *pageviews
	}
	return nil
}

func (f *fakeOutcomeStore) MarkStaleIgnored(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffSeen = cutoff
	return f.staleN, nil
}

func TestRunClassifiesAgainstBenchmark(t *testing.T) {
	store := newFakeOutcomeStore()
	store.benchmark = 10000 // threshold = 15000
	store.claimed = []storage.ClaimedStory{
		{CandidateID: 1, Headline: "winner", Pageviews: 20000},
		{CandidateID: 2, Headline: "average", Pageviews: 15000}, // at threshold, not above
		{CandidateID: 3, Headline: "modest", Pageviews: 4000},
	}

	sum, err := New(store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, sum.Evaluated)
	assert.Equal(t, 1, sum.HighPerformers)
	assert.Equal(t, 2, sum.Published)
	assert.Equal(t, 15000.0, sum.HighPerformerThreshold)

	assert.Equal(t, model.OutcomeHighPerformer, store.outcomes[1])
	assert.Equal(t, model.OutcomePublished, store.outcomes[2])
	assert.Equal(t, model.OutcomePublished, store.outcomes[3])
	assert.Equal(t, int64(20000), store.pageviews[1])
}

func TestRunSkipsBenchmarkWhenNothingClaimed(t *testing.T) {
	store := newFakeOutcomeStore()
	store.staleN = 4

	sum, err := New(store).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, sum.Evaluated)
	assert.Equal(t, int64(4), sum.Ignored)
	assert.Zero(t, sum.AvgPageviews)
}

func TestRunStaleCutoffIs24Hours(t *testing.T) {
	store := newFakeOutcomeStore()
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	e := New(store)
	e.now = func() time.Time { return now }

	_, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), store.cutoffSeen)
}

func TestRunSetOutcomeFailureIsIsolated(t *testing.T) {
	store := newFakeOutcomeStore()
	store.benchmark = 100
	store.claimed = []storage.ClaimedStory{
		{CandidateID: 1, Pageviews: 500},
		{CandidateID: 2, Pageviews: 500},
	}
	store.setErr[1] = errors.New("row locked")

	sum, err := New(store).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Evaluated, "failed row is skipped, not fatal")
	assert.NotContains(t, store.outcomes, int64(1))
	assert.Equal(t, model.OutcomeHighPerformer, store.outcomes[2])
}

func TestRunZeroBenchmarkMakesEveryClaimAHighPerformer(t *testing.T) {
	// First evaluation cycle ever: no published history, benchmark 0, any
	// positive pageview count clears the bar.
	store := newFakeOutcomeStore()
	store.claimed = []storage.ClaimedStory{{CandidateID: 1, Pageviews: 1}}

	sum, err := New(store).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.HighPerformers)
}
