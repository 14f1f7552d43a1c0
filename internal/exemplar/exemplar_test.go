package exemplar

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyradar/internal/model"
)

const articleHTML = `<html>
<head>
  <title>Border crossing surge strains asylum system | Example News</title>
  <meta name="keywords" content="border, asylum, immigration">
</head>
<body>
<article>
  <h1>Border crossing surge strains asylum system</h1>
  <h2>Processing backlogs grow</h2>
  <p>Officials reported a sharp rise in border crossings this week, with asylum requests climbing to record levels across several checkpoints.</p>
  <p>Processing centers near the border are operating beyond capacity, and asylum hearings are being scheduled years out.</p>
  <p>Local shelters along the border say they cannot absorb the additional arrivals without federal support.</p>
</article>
</body>
</html>`

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestPreviewFingerprint(t *testing.T) {
	fp := previewFingerprint(doc(t, articleHTML))

	assert.Equal(t, "Border crossing surge strains asylum system", fp.Title)
	assert.Contains(t, fp.Keywords, "border")
	assert.Contains(t, fp.Keywords, "asylum")
	assert.LessOrEqual(t, len(fp.Keywords), 8)
	assert.Zero(t, fp.WordCount, "preview never reads the body")
}

func TestPreviewFingerprintFallsBackToTitleTag(t *testing.T) {
	fp := previewFingerprint(doc(t, `<html><head><title>Headline from title tag</title></head><body></body></html>`))
	assert.Equal(t, "Headline from title tag", fp.Title)
}

func TestDeepFingerprint(t *testing.T) {
	fp := deepFingerprint(doc(t, articleHTML))

	assert.Equal(t, "Border crossing surge strains asylum system", fp.Title)
	assert.Greater(t, fp.WordCount, 40)
	assert.LessOrEqual(t, len(fp.Keywords), 12)

	// "border" appears four times across title and body.
	assert.InDelta(t, 1.0, fp.Keywords["border"], 1e-9)
	for _, d := range fp.Keywords {
		assert.LessOrEqual(t, d, 2.0)
		assert.Greater(t, d, 0.0)
	}
}

func TestKeywordFrequenciesFiltersNoise(t *testing.T) {
	kws := keywordFrequencies("the quick brown foxes jumped over the lazy dogs and the foxes ran", 10)

	assert.NotContains(t, kws, "the", "stopwords are dropped")
	assert.NotContains(t, kws, "and")
	assert.NotContains(t, kws, "ran", "short words are dropped")
	assert.Contains(t, kws, "foxes")
	assert.InDelta(t, 0.5, kws["foxes"], 1e-9, "two occurrences")
}

func TestKeywordFrequenciesDeltaCap(t *testing.T) {
	kws := keywordFrequencies(strings.Repeat("avalanche ", 20), 5)
	assert.Equal(t, 2.0, kws["avalanche"])
}

func TestSimilarCategories(t *testing.T) {
	profiles := []model.TopicProfile{
		{
			Category:       "Immigration",
			KeywordWeights: map[string]float64{"border": 3, "asylum": 3},
		},
		{
			Category:       "Crime",
			KeywordWeights: map[string]float64{"shooting": 6, "arrest": 2},
		},
		{
			Category:       "Economy",
			KeywordWeights: map[string]float64{"inflation": 4},
		},
	}
	keywords := map[string]float64{"border": 1, "asylum": 1, "shooting": 1}

	got := similarCategories(keywords, profiles)

	// Immigration matches two keywords; Crime matches one heavyweight one;
	// Economy matches nothing.
	assert.Equal(t, []string{"Crime", "Immigration"}, got)
}

type fakeExemplarStore struct {
	mu sync.Mutex

	nextID   int64
	rows     map[int64]*model.ArticleExemplar
	statuses map[int64][]model.ExemplarStatus
	deleted  []int64
}

func newFakeExemplarStore() *fakeExemplarStore {
	return &fakeExemplarStore{
		rows:     make(map[int64]*model.ArticleExemplar),
		statuses: make(map[int64][]model.ExemplarStatus),
	}
}

func (f *fakeExemplarStore) InsertExemplar(ctx context.Context, url string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.rows[f.nextID] = &model.ArticleExemplar{ID: f.nextID, URL: url, Status: model.ExemplarPending}
	return f.nextID, nil
}

func (f *fakeExemplarStore) GetExemplar(ctx context.Context, id int64) (*model.ArticleExemplar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.rows[id]
	return &cp, nil
}

func (f *fakeExemplarStore) UpdateExemplar(ctx context.Context, id int64, status model.ExemplarStatus, fp *model.ExemplarFingerprint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[id]
	row.Status = status
	if fp != nil {
		row.Fingerprint = fp
	}
	f.statuses[id] = append(f.statuses[id], status)
	return nil
}

func (f *fakeExemplarStore) DeleteExemplar(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeExemplarStore) TopicProfiles(ctx context.Context) ([]model.TopicProfile, error) {
	return []model.TopicProfile{{
		Category:       "Immigration",
		KeywordWeights: map[string]float64{"border": 3, "asylum": 3},
	}}, nil
}

type fakeCalibrator struct {
	mu         sync.Mutex
	applied    []*model.ExemplarFingerprint
	rolledBack []*model.ExemplarFingerprint
}

func (c *fakeCalibrator) ApplyExemplar(ctx context.Context, fp *model.ExemplarFingerprint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applied = append(c.applied, fp)
	return nil
}

func (c *fakeCalibrator) RollbackExemplar(ctx context.Context, fp *model.ExemplarFingerprint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rolledBack = append(c.rolledBack, fp)
	return nil
}

func waitForStatus(t *testing.T, store *fakeExemplarStore, id int64, want model.ExemplarStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		got := store.rows[id].Status
		store.mu.Unlock()
		if got == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("exemplar %d never reached status %s", id, want)
}

func TestDeepAnalyzeAppliesBoostAndMarksAnalyzed(t *testing.T) {
	store := newFakeExemplarStore()
	cal := &fakeCalibrator{}
	svc := New(store, cal, time.Second)

	id, err := store.InsertExemplar(context.Background(), "https://example.com/article")
	require.NoError(t, err)

	svc.deepAnalyze(id, doc(t, articleHTML))

	waitForStatus(t, store, id, model.ExemplarAnalyzed)
	require.Len(t, cal.applied, 1)
	assert.Equal(t, []string{"Immigration"}, cal.applied[0].SimilarToCategories)
}

func TestDeleteRollsBackAnalyzedExemplar(t *testing.T) {
	store := newFakeExemplarStore()
	cal := &fakeCalibrator{}
	svc := New(store, cal, time.Second)

	id, _ := store.InsertExemplar(context.Background(), "https://example.com/a")
	fp := &model.ExemplarFingerprint{
		Keywords:            map[string]float64{"border": 1},
		SimilarToCategories: []string{"Immigration"},
	}
	require.NoError(t, store.UpdateExemplar(context.Background(), id, model.ExemplarAnalyzed, fp))

	require.NoError(t, svc.Delete(context.Background(), id))

	require.Len(t, cal.rolledBack, 1)
	assert.Equal(t, []int64{id}, store.deleted)
}

func TestDeleteSkipsRollbackBeforeAnalysis(t *testing.T) {
	store := newFakeExemplarStore()
	cal := &fakeCalibrator{}
	svc := New(store, cal, time.Second)

	id, _ := store.InsertExemplar(context.Background(), "https://example.com/a")
	require.NoError(t, store.UpdateExemplar(context.Background(), id, model.ExemplarPreviewReady,
		&model.ExemplarFingerprint{Keywords: map[string]float64{"border": 1}}))

	require.NoError(t, svc.Delete(context.Background(), id))

	assert.Empty(t, cal.rolledBack, "preview-only exemplars never touched the weights")
	assert.Equal(t, []int64{id}, store.deleted)
}
