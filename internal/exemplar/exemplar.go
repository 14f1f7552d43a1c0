// Package exemplar handles externally submitted reference articles: a quick
// synchronous preview fingerprint, then a background deep analysis that
// calibrates topic weights. Progress is observable through the status field,
// never through callbacks.
package exemplar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"storyradar/internal/learning"
	"storyradar/internal/logger"
	"storyradar/internal/model"
)

// Store is the storage slice the service needs.
type Store interface {
	InsertExemplar(ctx context.Context, url string) (int64, error)
	GetExemplar(ctx context.Context, id int64) (*model.ArticleExemplar, error)
	UpdateExemplar(ctx context.Context, id int64, status model.ExemplarStatus, fp *model.ExemplarFingerprint) error
	DeleteExemplar(ctx context.Context, id int64) error
	TopicProfiles(ctx context.Context) ([]model.TopicProfile, error)
}

// Calibrator is the learning-engine slice used here.
type Calibrator interface {
	ApplyExemplar(ctx context.Context, fp *model.ExemplarFingerprint) error
	RollbackExemplar(ctx context.Context, fp *model.ExemplarFingerprint) error
}

// Service runs the exemplar lifecycle.
type Service struct {
	store      Store
	calibrator Calibrator
	client     *http.Client
	log        *slog.Logger

	// deepTimeout bounds the background analysis; the goroutine carries its
	// own context because the submit request has long since returned.
	deepTimeout time.Duration
}

func New(store Store, calibrator Calibrator, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		store:       store,
		calibrator:  calibrator,
		client:      &http.Client{Timeout: timeout},
		log:         logger.Component("exemplar"),
		deepTimeout: 60 * time.Second,
	}
}

// Submit creates the exemplar, produces the quick preview synchronously and
// kicks off deep analysis in the background.
func (s *Service) Submit(ctx context.Context, url string) (*model.ArticleExemplar, error) {
	id, err := s.store.InsertExemplar(ctx, url)
	if err != nil {
		return nil, err
	}

	doc, err := s.fetchDocument(ctx, url)
	if err != nil {
		// A bad URL fails the whole exemplar; there is nothing to analyze.
		if uerr := s.store.UpdateExemplar(ctx, id, model.ExemplarFailed, nil); uerr != nil {
			s.log.Warn("could not mark exemplar failed", "id", id, "error", uerr)
		}
		return nil, fmt.Errorf("fetch exemplar page: %w", err)
	}

	preview := previewFingerprint(doc)
	if err := s.store.UpdateExemplar(ctx, id, model.ExemplarPreviewReady, preview); err != nil {
		return nil, err
	}

	go s.deepAnalyze(id, doc)

	return s.store.GetExemplar(ctx, id)
}

// Delete rolls back the weight boost of an analyzed exemplar, then removes
// the row. The rollback is a flat step per keyword, not an exact inverse of
// the boost (see learning.RollbackExemplar).
func (s *Service) Delete(ctx context.Context, id int64) error {
	ex, err := s.store.GetExemplar(ctx, id)
	if err != nil {
		return err
	}
	if ex.Status == model.ExemplarAnalyzed && ex.Fingerprint != nil {
		if err := s.calibrator.RollbackExemplar(ctx, ex.Fingerprint); err != nil {
			return fmt.Errorf("rollback exemplar weights: %w", err)
		}
	}
	return s.store.DeleteExemplar(ctx, id)
}

func (s *Service) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

// deepAnalyze builds the full fingerprint, matches it against the topic
// profiles and applies the weight boost. Failures land in the status field.
func (s *Service) deepAnalyze(id int64, doc *goquery.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), s.deepTimeout)
	defer cancel()

	fp := deepFingerprint(doc)

	profiles, err := s.store.TopicProfiles(ctx)
	if err != nil {
		s.fail(ctx, id, err)
		return
	}
	fp.SimilarToCategories = similarCategories(fp.Keywords, profiles)

	if err := s.calibrator.ApplyExemplar(ctx, fp); err != nil {
		s.fail(ctx, id, err)
		return
	}
	if err := s.store.UpdateExemplar(ctx, id, model.ExemplarAnalyzed, fp); err != nil {
		s.fail(ctx, id, err)
		return
	}
	s.log.Info("exemplar analyzed", "id", id,
		"keywords", len(fp.Keywords), "categories", fp.SimilarToCategories)
}

func (s *Service) fail(ctx context.Context, id int64, cause error) {
	s.log.Warn("exemplar deep analysis failed", "id", id, "error", cause)
	if err := s.store.UpdateExemplar(ctx, id, model.ExemplarFailed, nil); err != nil {
		s.log.Warn("could not mark exemplar failed", "id", id, "error", err)
	}
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"of": true, "in": true, "on": true, "to": true, "for": true, "with": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"by": true, "as": true, "at": true, "it": true, "its": true, "this": true,
	"that": true, "from": true, "has": true, "have": true, "had": true,
	"will": true, "would": true, "can": true, "could": true, "not": true,
	"their": true, "they": true, "his": true, "her": true, "he": true, "she": true,
	"we": true, "you": true, "our": true, "more": true, "than": true, "about": true,
	"after": true, "into": true, "over": true, "also": true, "said": true,
}

// previewFingerprint is the cheap synchronous pass: title and headings only.
func previewFingerprint(doc *goquery.Document) *model.ExemplarFingerprint {
	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	text := title
	doc.Find("h2, h3").Each(func(_ int, sel *goquery.Selection) {
		text += " " + sel.Text()
	})
	if kw, ok := doc.Find(`meta[name="keywords"]`).Attr("content"); ok {
		text += " " + strings.ReplaceAll(kw, ",", " ")
	}

	return &model.ExemplarFingerprint{
		Title:    title,
		Keywords: keywordFrequencies(text, 8),
	}
}

// deepFingerprint walks the article body for term frequencies.
func deepFingerprint(doc *goquery.Document) *model.ExemplarFingerprint {
	title := strings.TrimSpace(doc.Find("h1").First().Text())

	var paragraphs []string
	// The selector fallback chain mirrors what most news CMSes emit.
	for _, selector := range []string{"article p", ".article-body p", ".content p", "main p", "p"} {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			t := strings.TrimSpace(sel.Text())
			if len(t) > 20 {
				paragraphs = append(paragraphs, t)
			}
		})
		if len(paragraphs) >= 3 {
			break
		}
	}

	body := title + " " + strings.Join(paragraphs, " ")
	words := len(strings.Fields(body))

	return &model.ExemplarFingerprint{
		Title:     title,
		WordCount: words,
		Keywords:  keywordFrequencies(body, 12),
	}
}

// keywordFrequencies extracts the top normalized terms with a small
// frequency-scaled delta per keyword, used later as the boost magnitude.
func keywordFrequencies(text string, limit int) map[string]float64 {
	counts := make(map[string]int)
	for _, w := range strings.Fields(learning.NormalizeKeyword(text)) {
		if len(w) <= 3 || stopwords[w] {
			continue
		}
		counts[w]++
	}

	type kv struct {
		word  string
		count int
	}
	ranked := make([]kv, 0, len(counts))
	for w, n := range counts {
		ranked = append(ranked, kv{w, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make(map[string]float64, len(ranked))
	for _, r := range ranked {
		delta := 0.25 * float64(r.count)
		if delta > 2.0 {
			delta = 2.0
		}
		out[r.word] = delta
	}
	return out
}

// similarCategories marks a profile as resembled when at least two of its
// keywords appear in the fingerprint, or a single heavyweight one does.
func similarCategories(keywords map[string]float64, profiles []model.TopicProfile) []string {
	var out []string
	for _, p := range profiles {
		matches := 0
		heavy := false
		for kw, w := range p.KeywordWeights {
			if _, ok := keywords[learning.NormalizeKeyword(kw)]; ok {
				matches++
				if w >= 5 {
					heavy = true
				}
			}
		}
		if matches >= 2 || heavy {
			out = append(out, p.Category)
		}
	}
	sort.Strings(out)
	return out
}
