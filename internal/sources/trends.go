package sources

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"storyradar/internal/logger"
	"storyradar/internal/model"
)

// Trends reads the Google Trends daily RSS feed. The feed exposes no
// engagement counters, only an approximate traffic figure in the "ht"
// extension, so items are tagged with TrendMetrics and the scorer treats
// them as rising searches.
type Trends struct {
	feedURL string
	timeout time.Duration
}

func NewTrends(feedURL string, timeout time.Duration) *Trends {
	return &Trends{feedURL: feedURL, timeout: timeout}
}

func (t *Trends) Name() string { return "trends" }

func (t *Trends) Fetch(ctx context.Context) ([]model.RawStory, error) {
	if t.feedURL == "" {
		return nil, nil
	}

	parser := gofeed.NewParser()
	parser.Client = httpClient(t.timeout)

	feed, err := parser.ParseURLWithContext(t.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse trends feed: %w", err)
	}

	stories := make([]model.RawStory, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Title == "" || item.Link == "" {
			continue
		}
		stories = append(stories, model.RawStory{
			Headline:  item.Title,
			SourceURL: item.Link,
			Sources:   []model.Source{{Name: "Google Trends", URL: item.Link}},
			Signals: &model.PlatformSignals{
				Kind: model.SignalTrend,
				Trend: &model.TrendMetrics{
					TrafficVolume: approxTraffic(item),
					Rising:        true,
				},
			},
		})
	}

	logger.Debug("trends fetched", "items", len(stories))
	return stories, nil
}

// approxTraffic parses the ht:approx_traffic extension ("50,000+" -> 50000).
// Missing or unparseable values come back as zero; the scorer floors those.
func approxTraffic(item *gofeed.Item) int {
	ext, ok := item.Extensions["ht"]
	if !ok {
		return 0
	}
	entries, ok := ext["approx_traffic"]
	if !ok || len(entries) == 0 {
		return 0
	}

	raw := entries[0].Value
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "+")
	raw = strings.ReplaceAll(raw, ",", "")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
