package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"storyradar/internal/logger"
	"storyradar/internal/model"
)

// Newswire pulls press releases and wire stories from configured RSS/Atom
// feeds. Wire items carry no platform metrics, so they score the baseline
// velocity downstream.
type Newswire struct {
	feeds   []string
	maxAge  time.Duration
	timeout time.Duration
}

func NewNewswire(feeds []string, timeout time.Duration) *Newswire {
	return &Newswire{feeds: feeds, maxAge: 24 * time.Hour, timeout: timeout}
}

func (n *Newswire) Name() string { return "newswire" }

// Fetch parses every configured feed, tolerating individual feed failures.
// It errors only when not a single feed could be read.
func (n *Newswire) Fetch(ctx context.Context) ([]model.RawStory, error) {
	parser := gofeed.NewParser()
	parser.Client = httpClient(n.timeout)

	var stories []model.RawStory
	okCount := 0

	for _, url := range n.feeds {
		feed, err := parser.ParseURLWithContext(url, ctx)
		if err != nil {
			logger.Warn("newswire feed failed", "url", url, "error", err)
			continue
		}
		okCount++

		for _, item := range feed.Items {
			if item.Link == "" || item.Title == "" {
				continue
			}
			if item.PublishedParsed != nil && time.Since(*item.PublishedParsed) > n.maxAge {
				continue
			}
			stories = append(stories, model.RawStory{
				Headline:  item.Title,
				SourceURL: item.Link,
				Sources:   []model.Source{{Name: feed.Title, URL: item.Link}},
			})
		}
	}

	if okCount == 0 && len(n.feeds) > 0 {
		return nil, fmt.Errorf("all %d newswire feeds failed", len(n.feeds))
	}

	logger.Debug("newswire fetched", "feeds_ok", okCount, "items", len(stories))
	return stories, nil
}
