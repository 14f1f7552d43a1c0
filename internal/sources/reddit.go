package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"storyradar/internal/logger"
	"storyradar/internal/model"
)

const redditUserAgent = "storyradar/1.0 (editorial discovery bot)"

// Reddit scrapes hot threads from the configured subreddits through the
// public JSON endpoints. Output is capped so a busy subreddit cannot blow
// the ingestion batch.
type Reddit struct {
	subreddits []string
	itemCap    int
	timeout    time.Duration
	baseURL    string // overridable in tests
}

func NewReddit(subreddits []string, itemCap int, timeout time.Duration) *Reddit {
	if itemCap <= 0 {
		itemCap = 15
	}
	return &Reddit{
		subreddits: subreddits,
		itemCap:    itemCap,
		timeout:    timeout,
		baseURL:    "https://www.reddit.com",
	}
}

func (r *Reddit) Name() string { return "reddit" }

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	Subreddit   string  `json:"subreddit"`
	Stickied    bool    `json:"stickied"`
}

// Fetch reads hot posts per subreddit and keeps the itemCap highest-scored.
func (r *Reddit) Fetch(ctx context.Context) ([]model.RawStory, error) {
	client := httpClient(r.timeout)

	var posts []redditPost
	okCount := 0

	for _, sub := range r.subreddits {
		url := fmt.Sprintf("%s/r/%s/hot.json?limit=25", r.baseURL, sub)
		listing, err := r.fetchListing(ctx, client, url)
		if err != nil {
			logger.Warn("reddit listing failed", "subreddit", sub, "error", err)
			continue
		}
		okCount++
		for _, child := range listing.Data.Children {
			if child.Data.Stickied || child.Data.Title == "" {
				continue
			}
			posts = append(posts, child.Data)
		}
	}

	if okCount == 0 && len(r.subreddits) > 0 {
		return nil, fmt.Errorf("all %d subreddit listings failed", len(r.subreddits))
	}

	sort.Slice(posts, func(i, j int) bool { return posts[i].Score > posts[j].Score })
	if len(posts) > r.itemCap {
		posts = posts[:r.itemCap]
	}

	now := time.Now()
	stories := make([]model.RawStory, 0, len(posts))
	for _, p := range posts {
		link := p.URL
		if link == "" {
			link = r.baseURL + p.Permalink
		}
		ageMinutes := now.Sub(time.Unix(int64(p.CreatedUTC), 0)).Minutes()
		stories = append(stories, model.RawStory{
			Headline:  p.Title,
			SourceURL: link,
			Sources: []model.Source{
				{Name: "r/" + p.Subreddit, URL: r.baseURL + p.Permalink},
			},
			Signals: &model.PlatformSignals{
				Kind: model.SignalDiscussion,
				Discussion: &model.DiscussionMetrics{
					Score:       p.Score,
					NumComments: p.NumComments,
					AgeMinutes:  ageMinutes,
				},
			},
		})
	}

	logger.Debug("reddit fetched", "subreddits_ok", okCount, "items", len(stories))
	return stories, nil
}

func (r *Reddit) fetchListing(ctx context.Context, client *http.Client, url string) (*redditListing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	// Reddit rejects default Go user agents with 429s.
	req.Header.Set("User-Agent", redditUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	return &listing, nil
}
