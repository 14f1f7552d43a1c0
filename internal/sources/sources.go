// Package sources contains the external signal collaborators the ingestion
// aggregator fans out to. Each implementation returns the uniform RawStory
// shape and never panics the run; a broken upstream is reported as an error
// for that source only.
package sources

import (
	"context"
	"net/http"
	"time"

	"storyradar/internal/model"
)

// Source pulls candidate stories from one upstream provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]model.RawStory, error)
}

// httpClient is shared by the scrapers; upstreams get 15s before we give up
// so one slow provider cannot stall the whole ingestion run.
func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
