// Package waittimes defines core types shared across the bot's pipeline stages.
package waittimes

import (
	"net/http"
	"time"
)

// Entry is one checkpoint's published wait time.
type Entry struct {
	Checkpoint string `json:"checkpoint"`
	Minutes    int    `json:"minutes"`
}

// Snapshot holds the entries extracted from one fetch cycle, in page order.
// Entries may be empty when the page carried no usable data.
type Snapshot struct {
	ScrapedAt time.Time `json:"scraped_at"`
	Entries   []Entry   `json:"entries"`
}

// Empty reports whether the snapshot carries no entries.
func (s Snapshot) Empty() bool {
	return len(s.Entries) == 0
}

// FetchRequest captures everything needed to fetch the wait-times page.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Rendered   bool
}

// PostResult identifies the post created by a Publisher.
type PostResult struct {
	ID string `json:"id"`
}
