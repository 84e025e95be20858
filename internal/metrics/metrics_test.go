package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestObserveHelpersBeforeInit ensures recording is a no-op, not a panic,
// when collectors are not initialized (leaf-package unit tests rely on it).
func TestObserveHelpersBeforeInit(t *testing.T) {
	ObserveCycle("posted")
	ObserveFetch("success", time.Second)
	ObserveFetchRetry()
	ObserveParseSkip("non-numeric wait time")
	SetCheckpointCount(3)
	ObservePost("posted")
	SetLastSuccess(time.Now())
	ObserveHTTPRequest(http.MethodGet, "/healthz", http.StatusOK, time.Millisecond)
}

// TestInitAndScrape verifies collectors register once and show up on the
// metrics endpoint after observations.
func TestInitAndScrape(t *testing.T) {
	Init()
	Init() // idempotent

	ObserveCycle("posted")
	ObserveFetch("success", 250*time.Millisecond)
	ObserveFetchRetry()
	ObserveParseSkip("non-numeric wait time")
	SetCheckpointCount(4)
	ObservePost("posted")
	SetLastSuccess(time.Unix(1700000000, 0))
	ObserveHTTPRequest(http.MethodGet, "/metrics", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, name := range []string{
		"waitbot_cycles_total",
		"waitbot_fetches_total",
		"waitbot_fetch_retries_total",
		"waitbot_parse_skips_total",
		"waitbot_checkpoints_last_parse",
		"waitbot_posts_total",
		"waitbot_last_success_timestamp_seconds",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}
