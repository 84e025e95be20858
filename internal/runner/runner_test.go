package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlwait/waitbot/internal/format"
	"github.com/atlwait/waitbot/internal/hash/sha256"
	uuidgen "github.com/atlwait/waitbot/internal/id/uuid"
	"github.com/atlwait/waitbot/internal/parser"
	"github.com/atlwait/waitbot/internal/publisher/memory"
	"github.com/atlwait/waitbot/internal/waittimes"
)

const waitTimesPage = `<html><body>
<div class="terminal-times">
  <div class="heading"><h1>DOMESTIC Terminal</h1></div>
  <div class="lomestic"><h2>NORTH CHECKPOINT</h2></div>
  <div class="lomestic float-right"><div class="declasser3"><button><span>10</span></button></div></div>
  <div class="lomestic"><h2>SOUTH CHECKPOINT</h2></div>
  <div class="lomestic float-right"><div class="declasser3"><button><span>35</span></button></div></div>
</div>
</body></html>`

const scriptShellPage = `<html><body><div id="app"></div><script src="/bundle.js"></script></body></html>`

const closedSectionPage = `<html><body>
<div class="terminal-times">
  <div class="heading"><h1>DOMESTIC Terminal</h1></div>
  <div class="lomestic"><h2>NORTH CHECKPOINT</h2></div>
  <div class="lomestic float-right"><div class="declasser3"><button><span>Closed</span></button></div></div>
</div>
</body></html>`

// fakeFetcher serves one scripted response per call, repeating the last.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	results []fetchResult
}

type fetchResult struct {
	resp waittimes.FetchResponse
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ waittimes.FetchRequest) (waittimes.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx].resp, f.results[idx].err
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func pageResponse(body string, rendered bool) fetchResult {
	return fetchResult{resp: waittimes.FetchResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(body),
		Duration:   20 * time.Millisecond,
		Rendered:   rendered,
	}}
}

// fakeClock pins Now so composed timestamps are assertable.
type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time {
	return c.now
}

// failingPublisher rejects every publish with a fixed error.
type failingPublisher struct {
	err   error
	calls int
}

func (p *failingPublisher) Publish(_ context.Context, _ string) (waittimes.PostResult, error) {
	p.calls++
	return waittimes.PostResult{}, p.err
}

func newTestRunner(fetcher, fallback waittimes.Fetcher, pub waittimes.Publisher) *Runner {
	return New(
		Config{ScrapeURL: "https://www.atl.com/times/", Interval: 30 * time.Minute},
		fetcher,
		fallback,
		parser.New(zap.NewNop()),
		format.New(zap.NewNop()),
		pub,
		fakeClock{now: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)},
		uuidgen.New(),
		sha256.New(),
		zap.NewNop(),
	)
}

func TestRunOncePublishesWaitTimes(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{results: []fetchResult{pageResponse(waitTimesPage, false)}}
	pub := memory.New()
	r := newTestRunner(fetcher, nil, pub)

	require.NoError(t, r.RunOnce(context.Background()))

	posts := pub.Posts()
	require.Len(t, posts, 1)
	require.Contains(t, posts[0], "Current TSA wait times (as of 2026-03-14 09:30:00):")
	require.Contains(t, posts[0], "\U0001F7E2 North: 10 min\n")
	require.Contains(t, posts[0], "\U0001F7E0 South: 35 min\n")

	status := r.Status()
	require.Equal(t, 1, status.Cycles)
	require.Equal(t, OutcomePublished, status.LastOutcome)
	require.Equal(t, 2, status.LastCheckpoints)
	require.NotEmpty(t, status.LastRunID)
	require.Empty(t, status.LastError)
	require.Equal(t, time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC), status.LastSuccess)
	require.Equal(t, StageIdle, status.Stage)
}

func TestRunOncePublishesFallbackMessageWhenPageHasNoData(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{results: []fetchResult{pageResponse(closedSectionPage, false)}}
	pub := memory.New()
	r := newTestRunner(fetcher, nil, pub)

	require.NoError(t, r.RunOnce(context.Background()))

	posts := pub.Posts()
	require.Len(t, posts, 1)
	require.Equal(t, format.UnavailableMessage, posts[0])

	status := r.Status()
	require.Equal(t, OutcomePublished, status.LastOutcome)
	require.Equal(t, 0, status.LastCheckpoints)
}

func TestRunOnceFetchFailureSkipsRemainingStages(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{results: []fetchResult{
		{err: &waittimes.HTTPStatusError{StatusCode: http.StatusNotFound, URL: "https://www.atl.com/times/"}},
	}}
	pub := memory.New()
	r := newTestRunner(fetcher, nil, pub)

	err := r.RunOnce(context.Background())
	require.Error(t, err)
	require.Empty(t, pub.Posts(), "a failed fetch must not publish anything")

	status := r.Status()
	require.Equal(t, 1, status.Cycles)
	require.Equal(t, OutcomeFetchFailed, status.LastOutcome)
	require.NotEmpty(t, status.LastError)
	require.True(t, status.LastSuccess.IsZero())
}

func TestRunOnceClassifiesPublishFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		publishErr  error
		wantOutcome string
	}{
		{name: "auth", publishErr: fmt.Errorf("post: %w", waittimes.ErrAuth), wantOutcome: OutcomeAuthFailed},
		{name: "rate limited", publishErr: fmt.Errorf("post: %w", waittimes.ErrRateLimited), wantOutcome: OutcomeRateLimited},
		{name: "rejected", publishErr: fmt.Errorf("post: %w", waittimes.ErrPostRejected), wantOutcome: OutcomePostRejected},
		{name: "other", publishErr: errors.New("connection reset"), wantOutcome: OutcomePublishFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fetcher := &fakeFetcher{results: []fetchResult{pageResponse(waitTimesPage, false)}}
			pub := &failingPublisher{err: tc.publishErr}
			r := newTestRunner(fetcher, nil, pub)

			err := r.RunOnce(context.Background())
			require.Error(t, err)
			require.Equal(t, 1, pub.calls)
			require.Equal(t, tc.wantOutcome, r.Status().LastOutcome)
		})
	}
}

func TestRunOnceRendersWhenStaticPageIsScriptShell(t *testing.T) {
	t.Parallel()

	static := &fakeFetcher{results: []fetchResult{pageResponse(scriptShellPage, false)}}
	fallback := &fakeFetcher{results: []fetchResult{pageResponse(waitTimesPage, true)}}
	pub := memory.New()
	r := newTestRunner(static, fallback, pub)

	require.NoError(t, r.RunOnce(context.Background()))

	require.Equal(t, 1, static.callCount())
	require.Equal(t, 1, fallback.callCount())

	posts := pub.Posts()
	require.Len(t, posts, 1)
	require.Contains(t, posts[0], "North: 10 min")
	require.Equal(t, 2, r.Status().LastCheckpoints)
}

func TestRunOnceSkipsRenderWhenSectionPresent(t *testing.T) {
	t.Parallel()

	// The domestic section exists but holds no usable numbers, so a render
	// would not help and must not happen.
	static := &fakeFetcher{results: []fetchResult{pageResponse(closedSectionPage, false)}}
	fallback := &fakeFetcher{results: []fetchResult{pageResponse(waitTimesPage, true)}}
	pub := memory.New()
	r := newTestRunner(static, fallback, pub)

	require.NoError(t, r.RunOnce(context.Background()))

	require.Equal(t, 0, fallback.callCount())
	require.Equal(t, []string{format.UnavailableMessage}, pub.Posts())
}

func TestRunOnceSkipsRenderWhenStaticParses(t *testing.T) {
	t.Parallel()

	static := &fakeFetcher{results: []fetchResult{pageResponse(waitTimesPage, false)}}
	fallback := &fakeFetcher{results: []fetchResult{pageResponse(waitTimesPage, true)}}
	pub := memory.New()
	r := newTestRunner(static, fallback, pub)

	require.NoError(t, r.RunOnce(context.Background()))
	require.Equal(t, 0, fallback.callCount())
}

func TestRunOnceToleratesRenderFailure(t *testing.T) {
	t.Parallel()

	static := &fakeFetcher{results: []fetchResult{pageResponse(scriptShellPage, false)}}
	fallback := &fakeFetcher{results: []fetchResult{{err: errors.New("browser crashed")}}}
	pub := memory.New()
	r := newTestRunner(static, fallback, pub)

	require.NoError(t, r.RunOnce(context.Background()))
	require.Equal(t, []string{format.UnavailableMessage}, pub.Posts())
}

func TestRunFirstCycleIsImmediate(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{results: []fetchResult{pageResponse(waitTimesPage, false)}}
	pub := memory.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var slept []time.Duration
	r := newTestRunner(fetcher, nil, pub).WithSleep(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		cancel()
		return ctx.Err()
	})

	require.NoError(t, r.Run(ctx))

	// One probe plus one cycle fetch, then the first sleep ended the loop.
	require.Equal(t, 2, fetcher.callCount())
	require.Len(t, pub.Posts(), 1)
	require.Equal(t, []time.Duration{30 * time.Minute}, slept)
	require.Equal(t, StageIdle, r.Status().Stage)
}

func TestRunExitsPromptlyWhenCanceledDuringSleep(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{results: []fetchResult{pageResponse(waitTimesPage, false)}}
	pub := memory.New()
	r := newTestRunner(fetcher, nil, pub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(pub.Posts()) == 1
	}, 5*time.Second, 10*time.Millisecond, "first cycle should complete")

	// The loop is now asleep for 30 minutes. Cancellation must end it in
	// far less than that.
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop promptly after cancellation")
	}

	require.Len(t, pub.Posts(), 1, "no further cycles after shutdown")
}

func TestRunContinuesAfterFailedCycles(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{results: []fetchResult{
		pageResponse(waitTimesPage, false), // probe
		{err: errors.New("connection refused")},
		pageResponse(waitTimesPage, false),
	}}
	pub := memory.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleeps := 0
	r := newTestRunner(fetcher, nil, pub).WithSleep(func(ctx context.Context, _ time.Duration) error {
		sleeps++
		if sleeps == 2 {
			cancel()
		}
		return ctx.Err()
	})

	require.NoError(t, r.Run(ctx))

	require.Len(t, pub.Posts(), 1, "second cycle should publish after the first failed")
	require.Equal(t, 2, r.Status().Cycles)
	require.Equal(t, OutcomePublished, r.Status().LastOutcome)
}

func TestProbeReportsFetchErrors(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{results: []fetchResult{
		{err: &waittimes.HTTPStatusError{StatusCode: http.StatusServiceUnavailable, URL: "https://www.atl.com/times/"}},
	}}
	r := newTestRunner(fetcher, nil, memory.New())

	err := r.Probe(context.Background())
	require.Error(t, err)

	var statusErr *waittimes.HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
}
