// Package runner drives the scrape, parse, format, publish pipeline on a
// fixed schedule until its context is canceled.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlwait/waitbot/internal/metrics"
	"github.com/atlwait/waitbot/internal/waittimes"
)

// Stage names the pipeline step a cycle is currently in.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageFetching   Stage = "fetching"
	StageParsing    Stage = "parsing"
	StageFormatting Stage = "formatting"
	StagePublishing Stage = "publishing"
	StageSleeping   Stage = "sleeping"
)

// Cycle outcomes, used as log fields, metric labels, and status values.
const (
	OutcomePublished     = "published"
	OutcomeFetchFailed   = "fetch_failed"
	OutcomeAuthFailed    = "auth_failed"
	OutcomeRateLimited   = "rate_limited"
	OutcomePostRejected  = "post_rejected"
	OutcomePublishFailed = "publish_failed"
	OutcomeCanceled      = "canceled"
)

// probeTimeout bounds the startup connectivity check.
const probeTimeout = 5 * time.Second

// Config controls Runner behavior.
type Config struct {
	ScrapeURL string
	Interval  time.Duration
}

// Status is a point-in-time view of the loop for the ops endpoints.
type Status struct {
	Stage           Stage     `json:"stage"`
	Cycles          int       `json:"cycles"`
	LastRunID       string    `json:"last_run_id,omitempty"`
	LastOutcome     string    `json:"last_outcome,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	LastCheckpoints int       `json:"last_checkpoints"`
	LastSuccess     time.Time `json:"last_success"`
}

// Runner owns one pipeline's collaborators and executes cycles. A nil
// fallback fetcher disables the render path.
type Runner struct {
	cfg       Config
	fetcher   waittimes.Fetcher
	fallback  waittimes.Fetcher
	parser    waittimes.Parser
	composer  waittimes.Composer
	publisher waittimes.Publisher
	clock     waittimes.Clock
	ids       waittimes.IDGenerator
	hasher    waittimes.Hasher
	logger    *zap.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	status Status
}

// New constructs a Runner.
func New(
	cfg Config,
	fetcher waittimes.Fetcher,
	fallback waittimes.Fetcher,
	parser waittimes.Parser,
	composer waittimes.Composer,
	publisher waittimes.Publisher,
	clock waittimes.Clock,
	ids waittimes.IDGenerator,
	hasher waittimes.Hasher,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:       cfg,
		fetcher:   fetcher,
		fallback:  fallback,
		parser:    parser,
		composer:  composer,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		hasher:    hasher,
		logger:    logger,
		sleep:     waittimes.Sleep,
		status:    Status{Stage: StageIdle},
	}
}

// WithSleep overrides the inter-cycle pause. Tests use it to observe the
// schedule without real waiting.
func (r *Runner) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Runner {
	if sleep != nil {
		r.sleep = sleep
	}
	return r
}

// Run executes cycles until ctx is canceled: the first immediately, then one
// per interval. Cycle failures are logged and counted, never fatal; Run only
// returns once shutdown is requested.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.Probe(ctx); err != nil {
		r.logger.Warn("startup connectivity probe failed", zap.Error(err))
	} else {
		r.logger.Info("startup connectivity probe passed")
	}

	r.logger.Info("starting publish loop",
		zap.String("url", r.cfg.ScrapeURL),
		zap.Duration("interval", r.cfg.Interval))

	for {
		if ctx.Err() != nil {
			break
		}

		// Errors are already logged and recorded by RunOnce; the loop's
		// job is only to keep going.
		_ = r.RunOnce(ctx)

		if ctx.Err() != nil {
			break
		}

		r.setStage(StageSleeping)
		r.logger.Info("sleeping until next cycle", zap.Duration("interval", r.cfg.Interval))
		if err := r.sleep(ctx, r.cfg.Interval); err != nil {
			break
		}
	}

	r.setStage(StageIdle)
	r.logger.Info("publish loop stopped")
	return nil
}

// RunOnce executes a single cycle and reports its outcome as an error for
// callers that exit after one cycle.
func (r *Runner) RunOnce(ctx context.Context) error {
	runID := r.newRunID()
	logger := r.logger.With(zap.String("run_id", runID))
	started := r.clock.Now()

	outcome, checkpoints, err := r.cycle(ctx, logger)

	metrics.ObserveCycle(outcome)
	r.recordCycle(runID, outcome, checkpoints, err)

	if err != nil {
		logger.Error("cycle failed",
			zap.String("outcome", outcome),
			zap.Duration("elapsed", r.clock.Now().Sub(started)),
			zap.Error(err))
		return err
	}

	metrics.SetLastSuccess(r.clock.Now())
	logger.Info("cycle complete",
		zap.String("outcome", outcome),
		zap.Int("checkpoints", checkpoints),
		zap.Duration("elapsed", r.clock.Now().Sub(started)))
	return nil
}

// Probe fetches the scrape URL under a short deadline as a connectivity
// check. Callers decide whether a failure matters.
func (r *Runner) Probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if _, err := r.fetcher.Fetch(probeCtx, waittimes.FetchRequest{URL: r.cfg.ScrapeURL}); err != nil {
		return fmt.Errorf("probe %s: %w", r.cfg.ScrapeURL, err)
	}
	return nil
}

// Status returns a copy of the loop's current observable state.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Runner) cycle(ctx context.Context, logger *zap.Logger) (string, int, error) {
	r.setStage(StageFetching)
	resp, err := r.fetcher.Fetch(ctx, waittimes.FetchRequest{URL: r.cfg.ScrapeURL})
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeCanceled, 0, fmt.Errorf("fetch page: %w", err)
		}
		return OutcomeFetchFailed, 0, fmt.Errorf("fetch page: %w", err)
	}
	r.logFetched(logger, resp)

	r.setStage(StageParsing)
	entries := r.parser.Parse(resp.Body)
	if len(entries) == 0 && r.fallback != nil && !resp.Rendered && !r.parser.HasCheckpointSection(resp.Body) {
		entries = r.renderAndReparse(ctx, logger, entries)
	}
	metrics.SetCheckpointCount(len(entries))
	logger.Info("parsed checkpoints", zap.Int("count", len(entries)))

	snapshot := waittimes.Snapshot{ScrapedAt: r.clock.Now(), Entries: entries}

	r.setStage(StageFormatting)
	message := r.composer.Compose(snapshot)
	logger.Debug("composed status message", zap.String("message", message))

	r.setStage(StagePublishing)
	result, err := r.publisher.Publish(ctx, message)
	if err != nil {
		outcome, postStatus := classifyPublishError(err)
		metrics.ObservePost(postStatus)
		if ctx.Err() != nil {
			return OutcomeCanceled, len(entries), fmt.Errorf("publish message: %w", err)
		}
		return outcome, len(entries), fmt.Errorf("publish message: %w", err)
	}
	metrics.ObservePost("success")
	logger.Info("message published", zap.String("post_id", result.ID))

	return OutcomePublished, len(entries), nil
}

// renderAndReparse runs the headless fetcher once when the static page came
// back as a script shell. Any failure falls back to the entries already in
// hand.
func (r *Runner) renderAndReparse(ctx context.Context, logger *zap.Logger, entries []waittimes.Entry) []waittimes.Entry {
	logger.Info("static markup has no checkpoint section, rendering page")

	resp, err := r.fallback.Fetch(ctx, waittimes.FetchRequest{URL: r.cfg.ScrapeURL})
	if err != nil {
		logger.Warn("render fallback failed", zap.Error(err))
		return entries
	}
	r.logFetched(logger, resp)

	rendered := r.parser.Parse(resp.Body)
	if len(rendered) == 0 {
		logger.Warn("rendered markup produced no checkpoints either")
		return entries
	}
	return rendered
}

func (r *Runner) logFetched(logger *zap.Logger, resp waittimes.FetchResponse) {
	fields := []zap.Field{
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(resp.Body)),
		zap.Duration("duration", resp.Duration),
		zap.Bool("rendered", resp.Rendered),
	}
	if digest, err := r.hasher.Hash(resp.Body); err == nil {
		fields = append(fields, zap.String("body_sha256", digest))
	}
	logger.Debug("page fetched", fields...)
}

func (r *Runner) newRunID() string {
	id, err := r.ids.NewID()
	if err != nil {
		r.logger.Warn("run id generation failed", zap.Error(err))
		return "unidentified"
	}
	return id
}

func (r *Runner) setStage(stage Stage) {
	r.mu.Lock()
	r.status.Stage = stage
	r.mu.Unlock()
}

func (r *Runner) recordCycle(runID, outcome string, checkpoints int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.Stage = StageIdle
	r.status.Cycles++
	r.status.LastRunID = runID
	r.status.LastOutcome = outcome
	r.status.LastCheckpoints = checkpoints
	if err != nil {
		r.status.LastError = err.Error()
		return
	}
	r.status.LastError = ""
	r.status.LastSuccess = r.clock.Now()
}

// classifyPublishError maps a publish failure to its cycle outcome and
// posting metric label.
func classifyPublishError(err error) (string, string) {
	switch {
	case errors.Is(err, waittimes.ErrAuth):
		return OutcomeAuthFailed, "auth"
	case errors.Is(err, waittimes.ErrRateLimited):
		return OutcomeRateLimited, "rate_limited"
	case errors.Is(err, waittimes.ErrPostRejected):
		return OutcomePostRejected, "rejected"
	}
	return OutcomePublishFailed, "error"
}
