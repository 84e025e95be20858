// Package app initializes and holds long-lived services, acting as a
// dependency injection container for the commands.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/atlwait/waitbot/internal/api"
	"github.com/atlwait/waitbot/internal/clock/system"
	"github.com/atlwait/waitbot/internal/config"
	"github.com/atlwait/waitbot/internal/fetcher"
	collyfetcher "github.com/atlwait/waitbot/internal/fetcher/colly"
	headlessfetcher "github.com/atlwait/waitbot/internal/fetcher/headless"
	"github.com/atlwait/waitbot/internal/format"
	"github.com/atlwait/waitbot/internal/hash/sha256"
	uuidgen "github.com/atlwait/waitbot/internal/id/uuid"
	"github.com/atlwait/waitbot/internal/logging"
	"github.com/atlwait/waitbot/internal/metrics"
	"github.com/atlwait/waitbot/internal/parser"
	"github.com/atlwait/waitbot/internal/publisher/twitter"
	"github.com/atlwait/waitbot/internal/runner"
	"github.com/atlwait/waitbot/internal/waittimes"
)

// App holds the shared, long-lived services for the bot. It is initialized
// once at startup and handed to the command that needs it. Collaborators
// that depend on the chosen publisher (the runner, the ops server) are built
// on demand through the New* methods.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	fetcher  waittimes.Fetcher
	headless *headlessfetcher.Fetcher
	parser   *parser.Parser
	composer *format.Formatter
	clock    waittimes.Clock
	ids      waittimes.IDGenerator
	hasher   waittimes.Hasher
}

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetFetcher exposes the retry-wrapped page fetcher.
func (a *App) GetFetcher() waittimes.Fetcher {
	return a.fetcher
}

// GetParser exposes the checkpoint parser.
func (a *App) GetParser() waittimes.Parser {
	return a.parser
}

// GetComposer exposes the status message composer.
func (a *App) GetComposer() waittimes.Composer {
	return a.composer
}

// GetClock returns the wall clock.
func (a *App) GetClock() waittimes.Clock {
	return a.clock
}

// New creates and initializes an App from the loaded configuration. It is
// the central point for service initialization and fails fast if any
// critical service cannot be built. A headless fetcher that fails to start
// is the one exception: the bot degrades to static fetching with a warning,
// matching how it behaves on hosts without a browser.
func New(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	metrics.Init()

	static := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Scrape.UserAgent,
		Timeout:   cfg.RequestTimeout(),
	})
	policy := waittimes.NewExponentialRetryPolicy(cfg.HTTP.MaxRetries, cfg.BackoffInitial(), cfg.BackoffMax())
	retrying := fetcher.NewRetrying(static, policy, logger.Named("fetcher"))

	a := &App{
		cfg:      cfg,
		logger:   logger,
		fetcher:  retrying,
		parser:   parser.New(logger.Named("parser")),
		composer: format.New(logger.Named("format")),
		clock:    system.New(),
		ids:      uuidgen.New(),
		hasher:   sha256.New(),
	}

	if cfg.Headless.Enabled {
		headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			UserAgent:         cfg.Scrape.UserAgent,
			NavigationTimeout: cfg.Headless.NavTimeout(),
		})
		if err != nil {
			logger.Warn("headless fetcher unavailable, continuing static-only", zap.Error(err))
		} else {
			a.headless = headless
		}
	}

	logger.Info("services initialized",
		zap.String("url", cfg.Scrape.URL),
		zap.Duration("interval", cfg.Interval()),
		zap.Bool("headless", a.headless != nil),
	)
	return a, nil
}

// NewTwitterPublisher builds the posting client. Credentials are validated
// here so commands that never post can run without them.
func (a *App) NewTwitterPublisher() (*twitter.Publisher, error) {
	if err := a.cfg.Twitter.Validate(); err != nil {
		return nil, err
	}
	return twitter.New(a.cfg.Twitter, a.cfg.RequestTimeout(), a.logger.Named("twitter")), nil
}

// NewRunner wires the pipeline around the given publisher.
func (a *App) NewRunner(pub waittimes.Publisher) *runner.Runner {
	// The fallback stays a nil interface unless a headless fetcher actually
	// exists; a typed nil would read as present inside the runner.
	var fallback waittimes.Fetcher
	if a.headless != nil {
		fallback = a.headless
	}
	return runner.New(
		runner.Config{ScrapeURL: a.cfg.Scrape.URL, Interval: a.cfg.Interval()},
		a.fetcher,
		fallback,
		a.parser,
		a.composer,
		pub,
		a.clock,
		a.ids,
		a.hasher,
		a.logger.Named("runner"),
	)
}

// NewOpsServer builds the operational HTTP server around a status source.
func (a *App) NewOpsServer(status api.StatusSource) *api.Server {
	return api.NewServer(a.cfg.Ops.Addr, status, a.logger.Named("api"))
}

// Close shuts down the services in the container. It is called by a Cobra
// hook after the command finishes.
func (a *App) Close() {
	if a.headless != nil {
		a.headless.Close()
	}
	// Best effort: syncing stdout commonly fails on some platforms and there
	// is nowhere left to report it.
	_ = a.logger.Sync()
}
