// Package cmd defines and implements the CLI commands for the waitbot
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlwait/waitbot/internal/api"
	"github.com/atlwait/waitbot/internal/app"
	"github.com/atlwait/waitbot/internal/config"
	"github.com/atlwait/waitbot/internal/publisher/twitter"
	"github.com/atlwait/waitbot/internal/runner"
	"github.com/atlwait/waitbot/internal/waittimes"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use. It allows
// injecting a mock app during tests.
type App interface {
	Close()
	GetLogger() *zap.Logger
	GetConfig() config.Config
	GetFetcher() waittimes.Fetcher
	GetParser() waittimes.Parser
	GetComposer() waittimes.Composer
	GetClock() waittimes.Clock
	NewTwitterPublisher() (*twitter.Publisher, error)
	NewRunner(pub waittimes.Publisher) *runner.Runner
	NewOpsServer(status api.StatusSource) *api.Server
}

// newApp is the application factory. It is a variable so tests can replace
// it with a mock factory.
var newApp func(cfgPath string) (App, error) = func(cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waitbot",
		Short: "Posts ATL security checkpoint wait times on a schedule.",
		Long: `waitbot scrapes the published TSA checkpoint wait times for
Hartsfield-Jackson Atlanta International Airport and posts a compact
status message every cycle. Posting credentials come from the
environment: TWITTER_API_KEY, TWITTER_API_SECRET, TWITTER_ACCESS_TOKEN
and TWITTER_ACCESS_TOKEN_SECRET.`,

		// Runs after flag parsing but before the subcommand's RunE, so every
		// subcommand finds a fully built application in its context.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cfgFile)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}

			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional, settings also come from WAITBOT_* env vars)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute is the main entry point. Cobra prints the failing error itself;
// the exit code is all that is left to set.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
