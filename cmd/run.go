package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlwait/waitbot/internal/publisher/memory"
	"github.com/atlwait/waitbot/internal/waittimes"
)

// newRunCmd creates and configures the 'run' subcommand, the bot's main
// mode: fetch, parse, compose, post, sleep, repeat until signaled.
func newRunCmd() *cobra.Command {
	var (
		once   bool
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Starts the wait-times publish loop",
		Long: `Fetches the checkpoint wait-times page on the configured interval and
posts a status message each cycle. The loop runs until SIGINT or SIGTERM
and finishes the in-flight cycle before exiting.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPublishLoop(cmd, once, dryRun)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run exactly one cycle, then exit")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "record messages in memory instead of posting them")
	return cmd
}

func runPublishLoop(cmd *cobra.Command, once, dryRun bool) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()
	cfg := appInstance.GetConfig()

	var (
		pub      waittimes.Publisher
		recorder *memory.Publisher
	)
	if dryRun {
		logger.Info("dry run: messages will be recorded, not posted")
		recorder = memory.New()
		pub = recorder
	} else {
		pub, err = appInstance.NewTwitterPublisher()
		if err != nil {
			return fmt.Errorf("configure publisher: %w", err)
		}
	}

	bot := appInstance.NewRunner(pub)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Ops.Enabled {
		srv := appInstance.NewOpsServer(bot)
		go func() {
			if serr := srv.Serve(ctx); serr != nil {
				logger.Error("ops server failed", zap.Error(serr))
			}
		}()
	}

	if once {
		if err := bot.RunOnce(ctx); err != nil {
			return fmt.Errorf("cycle: %w", err)
		}
		printRecorded(cmd, recorder)
		return nil
	}

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("publish loop: %w", err)
	}
	logger.Info("bot stopped")
	return nil
}

// printRecorded echoes dry-run output so a manual --once --dry-run shows
// the exact message a real run would have posted.
func printRecorded(cmd *cobra.Command, recorder *memory.Publisher) {
	if recorder == nil {
		return
	}
	for _, post := range recorder.Posts() {
		fmt.Fprintln(cmd.OutOrStdout(), post)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
