package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/atlwait/waitbot/internal/format"
	"github.com/atlwait/waitbot/internal/waittimes"
)

// newCheckCmd creates the 'check' subcommand: one full fetch+parse+compose
// pass with the result printed instead of posted. Doubles as the manual
// connectivity probe.
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Fetches and parses the wait-times page without posting",
		Long: `Performs a single fetch of the configured page, parses the checkpoint
wait times, and prints both a severity table and the exact message a run
cycle would post. Nothing is sent to the posting platform and no
credentials are required.`,

		RunE: runCheckCommand,
	}
}

func runCheckCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.GetConfig()
	out := cmd.OutOrStdout()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	resp, err := appInstance.GetFetcher().Fetch(ctx, waittimes.FetchRequest{URL: cfg.Scrape.URL})
	if err != nil {
		return fmt.Errorf("fetch %s: %w", cfg.Scrape.URL, err)
	}
	fmt.Fprintf(out, "Fetched %s: status %d, %d bytes in %s\n\n",
		resp.URL, resp.StatusCode, len(resp.Body), resp.Duration.Round(time.Millisecond))

	entries := appInstance.GetParser().Parse(resp.Body)
	snapshot := waittimes.Snapshot{
		ScrapedAt: appInstance.GetClock().Now(),
		Entries:   entries,
	}
	message := appInstance.GetComposer().Compose(snapshot)

	if len(entries) == 0 {
		fmt.Fprintln(out, "No checkpoint data found on the page.")
		if !appInstance.GetParser().HasCheckpointSection(resp.Body) {
			fmt.Fprintln(out, "The checkpoint section is missing entirely; the page is likely script-rendered. Consider enabling the headless fetcher.")
		}
	} else {
		renderCheckpointTable(cmd, entries)
	}

	fmt.Fprintf(out, "\nMessage (%d/%d chars):\n%s\n",
		utf8.RuneCountInString(message), format.PostCharLimit, message)
	return nil
}

func renderCheckpointTable(cmd *cobra.Command, entries []waittimes.Entry) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Checkpoint", "Wait", "Severity"})
	for _, e := range entries {
		t.AppendRow(table.Row{
			format.DisplayName(e.Checkpoint),
			fmt.Sprintf("%d min", e.Minutes),
			format.Emoji(e.Minutes),
		})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
