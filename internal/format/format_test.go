package format

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlwait/waitbot/internal/waittimes"
)

var composedAt = time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)

func snapshotOf(entries ...waittimes.Entry) waittimes.Snapshot {
	return waittimes.Snapshot{ScrapedAt: composedAt, Entries: entries}
}

func TestEmojiBandBoundaries(t *testing.T) {
	t.Parallel()

	cases := []struct {
		minutes int
		want    string
	}{
		{minutes: 0, want: "🟢"},
		{minutes: 10, want: "🟢"},
		{minutes: 15, want: "🟢"},
		{minutes: 16, want: "🟡"},
		{minutes: 20, want: "🟡"},
		{minutes: 30, want: "🟡"},
		{minutes: 31, want: "🟠"},
		{minutes: 40, want: "🟠"},
		{minutes: 45, want: "🟠"},
		{minutes: 46, want: "🟣"},
		{minutes: 55, want: "🟣"},
		{minutes: 60, want: "🟣"},
		{minutes: 61, want: "🔴"},
		{minutes: 70, want: "🔴"},
		{minutes: 240, want: "🔴"},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, Emoji(tc.minutes), "minutes=%d", tc.minutes)
	}
}

func TestDisplayNameCleanup(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
	}{
		{raw: "NORTH CHECKPOINT", want: "North"},
		{raw: "SOUTH CHECKPOINT", want: "South"},
		{raw: "MAIN CHECKPOINT", want: "Main"},
		{raw: "PRECHECK ONLY", want: "(Pre-Check Only)"},
		{raw: " SENATOR LEROY JOHNSON INTL CHECKPOINT ", want: "Senator Leroy Johnson Intl"},
		{raw: "lower case", want: "Lower Case"},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, DisplayName(tc.raw), "raw=%q", tc.raw)
	}
}

func TestComposeScenario(t *testing.T) {
	t.Parallel()

	f := New(zap.NewNop())
	msg := f.Compose(snapshotOf(
		waittimes.Entry{Checkpoint: "NORTH CHECKPOINT", Minutes: 10},
		waittimes.Entry{Checkpoint: "SOUTH CHECKPOINT", Minutes: 35},
	))

	require.True(t, strings.HasPrefix(msg, "Current TSA wait times (as of 2025-03-01 14:30:00):\n\n"), "got %q", msg)
	require.Contains(t, msg, "🟢 North: 10 min\n")
	require.Contains(t, msg, "🟠 South: 35 min\n")
	require.LessOrEqual(t, utf8.RuneCountInString(msg), PostCharLimit)
}

func TestComposeKeepsPageOrder(t *testing.T) {
	t.Parallel()

	f := New(zap.NewNop())
	msg := f.Compose(snapshotOf(
		waittimes.Entry{Checkpoint: "MAIN CHECKPOINT", Minutes: 25},
		waittimes.Entry{Checkpoint: "NORTH CHECKPOINT", Minutes: 5},
		waittimes.Entry{Checkpoint: "PRECHECK ONLY", Minutes: 70},
	))

	main := strings.Index(msg, "Main")
	north := strings.Index(msg, "North")
	pre := strings.Index(msg, "(Pre-Check Only)")
	require.True(t, main >= 0 && north > main && pre > north, "order wrong in %q", msg)
	require.Contains(t, msg, "🔴 (Pre-Check Only): 70 min\n")
}

func TestComposeEmptySnapshot(t *testing.T) {
	t.Parallel()

	f := New(zap.NewNop())
	msg := f.Compose(snapshotOf())

	require.Equal(t, UnavailableMessage, msg)
	require.NotEmpty(t, msg)
	require.LessOrEqual(t, utf8.RuneCountInString(msg), PostCharLimit)
}

func TestComposeDeterministic(t *testing.T) {
	t.Parallel()

	snap := snapshotOf(
		waittimes.Entry{Checkpoint: "NORTH CHECKPOINT", Minutes: 12},
		waittimes.Entry{Checkpoint: "SOUTH CHECKPOINT", Minutes: 48},
	)
	f := New(zap.NewNop())
	require.Equal(t, f.Compose(snap), f.Compose(snap))
}

func TestComposeDropsTrailingEntriesWhenOverLimit(t *testing.T) {
	t.Parallel()

	entries := make([]waittimes.Entry, 0, 20)
	for i := 0; i < 20; i++ {
		entries = append(entries, waittimes.Entry{
			Checkpoint: "TERMINAL CROSSOVER CHECKPOINT",
			Minutes:    i + 1,
		})
	}
	// Duplicate names never reach the formatter from the parser; vary them.
	for i := range entries {
		entries[i].Checkpoint = strings.Repeat("X", i+1) + " CHECKPOINT"
	}

	f := New(zap.NewNop())
	msg := f.Compose(snapshotOf(entries...))

	require.LessOrEqual(t, utf8.RuneCountInString(msg), PostCharLimit)
	require.True(t, strings.HasSuffix(msg, " min\n"), "should end on a whole entry line, got %q", msg)
	require.Contains(t, msg, "X: 1 min\n", "first entry must survive truncation")
}

func TestComposeHardTruncatesSingleOversizedEntry(t *testing.T) {
	t.Parallel()

	f := New(zap.NewNop())
	msg := f.Compose(snapshotOf(waittimes.Entry{
		Checkpoint: strings.Repeat("LONG ", 80) + "CHECKPOINT",
		Minutes:    90,
	}))

	require.Equal(t, PostCharLimit, utf8.RuneCountInString(msg))
	require.True(t, strings.HasSuffix(msg, "..."), "got %q", msg)
}

func TestComposeAllBandsRender(t *testing.T) {
	t.Parallel()

	f := New(zap.NewNop())
	msg := f.Compose(snapshotOf(
		waittimes.Entry{Checkpoint: "A CHECKPOINT", Minutes: 5},
		waittimes.Entry{Checkpoint: "B CHECKPOINT", Minutes: 20},
		waittimes.Entry{Checkpoint: "C CHECKPOINT", Minutes: 40},
		waittimes.Entry{Checkpoint: "D CHECKPOINT", Minutes: 55},
		waittimes.Entry{Checkpoint: "E CHECKPOINT", Minutes: 75},
	))

	for _, emoji := range []string{"🟢", "🟡", "🟠", "🟣", "🔴"} {
		require.Contains(t, msg, emoji)
	}
}
