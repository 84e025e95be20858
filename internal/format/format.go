// Package format composes the status message posted each cycle.
package format

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/atlwait/waitbot/internal/waittimes"
)

// PostCharLimit is the platform's maximum post length, counted in runes.
const PostCharLimit = 280

// UnavailableMessage is posted when a cycle produced no usable wait times.
const UnavailableMessage = "TSA wait times currently unavailable. Please check https://www.atl.com/times/"

const timestampLayout = "2006-01-02 15:04:05"

// band maps an inclusive upper bound in minutes to a severity emoji.
type band struct {
	max   int
	emoji string
}

var bands = []band{
	{max: 15, emoji: "\U0001F7E2"}, // green
	{max: 30, emoji: "\U0001F7E1"}, // yellow
	{max: 45, emoji: "\U0001F7E0"}, // orange
	{max: 60, emoji: "\U0001F7E3"}, // purple
}

const worstEmoji = "\U0001F534" // red, over an hour

// Emoji returns the severity indicator for a wait in minutes.
func Emoji(minutes int) string {
	for _, b := range bands {
		if minutes <= b.max {
			return b.emoji
		}
	}
	return worstEmoji
}

// DisplayName cleans a raw checkpoint label for the status message: the
// redundant CHECKPOINT word goes away, the Pre-Check lane reads as a
// parenthetical, and the remainder is title-cased.
func DisplayName(raw string) string {
	cleaned := strings.ReplaceAll(raw, "CHECKPOINT", "")
	cleaned = strings.ReplaceAll(cleaned, "PRECHECK ONLY", "(Pre-Check Only)")
	cleaned = strings.TrimSpace(cleaned)
	return cases.Title(language.English).String(cleaned)
}

// Formatter renders snapshots into bounded status messages.
type Formatter struct {
	limit  int
	logger *zap.Logger
}

// New builds a Formatter with the platform character limit.
func New(logger *zap.Logger) *Formatter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Formatter{limit: PostCharLimit, logger: logger}
}

// Compose renders the snapshot into a status message of 1..280 runes. An
// empty snapshot yields the distinct unavailable message. When the full
// message would exceed the limit, whole entries are dropped from the end
// first; a single oversized entry falls back to a hard rune truncation.
func (f *Formatter) Compose(snap waittimes.Snapshot) string {
	if snap.Empty() {
		f.logger.Warn("no wait times to format, using unavailable message")
		return UnavailableMessage
	}

	header := fmt.Sprintf("Current TSA wait times (as of %s):\n\n",
		snap.ScrapedAt.Format(timestampLayout))

	lines := make([]string, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		lines = append(lines, fmt.Sprintf("%s %s: %d min\n", Emoji(e.Minutes), DisplayName(e.Checkpoint), e.Minutes))
	}

	msg := header + strings.Join(lines, "")
	if runeLen(msg) <= f.limit {
		return msg
	}

	f.logger.Warn("status message over limit, dropping trailing entries",
		zap.Int("runes", runeLen(msg)),
		zap.Int("limit", f.limit),
		zap.Int("entries", len(lines)))

	for len(lines) > 1 {
		lines = lines[:len(lines)-1]
		msg = header + strings.Join(lines, "")
		if runeLen(msg) <= f.limit {
			return msg
		}
	}

	return f.truncate(header + strings.Join(lines, ""))
}

func (f *Formatter) truncate(msg string) string {
	runes := []rune(msg)
	if len(runes) <= f.limit {
		return msg
	}
	f.logger.Warn("hard-truncating status message", zap.Int("runes", len(runes)))
	return string(runes[:f.limit-3]) + "..."
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
