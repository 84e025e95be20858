// Package parser extracts checkpoint wait times from the airport page markup.
package parser

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/atlwait/waitbot/internal/metrics"
	"github.com/atlwait/waitbot/internal/waittimes"
)

// Selectors for the domestic-terminal section. The "lomestic" class is the
// page's own typo; it is part of the external contract, not ours to fix.
const (
	nameSelector = ".lomestic > h2"
	waitSelector = ".lomestic.float-right > .declasser3 > button > span"
)

// Parser performs structural lookups against the wait-times page.
type Parser struct {
	logger *zap.Logger
}

// New builds a Parser. A nil logger is replaced with a no-op one.
func New(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger}
}

// Parse extracts checkpoint entries from the domestic-terminal section, in
// page order. Malformed fragments are skipped with a warning; the result may
// be empty but parsing never fails. A checkpoint repeated on the page keeps
// its first position and its last reported value.
func (p *Parser) Parse(markup []byte) []waittimes.Entry {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		p.logger.Warn("parse markup", zap.Error(err))
		return nil
	}

	section := domesticSection(doc)
	if section == nil {
		p.logger.Warn("domestic heading not found in markup")
		return nil
	}

	names := section.Find(nameSelector)
	waits := section.Find(waitSelector)
	if names.Length() == 0 || waits.Length() == 0 {
		p.logger.Warn("no checkpoint or wait elements found",
			zap.Int("names", names.Length()),
			zap.Int("waits", waits.Length()))
		return nil
	}
	if names.Length() != waits.Length() {
		p.logger.Warn("checkpoint and wait counts differ",
			zap.Int("names", names.Length()),
			zap.Int("waits", waits.Length()))
	}

	count := names.Length()
	if waits.Length() < count {
		count = waits.Length()
	}

	entries := make([]waittimes.Entry, 0, count)
	index := make(map[string]int, count)
	for i := 0; i < count; i++ {
		name := strings.TrimSpace(names.Eq(i).Text())
		raw := strings.TrimSpace(waits.Eq(i).Text())

		if name == "" {
			p.skip("empty checkpoint name", zap.Int("position", i))
			continue
		}
		minutes, err := strconv.Atoi(raw)
		if err != nil {
			p.skip("non-numeric wait time", zap.String("checkpoint", name), zap.String("value", raw))
			continue
		}
		if minutes < 0 {
			p.skip("negative wait time", zap.String("checkpoint", name), zap.Int("minutes", minutes))
			continue
		}

		if at, ok := index[name]; ok {
			p.logger.Warn("duplicate checkpoint on page, keeping last value",
				zap.String("checkpoint", name), zap.Int("minutes", minutes))
			entries[at].Minutes = minutes
			continue
		}
		index[name] = len(entries)
		entries = append(entries, waittimes.Entry{Checkpoint: name, Minutes: minutes})
	}

	return entries
}

// HasCheckpointSection reports whether the markup contains the domestic
// section at all. The runner uses this to decide when the static page is a
// script shell worth re-fetching with the headless fetcher.
func (p *Parser) HasCheckpointSection(markup []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return false
	}
	return domesticSection(doc) != nil
}

func (p *Parser) skip(reason string, fields ...zap.Field) {
	p.logger.Warn("skipping checkpoint entry",
		append([]zap.Field{zap.String("reason", reason)}, fields...)...)
	metrics.ObserveParseSkip(reason)
}

// domesticSection locates the h1 whose text mentions the domestic terminal
// and returns its grandparent, which wraps the checkpoint markup.
func domesticSection(doc *goquery.Document) *goquery.Selection {
	var section *goquery.Selection
	doc.Find("h1").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(sel.Text()), "domestic") {
			section = sel.Parent().Parent()
			return false
		}
		return true
	})
	return section
}
