package journal

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoDate is returned when neither the file content nor the filename yields
// an entry date.
var ErrNoDate = errors.New("no entry date found")

// ParsedEntry is the result of parsing one journal file.
type ParsedEntry struct {
	Date    time.Time
	Tags    string
	Content string
}

// createdLayouts are the accepted formats of the "Created:" header line, with
// and without a time component.
var createdLayouts = []string{
	"January 2, 2006 3:04 PM",
	"January 2, 2006",
}

// Parse extracts the entry date, tags, and cleaned content from a raw journal
// file. The date comes from a "Created: <date>" header line, falling back to a
// YYYY-MM-DD filename prefix. Title lines (starting with #), the Created line,
// and the Tags line are stripped from the content.
func Parse(raw, filename string) (ParsedEntry, error) {
	var entry ParsedEntry

	lines := strings.Split(raw, "\n")
	var contentLines []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)

		switch {
		case strings.HasPrefix(trimmed, "#"):
			continue
		case strings.HasPrefix(lower, "created:"):
			dateStr := strings.TrimSpace(trimmed[len("created:"):])
			for _, layout := range createdLayouts {
				if d, err := time.Parse(layout, dateStr); err == nil {
					entry.Date = d
					break
				}
			}
			continue
		case strings.HasPrefix(lower, "tags:"):
			entry.Tags = strings.TrimSpace(trimmed[len("tags:"):])
			continue
		}
		contentLines = append(contentLines, line)
	}

	if entry.Date.IsZero() {
		d, err := dateFromFilename(filename)
		if err != nil {
			return ParsedEntry{}, fmt.Errorf("parsing %s: %w", filename, ErrNoDate)
		}
		entry.Date = d
	}

	// Normalize to a bare date; time-of-day never participates in dedupe.
	entry.Date = time.Date(entry.Date.Year(), entry.Date.Month(), entry.Date.Day(), 0, 0, 0, 0, time.UTC)
	entry.Content = strings.TrimSpace(strings.Join(contentLines, "\n"))
	return entry, nil
}

// dateFromFilename parses a YYYY-MM-DD date from the start of the filename,
// e.g. "2024-03-01.md" or "2024-03-01 morning.txt".
func dateFromFilename(filename string) (time.Time, error) {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if len(base) > 10 {
		base = base[:10]
	}
	return time.Parse("2006-01-02", base)
}
