package journal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/quillback/quillback/internal/storage"
)

// Importer scans a directory of journal files and loads new entries into the
// entry store, one entry per date.
type Importer struct {
	store  *storage.Store
	dir    string
	logger *slog.Logger
}

// Result summarizes one import pass.
type Result struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// NewImporter creates an Importer reading from dir.
func NewImporter(store *storage.Store, dir string) *Importer {
	return &Importer{store: store, dir: dir, logger: slog.Default()}
}

// Run walks the import directory once. Files that fail to parse, or whose date
// already has an entry, are counted as skipped. A missing directory is an
// error; an empty one is not.
func (im *Importer) Run() (Result, error) {
	var res Result

	files, err := os.ReadDir(im.dir)
	if err != nil {
		return res, fmt.Errorf("reading import directory %s: %w", im.dir, err)
	}

	for _, f := range files {
		if f.IsDir() {
			continue
		}

		path := filepath.Join(im.dir, f.Name())
		raw, ok := im.readFile(path)
		if !ok {
			continue
		}

		parsed, err := Parse(raw, f.Name())
		if err != nil {
			im.logger.Warn("skipping journal file", "file", f.Name(), "error", err)
			res.Skipped++
			continue
		}
		if parsed.Content == "" {
			res.Skipped++
			continue
		}

		exists, err := im.store.HasEntryForDate(parsed.Date)
		if err != nil {
			return res, fmt.Errorf("checking existing entry: %w", err)
		}
		if exists {
			res.Skipped++
			continue
		}

		if _, err := im.store.SaveEntry(storage.Entry{
			Date:    parsed.Date,
			Content: parsed.Content,
			Tags:    parsed.Tags,
		}); err != nil {
			return res, fmt.Errorf("saving entry from %s: %w", f.Name(), err)
		}
		res.Imported++
	}

	return res, nil
}

// readFile loads a journal file's text. Unsupported extensions and unreadable
// files are skipped rather than failing the whole import.
func (im *Importer) readFile(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt":
		data, err := os.ReadFile(path)
		if err != nil {
			im.logger.Warn("unreadable journal file", "file", path, "error", err)
			return "", false
		}
		return string(data), true
	case ".pdf":
		text, err := extractPDFText(path)
		if err != nil {
			im.logger.Warn("unreadable pdf", "file", path, "error", err)
			return "", false
		}
		return text, true
	default:
		return "", false
	}
}
