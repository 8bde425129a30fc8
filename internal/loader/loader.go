package loader

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"ermtutor/internal/domain"
)

// ExtractFunc turns one file into plain text.
type ExtractFunc func(path string) (string, error)

// Loader yields one document per file matching pattern inside dir.
type Loader struct {
	dir     string
	pattern string
	extract ExtractFunc
	logger  *zap.Logger
}

// New creates a loader. A nil extract defaults to PDFText.
func New(dir, pattern string, extract ExtractFunc, logger *zap.Logger) *Loader {
	if extract == nil {
		extract = PDFText
	}
	if pattern == "" {
		pattern = "*.pdf"
	}
	return &Loader{dir: dir, pattern: pattern, extract: extract, logger: logger}
}

// Dir returns the materials directory.
func (l *Loader) Dir() string { return l.dir }

// Documents lazily extracts files in lexical order.
// Per-file failures are yielded wrapped in domain.ErrIngestion and iteration continues;
// any other error ends the sequence. A missing directory yields nothing.
func (l *Loader) Documents(ctx context.Context) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		paths, err := l.match()
		if err != nil {
			yield(domain.Document{}, err)
			return
		}
		l.logger.Debug("Materials matched", zap.String("dir", l.dir), zap.Int("files", len(paths)))

		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				yield(domain.Document{}, err)
				return
			}
			text, err := l.extract(p)
			if err != nil {
				if !yield(domain.Document{}, fmt.Errorf("%s: %w: %w", p, domain.ErrIngestion, err)) {
					return
				}
				continue
			}
			if strings.TrimSpace(text) == "" {
				if !yield(domain.Document{}, fmt.Errorf("%s: no extractable text: %w", p, domain.ErrIngestion)) {
					return
				}
				continue
			}
			if !yield(domain.Document{SourcePath: p, Text: text}, nil) {
				return
			}
		}
	}
}

func (l *Loader) match() ([]string, error) {
	info, err := os.Stat(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat materials dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("materials path %s is not a directory: %w", l.dir, domain.ErrConfiguration)
	}
	paths, err := filepath.Glob(filepath.Join(l.dir, l.pattern))
	if err != nil {
		return nil, fmt.Errorf("match %q: %w", l.pattern, domain.ErrConfiguration)
	}
	files := paths[:0]
	for _, p := range paths {
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			files = append(files, p)
		}
	}
	sort.Strings(files)
	return files, nil
}
