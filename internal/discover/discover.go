// Package discover finds the HTML documents under the paths given to a run.
package discover

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

var ErrInputNotFound = errors.New("input path not found")

// Input is one top-level path handed to a run together with the documents
// found under it.
type Input struct {
	Given     string // path as passed by the caller
	Path      string
	Root      string // directory used for root-absolute references when no site root is set
	Documents []string
}

// IsHTML reports whether name carries an .html or .htm extension.
func IsHTML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// Display renders a discovered document path relative to the path the caller
// gave, so reports read the way the input was written.
func (in Input) Display(document string) string {
	if document == in.Path {
		return in.Given
	}
	rel, err := filepath.Rel(in.Path, document)
	if err != nil {
		return document
	}
	return filepath.Join(in.Given, rel)
}

// Walk collects HTML documents under path in lexical order. A path naming a
// single file yields that file when it is an HTML document and nothing
// otherwise. Documents whose slash-separated path relative to the input
// matches one of the exclude patterns are left out.
func Walk(ctx context.Context, logger *slog.Logger, path string, exclude []string) (Input, error) {
	logger = logger.With(slog.String("input", path))

	matchers := make([]glob.Glob, 0, len(exclude))
	for _, pattern := range exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return Input{}, fmt.Errorf("bad exclude pattern %q: %w", pattern, err)
		}
		matchers = append(matchers, g)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return Input{}, fmt.Errorf("failed to resolve input path %s: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Input{}, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return Input{}, fmt.Errorf("failed to read input path %s: %w", path, err)
	}

	input := Input{Given: path, Path: abs}

	if !info.IsDir() {
		input.Root = filepath.Dir(abs)
		if IsHTML(abs) {
			input.Documents = []string{abs}
		} else {
			logger.WarnContext(ctx, "Input file is not an HTML document, ignoring")
		}
		return input, nil
	}

	input.Root = abs
	err = filepath.WalkDir(abs, func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsHTML(name) {
			return nil
		}

		rel, err := filepath.Rel(abs, name)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		for _, m := range matchers {
			if m.Match(rel) {
				logger.DebugContext(ctx, "Excluding document", slog.String("document", rel))
				return nil
			}
		}

		input.Documents = append(input.Documents, name)
		return nil
	})
	if err != nil {
		return Input{}, fmt.Errorf("failed to walk input directory %s: %w", path, err)
	}

	logger.DebugContext(ctx, "Finished discovering documents", slog.Int("documents", len(input.Documents)))
	return input, nil
}
