package checker

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ResolveOptions carries the directories a local reference may be resolved
// against.
type ResolveOptions struct {
	SiteRoot       string
	InputRoot      string // used for root-absolute references when SiteRoot is empty
	IndexFilenames []string
}

// Resolve maps the path of a local reference onto the filesystem.
//
// Root-absolute paths ("/css/site.css") are cleaned as URL paths and joined
// to the site root, so ".." segments can never climb above it. Relative
// paths are joined to docDir as written and may walk anywhere. A path that
// names a directory is satisfied by the first index file found in it.
// Absence is reported through the result, never as an error.
func Resolve(ref, docDir string, opts ResolveOptions) ResolvedTarget {
	var candidate string
	if strings.HasPrefix(ref, "/") {
		base := opts.SiteRoot
		if base == "" {
			base = opts.InputRoot
		}
		candidate = filepath.Join(base, filepath.FromSlash(path.Clean(ref)))
	} else {
		candidate = filepath.Join(docDir, filepath.FromSlash(ref))
	}
	if abs, err := filepath.Abs(candidate); err == nil {
		candidate = abs
	}

	target := ResolvedTarget{Candidates: []string{candidate}}

	info, err := os.Stat(candidate)
	if err != nil {
		return target
	}
	if !info.IsDir() {
		if info.Mode().IsRegular() {
			target.Found = candidate
		}
		return target
	}

	for _, name := range opts.IndexFilenames {
		index := filepath.Join(candidate, name)
		target.Candidates = append(target.Candidates, index)
		if info, err := os.Stat(index); err == nil && info.Mode().IsRegular() {
			target.Found = index
			return target
		}
	}
	return target
}
