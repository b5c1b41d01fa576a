// Package report renders link check results as text or JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"unresolver/internal/checker"
)

type Summary struct {
	Files   int
	Links   int
	Valid   int
	Broken  int
	Skipped int
	Errors  int // documents that could not be read
}

// Failed reports whether the run should signal a non-zero outcome.
func (s Summary) Failed() bool {
	return s.Broken > 0 || s.Errors > 0
}

func Summarize(results []checker.FileResult) Summary {
	s := Summary{Files: len(results)}
	for _, r := range results {
		if r.Error != "" {
			s.Errors++
		}
		for _, l := range r.Links {
			s.Links++
			switch l.Status {
			case checker.StatusValid:
				s.Valid++
			case checker.StatusBroken:
				s.Broken++
			case checker.StatusSkipped:
				s.Skipped++
			}
		}
	}
	return s
}

type jsonLink struct {
	Tag      string `json:"tag"`
	Attr     string `json:"attr"`
	URL      string `json:"url"`
	Line     int    `json:"line"`
	Status   string `json:"status"`
	Reason   string `json:"reason"`
	Fragment string `json:"fragment,omitempty"`
}

type jsonFile struct {
	File  string     `json:"file"`
	Error string     `json:"error,omitempty"`
	Links []jsonLink `json:"links"`
}

// WriteJSON writes the results as an indented JSON array with one object per
// document.
func WriteJSON(w io.Writer, results []checker.FileResult) error {
	files := make([]jsonFile, 0, len(results))
	for _, r := range results {
		f := jsonFile{File: r.FilePath, Error: r.Error, Links: make([]jsonLink, 0, len(r.Links))}
		for _, l := range r.Links {
			f.Links = append(f.Links, jsonLink{
				Tag:      l.Tag,
				Attr:     l.Attribute,
				URL:      l.RawURL,
				Line:     l.Line,
				Status:   string(l.Status),
				Reason:   l.Reason,
				Fragment: l.Fragment,
			})
		}
		files = append(files, f)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(files); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// WriteText writes a summary followed by the broken links of every document.
// With showValid, valid links are listed too.
func WriteText(w io.Writer, results []checker.FileResult, showValid bool) error {
	s := Summarize(results)
	rule := strings.Repeat("=", 70)

	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\nLink Check Results\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Files checked: %d\n", s.Files)
	fmt.Fprintf(&b, "Total links: %d\n", s.Links)
	fmt.Fprintf(&b, "Broken links: %d\n", s.Broken)
	if s.Errors > 0 {
		fmt.Fprintf(&b, "Unreadable files: %d\n", s.Errors)
	}
	fmt.Fprintf(&b, "%s\n", rule)

	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(&b, "\n[ERROR] %s\n   %s\n", r.FilePath, r.Error)
			continue
		}

		broken := filter(r.Links, checker.StatusBroken)
		var valid []checker.CheckedLink
		if showValid {
			valid = filter(r.Links, checker.StatusValid)
		}
		if len(broken) == 0 && len(valid) == 0 {
			continue
		}

		fmt.Fprintf(&b, "\n%s\n", r.FilePath)
		if len(broken) > 0 {
			fmt.Fprintf(&b, "   Broken links: %d\n", len(broken))
			for _, l := range broken {
				writeLink(&b, l)
				fmt.Fprintf(&b, "      -> %s\n", l.Reason)
			}
		}
		if len(valid) > 0 {
			fmt.Fprintf(&b, "   Valid links: %d\n", len(valid))
			for _, l := range valid {
				writeLink(&b, l)
			}
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeLink(b *strings.Builder, l checker.CheckedLink) {
	fmt.Fprintf(b, "      Line %d: <%s %s=%q>\n", l.Line, l.Tag, l.Attribute, l.RawURL)
}

func filter(links []checker.CheckedLink, status checker.Status) []checker.CheckedLink {
	var out []checker.CheckedLink
	for _, l := range links {
		if l.Status == status {
			out = append(out, l)
		}
	}
	return out
}
