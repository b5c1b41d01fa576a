package checker

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// linkAttributes maps each checked tag to the attribute holding its URL.
var linkAttributes = map[string]string{
	"a":      "href",
	"link":   "href",
	"img":    "src",
	"script": "src",
	"iframe": "src",
	"area":   "href",
}

var fragmentTargetSelector = cascadia.MustCompile("[id], a[name]")

var newline = []byte{'\n'}

// decodeDocument converts content to UTF-8. Content that is already valid
// UTF-8 is returned untouched unless a BOM says otherwise.
func decodeDocument(ctx context.Context, logger *slog.Logger, content []byte) []byte {
	enc, name, certain := charset.DetermineEncoding(content, "")
	if !certain && utf8.Valid(content) {
		return content
	}
	if name == "utf-8" {
		return bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	}

	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		logger.WarnContext(ctx, "Failed to decode document, using raw bytes",
			slog.String("charset", name),
			slog.Any("error", err),
		)
		return content
	}
	logger.DebugContext(ctx, "Decoded document", slog.String("charset", name))
	return decoded
}

// References yields the link references of an HTML document in document
// order. Ranging over the sequence again tokenizes the document from the
// start. Tokenizing never fails on malformed markup: whatever tags can still
// be located are reported.
func References(content []byte) iter.Seq[LinkReference] {
	return func(yield func(LinkReference) bool) {
		z := html.NewTokenizer(bytes.NewReader(content))
		line := 1

		for {
			tt := z.Next()
			if tt == html.ErrorToken {
				return
			}

			// Raw must be read before TagName/TagAttr reuse its buffer.
			start := line
			line += bytes.Count(z.Raw(), newline)

			if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
				continue
			}

			name, hasAttr := z.TagName()
			tag := string(name)
			want, ok := linkAttributes[tag]
			if !ok || !hasAttr {
				continue
			}

			for {
				key, val, more := z.TagAttr()
				if string(key) == want {
					ref := LinkReference{
						Tag:       tag,
						Attribute: want,
						RawURL:    string(val),
						Line:      start,
					}
					if !yield(ref) {
						return
					}
					break
				}
				if !more {
					break
				}
			}
		}
	}
}

// fragmentTargets collects the names a fragment can point at in a document:
// element ids and legacy <a name> anchors.
func fragmentTargets(ctx context.Context, logger *slog.Logger, content []byte) (map[string]struct{}, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	targets := make(map[string]struct{})
	doc.FindMatcher(fragmentTargetSelector).Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("id"); ok && id != "" {
			targets[id] = struct{}{}
		}
		if goquery.NodeName(s) == "a" {
			if name, ok := s.Attr("name"); ok && name != "" {
				targets[name] = struct{}{}
			}
		}
	})

	logger.DebugContext(ctx, "Collected fragment targets", slog.Int("targets", len(targets)))
	return targets, nil
}
