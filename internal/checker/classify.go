package checker

import (
	"net/url"
	"strings"
)

var specialSchemes = map[string]struct{}{
	"mailto":     {},
	"tel":        {},
	"javascript": {},
}

// scheme returns the lower-cased URI scheme of ref, if it has one.
func scheme(ref string) (string, bool) {
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9', c == '+', c == '-', c == '.':
			if i == 0 {
				return "", false
			}
		case c == ':':
			if i == 0 {
				return "", false
			}
			return strings.ToLower(ref[:i]), true
		default:
			return "", false
		}
	}
	return "", false
}

// decodeFragment percent-decodes a fragment, keeping the raw text when it
// holds malformed escapes.
func decodeFragment(fragment string) string {
	decoded, err := url.PathUnescape(fragment)
	if err != nil {
		return fragment
	}
	return decoded
}

// Classify decides how a raw URL is checked. The first matching rule wins:
// empty or '#'-prefixed references are fragment-only, then mailto/tel/
// javascript, data, http(s) and protocol-relative URLs are recognized by
// scheme. Any other multi-letter scheme is treated as a special scheme so
// that only scheme-less references, and single-letter drive prefixes, reach
// the filesystem.
func Classify(rawURL string) URLClass {
	ref := strings.TrimSpace(rawURL)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return URLClass{Kind: KindFragmentOnly}
	}

	if s, ok := scheme(ref); ok {
		if _, special := specialSchemes[s]; special {
			return URLClass{Kind: KindSpecialScheme}
		}
		switch {
		case s == "data":
			return URLClass{Kind: KindDataURI}
		case s == "http" || s == "https":
			return URLClass{Kind: KindExternal, URL: ref}
		case len(s) > 1:
			return URLClass{Kind: KindSpecialScheme}
		}
	}

	if strings.HasPrefix(ref, "//") {
		return URLClass{Kind: KindExternal, URL: "https:" + ref}
	}

	path, fragment, _ := strings.Cut(ref, "#")
	path, query, _ := strings.Cut(path, "?")
	return URLClass{
		Kind:     KindLocal,
		Path:     path,
		Query:    query,
		Fragment: decodeFragment(fragment),
	}
}
