package checker

type Status string

const (
	StatusValid   Status = "valid"
	StatusBroken  Status = "broken"
	StatusSkipped Status = "skipped"
)

const (
	ReasonLocalExists       = "Local file exists"
	ReasonLocalNotFound     = "Local file not found"
	ReasonExternalReachable = "External URL is reachable"
	ReasonExternalBroken    = "External URL not reachable"
	ReasonExternalSkipped   = "External check skipped"
	ReasonFragmentOnly      = "Fragment-only reference"
	ReasonSpecialScheme     = "Special scheme"
	ReasonDataURI           = "Data URI"
	ReasonIgnored           = "Ignored by pattern"
	ReasonFragmentNotFound  = "Fragment not found"
)

// LinkReference is one URL-bearing attribute found in a document.
type LinkReference struct {
	Tag       string
	Attribute string
	RawURL    string
	Line      int
}

type Verdict struct {
	Status Status
	Reason string
}

// Kind is the classification of a raw URL.
type Kind int

const (
	KindLocal Kind = iota
	KindFragmentOnly
	KindSpecialScheme
	KindDataURI
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindFragmentOnly:
		return "fragment"
	case KindSpecialScheme:
		return "special-scheme"
	case KindDataURI:
		return "data-uri"
	case KindExternal:
		return "external"
	default:
		return "local"
	}
}

// URLClass is the result of Classify. Path, Query and Fragment are only
// populated for KindLocal; URL is only populated for KindExternal.
type URLClass struct {
	Kind     Kind
	URL      string
	Path     string // undecoded, as written by the author
	Query    string
	Fragment string // percent-decoded
}

// ResolvedTarget lists the filesystem candidates tried for a local
// reference and the one that exists, if any.
type ResolvedTarget struct {
	Candidates []string
	Found      string
}

func (r ResolvedTarget) Exists() bool {
	return r.Found != ""
}

// CheckedLink pairs a reference with its verdict. Fragment carries the
// decoded fragment of local references for reporting.
type CheckedLink struct {
	LinkReference
	Verdict
	Fragment string
}

type FileResult struct {
	FilePath string
	Error    string
	Links    []CheckedLink
}

// Broken counts the links with a broken verdict.
func (r FileResult) Broken() int {
	n := 0
	for _, l := range r.Links {
		if l.Status == StatusBroken {
			n++
		}
	}
	return n
}
