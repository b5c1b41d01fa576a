package checker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unresolver/internal/config"
	"unresolver/internal/discover"
)

// countingProber records every probe and answers from a fixed table.
type countingProber struct {
	mu      sync.Mutex
	calls   map[string]int
	answers map[string]Verdict
}

func newCountingProber(answers map[string]Verdict) *countingProber {
	return &countingProber{calls: make(map[string]int), answers: answers}
}

func (p *countingProber) Probe(_ context.Context, rawURL string) Verdict {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[rawURL]++
	if v, ok := p.answers[rawURL]; ok {
		return v
	}
	return Verdict{Status: StatusValid, Reason: ReasonExternalReachable}
}

func (p *countingProber) total() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

func offlineConfig() config.Config {
	cfg := config.Default()
	cfg.CheckExternal = false
	return cfg
}

func newTestValidator(t *testing.T, cfg config.Config, opts ...Option) *Validator {
	t.Helper()
	v, err := New(newTestLogger(), cfg, opts...)
	require.NoError(t, err)
	return v
}

func verdicts(result FileResult) []Verdict {
	out := make([]Verdict, 0, len(result.Links))
	for _, l := range result.Links {
		out = append(out, l.Verdict)
	}
	return out
}

func TestValidateFile_LocalReferences(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, map[string]string{
		"index.html": "<html>\n<body>\n" +
			"<a href=\"missing.html\">missing</a>\n" +
			"<img src=\"logo.png\">\n" +
			"</body>\n</html>",
		"logo.png": "png",
	})

	v := newTestValidator(t, offlineConfig())
	result := v.ValidateFile(context.Background(), filepath.Join(root, "index.html"), root)

	require.Empty(t, result.Error)
	require.Len(t, result.Links, 2)

	assert.Equal(t, "a", result.Links[0].Tag)
	assert.Equal(t, 3, result.Links[0].Line)
	assert.Equal(t, Verdict{Status: StatusBroken, Reason: ReasonLocalNotFound}, result.Links[0].Verdict)

	assert.Equal(t, "img", result.Links[1].Tag)
	assert.Equal(t, 4, result.Links[1].Line)
	assert.Equal(t, Verdict{Status: StatusValid, Reason: ReasonLocalExists}, result.Links[1].Verdict)

	assert.Equal(t, 1, result.Broken())
}

func TestValidateFile_SkippedKinds(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, map[string]string{
		"index.html": `<a href="#top">top</a>
<a href="">self</a>
<a href="mailto:me@example.com">mail</a>
<a href="TEL:123">call</a>
<a href="javascript:void(0)">js</a>
<img src="data:image/gif;base64,R0lGODlhAQABAAAAACw=">
<script src="https://cdn.example.com/lib.js"></script>`,
	})

	v := newTestValidator(t, offlineConfig())
	result := v.ValidateFile(context.Background(), filepath.Join(root, "index.html"), root)

	assert.Equal(t, []Verdict{
		{Status: StatusSkipped, Reason: ReasonFragmentOnly},
		{Status: StatusSkipped, Reason: ReasonFragmentOnly},
		{Status: StatusSkipped, Reason: ReasonSpecialScheme},
		{Status: StatusSkipped, Reason: ReasonSpecialScheme},
		{Status: StatusSkipped, Reason: ReasonSpecialScheme},
		{Status: StatusSkipped, Reason: ReasonDataURI},
		{Status: StatusSkipped, Reason: ReasonExternalSkipped},
	}, verdicts(result))
}

func TestValidateFile_FragmentDecodedIndependentOfExistence(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, map[string]string{
		"index.html": `<a href="page.html#se%20ction">x</a>`,
	})
	v := newTestValidator(t, offlineConfig())

	result := v.ValidateFile(context.Background(), filepath.Join(root, "index.html"), root)
	require.Len(t, result.Links, 1)
	assert.Equal(t, "se ction", result.Links[0].Fragment)
	assert.Equal(t, Verdict{Status: StatusBroken, Reason: ReasonLocalNotFound}, result.Links[0].Verdict)

	writeSite(t, root, map[string]string{"page.html": "<p>no anchors</p>"})
	result = v.ValidateFile(context.Background(), filepath.Join(root, "index.html"), root)
	assert.Equal(t, "se ction", result.Links[0].Fragment)
	assert.Equal(t, Verdict{Status: StatusValid, Reason: ReasonLocalExists}, result.Links[0].Verdict)
}

func TestValidateFile_DirectoryIndexFallback(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, map[string]string{
		"index.html":     `<a href="docs/">docs</a><a href="empty/">empty</a>`,
		"docs/home.html": "",
		"empty/":         "",
	})
	cfg := offlineConfig()
	cfg.IndexFilenames = []string{"index.html", "home.html"}

	result := newTestValidator(t, cfg).ValidateFile(context.Background(), filepath.Join(root, "index.html"), root)

	assert.Equal(t, []Verdict{
		{Status: StatusValid, Reason: ReasonLocalExists},
		{Status: StatusBroken, Reason: ReasonLocalNotFound},
	}, verdicts(result))
}

func TestValidateFile_SiteRootAbsolute(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, map[string]string{
		"site/css/style.css":     "",
		"site/pages/about.html":  `<link rel="stylesheet" href="/css/style.css">`,
		"input/pages/about.html": `<link rel="stylesheet" href="/css/style.css">`,
		"input/css/style.css":    "",
	})

	cfg := offlineConfig()
	cfg.SiteRoot = filepath.Join(root, "site")
	withSiteRoot := newTestValidator(t, cfg)
	result := withSiteRoot.ValidateFile(context.Background(), filepath.Join(root, "site", "pages", "about.html"), filepath.Join(root, "site", "pages"))
	assert.Equal(t, []Verdict{{Status: StatusValid, Reason: ReasonLocalExists}}, verdicts(result))

	// Without a site root the input directory is the base.
	results, err := newTestValidator(t, offlineConfig()).ValidateAll(context.Background(), []string{filepath.Join(root, "input")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []Verdict{{Status: StatusValid, Reason: ReasonLocalExists}}, verdicts(results[0]))

	results, err = newTestValidator(t, offlineConfig()).ValidateAll(context.Background(), []string{filepath.Join(root, "input", "pages")})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, []Verdict{{Status: StatusBroken, Reason: ReasonLocalNotFound}}, verdicts(results[0]))
}

func TestValidateFile_QueryAndSelfReference(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, map[string]string{
		"index.html": `<link href="style.css?v=3"><a href="?page=2">next</a>`,
		"style.css":  "",
	})

	result := newTestValidator(t, offlineConfig()).ValidateFile(context.Background(), filepath.Join(root, "index.html"), root)

	assert.Equal(t, []Verdict{
		{Status: StatusValid, Reason: ReasonLocalExists},
		{Status: StatusValid, Reason: ReasonLocalExists},
	}, verdicts(result))
}

func TestValidateFile_IgnorePatterns(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, map[string]string{
		"index.html": `<a href="https://localhost:8080/admin">admin</a><a href="drafts/x.html">draft</a><a href="gone.html">gone</a>`,
	})
	prober := newCountingProber(nil)
	cfg := config.Default()
	cfg.Ignore = []string{"https://localhost*", "drafts/*"}

	result := newTestValidator(t, cfg, WithProber(prober)).ValidateFile(context.Background(), filepath.Join(root, "index.html"), root)

	assert.Equal(t, []Verdict{
		{Status: StatusSkipped, Reason: ReasonIgnored},
		{Status: StatusSkipped, Reason: ReasonIgnored},
		{Status: StatusBroken, Reason: ReasonLocalNotFound},
	}, verdicts(result))
	assert.Zero(t, prober.total())
}

func TestValidateFile_CheckFragments(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, map[string]string{
		"index.html": `<h2 id="here">here</h2>
<a href="guide.html#install">ok</a>
<a href="guide.html#se%20ction">decoded</a>
<a href="guide.html#missing">missing</a>
<a href="?x=1#here">self</a>
<a href="logo.png#frag">not html</a>`,
		"guide.html": `<h2 id="install">Install</h2><a name="se ction"></a>`,
		"logo.png":   "",
	})
	cfg := offlineConfig()
	cfg.CheckFragments = true

	result := newTestValidator(t, cfg).ValidateFile(context.Background(), filepath.Join(root, "index.html"), root)

	assert.Equal(t, []Verdict{
		{Status: StatusValid, Reason: ReasonLocalExists},
		{Status: StatusValid, Reason: ReasonLocalExists},
		{Status: StatusBroken, Reason: ReasonFragmentNotFound},
		{Status: StatusValid, Reason: ReasonLocalExists},
		{Status: StatusValid, Reason: ReasonLocalExists},
	}, verdicts(result))
}

func TestValidateFile_UnreadableDocument(t *testing.T) {
	root := t.TempDir()
	v := newTestValidator(t, offlineConfig())

	result := v.ValidateFile(context.Background(), filepath.Join(root, "nope.html"), root)

	assert.Contains(t, result.Error, "failed to read file")
	assert.Empty(t, result.Links)
}

func TestValidateFile_ExternalCacheHit(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	root := t.TempDir()
	link := `<link rel="stylesheet" href="` + server.URL + `/gone.css">`
	writeSite(t, root, map[string]string{
		"a.html": link,
		"b.html": link + "\n" + `<a href="` + server.URL + `/gone.css#top">again</a>`,
	})

	cfg := config.Default()
	cfg.TimeoutSeconds = 2
	v := newTestValidator(t, cfg)

	results, err := v.ValidateAll(context.Background(), []string{root})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, result := range results {
		for _, l := range result.Links {
			assert.Equal(t, StatusBroken, l.Status)
			assert.True(t, strings.HasPrefix(l.Reason, ReasonExternalBroken), l.Reason)
		}
	}
	assert.Equal(t, results[0].Links[0].Verdict, results[1].Links[1].Verdict)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
	assert.Equal(t, 1, v.Cache().Len())
}

func TestValidateFile_ParallelExternalChecksKeepDocumentOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Earlier links answer later so completion order is reversed.
		switch r.URL.Path {
		case "/1":
			time.Sleep(60 * time.Millisecond)
		case "/2":
			time.Sleep(30 * time.Millisecond)
		}
		if r.URL.Path == "/2" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	root := t.TempDir()
	writeSite(t, root, map[string]string{
		"index.html": `<a href="` + server.URL + `/1">1</a>
<a href="local.html">local</a>
<a href="` + server.URL + `/2">2</a>
<a href="` + server.URL + `/3">3</a>`,
		"local.html": "",
	})

	cfg := config.Default()
	cfg.Workers = 4
	result := newTestValidator(t, cfg).ValidateFile(context.Background(), filepath.Join(root, "index.html"), root)

	require.Len(t, result.Links, 4)
	assert.Equal(t, []int{1, 2, 3, 4}, []int{result.Links[0].Line, result.Links[1].Line, result.Links[2].Line, result.Links[3].Line})
	assert.Equal(t, StatusValid, result.Links[0].Status)
	assert.Equal(t, Verdict{Status: StatusValid, Reason: ReasonLocalExists}, result.Links[1].Verdict)
	assert.Equal(t, StatusBroken, result.Links[2].Status)
	assert.Equal(t, StatusValid, result.Links[3].Status)
}

func TestValidateFile_DuplicateURLsProbedOnce(t *testing.T) {
	root := t.TempDir()
	var body strings.Builder
	for i := 0; i < 20; i++ {
		body.WriteString(`<a href="https://example.com/page#s">x</a>` + "\n")
		body.WriteString(`<a href="HTTPS://EXAMPLE.com/page">y</a>` + "\n")
	}
	writeSite(t, root, map[string]string{"index.html": body.String()})

	prober := newCountingProber(nil)
	cfg := config.Default()
	cfg.Workers = 8
	result := newTestValidator(t, cfg, WithProber(prober)).ValidateFile(context.Background(), filepath.Join(root, "index.html"), root)

	require.Len(t, result.Links, 40)
	assert.Equal(t, 1, prober.total())
	for _, l := range result.Links {
		assert.Equal(t, StatusValid, l.Status)
	}
}

func TestValidateFile_ProtocolRelativeProbedAsHTTPS(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, map[string]string{"index.html": `<script src="//cdn.example.com/lib.js"></script>`})

	prober := newCountingProber(map[string]Verdict{
		"https://cdn.example.com/lib.js": {Status: StatusBroken, Reason: ReasonExternalBroken + " (HTTP 404 Not Found)"},
	})
	result := newTestValidator(t, config.Default(), WithProber(prober)).ValidateFile(context.Background(), filepath.Join(root, "index.html"), root)

	assert.Equal(t, StatusBroken, result.Links[0].Status)
	assert.Equal(t, 1, prober.calls["https://cdn.example.com/lib.js"])
}

func TestValidateAll(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, map[string]string{
		"index.html":      `<a href="blog/">blog</a>`,
		"blog/index.html": `<a href="../index.html">home</a><a href="post.html">post</a>`,
		"notes.txt":       "",
	})
	single := filepath.Join(t.TempDir(), "single.htm")
	require.NoError(t, os.WriteFile(single, []byte(`<img src="nope.png">`), 0o644))

	results, err := newTestValidator(t, offlineConfig()).ValidateAll(context.Background(), []string{root, single})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, filepath.Join(root, "blog", "index.html"), results[0].FilePath)
	assert.Equal(t, []Verdict{
		{Status: StatusValid, Reason: ReasonLocalExists},
		{Status: StatusBroken, Reason: ReasonLocalNotFound},
	}, verdicts(results[0]))

	assert.Equal(t, filepath.Join(root, "index.html"), results[1].FilePath)
	assert.Equal(t, []Verdict{{Status: StatusValid, Reason: ReasonLocalExists}}, verdicts(results[1]))

	assert.Equal(t, single, results[2].FilePath)
	assert.Equal(t, []Verdict{{Status: StatusBroken, Reason: ReasonLocalNotFound}}, verdicts(results[2]))
}

func TestValidateAll_MissingInputIsFatal(t *testing.T) {
	root := t.TempDir()
	writeSite(t, root, map[string]string{"index.html": ""})

	results, err := newTestValidator(t, offlineConfig()).ValidateAll(context.Background(), []string{root, filepath.Join(root, "missing")})

	require.Error(t, err)
	assert.ErrorIs(t, err, discover.ErrInputNotFound)
	assert.Nil(t, results)
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SiteRoot = filepath.Join(t.TempDir(), "missing")

	_, err := New(newTestLogger(), cfg)

	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrSiteRootNotFound)
}
