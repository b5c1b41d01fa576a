package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gobwas/glob"

	"unresolver/internal/config"
	"unresolver/internal/discover"
)

// Validator checks the references of HTML documents. One Validator is one
// run: its external-check cache lives as long as the Validator does.
type Validator struct {
	cfg    config.Config
	logger *slog.Logger
	cache  *Cache
	prober Prober
	ignore []glob.Glob

	targetsMu sync.Mutex
	targets   map[string]map[string]struct{}
}

type Option func(*Validator)

// WithProber replaces the HTTP prober used for external references.
func WithProber(p Prober) Option {
	return func(v *Validator) { v.prober = p }
}

// WithCache shares an external-check cache between validators.
func WithCache(c *Cache) Option {
	return func(v *Validator) { v.cache = c }
}

// New validates cfg and builds a Validator. Configuration problems are
// returned here, before any document is touched.
func New(logger *slog.Logger, cfg config.Config, opts ...Option) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}

	ignore := make([]glob.Glob, 0, len(cfg.Ignore))
	for _, pattern := range cfg.Ignore {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad ignore pattern %q: %w", pattern, err)
		}
		ignore = append(ignore, g)
	}

	v := &Validator{
		cfg:     cfg,
		logger:  logger,
		cache:   NewCache(),
		ignore:  ignore,
		targets: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.prober == nil {
		v.prober = NewHTTPProber(logger, cfg.Timeout(), cfg.UserAgent)
	}
	return v, nil
}

// Cache exposes the run's external-check cache.
func (v *Validator) Cache() *Cache {
	return v.cache
}

// ValidateAll discovers the documents under every path and validates them in
// discovery order. Unreadable or missing input paths fail the run before any
// document is processed.
func (v *Validator) ValidateAll(ctx context.Context, paths []string) ([]FileResult, error) {
	v.logger.DebugContext(ctx, "Discovering documents", slog.Any("paths", paths))

	var inputs []discover.Input
	var errs []error
	for _, path := range paths {
		input, err := discover.Walk(ctx, v.logger, path, v.cfg.Exclude)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		inputs = append(inputs, input)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	var results []FileResult
	for _, input := range inputs {
		for _, document := range input.Documents {
			result := v.ValidateFile(ctx, document, input.Root)
			result.FilePath = input.Display(document)
			results = append(results, result)
		}
	}

	v.logger.InfoContext(ctx, "Run complete",
		slog.Int("documents", len(results)),
		slog.Int("external_urls_checked", v.cache.Len()),
	)
	return results, nil
}

type externalJob struct {
	index int
	url   string
}

type externalResult struct {
	index   int
	verdict Verdict
}

// ValidateFile checks every reference of one document. inputRoot is the base
// for root-absolute references when no site root is configured. A document
// that cannot be read yields a result carrying Error and no links.
func (v *Validator) ValidateFile(ctx context.Context, documentPath, inputRoot string) FileResult {
	logger := v.logger.With(slog.String("document", documentPath))
	logger.DebugContext(ctx, "Starting document check")

	result := FileResult{FilePath: documentPath}

	content, err := os.ReadFile(documentPath)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to read document", slog.Any("error", err))
		result.Error = fmt.Sprintf("failed to read file: %v", err)
		return result
	}
	content = decodeDocument(ctx, logger, content)

	refs := slices.Collect(References(content))
	result.Links = make([]CheckedLink, len(refs))

	docDir := filepath.Dir(documentPath)
	var jobs []externalJob

	for i, ref := range refs {
		link := &result.Links[i]
		link.LinkReference = ref

		if v.ignored(ref.RawURL) {
			link.Verdict = Verdict{Status: StatusSkipped, Reason: ReasonIgnored}
			continue
		}

		class := Classify(ref.RawURL)
		switch class.Kind {
		case KindFragmentOnly:
			link.Verdict = Verdict{Status: StatusSkipped, Reason: ReasonFragmentOnly}
		case KindSpecialScheme:
			link.Verdict = Verdict{Status: StatusSkipped, Reason: ReasonSpecialScheme}
		case KindDataURI:
			link.Verdict = Verdict{Status: StatusSkipped, Reason: ReasonDataURI}
		case KindExternal:
			if !v.cfg.CheckExternal {
				link.Verdict = Verdict{Status: StatusSkipped, Reason: ReasonExternalSkipped}
				continue
			}
			jobs = append(jobs, externalJob{index: i, url: class.URL})
		case KindLocal:
			link.Fragment = class.Fragment
			link.Verdict = v.checkLocal(ctx, logger, class, documentPath, docDir, inputRoot)
		}
	}

	for _, r := range v.checkExternalLinks(ctx, logger, jobs) {
		result.Links[r.index].Verdict = r.verdict
	}

	logger.InfoContext(ctx, "Document check complete",
		slog.Group("results",
			slog.Int("links", len(result.Links)),
			slog.Int("external", len(jobs)),
			slog.Int("broken", result.Broken()),
		),
	)
	return result
}

func (v *Validator) ignored(rawURL string) bool {
	for _, g := range v.ignore {
		if g.Match(rawURL) {
			return true
		}
	}
	return false
}

func (v *Validator) checkLocal(ctx context.Context, logger *slog.Logger, class URLClass, documentPath, docDir, inputRoot string) Verdict {
	found := documentPath
	if class.Path != "" {
		target := Resolve(class.Path, docDir, ResolveOptions{
			SiteRoot:       v.cfg.SiteRoot,
			InputRoot:      inputRoot,
			IndexFilenames: v.cfg.IndexFilenames,
		})
		if !target.Exists() {
			logger.DebugContext(ctx, "Local target missing",
				slog.String("path", class.Path),
				slog.Any("candidates", target.Candidates),
			)
			return Verdict{Status: StatusBroken, Reason: ReasonLocalNotFound}
		}
		found = target.Found
	}

	if v.cfg.CheckFragments && class.Fragment != "" && discover.IsHTML(found) {
		if !v.hasFragment(ctx, logger, found, class.Fragment) {
			return Verdict{Status: StatusBroken, Reason: ReasonFragmentNotFound}
		}
	}
	return Verdict{Status: StatusValid, Reason: ReasonLocalExists}
}

// hasFragment reports whether the HTML document at path declares fragment.
// Documents that cannot be read or parsed are given the benefit of the doubt.
func (v *Validator) hasFragment(ctx context.Context, logger *slog.Logger, path, fragment string) bool {
	v.targetsMu.Lock()
	defer v.targetsMu.Unlock()

	targets, ok := v.targets[path]
	if !ok {
		content, err := os.ReadFile(path)
		if err == nil {
			targets, err = fragmentTargets(ctx, logger, decodeDocument(ctx, logger, content))
		}
		if err != nil {
			logger.WarnContext(ctx, "Could not collect fragment targets",
				slog.String("target", path),
				slog.Any("error", err),
			)
			return true
		}
		v.targets[path] = targets
	}

	_, ok = targets[fragment]
	return ok
}

func (v *Validator) checkExternal(ctx context.Context, logger *slog.Logger, rawURL string) Verdict {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		logger.WarnContext(ctx, "Could not normalize external URL", slog.String("url", rawURL), slog.Any("error", err))
		return Verdict{Status: StatusBroken, Reason: fmt.Sprintf("%s (%v)", ReasonExternalBroken, err)}
	}

	verdict, hit := v.cache.Do(key, func() Verdict {
		return v.prober.Probe(ctx, rawURL)
	})
	if hit {
		logger.DebugContext(ctx, "External check served from cache", slog.String("url", key))
	}
	return verdict
}

func (v *Validator) externalCheckWorker(ctx context.Context, logger *slog.Logger, wg *sync.WaitGroup, jobs <-chan externalJob, results chan<- externalResult) {
	defer wg.Done()
	for job := range jobs {
		results <- externalResult{index: job.index, verdict: v.checkExternal(ctx, logger, job.url)}
	}
}

// checkExternalLinks runs the external checks of one document on a bounded
// worker pool. Results carry their reference index so the caller can place
// them in document order regardless of completion order.
func (v *Validator) checkExternalLinks(ctx context.Context, logger *slog.Logger, pending []externalJob) []externalResult {
	if len(pending) == 0 {
		return nil
	}

	jobs := make(chan externalJob, len(pending))
	results := make(chan externalResult, len(pending))

	var wg sync.WaitGroup
	workers := min(v.cfg.Workers, len(pending))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go v.externalCheckWorker(ctx, logger, &wg, jobs, results)
	}

	for _, job := range pending {
		jobs <- job
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]externalResult, 0, len(pending))
	for r := range results {
		collected = append(collected, r)
	}
	return collected
}
