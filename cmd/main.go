package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"unresolver/internal/checker"
	"unresolver/internal/config"
	"unresolver/internal/report"
)

const (
	exitOK     = 0
	exitBroken = 1
	exitFatal  = 2
)

const usageExamples = `
Examples:
  unresolver .                        check every HTML file under the current directory
  unresolver index.html               check a single file
  unresolver -no-external .           skip external URL checks
  unresolver -json . > results.json   write results as JSON
`

type options struct {
	configPath     string
	noExternal     bool
	timeout        float64
	siteRoot       string
	index          string
	workers        int
	checkFragments bool
	ignore         []string
	exclude        []string
	json           bool
	showValid      bool
	logLevel       string
	logJSON        bool
	paths          []string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("unresolver", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: unresolver [flags] path [path ...]")
		fmt.Fprintln(stderr, "\nFind broken links in HTML files.")
		fmt.Fprintln(stderr, "\nFlags:")
		fs.PrintDefaults()
		fmt.Fprint(stderr, usageExamples)
	}

	fs.StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	fs.BoolVar(&opts.noExternal, "no-external", false, "skip checking external URLs")
	fs.Float64Var(&opts.timeout, "timeout", 0, "timeout for external URL checks in seconds (default 5)")
	fs.StringVar(&opts.siteRoot, "site-root", "", "directory that root-absolute links (/css/site.css) resolve against")
	fs.StringVar(&opts.index, "index", "", "comma-separated directory index file names (default index.html,index.htm)")
	fs.IntVar(&opts.workers, "workers", 0, "parallel external checks per file (default 10)")
	fs.BoolVar(&opts.checkFragments, "check-fragments", false, "verify #fragments against ids in local HTML targets")
	fs.Func("ignore", "glob of URLs to skip (repeatable)", func(s string) error {
		opts.ignore = append(opts.ignore, s)
		return nil
	})
	fs.Func("exclude", "glob of document paths to leave out, relative to the input (repeatable)", func(s string) error {
		opts.exclude = append(opts.exclude, s)
		return nil
	})
	fs.BoolVar(&opts.json, "json", false, "output results as JSON")
	fs.BoolVar(&opts.showValid, "show-valid", false, "list valid links in text output")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	fs.BoolVar(&opts.logJSON, "log-json", false, "write logs as JSON")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	opts.paths = fs.Args()
	if len(opts.paths) == 0 {
		fs.Usage()
		return nil, errors.New("at least one path is required")
	}
	return opts, nil
}

func newLogger(w io.Writer, level string, useJSON bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("bad log level %q: %w", level, err)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}
	if useJSON {
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
}

// buildConfig loads the config file, if any, and applies flag overrides.
func buildConfig(opts *options) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if opts.noExternal {
		cfg.CheckExternal = false
	}
	if opts.timeout != 0 {
		cfg.TimeoutSeconds = opts.timeout
	}
	if opts.siteRoot != "" {
		cfg.SiteRoot = opts.siteRoot
	}
	if opts.index != "" {
		cfg.IndexFilenames = nil
		for _, name := range strings.Split(opts.index, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.IndexFilenames = append(cfg.IndexFilenames, name)
			}
		}
	}
	if opts.workers != 0 {
		cfg.Workers = opts.workers
	}
	if opts.checkFragments {
		cfg.CheckFragments = true
	}
	cfg.Ignore = append(cfg.Ignore, opts.ignore...)
	cfg.Exclude = append(cfg.Exclude, opts.exclude...)
	return cfg, nil
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintln(stderr, "Error:", err)
		return exitFatal
	}

	logger, err := newLogger(stderr, opts.logLevel, opts.logJSON)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitFatal
	}

	cfg, err := buildConfig(opts)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitFatal
	}

	ctx := context.Background()

	validator, err := checker.New(logger, cfg)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitFatal
	}

	results, err := validator.ValidateAll(ctx, opts.paths)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitFatal
	}
	if len(results) == 0 {
		fmt.Fprintf(stderr, "No HTML files found in: %s\n", strings.Join(opts.paths, ", "))
		return exitBroken
	}

	if opts.json {
		err = report.WriteJSON(stdout, results)
	} else {
		err = report.WriteText(stdout, results, opts.showValid)
	}
	if err != nil {
		logger.Error("Failed to write report", slog.Any("error", err))
		return exitFatal
	}

	if report.Summarize(results).Failed() {
		return exitBroken
	}
	return exitOK
}
