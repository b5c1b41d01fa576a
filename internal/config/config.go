package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimeoutSeconds = 5
	defaultWorkers        = 10
	defaultUserAgent      = "Unresolver/1.0"
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrSiteRootNotFound = errors.New("site root not found")
)

// Config holds every option recognized by the link checker.
type Config struct {
	CheckExternal  bool     `yaml:"check_external"`
	TimeoutSeconds float64  `yaml:"timeout_seconds"`
	SiteRoot       string   `yaml:"site_root"`
	IndexFilenames []string `yaml:"index_filenames"`
	Workers        int      `yaml:"workers"`
	UserAgent      string   `yaml:"user_agent"`
	CheckFragments bool     `yaml:"check_fragments"`
	Ignore         []string `yaml:"ignore"`
	Exclude        []string `yaml:"exclude"`
}

func Default() Config {
	return Config{
		CheckExternal:  true,
		TimeoutSeconds: defaultTimeoutSeconds,
		IndexFilenames: []string{"index.html", "index.htm"},
		Workers:        defaultWorkers,
		UserAgent:      defaultUserAgent,
	}
}

// Load reads a YAML file on top of the defaults. Keys that are absent from
// the file keep their default values; unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return cfg, nil
}

// Timeout converts TimeoutSeconds to a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// Validate reports every problem found in the configuration at once.
// A missing site root is reported with ErrSiteRootNotFound, everything else
// with ErrInvalidConfig.
func (c Config) Validate() error {
	var errs []error

	if c.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("%w: timeout_seconds must be positive, got %v", ErrInvalidConfig, c.TimeoutSeconds))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers))
	}
	if len(c.IndexFilenames) == 0 {
		errs = append(errs, fmt.Errorf("%w: index_filenames must not be empty", ErrInvalidConfig))
	}
	for _, name := range c.IndexFilenames {
		if name == "" || strings.ContainsAny(name, `/\`) {
			errs = append(errs, fmt.Errorf("%w: index filename %q must be a plain file name", ErrInvalidConfig, name))
		}
	}
	for _, pattern := range c.Ignore {
		if _, err := glob.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("%w: bad ignore pattern %q: %v", ErrInvalidConfig, pattern, err))
		}
	}
	for _, pattern := range c.Exclude {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errs = append(errs, fmt.Errorf("%w: bad exclude pattern %q: %v", ErrInvalidConfig, pattern, err))
		}
	}

	if c.SiteRoot != "" {
		info, err := os.Stat(c.SiteRoot)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrSiteRootNotFound, c.SiteRoot, err))
		case !info.IsDir():
			errs = append(errs, fmt.Errorf("%w: %s is not a directory", ErrSiteRootNotFound, c.SiteRoot))
		}
	}

	return errors.Join(errs...)
}

// Normalize returns a copy with the site root made absolute.
func (c Config) Normalize() (Config, error) {
	if c.SiteRoot == "" {
		return c, nil
	}
	abs, err := filepath.Abs(c.SiteRoot)
	if err != nil {
		return c, fmt.Errorf("failed to resolve site root %s: %w", c.SiteRoot, err)
	}
	c.SiteRoot = abs
	return c, nil
}
