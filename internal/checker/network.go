package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxDrainBytes = 64 << 10

// Prober performs the network probe for one external URL.
type Prober interface {
	Probe(ctx context.Context, rawURL string) Verdict
}

// HTTPProber probes URLs with HEAD, falling back to a ranged GET when the
// server rejects HEAD. Redirects are followed; only a final 2xx is valid.
type HTTPProber struct {
	client    *http.Client
	logger    *slog.Logger
	timeout   time.Duration
	userAgent string
}

func NewHTTPProber(logger *slog.Logger, timeout time.Duration, userAgent string) *HTTPProber {
	client := &http.Client{
		Transport: &http.Transport{
			Proxy:        http.ProxyFromEnvironment,
			MaxIdleConns: 40,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 15 * time.Second,
			}).DialContext,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: timeout,
		},
		Timeout: timeout,
	}

	return &HTTPProber{
		client:    client,
		logger:    logger,
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// headRejected reports statuses that commonly mean "HEAD not supported"
// rather than "resource missing".
func headRejected(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return true
	}
	return false
}

func (p *HTTPProber) Probe(ctx context.Context, rawURL string) Verdict {
	logger := p.logger.With(slog.String("url", rawURL))
	logger.DebugContext(ctx, "Starting link check")

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	status, err := p.do(ctx, http.MethodHead, rawURL)
	if err == nil && headRejected(status) {
		logger.DebugContext(ctx, "HEAD rejected, retrying with ranged GET", slog.Int("status_code", status))
		status, err = p.do(ctx, http.MethodGet, rawURL)
	}

	if err != nil {
		cause := describeError(err, p.timeout)
		logger.WarnContext(ctx, "Link is unreachable", slog.String("cause", cause))
		return Verdict{Status: StatusBroken, Reason: fmt.Sprintf("%s (%s)", ReasonExternalBroken, cause)}
	}

	if status >= 200 && status < 300 {
		logger.DebugContext(ctx, "Link is accessible", slog.Int("status_code", status))
		return Verdict{Status: StatusValid, Reason: ReasonExternalReachable}
	}

	logger.WarnContext(ctx, "Received non-success status", slog.Int("status_code", status))
	return Verdict{
		Status: StatusBroken,
		Reason: fmt.Sprintf("%s (HTTP %d %s)", ReasonExternalBroken, status, http.StatusText(status)),
	}
}

func (p *HTTPProber) do(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("could not create HTTP request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	return resp.StatusCode, nil
}

// describeError strips the request echo net/http wraps around transport
// errors, keeping the cause.
func describeError(err error, timeout time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("timed out after %s", timeout)
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		if uerr.Timeout() {
			return fmt.Sprintf("timed out after %s", timeout)
		}
		err = uerr.Err
	}
	return err.Error()
}

// NormalizeURL builds the cache key of an external URL: lower-cased scheme
// and host without a default port, path and query. The fragment is dropped
// since it never reaches the server.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid URL %q: missing host", rawURL)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}

	key := scheme + "://" + host + path
	if u.RawQuery != "" || u.ForceQuery {
		key += "?" + u.RawQuery
	}
	return key, nil
}
