package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/boipoka-app/boipoka-ingest/internal/logger"
	"github.com/boipoka-app/boipoka-ingest/pkg/httpclient"
)

// ValidationError reports a malformed or unsupported URL, detected before any
// network call is made.
type ValidationError struct {
	URL    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid fetch url %q: %s", e.URL, e.Reason)
}

// Error reports that every fetch attempt, direct and proxied, was exhausted.
// TimedOut records whether the terminal attempt hit its deadline rather than
// failing at the network or status level.
type Error struct {
	URL      string
	Attempts int
	TimedOut bool
	Cause    error
}

func (e *Error) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("all direct and proxy fetch attempts failed or timed out for %s (%d attempts, last attempt timed out)", e.URL, e.Attempts)
	}
	return fmt.Sprintf("all direct and proxy fetch attempts failed or timed out for %s (%d attempts): %v", e.URL, e.Attempts, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Strategy is one way of turning a target URL into a request URL. The engine
// tries strategies strictly in slice order, so adding or reordering fallbacks
// is a data change.
type Strategy struct {
	Label    string
	BuildURL func(target string) string
}

// DirectStrategy requests the target URL as-is.
func DirectStrategy() Strategy {
	return Strategy{
		Label:    "direct",
		BuildURL: func(target string) string { return target },
	}
}

// ProxyStrategy wraps the target URL in a proxy endpoint. The endpoint is
// expected to take the escaped target as its trailing query component.
func ProxyStrategy(endpoint string) Strategy {
	label := "proxy"
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		label = "proxy:" + u.Host
	}
	return Strategy{
		Label:    label,
		BuildURL: func(target string) string { return endpoint + url.QueryEscape(target) },
	}
}

// Attempt records a single try during HTML acquisition. Attempts are logged
// and discarded once the invocation completes; no history is persisted.
type Attempt struct {
	StrategyLabel   string
	StartedAt       time.Time
	TimedOutAfterMs int64
	Err             error
}

// Engine resolves a URL to raw HTML via an ordered chain of fetch strategies,
// each attempt bounded by its own timeout.
type Engine struct {
	client     httpclient.Client
	strategies []Strategy
	timeout    time.Duration
	userAgent  string
	log        logger.Logger
}

const defaultAttemptTimeout = 30 * time.Second

// NewEngine builds a fetch engine trying a direct request first, then each
// proxy endpoint in declaration order. A nil client gets a default resty
// client sized to the attempt timeout.
func NewEngine(client httpclient.Client, proxies []string, timeout time.Duration, userAgent string, log logger.Logger) *Engine {
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	if client == nil {
		client = httpclient.NewRestyClient(timeout)
	}

	strategies := make([]Strategy, 0, len(proxies)+1)
	strategies = append(strategies, DirectStrategy())
	for _, endpoint := range proxies {
		endpoint = strings.TrimSpace(endpoint)
		if endpoint == "" {
			continue
		}
		strategies = append(strategies, ProxyStrategy(endpoint))
	}

	return &Engine{
		client:     client,
		strategies: strategies,
		timeout:    timeout,
		userAgent:  userAgent,
		log:        logger.Ensure(log),
	}
}

// FetchHTML resolves the URL to raw HTML. The first successful strategy
// short-circuits the rest; if every attempt fails the terminal cause is
// wrapped in *Error. Only http and https URLs are accepted.
func (e *Engine) FetchHTML(ctx context.Context, rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)

	target, err := url.Parse(rawURL)
	if err != nil {
		return "", &ValidationError{URL: rawURL, Reason: "not a parsable URL"}
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return "", &ValidationError{URL: rawURL, Reason: fmt.Sprintf("unsupported scheme %q", target.Scheme)}
	}
	if target.Host == "" {
		return "", &ValidationError{URL: rawURL, Reason: "missing host"}
	}

	var (
		lastErr      error
		lastTimedOut bool
		attempts     int
	)

	for i, strategy := range e.strategies {
		attempts++
		attempt, html := e.tryStrategy(ctx, strategy, rawURL)
		if attempt.Err == nil {
			e.log.DebugObj("fetch attempt succeeded", "fetch_attempt", map[string]any{
				"url":      rawURL,
				"strategy": attempt.StrategyLabel,
				"ordinal":  i + 1,
			})
			return html, nil
		}

		lastErr = attempt.Err
		lastTimedOut = isTimeout(attempt.Err)
		e.log.WarnObj("fetch attempt failed", "fetch_attempt", map[string]any{
			"url":       rawURL,
			"strategy":  attempt.StrategyLabel,
			"ordinal":   i + 1,
			"timed_out": lastTimedOut,
			"error":     attempt.Err.Error(),
		})

		// A cancelled caller should not burn through the remaining proxies.
		if ctx.Err() != nil && errors.Is(attempt.Err, ctx.Err()) {
			break
		}
	}

	return "", &Error{
		URL:      rawURL,
		Attempts: attempts,
		TimedOut: lastTimedOut,
		Cause:    lastErr,
	}
}

// tryStrategy performs one bounded attempt and reports its outcome.
func (e *Engine) tryStrategy(ctx context.Context, strategy Strategy, target string) (Attempt, string) {
	attempt := Attempt{
		StrategyLabel:   strategy.Label,
		StartedAt:       time.Now(),
		TimedOutAfterMs: e.timeout.Milliseconds(),
	}

	attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	headers := map[string]string{
		"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	}
	if e.userAgent != "" {
		headers["User-Agent"] = e.userAgent
	}

	resp, err := e.client.Get(attemptCtx, strategy.BuildURL(target), headers)
	if err != nil {
		attempt.Err = fmt.Errorf("%s fetch: %w", strategy.Label, err)
		return attempt, ""
	}

	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		attempt.Err = fmt.Errorf("%s fetch: status %d", strategy.Label, resp.StatusCode())
		return attempt, ""
	}

	return attempt, string(resp.Body())
}

// isTimeout distinguishes deadline failures from network-level ones.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
