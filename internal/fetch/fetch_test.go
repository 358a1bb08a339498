package fetch

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/boipoka-app/boipoka-ingest/pkg/httpclient"
)

// stubResponse implements httpclient.Response.
type stubResponse struct {
	body       []byte
	statusCode int
}

func (s stubResponse) Body() []byte    { return s.body }
func (s stubResponse) StatusCode() int { return s.statusCode }

// scriptedClient replays one outcome per call and records request URLs.
type scriptedClient struct {
	outcomes []func() (httpclient.Response, error)
	urls     []string
}

func (s *scriptedClient) Get(_ context.Context, u string, _ map[string]string) (httpclient.Response, error) {
	s.urls = append(s.urls, u)
	if len(s.outcomes) == 0 {
		return nil, errors.New("scripted client exhausted")
	}
	next := s.outcomes[0]
	s.outcomes = s.outcomes[1:]
	return next()
}

func ok(body string) func() (httpclient.Response, error) {
	return func() (httpclient.Response, error) {
		return stubResponse{body: []byte(body), statusCode: 200}, nil
	}
}

func status(code int) func() (httpclient.Response, error) {
	return func() (httpclient.Response, error) {
		return stubResponse{statusCode: code}, nil
	}
}

func fail(err error) func() (httpclient.Response, error) {
	return func() (httpclient.Response, error) { return nil, err }
}

var testProxies = []string{
	"https://proxy-one.example/raw?url=",
	"https://proxy-two.example/?",
}

func TestFetchHTMLDirectSuccessShortCircuits(t *testing.T) {
	client := &scriptedClient{outcomes: []func() (httpclient.Response, error){ok("<html>hi</html>")}}
	engine := NewEngine(client, testProxies, time.Second, "test-agent", nil)

	html, err := engine.FetchHTML(context.Background(), "https://example.com/article")
	if err != nil {
		t.Fatalf("FetchHTML: %v", err)
	}
	if html != "<html>hi</html>" {
		t.Fatalf("unexpected html %q", html)
	}
	if len(client.urls) != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", len(client.urls))
	}
	if client.urls[0] != "https://example.com/article" {
		t.Fatalf("direct attempt should request the raw URL, got %q", client.urls[0])
	}
}

func TestFetchHTMLFallsThroughProxiesInOrder(t *testing.T) {
	client := &scriptedClient{outcomes: []func() (httpclient.Response, error){
		fail(errors.New("connection refused")),
		status(503),
		ok("<html>via proxy</html>"),
	}}
	engine := NewEngine(client, testProxies, time.Second, "", nil)

	html, err := engine.FetchHTML(context.Background(), "https://example.com/a?b=c")
	if err != nil {
		t.Fatalf("FetchHTML: %v", err)
	}
	if html != "<html>via proxy</html>" {
		t.Fatalf("unexpected html %q", html)
	}
	if len(client.urls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(client.urls))
	}

	escaped := url.QueryEscape("https://example.com/a?b=c")
	if !strings.HasPrefix(client.urls[1], "https://proxy-one.example/raw?url=") || !strings.HasSuffix(client.urls[1], escaped) {
		t.Fatalf("first proxy attempt malformed: %q", client.urls[1])
	}
	if !strings.HasPrefix(client.urls[2], "https://proxy-two.example/?") || !strings.HasSuffix(client.urls[2], escaped) {
		t.Fatalf("second proxy attempt malformed: %q", client.urls[2])
	}
}

func TestFetchHTMLAllAttemptsFail(t *testing.T) {
	client := &scriptedClient{outcomes: []func() (httpclient.Response, error){
		fail(errors.New("refused")),
		status(500),
		fail(errors.New("reset")),
	}}
	engine := NewEngine(client, testProxies, time.Second, "", nil)

	_, err := engine.FetchHTML(context.Background(), "https://example.com")
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}

	var fetchErr *Error
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *fetch.Error, got %T: %v", err, err)
	}
	if fetchErr.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", fetchErr.Attempts)
	}
	if fetchErr.TimedOut {
		t.Fatalf("TimedOut should be false for network failures")
	}
}

func TestFetchHTMLDistinguishesTimeout(t *testing.T) {
	client := &scriptedClient{outcomes: []func() (httpclient.Response, error){
		fail(context.DeadlineExceeded),
		fail(context.DeadlineExceeded),
		fail(context.DeadlineExceeded),
	}}
	engine := NewEngine(client, testProxies, time.Second, "", nil)

	_, err := engine.FetchHTML(context.Background(), "https://slow.example.com")
	var fetchErr *Error
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *fetch.Error, got %T", err)
	}
	if !fetchErr.TimedOut {
		t.Fatalf("expected TimedOut to be set")
	}
	if !strings.Contains(fetchErr.Error(), "timed out") {
		t.Fatalf("error message should mention timeout: %s", fetchErr.Error())
	}
}

func TestFetchHTMLRejectsBadURLsBeforeAnyCall(t *testing.T) {
	client := &scriptedClient{}
	engine := NewEngine(client, testProxies, time.Second, "", nil)

	for _, raw := range []string{"ftp://example.com/file", "file:///etc/passwd", "not a url", ""} {
		_, err := engine.FetchHTML(context.Background(), raw)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("url %q: expected *fetch.ValidationError, got %T: %v", raw, err, err)
		}
	}
	if len(client.urls) != 0 {
		t.Fatalf("validation failures must not reach the network, saw %d calls", len(client.urls))
	}
}

func TestFetchHTMLStopsOnCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	client := &scriptedClient{outcomes: []func() (httpclient.Response, error){
		func() (httpclient.Response, error) {
			cancel()
			return nil, context.Canceled
		},
		ok("should never be reached"),
		ok("should never be reached"),
	}}
	engine := NewEngine(client, testProxies, time.Second, "", nil)

	_, err := engine.FetchHTML(ctx, "https://example.com")
	if err == nil {
		t.Fatalf("expected error after cancellation")
	}
	if len(client.urls) != 1 {
		t.Fatalf("expected cancellation to stop the chain after 1 attempt, got %d", len(client.urls))
	}
}

func TestProxyStrategyLabels(t *testing.T) {
	s := ProxyStrategy("https://api.allorigins.win/raw?url=")
	if s.Label != "proxy:api.allorigins.win" {
		t.Fatalf("unexpected label %q", s.Label)
	}
	if got := s.BuildURL("https://example.com/x y"); !strings.Contains(got, url.QueryEscape("https://example.com/x y")) {
		t.Fatalf("target not escaped: %q", got)
	}
}
