// Package lookup issues country queries against the REST API and normalizes
// every failure into an empty, explicitly marked Result.
package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smileynet/countrylookup/internal/country"
)

const (
	// DefaultBaseURL is the public restcountries v3.1 endpoint.
	DefaultBaseURL = "https://restcountries.com/v3.1"

	// DefaultDelay is the artificial latency applied before a search result is released.
	DefaultDelay = time.Second

	defaultTimeout = 10 * time.Second
)

// Lookup outcomes reported to an Observer.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Observer receives one call per completed lookup.
type Observer interface {
	ObserveLookup(kind, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveLookup(string, string, time.Duration) {}

// Result is the outcome of one lookup. Countries is never nil.
// Err is set only for transport, status, or decoding failures; a query
// that matched nothing has an empty Countries and a nil Err.
type Result struct {
	Countries []country.Country
	Err       error
}

// Failed reports whether the lookup hit a transport failure.
func (r Result) Failed() bool { return r.Err != nil }

// Client performs GET lookups against a fixed base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	delay      time.Duration
	observer   Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithDelay sets the artificial latency applied to Fetch. Zero disables it.
func WithDelay(d time.Duration) Option {
	return func(c *Client) { c.delay = d }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithObserver registers an Observer for completed lookups.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New creates a Client rooted at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		timeout:  defaultTimeout,
		delay:    DefaultDelay,
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	return c
}

// BaseURL returns the endpoint all lookup URLs are built on.
func (c *Client) BaseURL() string { return c.baseURL }

// CapitalURL builds the capital search URL for term.
func (c *Client) CapitalURL(term string) string {
	return c.baseURL + "/capital/" + url.PathEscape(term)
}

// NameURL builds the partial-name search URL for term.
func (c *Client) NameURL(term string) string {
	return c.baseURL + "/name/" + url.PathEscape(term) + "?fullText=false"
}

// RegionURL builds the region search URL.
func (c *Client) RegionURL(r country.Region) string {
	return c.baseURL + "/region/" + url.PathEscape(string(r))
}

// AlphaURL builds the alpha-code lookup URL.
func (c *Client) AlphaURL(code string) string {
	return c.baseURL + "/alpha/" + url.PathEscape(code)
}

// Fetch issues a GET to rawURL and waits out the artificial delay before
// returning, whatever the outcome. It never returns an error value directly;
// failures are carried in Result.Err with an empty Countries slice.
func (c *Client) Fetch(ctx context.Context, rawURL string) Result {
	start := time.Now()
	countries, err := c.get(ctx, rawURL)

	if c.delay > 0 && ctx.Err() == nil {
		t := time.NewTimer(c.delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			countries, err = nil, &LookupError{URL: rawURL, Err: ctx.Err()}
		}
	}

	res := Result{Countries: countries, Err: err}
	if res.Countries == nil {
		res.Countries = []country.Country{}
	}
	c.observe(rawURL, res, time.Since(start))
	return res
}

// First returns the first country at rawURL, or false if nothing matched
// or the lookup failed. No artificial delay is applied.
// The error is informational; callers may ignore it.
func (c *Client) First(ctx context.Context, rawURL string) (country.Country, bool, error) {
	start := time.Now()
	countries, err := c.get(ctx, rawURL)
	c.observe(rawURL, Result{Countries: countries, Err: err}, time.Since(start))
	if err != nil || len(countries) == 0 {
		return country.Country{}, false, err
	}
	return countries[0], true, nil
}

func (c *Client) observe(rawURL string, res Result, elapsed time.Duration) {
	outcome := OutcomeOK
	switch {
	case res.Err != nil:
		outcome = OutcomeError
	case len(res.Countries) == 0:
		outcome = OutcomeEmpty
	}
	c.observer.ObserveLookup(c.kindOf(rawURL), outcome, elapsed)
}

// kindOf returns the first path segment after the base URL ("capital", "name", ...).
func (c *Client) kindOf(rawURL string) string {
	rest := strings.TrimPrefix(rawURL, c.baseURL+"/")
	if rest == rawURL {
		return "other"
	}
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "other"
	}
	return rest
}

// get performs the request and decodes the body.
// A 404 means the API found no match and is reported as an empty result.
func (c *Client) get(ctx context.Context, rawURL string) ([]country.Country, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &LookupError{URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &LookupError{URL: rawURL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &LookupError{URL: rawURL, Status: resp.StatusCode, Err: fmt.Errorf("reading body: %w", err)}
	}

	if resp.StatusCode == http.StatusNotFound {
		return []country.Country{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &LookupError{URL: rawURL, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	countries, err := decode(body)
	if err != nil {
		return nil, &LookupError{URL: rawURL, Status: resp.StatusCode, Err: err}
	}
	return countries, nil
}

// decode accepts either a JSON array of countries or a single object,
// since alpha lookups have returned both shapes across API versions.
func decode(body []byte) ([]country.Country, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("decoding: empty body")
	}
	if trimmed[0] == '{' {
		var one country.Country
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("decoding: %w", err)
		}
		return []country.Country{one}, nil
	}
	var many []country.Country
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}
	return many, nil
}

// LookupError describes a lookup that could not produce a result.
type LookupError struct {
	URL    string
	Status int
	Err    error
}

func (e *LookupError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("lookup: %s: status %d: %s", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("lookup: %s: %s", e.URL, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
