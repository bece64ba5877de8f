// Package linkcheck decides whether URLs found in search results are still
// worth citing: reachable, answering 200, and not older than the freshness
// threshold according to their publish-date meta tag.
package linkcheck

import (
	"context"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers     = 5
	DefaultHeadTimeout = 5 * time.Second
	DefaultGetTimeout  = 10 * time.Second
	DefaultMaxAgeYears = 2.0
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	ReasonMalformed = "Malformed URL"
	ReasonTooOld    = "Content too old"
)

// publishDateSelector matches the meta tags carrying a publish date, in document order.
const publishDateSelector = `meta[property="article:published_time"], meta[property="og:published_time"]`

// Result is the outcome of validating one URL.
type Result struct {
	Valid bool `json:"valid"`
	// URL is the final URL after redirects for valid results, the submitted URL otherwise.
	URL    string `json:"url"`
	Reason string `json:"reason,omitempty"`
	// Requested is the URL exactly as submitted.
	Requested string `json:"-"`
}

// Validator probes URLs. The zero value is not usable; build one with New.
type Validator struct {
	client      *http.Client
	workers     int
	headTimeout time.Duration
	getTimeout  time.Duration
	maxAgeYears float64
	userAgent   string
	now         func() time.Time
	logger      *log.Logger
	verbose     bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithHTTPClient replaces the default client. Per-request timeouts still apply.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Validator) { v.client = c }
}

func WithWorkers(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.workers = n
		}
	}
}

func WithTimeouts(head, get time.Duration) Option {
	return func(v *Validator) {
		if head > 0 {
			v.headTimeout = head
		}
		if get > 0 {
			v.getTimeout = get
		}
	}
}

// WithMaxAge sets the freshness threshold in years.
func WithMaxAge(years float64) Option {
	return func(v *Validator) {
		if years > 0 {
			v.maxAgeYears = years
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(v *Validator) {
		if ua != "" {
			v.userAgent = ua
		}
	}
}

// WithClock overrides time.Now for the freshness check.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithLogger enables per-URL info logs.
func WithLogger(logger *log.Logger, verbose bool) Option {
	return func(v *Validator) {
		v.logger = logger
		v.verbose = verbose
	}
}

// New creates a Validator with the defaults: 5 workers, 5s HEAD, 10s GET, 2 years.
func New(opts ...Option) *Validator {
	v := &Validator{
		client:      &http.Client{},
		workers:     DefaultWorkers,
		headTimeout: DefaultHeadTimeout,
		getTimeout:  DefaultGetTimeout,
		maxAgeYears: DefaultMaxAgeYears,
		userAgent:   DefaultUserAgent,
		now:         time.Now,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) infof(format string, args ...interface{}) {
	if !v.verbose || v.logger == nil {
		return
	}
	v.logger.Printf("[linkcheck] "+format, args...)
}

// Validate classifies a single URL. Every failure is reported in the Result;
// Validate never returns an error.
func (v *Validator) Validate(ctx context.Context, rawURL string) Result {
	res := v.validate(ctx, rawURL)
	res.Requested = rawURL
	if res.Valid {
		v.infof("valid %s -> %s", rawURL, res.URL)
	} else {
		v.infof("invalid %s: %s", rawURL, res.Reason)
	}
	return res
}

func (v *Validator) validate(ctx context.Context, rawURL string) Result {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Result{URL: rawURL, Reason: ReasonMalformed}
	}

	status, err := v.probe(ctx, rawURL)
	if err != nil {
		return Result{URL: rawURL, Reason: err.Error()}
	}
	if status != http.StatusOK {
		return Result{URL: rawURL, Reason: fmt.Sprintf("HTTP %d", status)}
	}

	finalURL, published, err := v.fetchPublished(ctx, rawURL)
	if err != nil {
		return Result{URL: rawURL, Reason: err.Error()}
	}
	if published != "" {
		pubDate, err := parsePublishDate(published)
		if err != nil {
			return Result{URL: rawURL, Reason: err.Error()}
		}
		if ageInYears(v.now(), pubDate) > v.maxAgeYears {
			return Result{URL: rawURL, Reason: ReasonTooOld}
		}
	}
	return Result{Valid: true, URL: finalURL}
}

// probe issues the HEAD request and returns the status after redirects.
func (v *Validator) probe(ctx context.Context, rawURL string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, v.headTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", v.userAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// fetchPublished GETs the page and returns its final URL and the content of
// the first publish-date meta tag, if any. The GET status is not checked.
func (v *Validator) fetchPublished(ctx context.Context, rawURL string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, v.getTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", v.userAgent)

	resp, err := v.client.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", "", err
	}
	published, _ := doc.Find(publishDateSelector).First().Attr("content")
	return finalURL, published, nil
}

var publishDateLayouts = []string{
	time.DateOnly,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// parsePublishDate parses the part of a meta content value before the time separator.
func parsePublishDate(content string) (time.Time, error) {
	datePart := strings.TrimSpace(strings.SplitN(content, "T", 2)[0])
	for _, layout := range publishDateLayouts {
		if t, err := time.ParseInLocation(layout, datePart, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid isoformat string: %q", datePart)
}

// ageInYears counts whole elapsed days and divides by 365.
func ageInYears(now, published time.Time) float64 {
	days := math.Floor(now.Sub(published).Hours() / 24)
	return days / 365
}

// ValidateBatch validates urls on a bounded pool and returns only the valid
// results. Order of the returned slice is not significant.
func (v *Validator) ValidateBatch(ctx context.Context, urls []string) []Result {
	results := make([]Result, len(urls))

	var g errgroup.Group
	g.SetLimit(v.workers)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = v.Validate(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	valid := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Valid {
			valid = append(valid, r)
		}
	}
	v.infof("batch: %d/%d valid", len(valid), len(urls))
	return valid
}
