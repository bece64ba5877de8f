package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const duckDuckGoEndpoint = "https://lite.duckduckgo.com/lite/"

// ddgRateLimit keeps all DuckDuckGo instances at one query per second.
var ddgRateLimit struct {
	mu   sync.Mutex
	last time.Time
}

// DuckDuckGo scrapes DuckDuckGo's lite HTML page. It needs no API key.
type DuckDuckGo struct {
	Endpoint string
	Results  int
	client   *http.Client
}

func NewDuckDuckGo(n int) *DuckDuckGo {
	return NewDuckDuckGoWithClient(n, &http.Client{Timeout: 15 * time.Second})
}

func NewDuckDuckGoWithClient(n int, client *http.Client) *DuckDuckGo {
	if n <= 0 {
		n = 10
	}
	return &DuckDuckGo{Endpoint: duckDuckGoEndpoint, Results: n, client: client}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("duckduckgo: query is empty")
	}

	ddgRateLimit.mu.Lock()
	if wait := time.Until(ddgRateLimit.last.Add(time.Second)); wait > 0 {
		ddgRateLimit.mu.Unlock()
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		ddgRateLimit.mu.Lock()
	}
	ddgRateLimit.last = time.Now()
	ddgRateLimit.mu.Unlock()

	form := url.Values{}
	form.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo http %d", resp.StatusCode)
	}
	return parseDuckDuckGo(resp.Body, d.Results)
}

// parseDuckDuckGo pairs each a.result-link with the following td.result-snippet.
func parseDuckDuckGo(r io.Reader, limit int) ([]SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	snippets := doc.Find("td.result-snippet").Map(func(_ int, s *goquery.Selection) string {
		return strings.TrimSpace(s.Text())
	})

	var results []SearchResult
	doc.Find("a.result-link").EachWithBreak(func(i int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		title := strings.TrimSpace(s.Text())
		if href == "" || title == "" {
			return true
		}
		res := SearchResult{Title: title, URL: unwrapDuckDuckGoLink(href)}
		if i < len(snippets) {
			res.Snippet = snippets[i]
		}
		results = append(results, res)
		return len(results) < limit
	})
	return results, nil
}

// unwrapDuckDuckGoLink resolves //duckduckgo.com/l/?uddg=<target> redirect links.
func unwrapDuckDuckGoLink(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
