package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const serperEndpoint = "https://google.serper.dev/search"

// Serper calls the Serper Google search API.
type Serper struct {
	APIKey   string
	Results  int
	Endpoint string
	client   *http.Client
}

// NewSerper constructs a Serper search provider returning up to n results.
func NewSerper(apiKey string, n int) *Serper {
	return NewSerperWithClient(apiKey, n, &http.Client{Timeout: 15 * time.Second})
}

// NewSerperWithClient is NewSerper with a caller-supplied HTTP client.
func NewSerperWithClient(apiKey string, n int, client *http.Client) *Serper {
	if n <= 0 {
		n = 10
	}
	return &Serper{APIKey: apiKey, Results: n, Endpoint: serperEndpoint, client: client}
}

// Search posts a query to Serper, backing off on 429.
func (s *Serper) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, errors.New("serper: API key is missing")
	}

	payload, err := json.Marshal(map[string]any{"q": query, "num": s.Results})
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	delay := 1 * time.Second
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-KEY", s.APIKey)

		resp, err = s.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay < 30*time.Second {
			delay *= 2
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper http %d", resp.StatusCode)
	}

	var response struct {
		Organic []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Date    string `json:"date"`
		} `json:"organic"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(response.Organic))
	for _, r := range response.Organic {
		results = append(results, SearchResult{Title: r.Title, URL: r.Link, Snippet: r.Snippet, Date: r.Date})
		if len(results) >= s.Results {
			break
		}
	}
	return results, nil
}
