package tools

import (
	"context"
	"fmt"
	"net/http"
	nurl "net/url"
	"strings"
	"time"
	"unicode/utf8"

	readability "github.com/go-shiori/go-readability"
)

const (
	defaultReaderPages = 2
	readerTimeout      = 30 * time.Second
	maxExcerptChars    = 4000
	readerUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Article is the readable part of a web page.
type Article struct {
	Title       string
	Byline      string
	TextContent string
}

// ArticleFetcher extracts readable content from a URL.
type ArticleFetcher func(ctx context.Context, url string) (Article, error)

// PageReader reads the first few URLs found in its input (typically the output
// of a search tool) and returns their readable text, truncated.
type PageReader struct {
	maxPages int
	fetch    ArticleFetcher
}

func NewPageReader(maxPages int) *PageReader {
	return NewPageReaderWithClient(maxPages, &http.Client{Timeout: readerTimeout})
}

// NewPageReaderWithClient fetches pages with client. Each read is still bound
// by the context of the Execute call.
func NewPageReaderWithClient(maxPages int, client *http.Client) *PageReader {
	if maxPages <= 0 {
		maxPages = defaultReaderPages
	}
	return &PageReader{maxPages: maxPages, fetch: readableFetcher(client)}
}

func readableFetcher(client *http.Client) ArticleFetcher {
	return func(ctx context.Context, rawURL string) (Article, error) {
		pageURL, err := nurl.ParseRequestURI(rawURL)
		if err != nil {
			return Article{}, fmt.Errorf("invalid url: %w", err)
		}
		ctx, cancel := context.WithTimeout(ctx, readerTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return Article{}, err
		}
		req.Header.Set("User-Agent", readerUserAgent)
		resp, err := client.Do(req)
		if err != nil {
			return Article{}, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return Article{}, fmt.Errorf("page http %d", resp.StatusCode)
		}

		a, err := readability.FromReader(resp.Body, pageURL)
		if err != nil {
			return Article{}, fmt.Errorf("readability extraction failed: %w", err)
		}
		return Article{Title: a.Title, Byline: a.Byline, TextContent: a.TextContent}, nil
	}
}

// excerpt cuts text to at most limit bytes without splitting a character.
func excerpt(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + " [TRUNCATED]"
}

func (p *PageReader) Name() string { return "page_reader" }

func (p *PageReader) Description() string {
	return "Read the main text of the pages linked in the input"
}

func (p *PageReader) Execute(ctx context.Context, input string) (string, error) {
	var urls []string
	seen := make(map[string]bool)
	for _, u := range ExtractURLs(input) {
		if seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
		if len(urls) == p.maxPages {
			break
		}
	}
	if len(urls) == 0 {
		return "No pages to read.", nil
	}

	var sb strings.Builder
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		a, err := p.fetch(ctx, u)
		if err != nil {
			sb.WriteString(fmt.Sprintf("Source: %s\nCould not read page: %v\n---\n", u, err))
			continue
		}
		text := excerpt(strings.Join(strings.Fields(a.TextContent), " "), maxExcerptChars)
		sb.WriteString(fmt.Sprintf("Source: %s\nTitle: %s\n", u, a.Title))
		if a.Byline != "" {
			sb.WriteString("Byline: " + a.Byline + "\n")
		}
		sb.WriteString(text + "\n---\n")
	}
	return sb.String(), nil
}
