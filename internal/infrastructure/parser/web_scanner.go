package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"sitbrief/internal/domain"
	"sitbrief/internal/scanner"
)

// minHeadlineRunes filters navigation links such as "More" or "Login".
const minHeadlineRunes = 10

// WebScanner extracts headline links from homepages with CSS selectors.
type WebScanner struct {
	client *http.Client
	logger *slog.Logger
}

// NewWebScanner wires an HTTP client; nil uses a 30s timeout client.
func NewWebScanner(client *http.Client, logger *slog.Logger) *WebScanner {
	return &WebScanner{client: client, logger: logger}
}

// Name identifies the strategy inside the registry.
func (s *WebScanner) Name() string { return "web" }

// Scan loads every page of the source and collects the matching anchors.
func (s *WebScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Headline, error) {
	if len(req.URLs) == 0 {
		return nil, fmt.Errorf("no url configured for source %s", req.SourceName)
	}

	var collected []domain.Headline
	for _, pageURL := range req.URLs {
		body, err := fetch(ctx, defaultClient(s.client), pageURL)
		if err != nil {
			return nil, err
		}
		doc, err := goquery.NewDocumentFromReader(body)
		body.Close()
		if err != nil {
			return nil, fmt.Errorf("parse document: %w", err)
		}

		base, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("parse url %s: %w", pageURL, err)
		}
		collected = append(collected, extractHeadlines(doc, base, req)...)
	}
	return scanner.Dedupe(collected), nil
}

func extractHeadlines(doc *goquery.Document, base *url.URL, req scanner.Request) []domain.Headline {
	selector := strings.TrimSpace(req.Selector)
	if selector == "" {
		selector = "a"
	}
	limit := req.EffectiveLimit()

	var out []domain.Headline
	seen := map[string]struct{}{}
	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		anchor := sel
		if goquery.NodeName(sel) != "a" {
			anchor = sel.Find("a[href]").First()
		}
		href, ok := anchor.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		title := collapseSpaces(anchor.Text())
		if utf8.RuneCountInString(title) < minHeadlineRunes {
			return true
		}

		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		full := base.ResolveReference(ref).String()
		if excluded(full, req.Exclude) {
			return true
		}
		if _, dup := seen[full]; dup {
			return true
		}
		seen[full] = struct{}{}

		out = append(out, domain.Headline{Title: title, URL: full, Source: req.SourceName})
		return len(out) < limit
	})
	return out
}

func excluded(link string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(link, p) {
			return true
		}
	}
	return false
}
