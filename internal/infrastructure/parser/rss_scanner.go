package parser

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"sitbrief/internal/domain"
	"sitbrief/internal/scanner"
)

// RSSScanner reads Atom and RSS 2.0 feeds.
type RSSScanner struct {
	client *http.Client
	logger *slog.Logger
}

// NewRSSScanner wires an HTTP client; nil uses a 30s timeout client.
func NewRSSScanner(client *http.Client, logger *slog.Logger) *RSSScanner {
	return &RSSScanner{client: client, logger: logger}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string { return "rss" }

type feedDocument struct {
	XMLName xml.Name
	Entries []atomEntry `xml:"entry"`
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type atomEntry struct {
	Title string     `xml:"title"`
	Links []atomLink `xml:"link"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
}

type rssItem struct {
	Title string `xml:"title"`
	Link  string `xml:"link"`
}

// Scan fetches every feed of the source. A failing feed is logged and skipped.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Headline, error) {
	if len(req.URLs) == 0 {
		return nil, fmt.Errorf("no feeds configured for source %s", req.SourceName)
	}

	var collected []domain.Headline
	for _, feedURL := range req.URLs {
		headlines, err := s.scanFeed(ctx, feedURL, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if s.logger != nil {
				s.logger.Warn("feed failed", "source", req.SourceName, "feed", feedURL, "error", err)
			}
			continue
		}
		collected = append(collected, headlines...)
	}
	return scanner.Dedupe(collected), nil
}

func (s *RSSScanner) scanFeed(ctx context.Context, feedURL string, req scanner.Request) ([]domain.Headline, error) {
	body, err := fetch(ctx, defaultClient(s.client), feedURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var doc feedDocument
	if err := xml.NewDecoder(body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode feed %s: %w", feedURL, err)
	}
	return parseFeed(doc, req.SourceName, req.EffectiveLimit()), nil
}

func parseFeed(doc feedDocument, source string, limit int) []domain.Headline {
	out := []domain.Headline{}
	add := func(title, link string) {
		title = collapseSpaces(title)
		link = strings.TrimSpace(link)
		if title == "" || link == "" {
			return
		}
		out = append(out, domain.Headline{Title: title, URL: link, Source: source})
	}

	entries := doc.Entries
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for _, entry := range entries {
		add(entry.Title, alternateLink(entry.Links))
	}

	items := doc.Channel.Items
	if len(items) > limit {
		items = items[:limit]
	}
	for _, item := range items {
		add(item.Title, item.Link)
	}
	return out
}

// alternateLink prefers rel="alternate"; a link without rel counts as alternate in Atom.
func alternateLink(links []atomLink) string {
	for _, l := range links {
		if l.Rel == "alternate" || l.Rel == "" {
			return l.Href
		}
	}
	return ""
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
