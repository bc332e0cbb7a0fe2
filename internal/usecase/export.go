package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"sitbrief/internal/domain"
	"sitbrief/internal/metrics"
	"sitbrief/internal/ports"
)

const (
	metadataKey       = "metadata.json"
	topicsKey         = "topics.json"
	latestArticlesKey = "articles/latest.json"
	articlesDir       = "articles/"
	recentArticleCap  = 5
	exportLockName    = ".export.lock"
)

// ErrExportBusy is returned when another export holds the output lock.
var ErrExportBusy = errors.New("export already in progress")

// ExportDeps wires the exporter.
type ExportDeps struct {
	Articles ports.ArticleRepository
	Topics   ports.TopicRepository
	Analyses ports.AnalysisRepository
	Links    ports.LinkRepository
	Writer   ports.ObjectWriter
	// LockDir holds the lock file; empty disables locking.
	LockDir  string
	PageSize int
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

// Exporter renders the database into static JSON documents.
type Exporter struct {
	deps ExportDeps
}

// ExportReport summarises one export.
type ExportReport struct {
	GeneratedAt time.Time
	Keys        []string
	Articles    int
	Topics      int
	Pages       int
}

// NewExporter constructs the export use case.
func NewExporter(deps ExportDeps) *Exporter {
	if deps.PageSize < 1 {
		deps.PageSize = 20
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "export")
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Exporter{deps: deps}
}

type metadataDocument struct {
	Version    string             `json:"version"`
	LastSync   string             `json:"lastSync"`
	Stats      metadataStats      `json:"stats"`
	Endpoints  metadataEndpoints  `json:"endpoints"`
	Pagination metadataPagination `json:"pagination"`
}

type metadataStats struct {
	TotalArticles    int `json:"totalArticles"`
	TotalTopics      int `json:"totalTopics"`
	ArticlesThisWeek int `json:"articlesThisWeek"`
}

type metadataEndpoints struct {
	Metadata string `json:"metadata"`
	Topics   string `json:"topics"`
	Latest   string `json:"latest"`
	Page     string `json:"page"`
}

type metadataPagination struct {
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

type topicsDocument struct {
	Version     string        `json:"version"`
	GeneratedAt string        `json:"generatedAt"`
	Count       int           `json:"count"`
	Topics      []topicExport `json:"topics"`
}

type topicExport struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	Significance     string  `json:"significance,omitempty"`
	ArticleCount     int     `json:"articleCount"`
	LastUpdated      string  `json:"lastUpdated"`
	RecentArticleIDs []int64 `json:"recentArticleIds"`
}

type articlesDocument struct {
	Version     string          `json:"version"`
	GeneratedAt string          `json:"generatedAt"`
	Page        int             `json:"page"`
	TotalPages  int             `json:"totalPages"`
	Count       int             `json:"count"`
	Articles    []articleExport `json:"articles"`
}

type articleExport struct {
	ID            int64           `json:"id"`
	Title         string          `json:"title"`
	Summary       string          `json:"summary"`
	SourceName    string          `json:"sourceName"`
	SourceURL     string          `json:"sourceUrl"`
	SourceType    string          `json:"sourceType"`
	PublishedDate string          `json:"publishedDate,omitempty"`
	CreatedAt     string          `json:"createdAt"`
	TopicIDs      []int64         `json:"topicIds"`
	Analysis      *analysisExport `json:"analysis,omitempty"`
}

type analysisExport struct {
	SignificanceScore int             `json:"significanceScore"`
	SuggestedTopics   json.RawMessage `json:"suggestedTopics"`
	KeyEntities       json.RawMessage `json:"keyEntities"`
	GeopoliticalTags  json.RawMessage `json:"geopoliticalTags"`
	Summary           string          `json:"summary,omitempty"`
}

// Export writes metadata, topics and paged articles. Keys are relative to the writer root.
func (e *Exporter) Export(ctx context.Context) (ExportReport, error) {
	unlock, err := e.lock()
	if err != nil {
		return ExportReport{}, err
	}
	defer unlock()

	articles, err := e.deps.Articles.ListArticles(ctx)
	if err != nil {
		return ExportReport{}, fmt.Errorf("list articles: %w", err)
	}
	topics, err := e.deps.Topics.ListTopics(ctx)
	if err != nil {
		return ExportReport{}, fmt.Errorf("list topics: %w", err)
	}
	analyses, err := e.deps.Analyses.ListAnalyses(ctx)
	if err != nil {
		return ExportReport{}, fmt.Errorf("list analyses: %w", err)
	}
	links, err := e.deps.Links.ListLinks(ctx)
	if err != nil {
		return ExportReport{}, fmt.Errorf("list links: %w", err)
	}

	now := e.deps.Now()
	stamp := now.Format(time.RFC3339)
	docs := newDocumentSet()

	pages := paginate(exportArticles(articles, analyses), e.deps.PageSize)
	for i, page := range pages {
		doc := articlesDocument{
			Version:     stamp,
			GeneratedAt: stamp,
			Page:        i + 1,
			TotalPages:  len(pages),
			Count:       len(page),
			Articles:    page,
		}
		if err := docs.add(pageKey(i+1), doc); err != nil {
			return ExportReport{}, err
		}
		if i == 0 {
			if err := docs.add(latestArticlesKey, doc); err != nil {
				return ExportReport{}, err
			}
		}
	}

	if err := docs.add(topicsKey, topicsDocument{
		Version:     stamp,
		GeneratedAt: stamp,
		Count:       len(topics),
		Topics:      exportTopics(topics, links, articles),
	}); err != nil {
		return ExportReport{}, err
	}

	if err := docs.add(metadataKey, metadataDocument{
		Version:  stamp,
		LastSync: stamp,
		Stats: metadataStats{
			TotalArticles:    len(articles),
			TotalTopics:      len(topics),
			ArticlesThisWeek: countSince(articles, now.AddDate(0, 0, -7)),
		},
		Endpoints: metadataEndpoints{
			Metadata: metadataKey,
			Topics:   topicsKey,
			Latest:   latestArticlesKey,
			Page:     articlesDir + "page-{n}.json",
		},
		Pagination: metadataPagination{PageSize: e.deps.PageSize, TotalPages: len(pages)},
	}); err != nil {
		return ExportReport{}, err
	}

	for _, key := range docs.keys {
		if err := e.deps.Writer.Put(ctx, key, docs.content[key], "application/json"); err != nil {
			return ExportReport{}, fmt.Errorf("write %s: %w", key, err)
		}
	}
	if err := e.removeStalePages(ctx, docs); err != nil {
		return ExportReport{}, err
	}

	e.deps.Metrics.AddExported(len(docs.keys))
	e.deps.Logger.Info("export finished", "articles", len(articles), "topics", len(topics), "pages", len(pages), "files", len(docs.keys))

	return ExportReport{
		GeneratedAt: now,
		Keys:        docs.keys,
		Articles:    len(articles),
		Topics:      len(topics),
		Pages:       len(pages),
	}, nil
}

func (e *Exporter) lock() (func(), error) {
	if e.deps.LockDir == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(e.deps.LockDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	fl := flock.New(filepath.Join(e.deps.LockDir, exportLockName))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire export lock: %w", err)
	}
	if !ok {
		return nil, ErrExportBusy
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			e.deps.Logger.Warn("failed to release export lock", "error", err)
		}
	}, nil
}

// removeStalePages deletes article pages left over from a larger previous export.
func (e *Exporter) removeStalePages(ctx context.Context, docs *documentSet) error {
	store, ok := e.deps.Writer.(ports.ObjectStore)
	if !ok {
		return nil
	}
	existing, err := store.List(ctx, strings.TrimSuffix(articlesDir, "/"))
	if err != nil {
		return fmt.Errorf("list exported pages: %w", err)
	}
	for _, obj := range existing {
		if _, keep := docs.content[obj.Key]; keep {
			continue
		}
		if err := store.Delete(ctx, obj.Key); err != nil {
			return fmt.Errorf("remove stale %s: %w", obj.Key, err)
		}
	}
	return nil
}

type documentSet struct {
	keys    []string
	content map[string][]byte
}

func newDocumentSet() *documentSet {
	return &documentSet{content: map[string][]byte{}}
}

func (d *documentSet) add(key string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	d.keys = append(d.keys, key)
	d.content[key] = data
	return nil
}

func pageKey(n int) string {
	return fmt.Sprintf("%spage-%d.json", articlesDir, n)
}

func exportArticles(articles []domain.Article, analyses []domain.Analysis) []articleExport {
	byArticle := make(map[int64]domain.Analysis, len(analyses))
	for _, a := range analyses {
		byArticle[a.ArticleID] = a
	}

	out := make([]articleExport, 0, len(articles))
	for _, a := range articles {
		item := articleExport{
			ID:         a.ID,
			Title:      a.Title,
			Summary:    a.Summary,
			SourceName: a.SourceName,
			SourceURL:  a.SourceURL,
			SourceType: string(a.SourceType),
			CreatedAt:  a.CreatedAt.UTC().Format(time.RFC3339),
			TopicIDs:   make([]int64, 0, len(a.Topics)),
		}
		if !a.PublishedAt.IsZero() {
			item.PublishedDate = a.PublishedAt.UTC().Format("2006-01-02")
		}
		for _, t := range a.Topics {
			item.TopicIDs = append(item.TopicIDs, t.ID)
		}
		sort.Slice(item.TopicIDs, func(i, j int) bool { return item.TopicIDs[i] < item.TopicIDs[j] })

		if analysis, ok := byArticle[a.ID]; ok {
			item.Analysis = &analysisExport{
				SignificanceScore: analysis.SignificanceScore,
				SuggestedTopics:   rawJSON(analysis.SuggestedTopicsJSON, "{}"),
				KeyEntities:       rawJSON(analysis.KeyEntitiesJSON, "{}"),
				GeopoliticalTags:  rawJSON(analysis.GeopoliticalTagsJSON, "[]"),
				Summary:           analysis.Summary,
			}
		}
		out = append(out, item)
	}
	return out
}

// exportTopics relies on articles being ordered newest first.
func exportTopics(topics []domain.Topic, links []domain.ArticleTopicLink, articles []domain.Article) []topicExport {
	rank := make(map[int64]int, len(articles))
	for i, a := range articles {
		rank[a.ID] = i
	}
	byTopic := map[int64][]int64{}
	for _, l := range links {
		byTopic[l.TopicID] = append(byTopic[l.TopicID], l.ArticleID)
	}

	out := make([]topicExport, 0, len(topics))
	for _, t := range topics {
		ids := byTopic[t.ID]
		sort.Slice(ids, func(i, j int) bool { return rank[ids[i]] < rank[ids[j]] })
		if len(ids) > recentArticleCap {
			ids = ids[:recentArticleCap]
		}
		out = append(out, topicExport{
			ID:               t.ID,
			Title:            t.Title,
			Description:      t.Description,
			Significance:     t.Significance,
			ArticleCount:     t.ArticleCount,
			LastUpdated:      t.UpdatedAt.UTC().Format(time.RFC3339),
			RecentArticleIDs: append([]int64{}, ids...),
		})
	}
	return out
}

// paginate always yields at least one page so latest.json exists for an empty database.
func paginate(items []articleExport, size int) [][]articleExport {
	if len(items) == 0 {
		return [][]articleExport{{}}
	}
	var pages [][]articleExport
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		pages = append(pages, items[start:end])
	}
	return pages
}

func countSince(articles []domain.Article, since time.Time) int {
	n := 0
	for _, a := range articles {
		if !a.PublishedAt.IsZero() && !a.PublishedAt.Before(since) {
			n++
		}
	}
	return n
}

func rawJSON(value, fallback string) json.RawMessage {
	if value == "" || !json.Valid([]byte(value)) {
		return json.RawMessage(fallback)
	}
	return json.RawMessage(value)
}
