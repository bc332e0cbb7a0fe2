package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"sitbrief/internal/domain"
	"sitbrief/internal/infrastructure/objectstore"
	"sitbrief/internal/logging"
)

var exportNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func seedExportRepo(t *testing.T, articles int) (*memRepo, []int64) {
	t.Helper()
	ctx := context.Background()
	repo := newMemRepo()
	topic, _ := repo.CreateTopic(ctx, domain.Topic{Title: "Sanctions"})
	_, _ = repo.CreateTopic(ctx, domain.Topic{Title: "Arctic"})

	ids := make([]int64, 0, articles)
	for i := 0; i < articles; i++ {
		a, _ := repo.CreateArticle(ctx, domain.Article{
			Title:       "Article",
			SourceName:  "Wire",
			SourceType:  domain.SourceNewsMedia,
			PublishedAt: exportNow.AddDate(0, 0, -i),
		})
		ids = append(ids, a.ID)
		if _, err := repo.AttachLinks(ctx, a.ID, []int64{topic.ID}, true, exportNow); err != nil {
			t.Fatalf("AttachLinks: %v", err)
		}
	}
	return repo, ids
}

func newTestExporter(repo *memRepo, dir string, pageSize int) *Exporter {
	return NewExporter(ExportDeps{
		Articles: repo,
		Topics:   repo,
		Analyses: repo,
		Links:    repo,
		Writer:   objectstore.NewDirStore(dir),
		LockDir:  dir,
		PageSize: pageSize,
		Logger:   logging.Discard(),
		Now:      func() time.Time { return exportNow },
	})
}

func readDoc(t *testing.T, store *objectstore.DirStore, key string, v any) {
	t.Helper()
	data, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode %s: %v", key, err)
	}
}

func TestExportWritesPagedDocuments(t *testing.T) {
	t.Parallel()

	repo, ids := seedExportRepo(t, 7)
	if err := repo.SaveAnalysis(context.Background(), domain.Analysis{
		ArticleID:            ids[0],
		SuggestedTopicsJSON:  `{"existing":[],"new":[]}`,
		KeyEntitiesJSON:      `{"countries":["EU"]}`,
		GeopoliticalTagsJSON: `["europe"]`,
		SignificanceScore:    8,
	}); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	dir := t.TempDir()
	report, err := newTestExporter(repo, dir, 3).Export(context.Background())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if report.Pages != 3 || report.Articles != 7 || report.Topics != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	store := objectstore.NewDirStore(dir)
	var meta metadataDocument
	readDoc(t, store, metadataKey, &meta)
	if meta.Stats.TotalArticles != 7 || meta.Pagination.TotalPages != 3 || meta.Pagination.PageSize != 3 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if meta.Stats.ArticlesThisWeek != 7 {
		t.Fatalf("expected 7 articles this week, got %d", meta.Stats.ArticlesThisWeek)
	}
	if meta.LastSync != "2024-06-10T12:00:00Z" {
		t.Fatalf("unexpected lastSync %q", meta.LastSync)
	}

	var latest, first, last articlesDocument
	readDoc(t, store, latestArticlesKey, &latest)
	readDoc(t, store, "articles/page-1.json", &first)
	readDoc(t, store, "articles/page-3.json", &last)
	if !reflect.DeepEqual(latest, first) {
		t.Fatal("latest.json differs from page 1")
	}
	if first.Count != 3 || last.Count != 1 || last.Page != 3 || last.TotalPages != 3 {
		t.Fatalf("unexpected pages: first=%+v last=%+v", first, last)
	}
	if first.Articles[0].ID != ids[0] || first.Articles[0].Analysis == nil || first.Articles[0].Analysis.SignificanceScore != 8 {
		t.Fatalf("newest article not first or analysis missing: %+v", first.Articles[0])
	}
	if first.Articles[1].Analysis != nil {
		t.Fatal("unanalyzed article exported with analysis")
	}

	var topics topicsDocument
	readDoc(t, store, topicsKey, &topics)
	if topics.Count != 2 {
		t.Fatalf("expected 2 topics, got %d", topics.Count)
	}
	var sanctions topicExport
	for _, topic := range topics.Topics {
		if topic.Title == "Sanctions" {
			sanctions = topic
		}
	}
	if !reflect.DeepEqual(sanctions.RecentArticleIDs, ids[:5]) || sanctions.ArticleCount != 7 {
		t.Fatalf("unexpected topic export: %+v", sanctions)
	}
}

func TestExportEmptyDatabaseStillWritesLatest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	report, err := newTestExporter(newMemRepo(), dir, 20).Export(context.Background())
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if report.Pages != 1 {
		t.Fatalf("expected one page, got %d", report.Pages)
	}
	var latest articlesDocument
	readDoc(t, objectstore.NewDirStore(dir), latestArticlesKey, &latest)
	if latest.Count != 0 || latest.Articles == nil {
		t.Fatalf("unexpected empty page: %+v", latest)
	}
}

func TestExportRemovesStalePages(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, ids := seedExportRepo(t, 5)
	exporter := newTestExporter(repo, dir, 2)
	if _, err := exporter.Export(context.Background()); err != nil {
		t.Fatalf("first export: %v", err)
	}
	for _, id := range ids[2:] {
		if err := repo.DeleteArticle(context.Background(), id); err != nil {
			t.Fatalf("DeleteArticle: %v", err)
		}
	}
	if _, err := exporter.Export(context.Background()); err != nil {
		t.Fatalf("second export: %v", err)
	}

	store := objectstore.NewDirStore(dir)
	objects, _ := store.List(context.Background(), "articles")
	var keys []string
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	want := []string{"articles/latest.json", "articles/page-1.json"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("unexpected article keys: %v", keys)
	}
}

func TestExportBusy(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	held := flock.New(filepath.Join(dir, exportLockName))
	locked, err := held.TryLock()
	if err != nil || !locked {
		t.Fatalf("could not take lock: %v", err)
	}
	defer held.Unlock()

	_, err = newTestExporter(newMemRepo(), dir, 20).Export(context.Background())
	if !errors.Is(err, ErrExportBusy) {
		t.Fatalf("expected ErrExportBusy, got %v", err)
	}
}
