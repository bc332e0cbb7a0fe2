package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"sitbrief/internal/config"
	"sitbrief/internal/domain"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(context.Background(), config.DatabaseConfig{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "sitbrief.db"),
	})
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func seedArticle(t *testing.T, repo *Repository, title string, published time.Time) domain.Article {
	t.Helper()
	article, err := repo.CreateArticle(context.Background(), domain.Article{
		Title:       title,
		Summary:     title + " summary",
		SourceName:  "Reuters",
		SourceURL:   "https://example.com/" + title,
		PublishedAt: published,
	})
	if err != nil {
		t.Fatalf("create article: %v", err)
	}
	return article
}

func seedTopic(t *testing.T, repo *Repository, title string) domain.Topic {
	t.Helper()
	topic, err := repo.CreateTopic(context.Background(), domain.Topic{Title: title, Description: title + " description"})
	if err != nil {
		t.Fatalf("create topic: %v", err)
	}
	return topic
}

func linkedIDs(t *testing.T, repo *Repository, articleID int64) []int64 {
	t.Helper()
	links, err := repo.ListLinks(context.Background())
	if err != nil {
		t.Fatalf("list links: %v", err)
	}
	ids := []int64{}
	for _, l := range links {
		if l.ArticleID == articleID {
			ids = append(ids, l.TopicID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestArticleRoundTrip(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	ctx := context.Background()

	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	created := seedArticle(t, repo, "sanctions", published)
	if created.ID == 0 || created.SourceType != domain.SourceNewsMedia {
		t.Fatalf("unexpected created article: %+v", created)
	}

	got, err := repo.GetArticle(ctx, created.ID)
	if err != nil {
		t.Fatalf("get article: %v", err)
	}
	if got.Title != "sanctions" || !got.PublishedAt.Equal(published) {
		t.Fatalf("unexpected article: %+v", got)
	}
	if got.Topics == nil || len(got.Topics) != 0 {
		t.Fatalf("expected empty topic list, got %v", got.Topics)
	}

	got.Title = "sanctions update"
	got.SourceType = domain.SourceThinkTank
	if err := repo.UpdateArticle(ctx, got); err != nil {
		t.Fatalf("update article: %v", err)
	}
	updated, _ := repo.GetArticle(ctx, created.ID)
	if updated.Title != "sanctions update" || updated.SourceType != domain.SourceThinkTank {
		t.Fatalf("update not applied: %+v", updated)
	}

	if err := repo.DeleteArticle(ctx, created.ID); err != nil {
		t.Fatalf("delete article: %v", err)
	}
	if _, err := repo.GetArticle(ctx, created.ID); !errors.Is(err, domain.ErrArticleNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if err := repo.DeleteArticle(ctx, created.ID); !errors.Is(err, domain.ErrArticleNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if err := repo.UpdateArticle(ctx, domain.Article{ID: 999, Title: "x"}); !errors.Is(err, domain.ErrArticleNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
}

func TestListArticlesNewestFirst(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	older := seedArticle(t, repo, "older", base)
	newer := seedArticle(t, repo, "newer", base.Add(48*time.Hour))

	articles, err := repo.ListArticles(context.Background())
	if err != nil {
		t.Fatalf("list articles: %v", err)
	}
	if len(articles) != 2 || articles[0].ID != newer.ID || articles[1].ID != older.ID {
		t.Fatalf("unexpected order: %+v", articles)
	}
}

func TestReplaceLinksIsReplaceAll(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	ctx := context.Background()

	article := seedArticle(t, repo, "a", time.Now())
	t1 := seedTopic(t, repo, "one")
	t2 := seedTopic(t, repo, "two")
	t3 := seedTopic(t, repo, "three")

	if _, err := repo.ReplaceLinks(ctx, article.ID, []int64{t1.ID, t2.ID}, true, time.Now()); err != nil {
		t.Fatalf("first replace: %v", err)
	}
	linked, err := repo.ReplaceLinks(ctx, article.ID, []int64{t2.ID, t3.ID}, true, time.Now())
	if err != nil {
		t.Fatalf("second replace: %v", err)
	}
	if !reflect.DeepEqual(linked, []int64{t2.ID, t3.ID}) {
		t.Fatalf("linked = %v", linked)
	}

	want := []int64{t2.ID, t3.ID}
	if got := linkedIDs(t, repo, article.ID); !reflect.DeepEqual(got, want) {
		t.Fatalf("links = %v, want %v", got, want)
	}

	links, _ := repo.ListLinks(ctx)
	for _, l := range links {
		if l.Confidence != 1.0 || !l.Confirmed || l.AddedAt.IsZero() {
			t.Fatalf("unexpected link fields: %+v", l)
		}
	}

	got, _ := repo.GetArticle(ctx, article.ID)
	if len(got.Topics) != 2 {
		t.Fatalf("article topics = %+v", got.Topics)
	}
}

func TestReplaceLinksSkipsUnknownTopics(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	ctx := context.Background()

	article := seedArticle(t, repo, "a", time.Now())
	topic := seedTopic(t, repo, "known")

	linked, err := repo.ReplaceLinks(ctx, article.ID, []int64{topic.ID, 404, topic.ID}, false, time.Now())
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if !reflect.DeepEqual(linked, []int64{topic.ID}) {
		t.Fatalf("linked = %v", linked)
	}

	links, _ := repo.ListLinks(ctx)
	if len(links) != 1 || links[0].Confirmed {
		t.Fatalf("unexpected links: %+v", links)
	}

	if _, err := repo.ReplaceLinks(ctx, 12345, []int64{topic.ID}, true, time.Now()); !errors.Is(err, domain.ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
}

func TestReplaceLinksEmptyClears(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	ctx := context.Background()

	article := seedArticle(t, repo, "a", time.Now())
	topic := seedTopic(t, repo, "t")
	if _, err := repo.ReplaceLinks(ctx, article.ID, []int64{topic.ID}, true, time.Now()); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, err := repo.ReplaceLinks(ctx, article.ID, nil, true, time.Now()); err != nil {
		t.Fatalf("replace empty: %v", err)
	}
	if got := linkedIDs(t, repo, article.ID); len(got) != 0 {
		t.Fatalf("expected no links, got %v", got)
	}
}

func TestAttachLinksIsAdditive(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	ctx := context.Background()

	article := seedArticle(t, repo, "a", time.Now())
	t1 := seedTopic(t, repo, "one")
	t2 := seedTopic(t, repo, "two")

	if _, err := repo.ReplaceLinks(ctx, article.ID, []int64{t1.ID}, true, time.Now()); err != nil {
		t.Fatalf("replace: %v", err)
	}
	added, err := repo.AttachLinks(ctx, article.ID, []int64{t1.ID, t2.ID}, false, time.Now())
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if !reflect.DeepEqual(added, []int64{t2.ID}) {
		t.Fatalf("added = %v", added)
	}
	if got := linkedIDs(t, repo, article.ID); !reflect.DeepEqual(got, []int64{t1.ID, t2.ID}) {
		t.Fatalf("links = %v", got)
	}
}

func TestConcurrentReplaceLinksLeavesOneFullSet(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	ctx := context.Background()

	article := seedArticle(t, repo, "a", time.Now())
	t1 := seedTopic(t, repo, "one")
	t2 := seedTopic(t, repo, "two")
	t3 := seedTopic(t, repo, "three")
	sets := [][]int64{{t1.ID, t2.ID}, {t3.ID}}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(set []int64) {
			defer wg.Done()
			if _, err := repo.ReplaceLinks(ctx, article.ID, set, true, time.Now()); err != nil {
				t.Errorf("replace: %v", err)
			}
		}(sets[i%2])
	}
	wg.Wait()

	got := linkedIDs(t, repo, article.ID)
	if !reflect.DeepEqual(got, sets[0]) && !reflect.DeepEqual(got, sets[1]) {
		t.Fatalf("interleaved link set: %v", got)
	}
}

func TestReplaceLinksFailureKeepsPriorSet(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	ctx := context.Background()

	article := seedArticle(t, repo, "a", time.Now())
	t1 := seedTopic(t, repo, "one")
	t2 := seedTopic(t, repo, "two")
	broken := seedTopic(t, repo, "broken")

	if _, err := repo.ReplaceLinks(ctx, article.ID, []int64{t1.ID, t2.ID}, true, time.Now()); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	trigger := fmt.Sprintf(`CREATE TRIGGER reject_broken BEFORE INSERT ON article_topics
		WHEN NEW.topic_id = %d BEGIN SELECT RAISE(ABORT, 'rejected'); END`, broken.ID)
	if _, err := repo.db.ExecContext(ctx, trigger); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	if _, err := repo.ReplaceLinks(ctx, article.ID, []int64{t2.ID, broken.ID}, true, time.Now()); err == nil {
		t.Fatal("expected replace to fail")
	}
	if _, err := repo.AttachLinks(ctx, article.ID, []int64{broken.ID}, true, time.Now()); err == nil {
		t.Fatal("expected attach to fail")
	}

	want := []int64{t1.ID, t2.ID}
	if got := linkedIDs(t, repo, article.ID); !reflect.DeepEqual(got, want) {
		t.Fatalf("links = %v, want %v", got, want)
	}
}

func TestSaveAnalysisOverwrites(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	ctx := context.Background()

	article := seedArticle(t, repo, "a", time.Now())
	first := domain.Analysis{
		ArticleID:            article.ID,
		SuggestedTopicsJSON:  `{"existing":[{"topicId":1}],"new":[]}`,
		KeyEntitiesJSON:      `{"countries":["France"]}`,
		GeopoliticalTagsJSON: `["europe"]`,
		SignificanceScore:    8,
		Summary:              "first",
		Model:                "m1",
		AnalyzedAt:           time.Now(),
	}
	if err := repo.SaveAnalysis(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}

	second := domain.Analysis{
		ArticleID:            article.ID,
		SuggestedTopicsJSON:  `{"existing":[],"new":[]}`,
		KeyEntitiesJSON:      `{}`,
		GeopoliticalTagsJSON: `[]`,
		SignificanceScore:    42,
		Summary:              "second",
		Model:                "m2",
		AnalyzedAt:           time.Now(),
	}
	if err := repo.SaveAnalysis(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, err := repo.GetAnalysis(ctx, article.ID)
	if err != nil {
		t.Fatalf("get analysis: %v", err)
	}
	if got.Summary != "second" || got.Model != "m2" || got.SignificanceScore != 10 ||
		got.SuggestedTopicsJSON != second.SuggestedTopicsJSON || got.KeyEntitiesJSON != "{}" {
		t.Fatalf("analysis not fully overwritten: %+v", got)
	}

	all, _ := repo.ListAnalyses(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one analysis row, got %d", len(all))
	}

	if err := repo.SaveAnalysis(ctx, domain.Analysis{ArticleID: 999, AnalyzedAt: time.Now()}); !errors.Is(err, domain.ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
	if _, err := repo.GetAnalysis(ctx, 999); !errors.Is(err, domain.ErrAnalysisNotFound) {
		t.Fatalf("expected ErrAnalysisNotFound, got %v", err)
	}
}

func TestListUnanalyzed(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	done := seedArticle(t, repo, "done", base)
	pendingOld := seedArticle(t, repo, "pending-old", base.Add(time.Hour))
	pendingNew := seedArticle(t, repo, "pending-new", base.Add(2*time.Hour))
	if err := repo.SaveAnalysis(ctx, domain.Analysis{ArticleID: done.ID, AnalyzedAt: time.Now()}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.ListUnanalyzed(ctx, 0)
	if err != nil {
		t.Fatalf("list unanalyzed: %v", err)
	}
	if len(got) != 2 || got[0].ID != pendingNew.ID || got[1].ID != pendingOld.ID {
		t.Fatalf("unexpected unanalyzed: %+v", got)
	}

	limited, _ := repo.ListUnanalyzed(ctx, 1)
	if len(limited) != 1 {
		t.Fatalf("limit ignored: %d", len(limited))
	}
}

func TestTopicsCRUDAndCounts(t *testing.T) {
	t.Parallel()
	repo := openTestRepo(t)
	ctx := context.Background()

	beta := seedTopic(t, repo, "Beta")
	alpha := seedTopic(t, repo, "Alpha")
	article := seedArticle(t, repo, "a", time.Now())
	if _, err := repo.ReplaceLinks(ctx, article.ID, []int64{beta.ID}, true, time.Now()); err != nil {
		t.Fatalf("link: %v", err)
	}

	topics, err := repo.ListTopics(ctx)
	if err != nil {
		t.Fatalf("list topics: %v", err)
	}
	if len(topics) != 2 || topics[0].ID != alpha.ID || topics[1].ArticleCount != 1 {
		t.Fatalf("unexpected topics: %+v", topics)
	}

	beta.Description = "changed"
	if err := repo.UpdateTopic(ctx, beta); err != nil {
		t.Fatalf("update topic: %v", err)
	}
	got, _ := repo.GetTopic(ctx, beta.ID)
	if got.Description != "changed" || got.UpdatedAt.Before(got.CreatedAt) {
		t.Fatalf("unexpected topic: %+v", got)
	}

	articles, err := repo.TopicArticles(ctx, beta.ID)
	if err != nil || len(articles) != 1 || articles[0].ID != article.ID {
		t.Fatalf("topic articles = %+v, %v", articles, err)
	}

	if err := repo.DeleteTopic(ctx, beta.ID); err != nil {
		t.Fatalf("delete topic: %v", err)
	}
	if got := linkedIDs(t, repo, article.ID); len(got) != 0 {
		t.Fatalf("links survived topic delete: %v", got)
	}
	if _, err := repo.GetTopic(ctx, beta.ID); !errors.Is(err, domain.ErrTopicNotFound) {
		t.Fatalf("expected ErrTopicNotFound, got %v", err)
	}
	if err := repo.UpdateTopic(ctx, domain.Topic{ID: 999}); !errors.Is(err, domain.ErrTopicNotFound) {
		t.Fatalf("expected ErrTopicNotFound on update, got %v", err)
	}
	if _, err := repo.TopicArticles(ctx, 999); !errors.Is(err, domain.ErrTopicNotFound) {
		t.Fatalf("expected ErrTopicNotFound for articles, got %v", err)
	}
}
