package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"sitbrief/internal/classify"
	"sitbrief/internal/domain"
	"sitbrief/internal/logging"
)

type analysisFixture struct {
	repo       *memRepo
	classifier *fakeClassifier
	service    *AnalysisService
	article    domain.Article
	topics     []domain.Topic
}

func newAnalysisFixture(t *testing.T, classifier *fakeClassifier, timeout time.Duration) analysisFixture {
	t.Helper()
	ctx := context.Background()
	repo := newMemRepo()

	article, _ := repo.CreateArticle(ctx, domain.Article{
		Title:       "EU widens sanctions",
		Summary:     "New package targets shipping.",
		SourceName:  "Reuters",
		PublishedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	t1, _ := repo.CreateTopic(ctx, domain.Topic{Title: "Sanctions", Description: "Economic measures"})
	t2, _ := repo.CreateTopic(ctx, domain.Topic{Title: "Shipping", Description: "Maritime trade"})

	service := NewAnalysisService(AnalysisDeps{
		Articles:   repo,
		Topics:     repo,
		Analyses:   repo,
		Links:      repo,
		Classifier: classifier,
		Policy:     classify.PolicyReclassify,
		Timeout:    timeout,
		Logger:     logging.Discard(),
	})
	return analysisFixture{repo: repo, classifier: classifier, service: service, article: article, topics: []domain.Topic{t1, t2}}
}

func TestAnalyzeArticlePersistsResult(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{answers: []string{`Sure! {"suggestedExistingTopics":[{"topicId":1,"confidence":0.9,"reason":"sanctions"},{"topicId":77,"confidence":0.5,"reason":"new angle","title":"Arctic Route"}],
		"keyEntities":{"countries":["EU"]},"geopoliticalTags":["europe"],"significance":14,"summary":"EU expands sanctions."} done`}}
	f := newAnalysisFixture(t, classifier, time.Second)

	result, err := f.service.AnalyzeArticle(context.Background(), f.article.ID)
	if err != nil {
		t.Fatalf("AnalyzeArticle: %v", err)
	}
	if result.Significance != 10 {
		t.Fatalf("significance not clamped: %d", result.Significance)
	}
	if len(result.SuggestedExistingTopics) != 1 || result.SuggestedExistingTopics[0].TopicID != 1 {
		t.Fatalf("unexpected existing topics: %+v", result.SuggestedExistingTopics)
	}
	if len(result.SuggestedNewTopics) != 1 || result.SuggestedNewTopics[0].Title != "Arctic Route" {
		t.Fatalf("unknown id not reclassified: %+v", result.SuggestedNewTopics)
	}

	prompt := classifier.prompts[0]
	for _, want := range []string{"EU widens sanctions", "ID: 1, Title: Sanctions", "ID: 2, Title: Shipping"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q", want)
		}
	}

	stored, err := f.repo.GetAnalysis(context.Background(), f.article.ID)
	if err != nil {
		t.Fatalf("GetAnalysis: %v", err)
	}
	if stored.SignificanceScore != 10 || stored.Model != "fake:model" || stored.Summary != "EU expands sanctions." {
		t.Fatalf("unexpected stored analysis: %+v", stored)
	}
	var suggested domain.SuggestedTopics
	if err := json.Unmarshal([]byte(stored.SuggestedTopicsJSON), &suggested); err != nil {
		t.Fatalf("stored suggestions are not json: %v", err)
	}
	if len(suggested.Existing) != 1 || len(suggested.New) != 1 {
		t.Fatalf("unexpected stored suggestions: %+v", suggested)
	}
	if links, _ := f.repo.ListLinks(context.Background()); len(links) != 0 {
		t.Fatalf("classification must not touch links, got %+v", links)
	}
}

func TestAnalyzeArticleTwiceOverwrites(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{answers: []string{
		`{"suggestedExistingTopics":[{"topicId":1,"confidence":0.8}],"geopoliticalTags":["a","b"],"significance":7,"summary":"first"}`,
		`{"summary":"second"}`,
	}}
	f := newAnalysisFixture(t, classifier, 0)
	ctx := context.Background()

	if _, err := f.service.AnalyzeArticle(ctx, f.article.ID); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := f.service.AnalyzeArticle(ctx, f.article.ID); err != nil {
		t.Fatalf("second run: %v", err)
	}

	stored, _ := f.repo.GetAnalysis(ctx, f.article.ID)
	if stored.Summary != "second" || stored.SignificanceScore != domain.DefaultSignificance {
		t.Fatalf("second run did not overwrite: %+v", stored)
	}
	if stored.GeopoliticalTagsJSON != "[]" {
		t.Fatalf("tags survived overwrite: %s", stored.GeopoliticalTagsJSON)
	}
	if !strings.Contains(stored.SuggestedTopicsJSON, `"existing":[]`) {
		t.Fatalf("suggestions survived overwrite: %s", stored.SuggestedTopicsJSON)
	}
	all, _ := f.repo.ListAnalyses(ctx)
	if len(all) != 1 {
		t.Fatalf("expected a single record, got %d", len(all))
	}
}

func TestAnalyzeArticleFailuresPersistNothing(t *testing.T) {
	t.Parallel()

	transport := &domain.TransportError{Provider: "fake", StatusCode: 503}
	cases := map[string]struct {
		classifier *fakeClassifier
		want       error
	}{
		"transport": {classifier: &fakeClassifier{err: transport}, want: transport},
		"empty":     {classifier: &fakeClassifier{err: domain.ErrEmptyResponse}, want: domain.ErrEmptyResponse},
		"no json":   {classifier: &fakeClassifier{answers: []string{"I cannot help"}}, want: domain.ErrNoJSONFound},
		"malformed": {classifier: &fakeClassifier{answers: []string{`{"summary": }`}}, want: domain.ErrMalformedJSON},
		"config":    {classifier: &fakeClassifier{err: domain.ConfigError("fake", "api key")}, want: domain.ErrConfiguration},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newAnalysisFixture(t, tc.classifier, time.Second)
			_, err := f.service.AnalyzeArticle(context.Background(), f.article.ID)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if f.repo.saves != 0 {
				t.Fatalf("expected nothing persisted, got %d saves", f.repo.saves)
			}
		})
	}
}

func TestAnalyzeArticleTransportErrorKeepsStatus(t *testing.T) {
	t.Parallel()

	f := newAnalysisFixture(t, &fakeClassifier{err: &domain.TransportError{Provider: "fake", StatusCode: 429}}, 0)
	_, err := f.service.AnalyzeArticle(context.Background(), f.article.ID)
	var transport *domain.TransportError
	if !errors.As(err, &transport) || transport.StatusCode != 429 {
		t.Fatalf("expected status 429, got %v", err)
	}
}

func TestAnalyzeArticleCancellation(t *testing.T) {
	t.Parallel()

	f := newAnalysisFixture(t, &fakeClassifier{block: true}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.service.AnalyzeArticle(ctx, f.article.ID)
		done <- err
	}()
	for f.classifier.calls() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("AnalyzeArticle did not return after cancellation")
	}
	if f.repo.saves != 0 {
		t.Fatal("cancelled run persisted a result")
	}
}

func TestAnalyzeArticleTimeout(t *testing.T) {
	t.Parallel()

	f := newAnalysisFixture(t, &fakeClassifier{block: true}, 20*time.Millisecond)
	_, err := f.service.AnalyzeArticle(context.Background(), f.article.ID)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestAnalyzeArticleMissingArticle(t *testing.T) {
	t.Parallel()

	classifier := &fakeClassifier{answers: []string{"{}"}}
	f := newAnalysisFixture(t, classifier, 0)
	_, err := f.service.AnalyzeArticle(context.Background(), 999)
	if !errors.Is(err, domain.ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
	if classifier.calls() != 0 {
		t.Fatal("classifier must not be called for a missing article")
	}
}

func TestLinkTopicsReplaceAndAttach(t *testing.T) {
	t.Parallel()

	f := newAnalysisFixture(t, &fakeClassifier{answers: []string{"{}"}}, 0)
	ctx := context.Background()
	t1, t2 := f.topics[0].ID, f.topics[1].ID

	outcome, err := f.service.LinkTopics(ctx, f.article.ID, []int64{t1, 99}, true)
	if err != nil {
		t.Fatalf("LinkTopics: %v", err)
	}
	if !reflect.DeepEqual(outcome.Linked, []int64{t1}) || !reflect.DeepEqual(outcome.Skipped, []int64{99}) {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	outcome, err = f.service.AttachTopics(ctx, f.article.ID, []int64{t1, t2}, false)
	if err != nil {
		t.Fatalf("AttachTopics: %v", err)
	}
	if !reflect.DeepEqual(outcome.Linked, []int64{t2}) {
		t.Fatalf("unexpected attach outcome: %+v", outcome)
	}

	outcome, err = f.service.LinkTopics(ctx, f.article.ID, []int64{t2}, true)
	if err != nil {
		t.Fatalf("LinkTopics: %v", err)
	}
	article, _ := f.repo.GetArticle(ctx, f.article.ID)
	if len(article.Topics) != 1 || article.Topics[0].ID != t2 {
		t.Fatalf("replace did not replace: %+v", article.Topics)
	}

	if _, err := f.service.LinkTopics(ctx, 999, []int64{t1}, true); !errors.Is(err, domain.ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
}

func TestAnalysisAndUnanalyzed(t *testing.T) {
	t.Parallel()

	f := newAnalysisFixture(t, &fakeClassifier{answers: []string{`{"summary":"s"}`}}, 0)
	ctx := context.Background()

	pending, _ := f.service.Unanalyzed(ctx, 10)
	if len(pending) != 1 {
		t.Fatalf("expected one unanalyzed article, got %d", len(pending))
	}
	if _, err := f.service.Analysis(ctx, f.article.ID); !errors.Is(err, domain.ErrAnalysisNotFound) {
		t.Fatalf("expected ErrAnalysisNotFound, got %v", err)
	}

	if _, err := f.service.AnalyzeArticle(ctx, f.article.ID); err != nil {
		t.Fatalf("AnalyzeArticle: %v", err)
	}
	if got, err := f.service.Analysis(ctx, f.article.ID); err != nil || got.Summary != "s" {
		t.Fatalf("Analysis = %+v, %v", got, err)
	}
	if pending, _ := f.service.Unanalyzed(ctx, 10); len(pending) != 0 {
		t.Fatalf("expected no unanalyzed articles, got %d", len(pending))
	}
	if _, err := f.service.Analysis(ctx, 999); !errors.Is(err, domain.ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
}

func TestAnalyzeArticleWithoutClassifier(t *testing.T) {
	t.Parallel()

	repo := newMemRepo()
	service := NewAnalysisService(AnalysisDeps{Articles: repo, Topics: repo, Analyses: repo, Links: repo, Logger: logging.Discard()})
	if _, err := service.AnalyzeArticle(context.Background(), 1); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
