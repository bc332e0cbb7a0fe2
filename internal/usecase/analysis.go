package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sitbrief/internal/classify"
	"sitbrief/internal/domain"
	"sitbrief/internal/metrics"
	"sitbrief/internal/ports"
)

// AnalysisDeps wires the driven adapters used by AnalysisService.
type AnalysisDeps struct {
	Articles   ports.ArticleRepository
	Topics     ports.TopicRepository
	Analyses   ports.AnalysisRepository
	Links      ports.LinkRepository
	Classifier ports.Classifier
	Policy     classify.UnknownTopicPolicy
	Timeout    time.Duration
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	Now        func() time.Time
}

// AnalysisService classifies articles against the taxonomy and reconciles links.
type AnalysisService struct {
	articles   ports.ArticleRepository
	topics     ports.TopicRepository
	analyses   ports.AnalysisRepository
	links      ports.LinkRepository
	classifier ports.Classifier
	parser     classify.Parser
	timeout    time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// LinkOutcome reports which requested topics were linked.
type LinkOutcome struct {
	ArticleID int64   `json:"articleId"`
	Linked    []int64 `json:"linked"`
	Skipped   []int64 `json:"skipped"`
}

// NewAnalysisService constructs the classification use case.
func NewAnalysisService(deps AnalysisDeps) *AnalysisService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &AnalysisService{
		articles:   deps.Articles,
		topics:     deps.Topics,
		analyses:   deps.Analyses,
		links:      deps.Links,
		classifier: deps.Classifier,
		parser:     classify.Parser{Policy: deps.Policy},
		timeout:    deps.Timeout,
		metrics:    deps.Metrics,
		logger:     logger.With("component", "analysis"),
		now:        now,
	}
}

// AnalyzeArticle runs one classification: snapshot, prompt, call, parse, persist.
// Nothing is stored unless the answer parses and ctx is still live.
func (s *AnalysisService) AnalyzeArticle(ctx context.Context, articleID int64) (domain.ClassificationResult, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.classifier == nil {
		return domain.ClassificationResult{}, domain.ConfigError("classifier", "provider")
	}
	provider := s.classifier.Name()
	started := time.Now()

	result, err := s.analyze(ctx, articleID)
	elapsed := time.Since(started)
	if err != nil {
		s.metrics.ObserveClassification(provider, outcomeLabel(err), elapsed)
		s.logger.Warn("classification failed", "article_id", articleID, "model", provider, "duration", elapsed, "error", err)
		return domain.ClassificationResult{}, err
	}

	s.metrics.ObserveClassification(provider, "success", elapsed)
	for _, c := range result.Corrections {
		s.metrics.AddCorrection(string(c.Action))
	}
	s.logger.Info("classification stored",
		"article_id", articleID,
		"model", provider,
		"duration", elapsed,
		"existing", len(result.SuggestedExistingTopics),
		"new", len(result.SuggestedNewTopics),
		"corrections", len(result.Corrections),
		"significance", result.Significance,
	)
	return result, nil
}

func (s *AnalysisService) analyze(ctx context.Context, articleID int64) (domain.ClassificationResult, error) {
	article, err := s.articles.GetArticle(ctx, articleID)
	if err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("load article %d: %w", articleID, err)
	}

	topics, err := s.topics.ListTopics(ctx)
	if err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("load taxonomy: %w", err)
	}
	taxonomy := classify.NewTaxonomy(topics)

	raw, err := s.classifier.Complete(ctx, classify.BuildPrompt(article, taxonomy))
	if err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("classify article %d: %w", articleID, err)
	}

	result, err := s.parser.Parse(raw, taxonomy)
	if err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("parse classification of article %d: %w", articleID, err)
	}

	if err := ctx.Err(); err != nil {
		return domain.ClassificationResult{}, err
	}

	record, err := analysisRecord(articleID, result, s.classifier.Name(), s.now())
	if err != nil {
		return domain.ClassificationResult{}, err
	}
	if err := s.analyses.SaveAnalysis(ctx, record); err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("store analysis of article %d: %w", articleID, err)
	}
	return result, nil
}

func analysisRecord(articleID int64, result domain.ClassificationResult, model string, at time.Time) (domain.Analysis, error) {
	suggested, err := json.Marshal(domain.SuggestedTopics{
		Existing: result.SuggestedExistingTopics,
		New:      result.SuggestedNewTopics,
	})
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("encode suggested topics: %w", err)
	}
	entities, err := json.Marshal(result.KeyEntities)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("encode key entities: %w", err)
	}
	tags, err := json.Marshal(result.GeopoliticalTags)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("encode tags: %w", err)
	}
	return domain.Analysis{
		ArticleID:            articleID,
		SuggestedTopicsJSON:  string(suggested),
		KeyEntitiesJSON:      string(entities),
		GeopoliticalTagsJSON: string(tags),
		SignificanceScore:    domain.ClampSignificance(result.Significance),
		Summary:              result.Summary,
		Model:                model,
		AnalyzedAt:           at,
	}, nil
}

func outcomeLabel(err error) string {
	var transport *domain.TransportError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, domain.ErrConfiguration):
		return "config_error"
	case errors.As(err, &transport):
		return "transport_error"
	case errors.Is(err, domain.ErrEmptyResponse):
		return "empty_response"
	case errors.Is(err, domain.ErrNoJSONFound), errors.Is(err, domain.ErrMalformedJSON):
		return "parse_error"
	case errors.Is(err, domain.ErrArticleNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// LinkTopics replaces every link of the article with the given topics at confidence 1.0.
func (s *AnalysisService) LinkTopics(ctx context.Context, articleID int64, topicIDs []int64, confirmed bool) (LinkOutcome, error) {
	linked, err := s.links.ReplaceLinks(ctx, articleID, topicIDs, confirmed, s.now())
	if err != nil {
		return LinkOutcome{}, fmt.Errorf("replace links of article %d: %w", articleID, err)
	}
	s.metrics.AddReconciliation("replace")
	outcome := newLinkOutcome(articleID, topicIDs, linked)
	s.logger.Info("links replaced", "article_id", articleID, "linked", len(outcome.Linked), "skipped", len(outcome.Skipped))
	return outcome, nil
}

// AttachTopics adds links without removing existing ones.
func (s *AnalysisService) AttachTopics(ctx context.Context, articleID int64, topicIDs []int64, confirmed bool) (LinkOutcome, error) {
	linked, err := s.links.AttachLinks(ctx, articleID, topicIDs, confirmed, s.now())
	if err != nil {
		return LinkOutcome{}, fmt.Errorf("attach links to article %d: %w", articleID, err)
	}
	s.metrics.AddReconciliation("attach")
	outcome := newLinkOutcome(articleID, topicIDs, linked)
	s.logger.Info("links attached", "article_id", articleID, "linked", len(outcome.Linked), "skipped", len(outcome.Skipped))
	return outcome, nil
}

// Analysis returns the stored classification of an article.
func (s *AnalysisService) Analysis(ctx context.Context, articleID int64) (domain.Analysis, error) {
	if _, err := s.articles.GetArticle(ctx, articleID); err != nil {
		return domain.Analysis{}, err
	}
	return s.analyses.GetAnalysis(ctx, articleID)
}

// Unanalyzed lists articles that were never classified.
func (s *AnalysisService) Unanalyzed(ctx context.Context, limit int) ([]domain.Article, error) {
	return s.articles.ListUnanalyzed(ctx, limit)
}

// newLinkOutcome splits the request into linked and skipped ids. Skipped covers
// unknown topics and, for attach, topics that were already linked.
func newLinkOutcome(articleID int64, requested, linked []int64) LinkOutcome {
	done := make(map[int64]struct{}, len(linked))
	for _, id := range linked {
		done[id] = struct{}{}
	}
	outcome := LinkOutcome{ArticleID: articleID, Linked: append([]int64{}, linked...), Skipped: []int64{}}
	seen := map[int64]struct{}{}
	for _, id := range requested {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := done[id]; !ok {
			outcome.Skipped = append(outcome.Skipped, id)
		}
	}
	return outcome
}
