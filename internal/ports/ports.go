package ports

import (
	"context"
	"time"

	"sitbrief/internal/domain"
)

// ArticleRepository stores articles.
type ArticleRepository interface {
	CreateArticle(ctx context.Context, article domain.Article) (domain.Article, error)
	GetArticle(ctx context.Context, id int64) (domain.Article, error)
	ListArticles(ctx context.Context) ([]domain.Article, error)
	UpdateArticle(ctx context.Context, article domain.Article) error
	DeleteArticle(ctx context.Context, id int64) error
	ListUnanalyzed(ctx context.Context, limit int) ([]domain.Article, error)
}

// TopicRepository stores the taxonomy.
type TopicRepository interface {
	CreateTopic(ctx context.Context, topic domain.Topic) (domain.Topic, error)
	GetTopic(ctx context.Context, id int64) (domain.Topic, error)
	ListTopics(ctx context.Context) ([]domain.Topic, error)
	UpdateTopic(ctx context.Context, topic domain.Topic) error
	DeleteTopic(ctx context.Context, id int64) error
	TopicArticles(ctx context.Context, topicID int64) ([]domain.Article, error)
}

// AnalysisRepository keeps one classification snapshot per article.
type AnalysisRepository interface {
	SaveAnalysis(ctx context.Context, analysis domain.Analysis) error
	GetAnalysis(ctx context.Context, articleID int64) (domain.Analysis, error)
	ListAnalyses(ctx context.Context) ([]domain.Analysis, error)
}

// LinkRepository mutates article-topic associations transactionally.
type LinkRepository interface {
	// ReplaceLinks swaps the full link set of an article and returns the topic ids that were linked.
	ReplaceLinks(ctx context.Context, articleID int64, topicIDs []int64, confirmed bool, at time.Time) ([]int64, error)
	// AttachLinks adds links for topics that are not linked yet.
	AttachLinks(ctx context.Context, articleID int64, topicIDs []int64, confirmed bool, at time.Time) ([]int64, error)
	ListLinks(ctx context.Context) ([]domain.ArticleTopicLink, error)
}

// Classifier exchanges one prompt for one free-text answer with a generation service.
type Classifier interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// ObjectWriter persists exported documents under slash-separated keys.
type ObjectWriter interface {
	Put(ctx context.Context, key string, content []byte, contentType string) error
}

// ObjectStore is the remote bucket exports are synced into and served from.
type ObjectStore interface {
	ObjectWriter
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// HeadlineSource collects headlines from configured sites.
type HeadlineSource interface {
	Collect(ctx context.Context) (map[string][]domain.Headline, error)
}

// Scheduler controls when recurring jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// Notifier delivers a short plain-text report to operators.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}
