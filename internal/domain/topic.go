package domain

import "time"

// Topic is one entry of the taxonomy articles are classified against.
type Topic struct {
	ID           int64
	Title        string
	Description  string
	Significance string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// ArticleCount is populated by list queries.
	ArticleCount int
}

// ArticleTopicLink associates an article with a topic.
type ArticleTopicLink struct {
	ArticleID  int64
	TopicID    int64
	Confidence float64
	Confirmed  bool
	AddedAt    time.Time
}
