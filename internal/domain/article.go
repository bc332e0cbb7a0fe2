package domain

import "time"

// SourceType tags where an article came from.
type SourceType string

const (
	SourceNewsMedia  SourceType = "news_media"
	SourceThinkTank  SourceType = "think_tank"
	SourceGovernment SourceType = "government"
	SourceAcademic   SourceType = "academic"
	SourceOther      SourceType = "other"
)

// ParseSourceType normalizes free-form input; unknown values map to SourceOther.
func ParseSourceType(value string) SourceType {
	switch SourceType(value) {
	case SourceNewsMedia, SourceThinkTank, SourceGovernment, SourceAcademic, SourceOther:
		return SourceType(value)
	case "":
		return SourceNewsMedia
	default:
		return SourceOther
	}
}

// Article is a stored news item that can be classified and linked to topics.
type Article struct {
	ID          int64
	Title       string
	Summary     string
	Content     string
	SourceURL   string
	SourceName  string
	SourceType  SourceType
	PublishedAt time.Time
	CreatedAt   time.Time

	// Topics lists the currently linked topics; filled by read paths only.
	Topics []TopicRef
}

// TopicRef is the short form of a topic attached to an article.
type TopicRef struct {
	ID    int64
	Title string
}

// Headline is an item collected by the aggregator before it becomes an article.
type Headline struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
}
