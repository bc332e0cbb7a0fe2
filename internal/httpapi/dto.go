package httpapi

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"sitbrief/internal/domain"
)

const dateLayout = "2006-01-02"

type topicRefDTO struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type articleDTO struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Summary     string        `json:"summary"`
	Content     string        `json:"content,omitempty"`
	SourceURL   string        `json:"sourceUrl"`
	SourceName  string        `json:"sourceName"`
	SourceType  string        `json:"sourceType"`
	PublishedAt *time.Time    `json:"publishedDate,omitempty"`
	CreatedAt   time.Time     `json:"createdDate"`
	Topics      []topicRefDTO `json:"topics"`
}

func newArticleDTO(a domain.Article) articleDTO {
	dto := articleDTO{
		ID:         a.ID,
		Title:      a.Title,
		Summary:    a.Summary,
		Content:    a.Content,
		SourceURL:  a.SourceURL,
		SourceName: a.SourceName,
		SourceType: string(a.SourceType),
		CreatedAt:  a.CreatedAt,
		Topics:     make([]topicRefDTO, 0, len(a.Topics)),
	}
	if !a.PublishedAt.IsZero() {
		published := a.PublishedAt
		dto.PublishedAt = &published
	}
	for _, t := range a.Topics {
		dto.Topics = append(dto.Topics, topicRefDTO{ID: t.ID, Title: t.Title})
	}
	return dto
}

func newArticleDTOs(articles []domain.Article) []articleDTO {
	out := make([]articleDTO, 0, len(articles))
	for _, a := range articles {
		out = append(out, newArticleDTO(a))
	}
	return out
}

type articleRequest struct {
	Title         string `json:"title"`
	Summary       string `json:"summary"`
	Content       string `json:"content"`
	SourceURL     string `json:"sourceUrl"`
	SourceName    string `json:"sourceName"`
	SourceType    string `json:"sourceType"`
	PublishedDate string `json:"publishedDate"`
}

// article validates the request and converts it to a domain article.
func (r articleRequest) article() (domain.Article, error) {
	a := domain.Article{
		Title:      strings.TrimSpace(r.Title),
		Summary:    strings.TrimSpace(r.Summary),
		Content:    r.Content,
		SourceURL:  strings.TrimSpace(r.SourceURL),
		SourceName: strings.TrimSpace(r.SourceName),
		SourceType: domain.ParseSourceType(r.SourceType),
	}
	if err := requireText("title", a.Title, 500); err != nil {
		return a, err
	}
	if err := requireText("summary", a.Summary, 2000); err != nil {
		return a, err
	}
	if err := requireText("sourceName", a.SourceName, 200); err != nil {
		return a, err
	}
	if err := requireText("sourceUrl", a.SourceURL, 1000); err != nil {
		return a, err
	}
	if u, err := url.Parse(a.SourceURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return a, invalid("sourceUrl must be an absolute http(s) url")
	}
	if utf8.RuneCountInString(a.Content) > 50000 {
		return a, invalid("content is too long")
	}
	published, err := parseDate(r.PublishedDate)
	if err != nil {
		return a, err
	}
	a.PublishedAt = published
	return a, nil
}

func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, dateLayout} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, invalid("publishedDate must be RFC 3339 or YYYY-MM-DD")
}

type topicDTO struct {
	ID           int64        `json:"id"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	Significance string       `json:"significance,omitempty"`
	ArticleCount int          `json:"articleCount"`
	CreatedAt    time.Time    `json:"createdDate"`
	UpdatedAt    time.Time    `json:"lastUpdatedDate"`
	Articles     []articleDTO `json:"articles,omitempty"`
}

func newTopicDTO(t domain.Topic) topicDTO {
	return topicDTO{
		ID:           t.ID,
		Title:        t.Title,
		Description:  t.Description,
		Significance: t.Significance,
		ArticleCount: t.ArticleCount,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

type topicRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Significance string `json:"significance"`
}

func (r topicRequest) topic() (domain.Topic, error) {
	t := domain.Topic{
		Title:        strings.TrimSpace(r.Title),
		Description:  strings.TrimSpace(r.Description),
		Significance: strings.TrimSpace(r.Significance),
	}
	if err := requireText("title", t.Title, 300); err != nil {
		return t, err
	}
	if err := requireText("description", t.Description, 1000); err != nil {
		return t, err
	}
	if utf8.RuneCountInString(t.Significance) > 1000 {
		return t, invalid("significance is too long")
	}
	return t, nil
}

type linkRequest struct {
	TopicIDs  []int64 `json:"topicIds"`
	Confirmed *bool   `json:"confirmed"`
}

func (r linkRequest) confirmed() bool {
	return r.Confirmed == nil || *r.Confirmed
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// analysisDTO exposes a stored analysis with its JSON blobs inlined.
type analysisDTO struct {
	ArticleID         int64           `json:"articleId"`
	SignificanceScore int             `json:"significanceScore"`
	SuggestedTopics   json.RawMessage `json:"suggestedTopics"`
	KeyEntities       json.RawMessage `json:"keyEntities"`
	GeopoliticalTags  json.RawMessage `json:"geopoliticalTags"`
	Summary           string          `json:"summary"`
	Model             string          `json:"model"`
	AnalyzedAt        time.Time       `json:"analyzedDate"`
}

func newAnalysisDTO(a domain.Analysis) analysisDTO {
	return analysisDTO{
		ArticleID:         a.ArticleID,
		SignificanceScore: a.SignificanceScore,
		SuggestedTopics:   rawOr(a.SuggestedTopicsJSON, `{"existing":[],"new":[]}`),
		KeyEntities:       rawOr(a.KeyEntitiesJSON, "{}"),
		GeopoliticalTags:  rawOr(a.GeopoliticalTagsJSON, "[]"),
		Summary:           a.Summary,
		Model:             a.Model,
		AnalyzedAt:        a.AnalyzedAt,
	}
}

func rawOr(value, fallback string) json.RawMessage {
	if value == "" || !json.Valid([]byte(value)) {
		return json.RawMessage(fallback)
	}
	return json.RawMessage(value)
}

func requireText(field, value string, max int) error {
	if value == "" {
		return invalid(field + " is required")
	}
	if utf8.RuneCountInString(value) > max {
		return invalid(field + " is too long")
	}
	return nil
}
