package usecase

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"sitbrief/internal/domain"
	"sitbrief/internal/ports"
)

// memRepo is an in-memory implementation of every repository port.
type memRepo struct {
	mu       sync.Mutex
	articles map[int64]domain.Article
	topics   map[int64]domain.Topic
	analyses map[int64]domain.Analysis
	links    map[int64]map[int64]domain.ArticleTopicLink
	saves    int
}

func newMemRepo() *memRepo {
	return &memRepo{
		articles: map[int64]domain.Article{},
		topics:   map[int64]domain.Topic{},
		analyses: map[int64]domain.Analysis{},
		links:    map[int64]map[int64]domain.ArticleTopicLink{},
	}
}

func (m *memRepo) CreateArticle(_ context.Context, a domain.Article) (domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = int64(len(m.articles) + 1)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.articles[a.ID] = a
	return a, nil
}

func (m *memRepo) GetArticle(_ context.Context, id int64) (domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[id]
	if !ok {
		return domain.Article{}, domain.ErrArticleNotFound
	}
	a.Topics = m.refsLocked(id)
	return a, nil
}

func (m *memRepo) refsLocked(articleID int64) []domain.TopicRef {
	refs := []domain.TopicRef{}
	for topicID := range m.links[articleID] {
		refs = append(refs, domain.TopicRef{ID: topicID, Title: m.topics[topicID].Title})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}

func (m *memRepo) ListArticles(_ context.Context) ([]domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Article{}
	for id, a := range m.articles {
		a.Topics = m.refsLocked(id)
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *memRepo) UpdateArticle(_ context.Context, a domain.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[a.ID]; !ok {
		return domain.ErrArticleNotFound
	}
	m.articles[a.ID] = a
	return nil
}

func (m *memRepo) DeleteArticle(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[id]; !ok {
		return domain.ErrArticleNotFound
	}
	delete(m.articles, id)
	delete(m.links, id)
	delete(m.analyses, id)
	return nil
}

func (m *memRepo) ListUnanalyzed(ctx context.Context, limit int) ([]domain.Article, error) {
	all, _ := m.ListArticles(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Article{}
	for _, a := range all {
		if _, done := m.analyses[a.ID]; done {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) CreateTopic(_ context.Context, t domain.Topic) (domain.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = int64(len(m.topics) + 1)
	t.CreatedAt, t.UpdatedAt = time.Now().UTC(), time.Now().UTC()
	m.topics[t.ID] = t
	return t, nil
}

func (m *memRepo) GetTopic(_ context.Context, id int64) (domain.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.topics[id]
	if !ok {
		return domain.Topic{}, domain.ErrTopicNotFound
	}
	t.ArticleCount = m.countLocked(id)
	return t, nil
}

func (m *memRepo) countLocked(topicID int64) int {
	n := 0
	for _, set := range m.links {
		if _, ok := set[topicID]; ok {
			n++
		}
	}
	return n
}

func (m *memRepo) ListTopics(_ context.Context) ([]domain.Topic, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Topic{}
	for id, t := range m.topics {
		t.ArticleCount = m.countLocked(id)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *memRepo) UpdateTopic(_ context.Context, t domain.Topic) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.topics[t.ID]; !ok {
		return domain.ErrTopicNotFound
	}
	t.UpdatedAt = time.Now().UTC()
	m.topics[t.ID] = t
	return nil
}

func (m *memRepo) DeleteTopic(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.topics[id]; !ok {
		return domain.ErrTopicNotFound
	}
	delete(m.topics, id)
	for _, set := range m.links {
		delete(set, id)
	}
	return nil
}

func (m *memRepo) TopicArticles(ctx context.Context, topicID int64) ([]domain.Article, error) {
	if _, err := m.GetTopic(ctx, topicID); err != nil {
		return nil, err
	}
	all, _ := m.ListArticles(ctx)
	out := []domain.Article{}
	for _, a := range all {
		for _, ref := range a.Topics {
			if ref.ID == topicID {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (m *memRepo) SaveAnalysis(_ context.Context, a domain.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[a.ArticleID]; !ok {
		return domain.ErrArticleNotFound
	}
	m.analyses[a.ArticleID] = a
	m.saves++
	return nil
}

func (m *memRepo) GetAnalysis(_ context.Context, articleID int64) (domain.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.analyses[articleID]
	if !ok {
		return domain.Analysis{}, domain.ErrAnalysisNotFound
	}
	return a, nil
}

func (m *memRepo) ListAnalyses(_ context.Context) ([]domain.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Analysis{}
	for _, a := range m.analyses {
		out = append(out, a)
	}
	return out, nil
}

func (m *memRepo) ReplaceLinks(_ context.Context, articleID int64, topicIDs []int64, confirmed bool, at time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[articleID]; !ok {
		return nil, domain.ErrArticleNotFound
	}
	m.links[articleID] = map[int64]domain.ArticleTopicLink{}
	return m.insertLocked(articleID, topicIDs, confirmed, at), nil
}

func (m *memRepo) AttachLinks(_ context.Context, articleID int64, topicIDs []int64, confirmed bool, at time.Time) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[articleID]; !ok {
		return nil, domain.ErrArticleNotFound
	}
	if m.links[articleID] == nil {
		m.links[articleID] = map[int64]domain.ArticleTopicLink{}
	}
	return m.insertLocked(articleID, topicIDs, confirmed, at), nil
}

func (m *memRepo) insertLocked(articleID int64, topicIDs []int64, confirmed bool, at time.Time) []int64 {
	linked := []int64{}
	for _, id := range topicIDs {
		if _, ok := m.topics[id]; !ok {
			continue
		}
		if _, ok := m.links[articleID][id]; ok {
			continue
		}
		m.links[articleID][id] = domain.ArticleTopicLink{ArticleID: articleID, TopicID: id, Confidence: 1, Confirmed: confirmed, AddedAt: at}
		linked = append(linked, id)
	}
	return linked
}

func (m *memRepo) ListLinks(_ context.Context) ([]domain.ArticleTopicLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.ArticleTopicLink{}
	for _, set := range m.links {
		for _, l := range set {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ArticleID != out[j].ArticleID {
			return out[i].ArticleID < out[j].ArticleID
		}
		return out[i].TopicID < out[j].TopicID
	})
	return out, nil
}

// fakeClassifier answers with a scripted response or blocks until ctx ends.
type fakeClassifier struct {
	mu      sync.Mutex
	answers []string
	err     error
	block   bool
	prompts []string
}

var _ ports.Classifier = (*fakeClassifier)(nil)

func (f *fakeClassifier) Name() string { return "fake:model" }

func (f *fakeClassifier) Complete(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	answer := f.answers[0]
	if len(f.answers) > 1 {
		f.answers = f.answers[1:]
	}
	return answer, nil
}

func (f *fakeClassifier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// memStore is an in-memory ports.ObjectStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

var _ ports.ObjectStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *memStore) Put(_ context.Context, key string, content []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte{}, content...)
	s.types[key] = contentType
	return nil
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, domain.ErrObjectNotFound
	}
	return data, nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]ports.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []ports.ObjectInfo{}
	for key, data := range s.objects {
		if prefix != "" && !strings.HasPrefix(key, strings.TrimSuffix(prefix, "/")+"/") {
			continue
		}
		out = append(out, ports.ObjectInfo{Key: key, Size: int64(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for k := range s.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
