package classify

import "sitbrief/internal/domain"

// Taxonomy is a read-only copy of the topics known when a run starts.
type Taxonomy struct {
	topics []domain.Topic
	byID   map[int64]struct{}
}

// NewTaxonomy snapshots id, title and description of every topic, keeping input order.
func NewTaxonomy(topics []domain.Topic) Taxonomy {
	snapshot := Taxonomy{
		topics: make([]domain.Topic, 0, len(topics)),
		byID:   make(map[int64]struct{}, len(topics)),
	}
	for _, t := range topics {
		snapshot.topics = append(snapshot.topics, domain.Topic{
			ID:          t.ID,
			Title:       t.Title,
			Description: t.Description,
		})
		snapshot.byID[t.ID] = struct{}{}
	}
	return snapshot
}

// Contains reports whether id belongs to the snapshot.
func (t Taxonomy) Contains(id int64) bool {
	_, ok := t.byID[id]
	return ok
}

// Topics returns a copy of the snapshot entries.
func (t Taxonomy) Topics() []domain.Topic {
	out := make([]domain.Topic, len(t.topics))
	copy(out, t.topics)
	return out
}

// Len is the number of topics in the snapshot.
func (t Taxonomy) Len() int {
	return len(t.topics)
}
