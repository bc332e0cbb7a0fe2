package domain

import "time"

const (
	MinSignificance     = 1
	MaxSignificance     = 10
	DefaultSignificance = 5
)

// SuggestedExistingTopic is a match against a topic already in the taxonomy.
type SuggestedExistingTopic struct {
	TopicID    int64   `json:"topicId"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// SuggestedNewTopic is a topic the classifier thinks is missing from the taxonomy.
type SuggestedNewTopic struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// KeyEntities groups named entities extracted from an article.
type KeyEntities struct {
	Countries     []string `json:"countries"`
	Organizations []string `json:"organizations"`
	Persons       []string `json:"persons"`
}

// CorrectionAction records what happened to a topic reference outside the taxonomy.
type CorrectionAction string

const (
	CorrectionDropped      CorrectionAction = "dropped"
	CorrectionReclassified CorrectionAction = "reclassified"
	CorrectionDuplicate    CorrectionAction = "duplicate"
)

// TopicCorrection describes one soft fix applied to the classifier output.
type TopicCorrection struct {
	TopicID int64            `json:"topicId"`
	Action  CorrectionAction `json:"action"`
}

// ClassificationResult is the validated output of one classification run.
// Lists are never nil.
type ClassificationResult struct {
	SuggestedExistingTopics []SuggestedExistingTopic `json:"suggestedExistingTopics"`
	SuggestedNewTopics      []SuggestedNewTopic      `json:"suggestedNewTopics"`
	KeyEntities             KeyEntities              `json:"keyEntities"`
	GeopoliticalTags        []string                 `json:"geopoliticalTags"`
	Significance            int                      `json:"significance"`
	Summary                 string                   `json:"summary"`

	Corrections []TopicCorrection `json:"corrections,omitempty"`
}

// NewClassificationResult returns a result filled with defaults.
func NewClassificationResult() ClassificationResult {
	return ClassificationResult{
		SuggestedExistingTopics: []SuggestedExistingTopic{},
		SuggestedNewTopics:      []SuggestedNewTopic{},
		KeyEntities: KeyEntities{
			Countries:     []string{},
			Organizations: []string{},
			Persons:       []string{},
		},
		GeopoliticalTags: []string{},
		Significance:     DefaultSignificance,
	}
}

// SuggestedTopics is the persisted shape of both suggestion lists.
type SuggestedTopics struct {
	Existing []SuggestedExistingTopic `json:"existing"`
	New      []SuggestedNewTopic      `json:"new"`
}

// Analysis is the stored snapshot of the last classification of an article.
type Analysis struct {
	ArticleID            int64
	SuggestedTopicsJSON  string
	KeyEntitiesJSON      string
	GeopoliticalTagsJSON string
	SignificanceScore    int
	Summary              string
	Model                string
	AnalyzedAt           time.Time
}

// ClampSignificance forces a significance score into [1,10].
func ClampSignificance(v int) int {
	if v < MinSignificance {
		return MinSignificance
	}
	if v > MaxSignificance {
		return MaxSignificance
	}
	return v
}

// ClampConfidence forces a confidence score into [0,1].
func ClampConfidence(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
