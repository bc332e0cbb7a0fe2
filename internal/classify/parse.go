package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"sitbrief/internal/domain"
)

// UnknownTopicPolicy decides what happens to suggested topic ids missing from the taxonomy.
type UnknownTopicPolicy string

const (
	// PolicyReclassify turns titled unknown references into new-topic suggestions and drops the rest.
	PolicyReclassify UnknownTopicPolicy = "reclassify"
	// PolicyDrop discards every unknown reference.
	PolicyDrop UnknownTopicPolicy = "drop"
	// PolicyTrust keeps unknown ids as returned by the classifier.
	PolicyTrust UnknownTopicPolicy = "trust"
)

// ParsePolicy validates a policy name; empty means PolicyReclassify.
func ParsePolicy(value string) (UnknownTopicPolicy, error) {
	switch p := UnknownTopicPolicy(strings.ToLower(strings.TrimSpace(value))); p {
	case "":
		return PolicyReclassify, nil
	case PolicyReclassify, PolicyDrop, PolicyTrust:
		return p, nil
	default:
		return "", fmt.Errorf("unknown topic policy %q", value)
	}
}

// Parser turns raw classifier output into a validated result.
type Parser struct {
	Policy UnknownTopicPolicy
}

// Parse uses PolicyReclassify.
func Parse(raw string, taxonomy Taxonomy) (domain.ClassificationResult, error) {
	return Parser{Policy: PolicyReclassify}.Parse(raw, taxonomy)
}

// Parse extracts the object between the first '{' and the last '}' of raw and
// decodes it leniently: absent or malformed fields fall back to defaults, only
// a missing or syntactically broken object fails the whole result.
func (p Parser) Parse(raw string, taxonomy Taxonomy) (domain.ClassificationResult, error) {
	candidate, err := extractObject(raw)
	if err != nil {
		return domain.ClassificationResult{}, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &top); err != nil {
		return domain.ClassificationResult{}, fmt.Errorf("%w: %v", domain.ErrMalformedJSON, err)
	}
	fields := normalizeKeys(top)

	result := domain.NewClassificationResult()
	existing := decodeExisting(fields["suggestedexistingtopics"])
	result.SuggestedNewTopics = decodeNewTopics(fields["suggestednewtopics"])
	result.KeyEntities = decodeEntities(fields["keyentities"])
	result.GeopoliticalTags = decodeStrings(fields["geopoliticaltags"])
	result.Significance = decodeSignificance(fields["significance"])
	if s, ok := decodeString(fields["summary"]); ok {
		result.Summary = strings.TrimSpace(s)
	}

	policy := p.Policy
	if policy == "" {
		policy = PolicyReclassify
	}
	resolveTopics(&result, existing, taxonomy, policy)

	return result, nil
}

func extractObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < 0 || end < start {
		return "", domain.ErrNoJSONFound
	}
	return raw[start : end+1], nil
}

// canonicalKeys are the spellings the prompt asks for.
var canonicalKeys = map[string]struct{}{
	"suggestedExistingTopics": {}, "suggestedNewTopics": {}, "keyEntities": {},
	"geopoliticalTags": {}, "significance": {}, "summary": {},
	"topicId": {}, "id": {}, "confidence": {}, "reason": {}, "title": {}, "description": {},
	"countries": {}, "organizations": {}, "persons": {},
}

// normalizeKeys makes lookups insensitive to case and snake_case spelling.
// When spellings collide the canonical one wins, then the first in sorted order.
func normalizeKeys(in map[string]json.RawMessage) map[string]json.RawMessage {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]json.RawMessage, len(in))
	canonical := make(map[string]bool, len(in))
	for _, k := range keys {
		key := strings.ToLower(strings.ReplaceAll(k, "_", ""))
		_, isCanonical := canonicalKeys[k]
		if _, dup := out[key]; dup && (canonical[key] || !isCanonical) {
			continue
		}
		out[key] = in[k]
		canonical[key] = isCanonical
	}
	return out
}

type existingCandidate struct {
	domain.SuggestedExistingTopic
	title string
}

func decodeExisting(raw json.RawMessage) []existingCandidate {
	var items []json.RawMessage
	if !decodeInto(raw, &items) {
		return nil
	}

	out := make([]existingCandidate, 0, len(items))
	for _, item := range items {
		var obj map[string]json.RawMessage
		if !decodeInto(item, &obj) {
			continue
		}
		entry := normalizeKeys(obj)

		id, ok := decodeNumber(entry["topicid"])
		if !ok {
			id, ok = decodeNumber(entry["id"])
		}
		if !ok || id != math.Trunc(id) || math.Abs(id) > math.MaxInt32 {
			continue
		}

		confidence, _ := decodeNumber(entry["confidence"])
		reason, _ := decodeString(entry["reason"])
		title, _ := decodeString(entry["title"])

		out = append(out, existingCandidate{
			SuggestedExistingTopic: domain.SuggestedExistingTopic{
				TopicID:    int64(id),
				Confidence: domain.ClampConfidence(confidence),
				Reason:     strings.TrimSpace(reason),
			},
			title: strings.TrimSpace(title),
		})
	}
	return out
}

func decodeNewTopics(raw json.RawMessage) []domain.SuggestedNewTopic {
	out := []domain.SuggestedNewTopic{}
	var items []json.RawMessage
	if !decodeInto(raw, &items) {
		return out
	}

	for _, item := range items {
		var obj map[string]json.RawMessage
		if !decodeInto(item, &obj) {
			continue
		}
		entry := normalizeKeys(obj)
		title, _ := decodeString(entry["title"])
		title = strings.TrimSpace(title)
		if title == "" {
			continue
		}
		description, _ := decodeString(entry["description"])
		out = appendNewTopic(out, domain.SuggestedNewTopic{
			Title:       title,
			Description: strings.TrimSpace(description),
		})
	}
	return out
}

func appendNewTopic(list []domain.SuggestedNewTopic, topic domain.SuggestedNewTopic) []domain.SuggestedNewTopic {
	for _, existing := range list {
		if strings.EqualFold(existing.Title, topic.Title) {
			return list
		}
	}
	return append(list, topic)
}

func decodeEntities(raw json.RawMessage) domain.KeyEntities {
	var obj map[string]json.RawMessage
	if !decodeInto(raw, &obj) {
		obj = nil
	}
	entry := normalizeKeys(obj)
	return domain.KeyEntities{
		Countries:     decodeStrings(entry["countries"]),
		Organizations: decodeStrings(entry["organizations"]),
		Persons:       decodeStrings(entry["persons"]),
	}
}

// decodeStrings keeps the non-blank string elements of a JSON array.
func decodeStrings(raw json.RawMessage) []string {
	out := []string{}
	var items []json.RawMessage
	if !decodeInto(raw, &items) {
		return out
	}
	for _, item := range items {
		s, ok := decodeString(item)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func decodeSignificance(raw json.RawMessage) int {
	v, ok := decodeNumber(raw)
	if !ok {
		return domain.DefaultSignificance
	}
	v = math.Round(v)
	if v < domain.MinSignificance {
		return domain.MinSignificance
	}
	if v > domain.MaxSignificance {
		return domain.MaxSignificance
	}
	return int(v)
}

func decodeInto(raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func decodeString(raw json.RawMessage) (string, bool) {
	var s string
	if !decodeInto(raw, &s) {
		return "", false
	}
	return s, true
}

// decodeNumber accepts JSON numbers and numeric strings. Values beyond the
// float64 range come back as ±Inf so callers clamp them to their bounds.
func decodeNumber(raw json.RawMessage) (float64, bool) {
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return 0, false
	}
	switch c := token[0]; {
	case c == '"':
		s, ok := decodeString(raw)
		if !ok {
			return 0, false
		}
		return parseFloat(strings.TrimSpace(s))
	case c == '-' || (c >= '0' && c <= '9'):
		return parseFloat(token)
	default:
		return 0, false
	}
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) && math.IsInf(f, 0) {
			return f, true
		}
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// resolveTopics deduplicates existing-topic matches and applies the unknown-topic policy.
func resolveTopics(result *domain.ClassificationResult, candidates []existingCandidate, taxonomy Taxonomy, policy UnknownTopicPolicy) {
	best := make(map[int64]int, len(candidates))
	kept := make([]existingCandidate, 0, len(candidates))

	for _, c := range candidates {
		if idx, seen := best[c.TopicID]; seen {
			if c.Confidence > kept[idx].Confidence {
				kept[idx] = c
			}
			result.Corrections = append(result.Corrections, domain.TopicCorrection{
				TopicID: c.TopicID,
				Action:  domain.CorrectionDuplicate,
			})
			continue
		}
		best[c.TopicID] = len(kept)
		kept = append(kept, c)
	}

	for _, c := range kept {
		if policy == PolicyTrust || taxonomy.Contains(c.TopicID) {
			result.SuggestedExistingTopics = append(result.SuggestedExistingTopics, c.SuggestedExistingTopic)
			continue
		}

		if policy == PolicyReclassify && c.title != "" {
			result.SuggestedNewTopics = appendNewTopic(result.SuggestedNewTopics, domain.SuggestedNewTopic{
				Title:       c.title,
				Description: c.Reason,
			})
			result.Corrections = append(result.Corrections, domain.TopicCorrection{
				TopicID: c.TopicID,
				Action:  domain.CorrectionReclassified,
			})
			continue
		}

		result.Corrections = append(result.Corrections, domain.TopicCorrection{
			TopicID: c.TopicID,
			Action:  domain.CorrectionDropped,
		})
	}

	sort.SliceStable(result.SuggestedExistingTopics, func(i, j int) bool {
		return result.SuggestedExistingTopics[i].Confidence > result.SuggestedExistingTopics[j].Confidence
	})
}
