package classify

import (
	"fmt"
	"strings"

	"sitbrief/internal/domain"
)

const outputContract = `Reply with a single JSON object and nothing else:
{
  "suggestedExistingTopics": [
    { "topicId": int, "confidence": float (0-1), "reason": string }
  ],
  "suggestedNewTopics": [
    { "title": string, "description": string }
  ],
  "keyEntities": {
    "countries": [string],
    "organizations": [string],
    "persons": [string]
  },
  "geopoliticalTags": [string],
  "significance": int (1-10),
  "summary": string (one sentence on the geopolitical meaning of the article)
}

Rules:
1. suggestedExistingTopics may only reference topic IDs from the list above.
2. confidence is how strongly the article belongs to that topic, between 0 and 1.
3. If no existing topic fits, propose topics in suggestedNewTopics instead.
4. significance rates the geopolitical importance of the article, 1 lowest, 10 highest, integers only.`

// BuildPrompt renders the classification request for one article against the full taxonomy.
// The output depends only on its arguments.
func BuildPrompt(article domain.Article, taxonomy Taxonomy) string {
	var b strings.Builder

	b.WriteString("You are a geopolitical analyst. Analyse the article below and return structured suggestions.\n\n")

	b.WriteString("Article:\n")
	fmt.Fprintf(&b, "Title: %s\n", oneLine(article.Title))
	fmt.Fprintf(&b, "Summary: %s\n", oneLine(article.Summary))
	fmt.Fprintf(&b, "Source: %s\n", oneLine(article.SourceName))
	fmt.Fprintf(&b, "Published: %s\n\n", formatDate(article))

	fmt.Fprintf(&b, "Existing topics (%d):\n", taxonomy.Len())
	if taxonomy.Len() == 0 {
		b.WriteString("(none)\n")
	}
	for _, t := range taxonomy.topics {
		fmt.Fprintf(&b, "- ID: %d, Title: %s, Description: %s\n", t.ID, oneLine(t.Title), oneLine(t.Description))
	}

	b.WriteString("\n")
	b.WriteString(outputContract)
	b.WriteString("\n")

	return b.String()
}

func formatDate(article domain.Article) string {
	if article.PublishedAt.IsZero() {
		return "unknown"
	}
	return article.PublishedAt.UTC().Format("2006-01-02")
}

// oneLine keeps each field on its own prompt line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
