package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sitbrief/internal/app"
	"sitbrief/internal/domain"
	"sitbrief/internal/usecase"
)

func parseID(value, what string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s id %q", what, value)
	}
	return id, nil
}

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "analyze <articleId>",
		Short: "Classify an article against the topic taxonomy and store the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			articleID, err := parseID(args[0], "article")
			if err != nil {
				return err
			}
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				result, err := a.Analysis.AnalyzeArticle(cmd.Context(), articleID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(result)
				}
				topics, err := a.Repository().ListTopics(cmd.Context())
				if err != nil {
					return err
				}
				printClassification(out, result, topics)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func printClassification(out io.Writer, result domain.ClassificationResult, topics []domain.Topic) {
	titles := make(map[int64]string, len(topics))
	for _, t := range topics {
		titles[t.ID] = t.Title
	}

	fmt.Fprintf(out, "Significance: %d/10\n", result.Significance)
	if result.Summary != "" {
		fmt.Fprintf(out, "Summary: %s\n", result.Summary)
	}
	if len(result.GeopoliticalTags) > 0 {
		fmt.Fprintf(out, "Tags: %s\n", strings.Join(result.GeopoliticalTags, ", "))
	}
	entities := result.KeyEntities
	if n := len(entities.Countries) + len(entities.Organizations) + len(entities.Persons); n > 0 {
		fmt.Fprintf(out, "Countries: %s\nOrganizations: %s\nPersons: %s\n",
			strings.Join(entities.Countries, ", "),
			strings.Join(entities.Organizations, ", "),
			strings.Join(entities.Persons, ", "))
	}

	if len(result.SuggestedExistingTopics) == 0 {
		fmt.Fprintln(out, "No existing topic matched.")
	} else {
		rows := make([][]string, 0, len(result.SuggestedExistingTopics))
		for _, s := range result.SuggestedExistingTopics {
			rows = append(rows, []string{
				strconv.FormatInt(s.TopicID, 10),
				titles[s.TopicID],
				strconv.FormatFloat(s.Confidence, 'f', 2, 64),
				s.Reason,
			})
		}
		fmt.Fprintln(out, renderTable([]string{"ID", "Topic", "Confidence", "Reason"}, rows, []columnAlignment{alignRight, alignLeft, alignRight}))
	}

	if len(result.SuggestedNewTopics) > 0 {
		rows := make([][]string, 0, len(result.SuggestedNewTopics))
		for _, s := range result.SuggestedNewTopics {
			rows = append(rows, []string{s.Title, s.Description})
		}
		fmt.Fprintln(out, "Proposed new topics:")
		fmt.Fprintln(out, renderTable([]string{"Title", "Description"}, rows, nil))
	}
	for _, c := range result.Corrections {
		fmt.Fprintf(out, "note: topic %d %s\n", c.TopicID, c.Action)
	}
}

func newLinkCommand(ctx *commandContext) *cobra.Command {
	var unconfirmed bool
	var add bool

	cmd := &cobra.Command{
		Use:   "link <articleId> <topicId>...",
		Short: "Replace the topic links of an article",
		Long:  "Replace the topic links of an article. Unknown topic ids are skipped. With --add existing links are kept.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			articleID, err := parseID(args[0], "article")
			if err != nil {
				return err
			}
			topicIDs := make([]int64, 0, len(args)-1)
			for _, arg := range args[1:] {
				id, err := parseID(arg, "topic")
				if err != nil {
					return err
				}
				topicIDs = append(topicIDs, id)
			}
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				mutate := a.Analysis.LinkTopics
				if add {
					mutate = a.Analysis.AttachTopics
				}
				outcome, err := mutate(cmd.Context(), articleID, topicIDs, !unconfirmed)
				if err != nil {
					return err
				}
				printLinkOutcome(cmd.OutOrStdout(), outcome)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&unconfirmed, "unconfirmed", false, "Mark the links as not yet confirmed")
	cmd.Flags().BoolVar(&add, "add", false, "Add links instead of replacing them")
	return cmd
}

func printLinkOutcome(out io.Writer, outcome usecase.LinkOutcome) {
	fmt.Fprintf(out, "Article %d: linked %s", outcome.ArticleID, joinIDs(outcome.Linked))
	if len(outcome.Skipped) > 0 {
		fmt.Fprintf(out, ", skipped %s", joinIDs(outcome.Skipped))
	}
	fmt.Fprintln(out)
}

func joinIDs(ids []int64) string {
	if len(ids) == 0 {
		return "none"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ", ")
}

func newUnanalyzedCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "unanalyzed",
		Short: "List articles that were never classified",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				articles, err := a.Analysis.Unanalyzed(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(articles) == 0 {
					fmt.Fprintln(out, "Every article has been analyzed.")
					return nil
				}
				fmt.Fprintln(out, renderArticles(articles))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of articles to list")
	return cmd
}

func renderArticles(articles []domain.Article) string {
	rows := make([][]string, 0, len(articles))
	for _, a := range articles {
		published := "-"
		if !a.PublishedAt.IsZero() {
			published = a.PublishedAt.Format("2006-01-02")
		}
		rows = append(rows, []string{strconv.FormatInt(a.ID, 10), published, a.SourceName, a.Title})
	}
	return renderTable([]string{"ID", "Published", "Source", "Title"}, rows, []columnAlignment{alignRight})
}

func newTopicsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List the topic taxonomy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), func(a *app.Application) error {
				topics, err := a.Repository().ListTopics(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTopics(topics))
				return nil
			})
		},
	}
}

func renderTopics(topics []domain.Topic) string {
	rows := make([][]string, 0, len(topics))
	for _, t := range topics {
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			t.Title,
			strconv.Itoa(t.ArticleCount),
			t.UpdatedAt.Format("2006-01-02"),
		})
	}
	return renderTable([]string{"ID", "Title", "Articles", "Updated"}, rows, []columnAlignment{alignRight, alignLeft, alignRight})
}
