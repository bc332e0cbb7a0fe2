package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"sitbrief/internal/domain"
)

// SaveAnalysis upserts the analysis of an article; every column is overwritten.
func (r *Repository) SaveAnalysis(ctx context.Context, analysis domain.Analysis) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.lockArticle(ctx, tx, analysis.ArticleID); err != nil {
			return err
		}

		query, args, err := r.sb.Insert("ai_analyses").
			Columns("article_id", "suggested_topics", "key_entities", "geopolitical_tags",
				"significance_score", "summary", "model", "analyzed_at").
			Values(analysis.ArticleID, analysis.SuggestedTopicsJSON, analysis.KeyEntitiesJSON,
				analysis.GeopoliticalTagsJSON, domain.ClampSignificance(analysis.SignificanceScore),
				analysis.Summary, analysis.Model, r.stamp(analysis.AnalyzedAt)).
			Suffix(`ON CONFLICT (article_id) DO UPDATE SET
				suggested_topics = excluded.suggested_topics,
				key_entities = excluded.key_entities,
				geopolitical_tags = excluded.geopolitical_tags,
				significance_score = excluded.significance_score,
				summary = excluded.summary,
				model = excluded.model,
				analyzed_at = excluded.analyzed_at`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert analysis: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert analysis: %w", err)
		}
		return nil
	})
}

func (r *Repository) analysisSelect() sq.SelectBuilder {
	return r.sb.Select("article_id", "suggested_topics", "key_entities", "geopolitical_tags",
		"significance_score", "summary", "model", "analyzed_at").
		From("ai_analyses")
}

// GetAnalysis returns the stored analysis of an article.
func (r *Repository) GetAnalysis(ctx context.Context, articleID int64) (domain.Analysis, error) {
	query, args, err := r.analysisSelect().Where(sq.Eq{"article_id": articleID}).ToSql()
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("build select analysis: %w", err)
	}
	analysis, err := scanAnalysis(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Analysis{}, domain.ErrAnalysisNotFound
	}
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("select analysis: %w", err)
	}
	return analysis, nil
}

// ListAnalyses returns every stored analysis.
func (r *Repository) ListAnalyses(ctx context.Context) ([]domain.Analysis, error) {
	query, args, err := r.analysisSelect().OrderBy("article_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select analyses: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	out := []domain.Analysis{}
	for rows.Next() {
		analysis, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, analysis)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func scanAnalysis(row rowScanner) (domain.Analysis, error) {
	var (
		analysis   domain.Analysis
		analyzedAt nullTime
	)
	if err := row.Scan(&analysis.ArticleID, &analysis.SuggestedTopicsJSON, &analysis.KeyEntitiesJSON,
		&analysis.GeopoliticalTagsJSON, &analysis.SignificanceScore, &analysis.Summary,
		&analysis.Model, &analyzedAt); err != nil {
		return domain.Analysis{}, err
	}
	analysis.AnalyzedAt = analyzedAt.Time
	return analysis, nil
}
