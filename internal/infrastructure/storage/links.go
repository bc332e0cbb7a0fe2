package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"sitbrief/internal/config"
	"sitbrief/internal/domain"
)

// manualConfidence is the confidence recorded for links chosen by an editor.
const manualConfidence = 1.0

// ReplaceLinks deletes every link of the article and inserts one per known topic id.
func (r *Repository) ReplaceLinks(ctx context.Context, articleID int64, topicIDs []int64, confirmed bool, at time.Time) ([]int64, error) {
	return r.mutateLinks(ctx, articleID, topicIDs, confirmed, at, true)
}

// AttachLinks inserts links for known topic ids that are not linked yet.
func (r *Repository) AttachLinks(ctx context.Context, articleID int64, topicIDs []int64, confirmed bool, at time.Time) ([]int64, error) {
	return r.mutateLinks(ctx, articleID, topicIDs, confirmed, at, false)
}

func (r *Repository) mutateLinks(ctx context.Context, articleID int64, topicIDs []int64, confirmed bool, at time.Time, replace bool) ([]int64, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	linked := []int64{}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := r.lockArticle(ctx, tx, articleID); err != nil {
			return err
		}

		known, err := r.knownTopics(ctx, tx, uniqueIDs(topicIDs))
		if err != nil {
			return err
		}

		skip := map[int64]struct{}{}
		if replace {
			query, args, err := r.sb.Delete("article_topics").Where(sq.Eq{"article_id": articleID}).ToSql()
			if err != nil {
				return fmt.Errorf("build delete links: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("delete links: %w", err)
			}
		} else {
			skip, err = r.linkedTopics(ctx, tx, articleID)
			if err != nil {
				return err
			}
		}

		for _, topicID := range known {
			if _, ok := skip[topicID]; ok {
				continue
			}
			query, args, err := r.sb.Insert("article_topics").
				Columns("article_id", "topic_id", "confidence", "confirmed", "added_at").
				Values(articleID, topicID, manualConfidence, confirmed, r.stamp(at)).
				ToSql()
			if err != nil {
				return fmt.Errorf("build insert link: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("insert link %d-%d: %w", articleID, topicID, err)
			}
			linked = append(linked, topicID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return linked, nil
}

// ListLinks returns every article-topic association.
func (r *Repository) ListLinks(ctx context.Context) ([]domain.ArticleTopicLink, error) {
	query, args, err := r.sb.Select("article_id", "topic_id", "confidence", "confirmed", "added_at").
		From("article_topics").
		OrderBy("article_id", "topic_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select links: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	links := []domain.ArticleTopicLink{}
	for rows.Next() {
		var (
			link    domain.ArticleTopicLink
			addedAt nullTime
		)
		if err := rows.Scan(&link.ArticleID, &link.TopicID, &link.Confidence, &link.Confirmed, &addedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		link.AddedAt = addedAt.Time
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return links, nil
}

// lockArticle checks the article exists; on postgres it also locks the row
// so concurrent writers for the same article run one after another.
func (r *Repository) lockArticle(ctx context.Context, tx *sql.Tx, articleID int64) error {
	builder := r.sb.Select("id").From("articles").Where(sq.Eq{"id": articleID})
	if r.dialect == config.DriverPostgres {
		builder = builder.Suffix("FOR UPDATE")
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build lock article: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrArticleNotFound
	}
	if err != nil {
		return fmt.Errorf("lock article: %w", err)
	}
	return nil
}

// knownTopics filters ids down to existing topics, keeping input order.
func (r *Repository) knownTopics(ctx context.Context, tx *sql.Tx, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := r.sb.Select("id").From("topics").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select topics: %w", err)
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	exists := map[int64]struct{}{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan topic id: %w", err)
		}
		exists[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := exists[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *Repository) linkedTopics(ctx context.Context, tx *sql.Tx, articleID int64) (map[int64]struct{}, error) {
	query, args, err := r.sb.Select("topic_id").From("article_topics").Where(sq.Eq{"article_id": articleID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select linked topics: %w", err)
	}
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query linked topics: %w", err)
	}
	defer rows.Close()

	out := map[int64]struct{}{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan linked topic: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
