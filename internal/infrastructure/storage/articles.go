package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"sitbrief/internal/domain"
)

var articleColumns = []string{
	"a.id", "a.title", "a.summary", "a.content", "a.source_url",
	"a.source_name", "a.source_type", "a.published_at", "a.created_at",
}

// CreateArticle inserts an article and returns it with id and creation time set.
func (r *Repository) CreateArticle(ctx context.Context, article domain.Article) (domain.Article, error) {
	if article.CreatedAt.IsZero() {
		article.CreatedAt = time.Now().UTC()
	}
	article.SourceType = domain.ParseSourceType(string(article.SourceType))

	query, args, err := r.sb.Insert("articles").
		Columns("title", "summary", "content", "source_url", "source_name", "source_type", "published_at", "created_at").
		Values(article.Title, article.Summary, article.Content, article.SourceURL, article.SourceName,
			string(article.SourceType), r.stamp(article.PublishedAt), r.stamp(article.CreatedAt)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Article{}, fmt.Errorf("build insert article: %w", err)
	}

	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&article.ID); err != nil {
		return domain.Article{}, fmt.Errorf("insert article: %w", err)
	}
	article.Topics = []domain.TopicRef{}
	return article, nil
}

// GetArticle loads one article with its linked topics.
func (r *Repository) GetArticle(ctx context.Context, id int64) (domain.Article, error) {
	query, args, err := r.sb.Select(articleColumns...).From("articles a").Where(sq.Eq{"a.id": id}).ToSql()
	if err != nil {
		return domain.Article{}, fmt.Errorf("build select article: %w", err)
	}

	article, err := scanArticle(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Article{}, domain.ErrArticleNotFound
	}
	if err != nil {
		return domain.Article{}, fmt.Errorf("select article: %w", err)
	}

	refs, err := r.topicRefs(ctx, []int64{id})
	if err != nil {
		return domain.Article{}, err
	}
	article.Topics = nonNilRefs(refs[id])
	return article, nil
}

// ListArticles returns every article, newest first.
func (r *Repository) ListArticles(ctx context.Context) ([]domain.Article, error) {
	return r.queryArticles(ctx, r.sb.Select(articleColumns...).
		From("articles a").
		OrderBy("COALESCE(a.published_at, a.created_at) DESC", "a.id DESC"))
}

// ListUnanalyzed returns articles without a stored analysis, newest published first.
func (r *Repository) ListUnanalyzed(ctx context.Context, limit int) ([]domain.Article, error) {
	builder := r.sb.Select(articleColumns...).
		From("articles a").
		LeftJoin("ai_analyses x ON x.article_id = a.id").
		Where(sq.Eq{"x.article_id": nil}).
		OrderBy("COALESCE(a.published_at, a.created_at) DESC", "a.id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	return r.queryArticles(ctx, builder)
}

// TopicArticles lists the articles linked to a topic, newest first.
func (r *Repository) TopicArticles(ctx context.Context, topicID int64) ([]domain.Article, error) {
	if _, err := r.GetTopic(ctx, topicID); err != nil {
		return nil, err
	}
	return r.queryArticles(ctx, r.sb.Select(articleColumns...).
		From("articles a").
		Join("article_topics l ON l.article_id = a.id").
		Where(sq.Eq{"l.topic_id": topicID}).
		OrderBy("COALESCE(a.published_at, a.created_at) DESC", "a.id DESC"))
}

// UpdateArticle overwrites the editable fields of an article.
func (r *Repository) UpdateArticle(ctx context.Context, article domain.Article) error {
	query, args, err := r.sb.Update("articles").
		Set("title", article.Title).
		Set("summary", article.Summary).
		Set("content", article.Content).
		Set("source_url", article.SourceURL).
		Set("source_name", article.SourceName).
		Set("source_type", string(domain.ParseSourceType(string(article.SourceType)))).
		Set("published_at", r.stamp(article.PublishedAt)).
		Where(sq.Eq{"id": article.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update article: %w", err)
	}
	return r.execAffecting(ctx, query, args, domain.ErrArticleNotFound)
}

// DeleteArticle removes an article together with its links and analysis.
func (r *Repository) DeleteArticle(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"article_topics", "ai_analyses"} {
			query, args, err := r.sb.Delete(table).Where(sq.Eq{"article_id": id}).ToSql()
			if err != nil {
				return fmt.Errorf("build delete %s: %w", table, err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}

		query, args, err := r.sb.Delete("articles").Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete article: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete article: %w", err)
		}
		return requireAffected(res, domain.ErrArticleNotFound)
	})
}

func (r *Repository) queryArticles(ctx context.Context, builder sq.SelectBuilder) ([]domain.Article, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select articles: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}

	articles := []domain.Article{}
	ids := []int64{}
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, article)
		ids = append(ids, article.ID)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	refs, err := r.topicRefs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range articles {
		articles[i].Topics = nonNilRefs(refs[articles[i].ID])
	}
	return articles, nil
}

// topicRefs loads linked topic titles for the given articles.
func (r *Repository) topicRefs(ctx context.Context, articleIDs []int64) (map[int64][]domain.TopicRef, error) {
	out := make(map[int64][]domain.TopicRef, len(articleIDs))
	if len(articleIDs) == 0 {
		return out, nil
	}

	query, args, err := r.sb.Select("l.article_id", "t.id", "t.title").
		From("article_topics l").
		Join("topics t ON t.id = l.topic_id").
		Where(sq.Eq{"l.article_id": articleIDs}).
		OrderBy("t.title", "t.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select topic refs: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query topic refs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var articleID int64
		var ref domain.TopicRef
		if err := rows.Scan(&articleID, &ref.ID, &ref.Title); err != nil {
			return nil, fmt.Errorf("scan topic ref: %w", err)
		}
		out[articleID] = append(out[articleID], ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (domain.Article, error) {
	var (
		article     domain.Article
		sourceType  string
		publishedAt nullTime
		createdAt   nullTime
	)
	if err := row.Scan(&article.ID, &article.Title, &article.Summary, &article.Content, &article.SourceURL,
		&article.SourceName, &sourceType, &publishedAt, &createdAt); err != nil {
		return domain.Article{}, err
	}
	article.SourceType = domain.ParseSourceType(sourceType)
	article.PublishedAt = publishedAt.Time
	article.CreatedAt = createdAt.Time
	return article, nil
}

func nonNilRefs(refs []domain.TopicRef) []domain.TopicRef {
	if refs == nil {
		return []domain.TopicRef{}
	}
	return refs
}

func (r *Repository) execAffecting(ctx context.Context, query string, args []any, notFound error) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return requireAffected(res, notFound)
}

func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
