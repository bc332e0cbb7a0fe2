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

func (r *Repository) topicSelect() sq.SelectBuilder {
	return r.sb.Select("t.id", "t.title", "t.description", "t.significance", "t.created_at", "t.updated_at",
		"(SELECT COUNT(*) FROM article_topics l WHERE l.topic_id = t.id)").
		From("topics t")
}

// CreateTopic inserts a taxonomy entry.
func (r *Repository) CreateTopic(ctx context.Context, topic domain.Topic) (domain.Topic, error) {
	now := time.Now().UTC()
	topic.CreatedAt, topic.UpdatedAt = now, now

	query, args, err := r.sb.Insert("topics").
		Columns("title", "description", "significance", "created_at", "updated_at").
		Values(topic.Title, topic.Description, topic.Significance, r.stamp(now), r.stamp(now)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return domain.Topic{}, fmt.Errorf("build insert topic: %w", err)
	}
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&topic.ID); err != nil {
		return domain.Topic{}, fmt.Errorf("insert topic: %w", err)
	}
	topic.ArticleCount = 0
	return topic, nil
}

// GetTopic loads one topic with its article count.
func (r *Repository) GetTopic(ctx context.Context, id int64) (domain.Topic, error) {
	query, args, err := r.topicSelect().Where(sq.Eq{"t.id": id}).ToSql()
	if err != nil {
		return domain.Topic{}, fmt.Errorf("build select topic: %w", err)
	}
	topic, err := scanTopic(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Topic{}, domain.ErrTopicNotFound
	}
	if err != nil {
		return domain.Topic{}, fmt.Errorf("select topic: %w", err)
	}
	return topic, nil
}

// ListTopics returns the whole taxonomy ordered by title.
func (r *Repository) ListTopics(ctx context.Context) ([]domain.Topic, error) {
	query, args, err := r.topicSelect().OrderBy("t.title", "t.id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select topics: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query topics: %w", err)
	}
	defer rows.Close()

	topics := []domain.Topic{}
	for rows.Next() {
		topic, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		topics = append(topics, topic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return topics, nil
}

// UpdateTopic overwrites title, description and significance and bumps updated_at.
func (r *Repository) UpdateTopic(ctx context.Context, topic domain.Topic) error {
	query, args, err := r.sb.Update("topics").
		Set("title", topic.Title).
		Set("description", topic.Description).
		Set("significance", topic.Significance).
		Set("updated_at", r.stamp(time.Now().UTC())).
		Where(sq.Eq{"id": topic.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update topic: %w", err)
	}
	return r.execAffecting(ctx, query, args, domain.ErrTopicNotFound)
}

// DeleteTopic removes a topic and every link pointing at it.
func (r *Repository) DeleteTopic(ctx context.Context, id int64) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		query, args, err := r.sb.Delete("article_topics").Where(sq.Eq{"topic_id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete links: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete links: %w", err)
		}

		query, args, err = r.sb.Delete("topics").Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete topic: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete topic: %w", err)
		}
		return requireAffected(res, domain.ErrTopicNotFound)
	})
}

func scanTopic(row rowScanner) (domain.Topic, error) {
	var (
		topic     domain.Topic
		createdAt nullTime
		updatedAt nullTime
	)
	if err := row.Scan(&topic.ID, &topic.Title, &topic.Description, &topic.Significance,
		&createdAt, &updatedAt, &topic.ArticleCount); err != nil {
		return domain.Topic{}, err
	}
	topic.CreatedAt = createdAt.Time
	topic.UpdatedAt = updatedAt.Time
	return topic, nil
}
