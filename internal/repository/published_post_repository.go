package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/postwise/postwise/internal/models"
)

// PublishedPostRepository is append-only. Rows are never updated or removed;
// a unique index on (post_id, channel_id, schedule_id) backs the exactly-once
// audit guarantee.
type PublishedPostRepository interface {
	Create(ctx context.Context, pp *models.PublishedPost) (int64, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.PublishedPost, error)
}

type publishedPostRepository struct {
	db *sql.DB
}

func NewPublishedPostRepository(db *sql.DB) PublishedPostRepository {
	return &publishedPostRepository{db: db}
}

func (r *publishedPostRepository) Create(ctx context.Context, pp *models.PublishedPost) (int64, error) {
	query := `
		INSERT INTO published_posts (external_id, post_id, channel_id, schedule_id, platform, platform_post_id, platform_url, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, pp.ExternalID, pp.PostID, pp.ChannelID,
		pp.ScheduleID, pp.Platform, pp.PlatformPostID, pp.PlatformURL, pp.PublishedAt).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *publishedPostRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.PublishedPost, error) {
	query := `SELECT id, external_id, post_id, channel_id, schedule_id, platform, platform_post_id, platform_url, published_at, created_at
		FROM published_posts WHERE post_id = $1 ORDER BY published_at`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var records []*models.PublishedPost
	for rows.Next() {
		var pp models.PublishedPost
		err := rows.Scan(&pp.ID, &pp.ExternalID, &pp.PostID, &pp.ChannelID, &pp.ScheduleID,
			&pp.Platform, &pp.PlatformPostID, &pp.PlatformURL, &pp.PublishedAt, &pp.CreatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		records = append(records, &pp)
	}
	return records, rows.Err()
}
