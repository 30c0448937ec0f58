package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/postwise/postwise/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Post, error)
	ListByBrandID(ctx context.Context, brandID int64) ([]*models.Post, error)
	SoftRemove(ctx context.Context, id int64) error

	ListDueSchedules(ctx context.Context, dueBefore, queuedStaleBefore time.Time) ([]*models.Schedule, error)
	MarkScheduleQueued(ctx context.Context, scheduleID int64, jobID string) error
	MarkSchedulePublished(ctx context.Context, scheduleID int64, platformPostID, platformURL string, publishedAt time.Time) (bool, error)
	RecordAttemptFailure(ctx context.Context, scheduleID int64, errMsg string, terminal bool) error
	FailSchedule(ctx context.Context, scheduleID int64, errMsg string) error
	CancelSchedule(ctx context.Context, scheduleID int64) (bool, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const scheduleColumns = `id, post_id, channel_id, platform, scheduled_for, status, job_id, attempts, last_error, platform_post_id, platform_url, published_at, created_at, updated_at`

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (brand_id, creator_id, caption, title, media_urls, media_type, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	row := func(q string, args ...interface{}) *sql.Row {
		if tx != nil {
			return tx.QueryRowContext(ctx, q, args...)
		}
		return r.db.QueryRowContext(ctx, q, args...)
	}

	var id int64
	err := row(query, post.BrandID, post.CreatorID, post.Caption, post.Title,
		pq.Array(post.MediaURLs), post.MediaType, post.Settings).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	post.ID = id

	scheduleQuery := `
		INSERT INTO post_schedules (post_id, channel_id, platform, scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	for _, s := range post.Schedules {
		s.PostID = id
		s.Status = models.ScheduleStatusPending
		err = row(scheduleQuery, id, s.ChannelID, s.Platform, s.ScheduledFor, s.Status).Scan(&s.ID)
		if err != nil {
			slog.Info(err.Error())
			return 0, err
		}
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, id int64) (*models.Post, error) {
	query := `SELECT id, brand_id, creator_id, caption, title, media_urls, media_type, settings, created_at, updated_at
		FROM posts WHERE id = $1 AND deleted_at IS NULL`

	var post models.Post
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&post.ID, &post.BrandID, &post.CreatorID, &post.Caption, &post.Title,
		pq.Array(&post.MediaURLs), &post.MediaType, &post.Settings, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	schedules, err := r.schedulesByPostID(ctx, id)
	if err != nil {
		return nil, err
	}
	post.Schedules = schedules

	return &post, nil
}

func (r *postRepository) schedulesByPostID(ctx context.Context, postID int64) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM post_schedules WHERE post_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

func (r *postRepository) ListByBrandID(ctx context.Context, brandID int64) ([]*models.Post, error) {
	query := `SELECT id, brand_id, creator_id, caption, title, media_urls, media_type, settings, created_at, updated_at
		FROM posts WHERE brand_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, brandID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		var post models.Post
		err := rows.Scan(&post.ID, &post.BrandID, &post.CreatorID, &post.Caption, &post.Title,
			pq.Array(&post.MediaURLs), &post.MediaType, &post.Settings, &post.CreatedAt, &post.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, &post)
	}

	for _, post := range posts {
		schedules, err := r.schedulesByPostID(ctx, post.ID)
		if err != nil {
			return nil, err
		}
		post.Schedules = schedules
	}

	return posts, nil
}

func (r *postRepository) SoftRemove(ctx context.Context, id int64) error {
	query := `UPDATE posts SET deleted_at = $1, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ListDueSchedules feeds the reconciler sweep: pending schedules past due,
// plus queued schedules whose due time is older than the staleness cutoff.
// The second clause re-detects jobs lost from the queue backing store.
func (r *postRepository) ListDueSchedules(ctx context.Context, dueBefore, queuedStaleBefore time.Time) ([]*models.Schedule, error) {
	query := `SELECT s.id, s.post_id, s.channel_id, s.platform, s.scheduled_for, s.status, s.job_id, s.attempts, s.last_error, s.platform_post_id, s.platform_url, s.published_at, s.created_at, s.updated_at
		FROM post_schedules s
		JOIN posts p ON p.id = s.post_id AND p.deleted_at IS NULL
		WHERE (s.status = $1 AND s.scheduled_for <= $2)
		   OR (s.status = $3 AND s.scheduled_for <= $4)
		ORDER BY s.scheduled_for`

	rows, err := r.db.QueryContext(ctx, query,
		models.ScheduleStatusPending, dueBefore,
		models.ScheduleStatusQueued, queuedStaleBefore)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

func scanSchedules(rows *sql.Rows) ([]*models.Schedule, error) {
	var schedules []*models.Schedule
	for rows.Next() {
		var s models.Schedule
		err := rows.Scan(&s.ID, &s.PostID, &s.ChannelID, &s.Platform, &s.ScheduledFor,
			&s.Status, &s.JobID, &s.Attempts, &s.LastError, &s.PlatformPostID,
			&s.PlatformURL, &s.PublishedAt, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		schedules = append(schedules, &s)
	}
	return schedules, rows.Err()
}

func (r *postRepository) MarkScheduleQueued(ctx context.Context, scheduleID int64, jobID string) error {
	query := `UPDATE post_schedules SET status = $1, job_id = $2, updated_at = $3 WHERE id = $4 AND status = $5`
	_, err := r.db.ExecContext(ctx, query, models.ScheduleStatusQueued, jobID, time.Now(), scheduleID, models.ScheduleStatusPending)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// MarkSchedulePublished is write-once: the guard on published_at makes a
// duplicate success report a no-op, reported through the bool.
func (r *postRepository) MarkSchedulePublished(ctx context.Context, scheduleID int64, platformPostID, platformURL string, publishedAt time.Time) (bool, error) {
	query := `UPDATE post_schedules
		SET status = $1, platform_post_id = $2, platform_url = $3, published_at = $4, updated_at = $5
		WHERE id = $6 AND published_at IS NULL AND status IN ($7, $8)`

	res, err := r.db.ExecContext(ctx, query, models.ScheduleStatusPublished,
		platformPostID, platformURL, publishedAt, time.Now(), scheduleID,
		models.ScheduleStatusPending, models.ScheduleStatusQueued)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordAttemptFailure increments the attempt counter monotonically. The
// schedule only moves to failed on the terminal attempt; intermediate
// failures keep it queued so the job system's retry stays authoritative.
func (r *postRepository) RecordAttemptFailure(ctx context.Context, scheduleID int64, errMsg string, terminal bool) error {
	var query string
	var err error
	if terminal {
		query = `UPDATE post_schedules SET attempts = attempts + 1, last_error = $1, status = $2, updated_at = $3 WHERE id = $4 AND published_at IS NULL`
		_, err = r.db.ExecContext(ctx, query, errMsg, models.ScheduleStatusFailed, time.Now(), scheduleID)
	} else {
		query = `UPDATE post_schedules SET attempts = attempts + 1, last_error = $1, updated_at = $2 WHERE id = $3 AND published_at IS NULL`
		_, err = r.db.ExecContext(ctx, query, errMsg, time.Now(), scheduleID)
	}
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// FailSchedule marks a schedule failed without consuming an attempt. Used when
// the work never reached the queue, e.g. an enqueue failure in the reconciler.
func (r *postRepository) FailSchedule(ctx context.Context, scheduleID int64, errMsg string) error {
	query := `UPDATE post_schedules SET status = $1, last_error = $2, updated_at = $3 WHERE id = $4 AND status IN ($5, $6)`
	_, err := r.db.ExecContext(ctx, query, models.ScheduleStatusFailed, errMsg, time.Now(),
		scheduleID, models.ScheduleStatusPending, models.ScheduleStatusQueued)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) CancelSchedule(ctx context.Context, scheduleID int64) (bool, error) {
	query := `UPDATE post_schedules SET status = $1, updated_at = $2 WHERE id = $3 AND status IN ($4, $5)`
	res, err := r.db.ExecContext(ctx, query, models.ScheduleStatusCancelled, time.Now(),
		scheduleID, models.ScheduleStatusPending, models.ScheduleStatusQueued)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
