package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/postwise/postwise/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkSchedulePublishedWriteOnce(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)
	publishedAt := time.Now()

	mock.ExpectExec(`UPDATE post_schedules`).
		WithArgs(models.ScheduleStatusPublished, "ig-1", "https://instagram.com/p/x", publishedAt,
			sqlmock.AnyArg(), int64(7), models.ScheduleStatusPending, models.ScheduleStatusQueued).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := repo.MarkSchedulePublished(context.Background(), 7, "ig-1", "https://instagram.com/p/x", publishedAt)
	require.NoError(t, err)
	assert.True(t, updated)

	// second write hits the published_at guard and touches nothing
	mock.ExpectExec(`UPDATE post_schedules`).
		WithArgs(models.ScheduleStatusPublished, "ig-1", "https://instagram.com/p/x", publishedAt,
			sqlmock.AnyArg(), int64(7), models.ScheduleStatusPending, models.ScheduleStatusQueued).
		WillReturnResult(sqlmock.NewResult(0, 0))

	updated, err = repo.MarkSchedulePublished(context.Background(), 7, "ig-1", "https://instagram.com/p/x", publishedAt)
	require.NoError(t, err)
	assert.False(t, updated)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelScheduleOnlyBeforeTerminal(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)

	mock.ExpectExec(`UPDATE post_schedules`).
		WithArgs(models.ScheduleStatusCancelled, sqlmock.AnyArg(), int64(3),
			models.ScheduleStatusPending, models.ScheduleStatusQueued).
		WillReturnResult(sqlmock.NewResult(0, 0))

	cancelled, err := repo.CancelSchedule(context.Background(), 3)
	require.NoError(t, err)
	assert.False(t, cancelled)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListDueSchedulesQueriesPendingAndStaleQueued(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)
	now := time.Now()
	stale := now.Add(-10 * time.Minute)

	cols := []string{"id", "post_id", "channel_id", "platform", "scheduled_for", "status", "job_id",
		"attempts", "last_error", "platform_post_id", "platform_url", "published_at", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM post_schedules s`).
		WithArgs(models.ScheduleStatusPending, now, models.ScheduleStatusQueued, stale).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(1), int64(10), int64(5), "instagram", now.Add(-time.Minute),
				models.ScheduleStatusPending, "", 0, "", "", "", nil, now, now))

	due, err := repo.ListDueSchedules(context.Background(), now, stale)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, int64(10), due[0].PostID)
	assert.Equal(t, "instagram", due[0].Platform)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByIDLoadsScheduleAggregate(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	repo := NewPostRepository(db)
	now := time.Now()

	postCols := []string{"id", "brand_id", "creator_id", "caption", "title", "media_urls", "media_type", "settings", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM posts WHERE id`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(postCols).
			AddRow(int64(10), int64(2), int64(4), "Hello world", "", "{}", models.MediaTypeNone, []byte(`{"notify_on_publish":true}`), now, now))

	schedCols := []string{"id", "post_id", "channel_id", "platform", "scheduled_for", "status", "job_id",
		"attempts", "last_error", "platform_post_id", "platform_url", "published_at", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM post_schedules WHERE post_id`).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows(schedCols).
			AddRow(int64(1), int64(10), int64(5), "tiktok", now, models.ScheduleStatusPending, "", 0, "", "", "", nil, now, now))

	post, err := repo.GetByID(context.Background(), 10)
	require.NoError(t, err)
	require.NotNil(t, post)
	assert.True(t, post.Settings.NotifyOnPublish)
	require.Len(t, post.Schedules, 1)
	assert.Equal(t, int64(10), post.Schedules[0].PostID)

	assert.NoError(t, mock.ExpectationsWereMet())
}
