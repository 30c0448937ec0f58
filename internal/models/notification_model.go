package models

import "time"

type Notification struct {
	ID         int64      `db:"id" json:"id"`
	UserID     int64      `db:"user_id" json:"user_id"`
	BrandID    int64      `db:"brand_id" json:"brand_id"`
	Kind       string     `db:"kind" json:"kind"`
	Message    string     `db:"message" json:"message"`
	PostID     int64      `db:"post_id" json:"post_id"`
	ScheduleID int64      `db:"schedule_id" json:"schedule_id"`
	ReadAt     *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

const (
	NotificationPostPublished = "post_published"
	NotificationPostFailed    = "post_failed"
)
