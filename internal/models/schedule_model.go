package models

import "time"

// Schedule is one (post, channel, due time) delivery intent. Schedules are
// owned by their post: the repository only reads and writes them through the
// post aggregate, and rows are removed with the post.
type Schedule struct {
	ID             int64      `db:"id" json:"id"`
	PostID         int64      `db:"post_id" json:"post_id"`
	ChannelID      int64      `db:"channel_id" json:"channel_id"`
	Platform       string     `db:"platform" json:"platform"`
	ScheduledFor   time.Time  `db:"scheduled_for" json:"scheduled_for"`
	Status         string     `db:"status" json:"status"`
	JobID          string     `db:"job_id" json:"job_id"`
	Attempts       int        `db:"attempts" json:"attempts"`
	LastError      string     `db:"last_error" json:"last_error,omitempty"`
	PlatformPostID string     `db:"platform_post_id" json:"platform_post_id,omitempty"`
	PlatformURL    string     `db:"platform_url" json:"platform_url,omitempty"`
	PublishedAt    *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	ScheduleStatusPending   = "pending"
	ScheduleStatusQueued    = "queued"
	ScheduleStatusPublished = "published"
	ScheduleStatusFailed    = "failed"
	ScheduleStatusCancelled = "cancelled"
)

func (s *Schedule) Terminal() bool {
	switch s.Status {
	case ScheduleStatusPublished, ScheduleStatusFailed, ScheduleStatusCancelled:
		return true
	}
	return false
}

// Processable reports whether a worker is allowed to attempt delivery.
// Anything past pending/queued is already resolved and must be skipped.
func (s *Schedule) Processable() bool {
	return s.Status == ScheduleStatusPending || s.Status == ScheduleStatusQueued
}
