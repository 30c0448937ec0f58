package models

import "time"

// PublishedPost is the append-only audit record of one successful delivery.
// It is written exactly once per (post, channel, schedule) and never edited,
// independent of later changes to the post or schedule.
type PublishedPost struct {
	ID             int64     `db:"id" json:"id"`
	ExternalID     string    `db:"external_id" json:"external_id"`
	PostID         int64     `db:"post_id" json:"post_id"`
	ChannelID      int64     `db:"channel_id" json:"channel_id"`
	ScheduleID     int64     `db:"schedule_id" json:"schedule_id"`
	Platform       string    `db:"platform" json:"platform"`
	PlatformPostID string    `db:"platform_post_id" json:"platform_post_id"`
	PlatformURL    string    `db:"platform_url" json:"platform_url"`
	PublishedAt    time.Time `db:"published_at" json:"published_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
