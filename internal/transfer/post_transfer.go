package transfer

import (
	"time"

	"github.com/postwise/postwise/internal/models"
)

type ScheduleCreation struct {
	ChannelID    int64     `json:"channel_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

type PostCreation struct {
	BrandID         int64              `json:"brand_id"`
	Caption         string             `json:"caption"`
	Title           string             `json:"title"`
	MediaURLs       []string           `json:"media_urls"`
	NotifyOnPublish bool               `json:"notify_on_publish"`
	Schedules       []ScheduleCreation `json:"schedules"`
}

// PostResponse adds the aggregate status, which is derived rather than
// stored.
type PostResponse struct {
	*models.Post
	Status string `json:"status"`
}

func NewPostResponse(p *models.Post) *PostResponse {
	return &PostResponse{Post: p, Status: p.Status()}
}

func NewPostResponses(posts []*models.Post) []*PostResponse {
	out := make([]*PostResponse, 0, len(posts))
	for _, p := range posts {
		out = append(out, NewPostResponse(p))
	}
	return out
}
