package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"github.com/h2non/filetype/types"
)

type Post struct {
	ID        int64        `db:"id" json:"id"`
	BrandID   int64        `db:"brand_id" json:"brand_id"`
	CreatorID int64        `db:"creator_id" json:"creator_id"`
	Caption   string       `db:"caption" json:"caption"`
	Title     string       `db:"title" json:"title"`
	MediaURLs []string     `db:"media_urls" json:"media_urls"`
	MediaType string       `db:"media_type" json:"media_type"`
	Settings  PostSettings `db:"settings" json:"settings"`
	DeletedAt *time.Time   `db:"deleted_at" json:"-"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`

	Schedules []*Schedule `json:"schedules"`
}

type PostSettings struct {
	NotifyOnPublish bool `json:"notify_on_publish"`
}

func (s PostSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *PostSettings) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = PostSettings{}
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	}
	return errors.New("unsupported type for PostSettings")
}

const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)

const (
	MediaTypeNone       = "none"
	MediaTypeImage      = "image"
	MediaTypeVideo      = "video"
	MediaTypeMultiImage = "multiImage"
)

// Status summarizes the post from its schedules. A queued schedule makes the
// whole post "publishing"; the post only reports "published" once every
// schedule is resolved and at least one delivery succeeded.
func (p *Post) Status() string {
	if len(p.Schedules) == 0 {
		return PostStatusDraft
	}

	var pending, published, failed int
	for _, s := range p.Schedules {
		switch s.Status {
		case ScheduleStatusQueued:
			return PostStatusPublishing
		case ScheduleStatusPending:
			pending++
		case ScheduleStatusPublished:
			published++
		case ScheduleStatusFailed:
			failed++
		}
	}

	if pending > 0 {
		return PostStatusScheduled
	}
	if published > 0 {
		return PostStatusPublished
	}
	if failed > 0 {
		return PostStatusFailed
	}
	return PostStatusDraft
}

func (p *Post) FindSchedule(scheduleID int64) *Schedule {
	for _, s := range p.Schedules {
		if s.ID == scheduleID {
			return s
		}
	}
	return nil
}

// DeriveMediaType tags a post from its media URL list. Classification goes by
// file extension through filetype's matcher registry; unrecognized extensions
// fall back to "image" so a single odd URL doesn't block scheduling.
func DeriveMediaType(urls []string) string {
	if len(urls) == 0 {
		return MediaTypeNone
	}
	if len(urls) > 1 {
		return MediaTypeMultiImage
	}

	t := filetype.GetType(urlExtension(urls[0]))
	if t != types.Unknown && t.MIME.Type == "video" {
		return MediaTypeVideo
	}
	return MediaTypeImage
}

func urlExtension(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimPrefix(path.Ext(raw), ".")
	}
	return strings.TrimPrefix(path.Ext(u.Path), ".")
}
