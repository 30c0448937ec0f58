package models

import "time"

// Channel is a connected platform account. Access and refresh tokens are
// stored AES-GCM encrypted; decryption happens only at the provider boundary.
type Channel struct {
	ID               int64      `db:"id" json:"id"`
	BrandID          int64      `db:"brand_id" json:"brand_id"`
	Platform         string     `db:"platform" json:"platform"`
	AccountID        string     `db:"account_id" json:"account_id"`
	AccountName      string     `db:"account_name" json:"account_name"`
	AccessToken      string     `db:"access_token" json:"-"`
	RefreshToken     string     `db:"refresh_token" json:"-"`
	TokenExpiresAt   time.Time  `db:"token_expires_at" json:"token_expires_at"`
	ConnectionStatus string     `db:"connection_status" json:"connection_status"`
	LastCheckedAt    *time.Time `db:"last_checked_at" json:"last_checked_at,omitempty"`
	LastCheckError   string     `db:"last_check_error" json:"last_check_error,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	ChannelStatusActive       = "active"
	ChannelStatusExpired      = "expired"
	ChannelStatusError        = "error"
	ChannelStatusDisconnected = "disconnected"
)
