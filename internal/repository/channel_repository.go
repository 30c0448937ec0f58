package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postwise/postwise/internal/models"
)

type ChannelRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Channel, error)
	ListByBrandID(ctx context.Context, brandID int64) ([]*models.Channel, error)
	ListExpiringTokens(ctx context.Context, from, to time.Time) ([]*models.Channel, error)
	ListByStatus(ctx context.Context, status string) ([]*models.Channel, error)
	SetTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error
	SetConnectionStatus(ctx context.Context, id int64, status string) error
	RecordHealthCheck(ctx context.Context, id int64, status, checkError string, checkedAt time.Time) error
}

type channelRepository struct {
	db *sql.DB
}

func NewChannelRepository(db *sql.DB) ChannelRepository {
	return &channelRepository{db: db}
}

const channelColumns = `id, brand_id, platform, account_id, account_name, access_token, refresh_token, token_expires_at, connection_status, last_checked_at, last_check_error, created_at, updated_at`

func (r *channelRepository) GetByID(ctx context.Context, id int64) (*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = $1`

	var c models.Channel
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.BrandID, &c.Platform, &c.AccountID, &c.AccountName,
		&c.AccessToken, &c.RefreshToken, &c.TokenExpiresAt, &c.ConnectionStatus,
		&c.LastCheckedAt, &c.LastCheckError, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}

	return &c, nil
}

func (r *channelRepository) ListByBrandID(ctx context.Context, brandID int64) ([]*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE brand_id = $1 ORDER BY id`
	return r.list(ctx, query, brandID)
}

func (r *channelRepository) ListExpiringTokens(ctx context.Context, from, to time.Time) ([]*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE connection_status = $1 AND token_expires_at BETWEEN $2 AND $3`
	return r.list(ctx, query, models.ChannelStatusActive, from, to)
}

func (r *channelRepository) ListByStatus(ctx context.Context, status string) ([]*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE connection_status = $1`
	return r.list(ctx, query, status)
}

func (r *channelRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Channel, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		var c models.Channel
		err := rows.Scan(&c.ID, &c.BrandID, &c.Platform, &c.AccountID, &c.AccountName,
			&c.AccessToken, &c.RefreshToken, &c.TokenExpiresAt, &c.ConnectionStatus,
			&c.LastCheckedAt, &c.LastCheckError, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		channels = append(channels, &c)
	}
	return channels, rows.Err()
}

func (r *channelRepository) SetTokens(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `UPDATE channels SET access_token = $1, refresh_token = $2, token_expires_at = $3, connection_status = $4, updated_at = $5 WHERE id = $6`
	_, err := r.db.ExecContext(ctx, query, accessToken, refreshToken, expiresAt, models.ChannelStatusActive, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *channelRepository) SetConnectionStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE channels SET connection_status = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *channelRepository) RecordHealthCheck(ctx context.Context, id int64, status, checkError string, checkedAt time.Time) error {
	query := `UPDATE channels SET connection_status = $1, last_check_error = $2, last_checked_at = $3, updated_at = $4 WHERE id = $5`
	_, err := r.db.ExecContext(ctx, query, status, checkError, checkedAt, time.Now(), id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
