package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/postwise/postwise/internal/models"
)

// BrandMemberRepository is the narrow capability check the pipeline consumes.
// Membership CRUD lives elsewhere; all this subsystem needs is a yes/no.
type BrandMemberRepository interface {
	HasPermission(ctx context.Context, userID, brandID int64, action string) (bool, error)
}

type brandMemberRepository struct {
	db *sql.DB
}

func NewBrandMemberRepository(db *sql.DB) BrandMemberRepository {
	return &brandMemberRepository{db: db}
}

func (r *brandMemberRepository) HasPermission(ctx context.Context, userID, brandID int64, action string) (bool, error) {
	query := `SELECT role FROM brand_members WHERE user_id = $1 AND brand_id = $2`

	var role string
	err := r.db.QueryRowContext(ctx, query, userID, brandID).Scan(&role)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	switch role {
	case models.RoleOwner, models.RoleEditor:
		return true, nil
	}
	// viewers can read but never schedule or cancel
	return false, nil
}
