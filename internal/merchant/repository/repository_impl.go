package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	merchantdomain "github.com/smallbiznis/pasarku/internal/merchant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() merchantdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*merchantdomain.Merchant, error) {
	var merchant merchantdomain.Merchant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, village_id, confirmation_window_minutes, created_at, updated_at
		 FROM merchants WHERE id = ?`,
		id,
	).Scan(&merchant).Error
	if err != nil {
		return nil, err
	}
	if merchant.ID == 0 {
		return nil, nil
	}
	return &merchant, nil
}
