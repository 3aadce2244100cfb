package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CandidateFilter struct {
	VillageID string
	MaxActive int
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Courier, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Courier, error)
	ListCandidates(ctx context.Context, db *gorm.DB, filter CandidateFilter) ([]Courier, error)
	CountActiveAssignments(ctx context.Context, db *gorm.DB, courierID snowflake.ID) (int64, error)
	SetAvailability(ctx context.Context, db *gorm.DB, id snowflake.ID, available bool, now time.Time) (bool, error)
}
