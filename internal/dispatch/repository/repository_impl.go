package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	dispatchdomain "github.com/smallbiznis/pasarku/internal/dispatch/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// activeOrderStatus is the order state that occupies a courier.
const activeOrderStatus = "SENT"

type repo struct{}

func Provide() dispatchdomain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*dispatchdomain.Courier, error) {
	return r.find(ctx, db, id, false)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*dispatchdomain.Courier, error) {
	return r.find(ctx, db, id, true)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, id snowflake.ID, lock bool) (*dispatchdomain.Courier, error) {
	query := db.WithContext(ctx).Where("id = ?", id)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var courier dispatchdomain.Courier
	if err := query.Limit(1).Find(&courier).Error; err != nil {
		return nil, err
	}
	if courier.ID == 0 {
		return nil, nil
	}
	return &courier, nil
}

func (r *repo) ListCandidates(ctx context.Context, db *gorm.DB, filter dispatchdomain.CandidateFilter) ([]dispatchdomain.Courier, error) {
	maxActive := filter.MaxActive
	if maxActive < 1 {
		maxActive = 1
	}
	query := db.WithContext(ctx).
		Model(&dispatchdomain.Courier{}).
		Where("status = ? AND registration_status = ? AND is_available = ?",
			dispatchdomain.CourierStatusActive,
			dispatchdomain.RegistrationApproved,
			true,
		).
		Where(`(SELECT COUNT(*) FROM orders o WHERE o.assigned_courier_id = couriers.id AND o.status = ?) < ?`,
			activeOrderStatus,
			maxActive,
		)
	if filter.VillageID != "" {
		query = query.Where("village_id = ?", filter.VillageID)
	}

	var couriers []dispatchdomain.Courier
	if err := query.Order("name ASC, id ASC").Find(&couriers).Error; err != nil {
		return nil, err
	}
	return couriers, nil
}

// CountActiveAssignments is a locking read so it sees assignments committed
// after the caller's snapshot began.
func (r *repo) CountActiveAssignments(ctx context.Context, db *gorm.DB, courierID snowflake.ID) (int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Table("orders").
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("assigned_courier_id = ? AND status = ?", courierID, activeOrderStatus).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

func (r *repo) SetAvailability(ctx context.Context, db *gorm.DB, id snowflake.ID, available bool, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE couriers SET is_available = ?, updated_at = ? WHERE id = ?`,
		available,
		now,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
