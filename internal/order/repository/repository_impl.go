package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/pasarku/internal/order/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() orderdomain.Repository {
	return &repo{}
}

const orderColumns = `id, buyer_id, merchant_id, status, payment_method, payment_status, delivery_type,
		 assigned_courier_id, subtotal, shipping_cost, total, delivery_address, notes,
		 payment_proof_ref, pod_image_ref, pod_notes, idempotency_key, version,
		 confirmation_deadline, confirmed_at, payment_paid_at, assigned_at, delivered_at,
		 completed_at, canceled_at, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *orderdomain.Order) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []orderdomain.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	return r.find(ctx, db, id, false)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*orderdomain.Order, error) {
	return r.find(ctx, db, id, true)
}

func (r *repo) find(ctx context.Context, db *gorm.DB, id snowflake.ID, lock bool) (*orderdomain.Order, error) {
	query := db.WithContext(ctx).Where("id = ?", id)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var order orderdomain.Order
	if err := query.Limit(1).Find(&order).Error; err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, buyerID snowflake.ID, key string) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE buyer_id = ? AND idempotency_key = ?
		 LIMIT 1`,
		buyerID,
		key,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]orderdomain.OrderItem, error) {
	var items []orderdomain.OrderItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, product_id, product_name, unit_price, quantity, subtotal, created_at
		 FROM order_items
		 WHERE order_id = ?
		 ORDER BY id ASC`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter orderdomain.ListFilter) ([]orderdomain.Order, error) {
	stmt := db.WithContext(ctx).Model(&orderdomain.Order{})
	if filter.MerchantID != nil {
		stmt = stmt.Where("merchant_id = ?", *filter.MerchantID)
	}
	if filter.BuyerID != nil {
		stmt = stmt.Where("buyer_id = ?", *filter.BuyerID)
	}
	if filter.CourierID != nil {
		stmt = stmt.Where("assigned_courier_id = ?", *filter.CourierID)
	}
	if len(filter.Statuses) > 0 {
		stmt = stmt.Where("status IN ?", filter.Statuses)
	}
	if filter.BeforeID != nil {
		stmt = stmt.Where("id < ?", *filter.BeforeID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var orders []orderdomain.Order
	if err := stmt.Order("id DESC").Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) UpdateIfVersion(ctx context.Context, db *gorm.DB, order *orderdomain.Order, expectedVersion int64) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, payment_status = ?, delivery_type = ?, assigned_courier_id = ?,
		     notes = ?, payment_proof_ref = ?, pod_image_ref = ?, pod_notes = ?,
		     confirmed_at = ?, payment_paid_at = ?, assigned_at = ?, delivered_at = ?,
		     completed_at = ?, canceled_at = ?, version = ?, updated_at = ?
		 WHERE id = ? AND version = ?`,
		order.Status,
		order.PaymentStatus,
		order.DeliveryType,
		order.AssignedCourierID,
		order.Notes,
		order.PaymentProofRef,
		order.PodImageRef,
		order.PodNotes,
		order.ConfirmedAt,
		order.PaymentPaidAt,
		order.AssignedAt,
		order.DeliveredAt,
		order.CompletedAt,
		order.CanceledAt,
		order.Version,
		order.UpdatedAt,
		order.ID,
		expectedVersion,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ListConfirmationExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error) {
	var ids []int64
	err := db.WithContext(ctx).Raw(
		`SELECT id
		 FROM orders
		 WHERE status = ? AND confirmation_deadline IS NOT NULL AND confirmation_deadline <= ?
		 ORDER BY confirmation_deadline ASC, id ASC
		 LIMIT ?`,
		orderdomain.StatusPendingConfirmation,
		now,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return toIDs(ids), nil
}

func (r *repo) ListDeliveredBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]snowflake.ID, error) {
	var ids []int64
	err := db.WithContext(ctx).Raw(
		`SELECT id
		 FROM orders
		 WHERE status = ? AND delivered_at IS NOT NULL AND delivered_at <= ?
		 ORDER BY delivered_at ASC, id ASC
		 LIMIT ?`,
		orderdomain.StatusDelivered,
		cutoff,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return toIDs(ids), nil
}

func toIDs(raw []int64) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(raw))
	for _, id := range raw {
		out = append(out, snowflake.ID(id))
	}
	return out
}
