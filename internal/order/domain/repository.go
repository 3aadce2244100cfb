package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	MerchantID *snowflake.ID
	BuyerID    *snowflake.ID
	CourierID  *snowflake.ID
	Statuses   []Status
	BeforeID   *snowflake.ID
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	InsertItems(ctx context.Context, db *gorm.DB, items []OrderItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, buyerID snowflake.ID, key string) (*Order, error)
	ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]OrderItem, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Order, error)
	// UpdateIfVersion writes every mutable column when the stored version
	// still equals expectedVersion. order.Version must already hold the new value.
	UpdateIfVersion(ctx context.Context, db *gorm.DB, order *Order, expectedVersion int64) (bool, error)
	ListConfirmationExpired(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]snowflake.ID, error)
	ListDeliveredBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]snowflake.ID, error)
}
