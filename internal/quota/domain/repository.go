package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindUsableSubscription(ctx context.Context, db *gorm.DB, merchantID snowflake.ID, now time.Time) (*MerchantSubscription, error)
	FindUsableSubscriptionForUpdate(ctx context.Context, db *gorm.DB, merchantID snowflake.ID, now time.Time) (*MerchantSubscription, error)
	FindLatestPaidSubscription(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) (*MerchantSubscription, error)
	IncrementUsed(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, credits int64, now time.Time) (bool, error)
	ExpireDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error)

	InsertEntry(ctx context.Context, db *gorm.DB, entry *QuotaLedgerEntry) (bool, error)
	FindEntryByOrder(ctx context.Context, db *gorm.DB, subscriptionID, orderID snowflake.ID) (*QuotaLedgerEntry, error)
	ListEntries(ctx context.Context, db *gorm.DB, filter EntryFilter) ([]QuotaLedgerEntry, error)

	ListTiers(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) ([]QuotaTierRow, error)
}

type EntryFilter struct {
	MerchantID     snowflake.ID
	SubscriptionID *snowflake.ID
	BeforeID       *snowflake.ID
	Limit          int
}
