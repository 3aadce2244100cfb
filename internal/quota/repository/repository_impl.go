package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	quotadomain "github.com/smallbiznis/pasarku/internal/quota/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() quotadomain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, merchant_id, package_name, transaction_quota, used_quota, status,
		 payment_status, expired_at, created_at, updated_at`

func (r *repo) FindUsableSubscription(ctx context.Context, db *gorm.DB, merchantID snowflake.ID, now time.Time) (*quotadomain.MerchantSubscription, error) {
	return r.findUsable(ctx, db, merchantID, now, false)
}

func (r *repo) FindUsableSubscriptionForUpdate(ctx context.Context, db *gorm.DB, merchantID snowflake.ID, now time.Time) (*quotadomain.MerchantSubscription, error) {
	return r.findUsable(ctx, db, merchantID, now, true)
}

func (r *repo) findUsable(ctx context.Context, db *gorm.DB, merchantID snowflake.ID, now time.Time, lock bool) (*quotadomain.MerchantSubscription, error) {
	query := db.WithContext(ctx).
		Where("merchant_id = ? AND status = ? AND payment_status = ? AND expired_at > ?",
			merchantID,
			quotadomain.SubscriptionStatusActive,
			quotadomain.SubscriptionPaymentPaid,
			now,
		).
		Order("expired_at ASC, id ASC").
		Limit(1)
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var subscription quotadomain.MerchantSubscription
	if err := query.Find(&subscription).Error; err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindLatestPaidSubscription(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) (*quotadomain.MerchantSubscription, error) {
	var subscription quotadomain.MerchantSubscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM merchant_subscriptions
		 WHERE merchant_id = ? AND payment_status = ?
		 ORDER BY expired_at DESC, id DESC
		 LIMIT 1`,
		merchantID,
		quotadomain.SubscriptionPaymentPaid,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

// IncrementUsed adds credits only while the package can cover them.
func (r *repo) IncrementUsed(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, credits int64, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE merchant_subscriptions
		 SET used_quota = used_quota + ?, updated_at = ?
		 WHERE id = ? AND used_quota + ? <= transaction_quota`,
		credits,
		now,
		subscriptionID,
		credits,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ExpireDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 100
	}
	var ids []int64
	err := db.WithContext(ctx).
		Model(&quotadomain.MerchantSubscription{}).
		Where("status = ? AND expired_at <= ?", quotadomain.SubscriptionStatusActive, now).
		Order("expired_at ASC, id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	// Status is rechecked so a concurrent renewal is not overwritten.
	result := db.WithContext(ctx).Exec(
		`UPDATE merchant_subscriptions
		 SET status = ?, updated_at = ?
		 WHERE id IN ? AND status = ? AND expired_at <= ?`,
		quotadomain.SubscriptionStatusExpired,
		now,
		ids,
		quotadomain.SubscriptionStatusActive,
		now,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// InsertEntry appends a ledger row; false means the order was already debited.
func (r *repo) InsertEntry(ctx context.Context, db *gorm.DB, entry *quotadomain.QuotaLedgerEntry) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subscription_id"}, {Name: "order_id"}},
			DoNothing: true,
		}).
		Create(entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindEntryByOrder(ctx context.Context, db *gorm.DB, subscriptionID, orderID snowflake.ID) (*quotadomain.QuotaLedgerEntry, error) {
	var entry quotadomain.QuotaLedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT id, merchant_id, subscription_id, order_id, credits_used, order_total,
		 remaining_quota, reason, note, created_at
		 FROM quota_ledger_entries
		 WHERE subscription_id = ? AND order_id = ?`,
		subscriptionID,
		orderID,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) ListEntries(ctx context.Context, db *gorm.DB, filter quotadomain.EntryFilter) ([]quotadomain.QuotaLedgerEntry, error) {
	query := db.WithContext(ctx).
		Model(&quotadomain.QuotaLedgerEntry{}).
		Where("merchant_id = ?", filter.MerchantID)
	if filter.SubscriptionID != nil {
		query = query.Where("subscription_id = ?", *filter.SubscriptionID)
	}
	if filter.BeforeID != nil {
		query = query.Where("id < ?", *filter.BeforeID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var entries []quotadomain.QuotaLedgerEntry
	if err := query.Order("id DESC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) ListTiers(ctx context.Context, db *gorm.DB, merchantID snowflake.ID) ([]quotadomain.QuotaTierRow, error) {
	var tiers []quotadomain.QuotaTierRow
	err := db.WithContext(ctx).
		Where("merchant_id = ?", merchantID).
		Order("min_amount ASC").
		Find(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}
