package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	quotadomain "github.com/smallbiznis/pasarku/internal/quota/domain"
	"github.com/smallbiznis/pasarku/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var now = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func seed(t *testing.T, db *gorm.DB, subs ...quotadomain.MerchantSubscription) {
	t.Helper()
	for i := range subs {
		subs[i].PackageName = "Paket Desa"
		subs[i].PaymentStatus = quotadomain.SubscriptionPaymentPaid
		subs[i].CreatedAt = now
		subs[i].UpdatedAt = now
	}
	require.NoError(t, db.Create(&subs).Error)
}

func TestFindUsableSubscriptionForUpdateInTransaction(t *testing.T) {
	db := dbtest.Open(t, &quotadomain.MerchantSubscription{})
	seed(t, db,
		quotadomain.MerchantSubscription{ID: 1, MerchantID: 20, TransactionQuota: 5, Status: quotadomain.SubscriptionStatusActive, ExpiredAt: now.Add(48 * time.Hour)},
		quotadomain.MerchantSubscription{ID: 2, MerchantID: 20, TransactionQuota: 5, Status: quotadomain.SubscriptionStatusActive, ExpiredAt: now.Add(24 * time.Hour)},
		quotadomain.MerchantSubscription{ID: 3, MerchantID: 20, TransactionQuota: 5, Status: quotadomain.SubscriptionStatusActive, ExpiredAt: now.Add(-time.Hour)},
	)
	repo := Provide()

	err := db.Transaction(func(tx *gorm.DB) error {
		sub, err := repo.FindUsableSubscriptionForUpdate(context.Background(), tx, 20, now)
		require.NoError(t, err)
		require.NotNil(t, sub)
		assert.Equal(t, snowflake.ID(2), sub.ID, "soonest-expiring usable package first")

		none, err := repo.FindUsableSubscriptionForUpdate(context.Background(), tx, 21, now)
		require.NoError(t, err)
		assert.Nil(t, none)
		return nil
	})
	require.NoError(t, err)
}

func TestInsertEntrySkipsDuplicateOrder(t *testing.T) {
	db := dbtest.Open(t, &quotadomain.QuotaLedgerEntry{})
	repo := Provide()
	orderID := snowflake.ID(501)

	entry := func(id snowflake.ID) *quotadomain.QuotaLedgerEntry {
		return &quotadomain.QuotaLedgerEntry{
			ID:             id,
			MerchantID:     20,
			SubscriptionID: 1,
			OrderID:        &orderID,
			CreditsUsed:    1,
			OrderTotal:     55_000,
			RemainingQuota: 4,
			Reason:         quotadomain.ReasonOrderDispatch,
			CreatedAt:      now,
		}
	}

	inserted, err := repo.InsertEntry(context.Background(), db, entry(10))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.InsertEntry(context.Background(), db, entry(11))
	require.NoError(t, err)
	assert.False(t, inserted)

	found, err := repo.FindEntryByOrder(context.Background(), db, 1, orderID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, snowflake.ID(10), found.ID)
}

func TestExpireDueOnlyTouchesLapsedActivePackages(t *testing.T) {
	db := dbtest.Open(t, &quotadomain.MerchantSubscription{})
	seed(t, db,
		quotadomain.MerchantSubscription{ID: 1, MerchantID: 20, TransactionQuota: 5, Status: quotadomain.SubscriptionStatusActive, ExpiredAt: now.Add(-2 * time.Hour)},
		quotadomain.MerchantSubscription{ID: 2, MerchantID: 20, TransactionQuota: 5, Status: quotadomain.SubscriptionStatusActive, ExpiredAt: now.Add(-time.Hour)},
		quotadomain.MerchantSubscription{ID: 3, MerchantID: 20, TransactionQuota: 5, Status: quotadomain.SubscriptionStatusActive, ExpiredAt: now.Add(time.Hour)},
		quotadomain.MerchantSubscription{ID: 4, MerchantID: 20, TransactionQuota: 5, Status: quotadomain.SubscriptionStatusInactive, ExpiredAt: now.Add(-time.Hour)},
	)
	repo := Provide()

	n, err := repo.ExpireDue(context.Background(), db, now, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.ExpireDue(context.Background(), db, now, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var statuses []string
	require.NoError(t, db.Model(&quotadomain.MerchantSubscription{}).Order("id ASC").Pluck("status", &statuses).Error)
	assert.Equal(t, []string{"EXPIRED", "EXPIRED", "ACTIVE", "INACTIVE"}, statuses)
}
