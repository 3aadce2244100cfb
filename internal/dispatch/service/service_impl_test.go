package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pasarku/internal/clock"
	"github.com/smallbiznis/pasarku/internal/config"
	dispatchdomain "github.com/smallbiznis/pasarku/internal/dispatch/domain"
	"github.com/smallbiznis/pasarku/internal/dispatch/repository"
	merchantdomain "github.com/smallbiznis/pasarku/internal/merchant/domain"
	merchantrepo "github.com/smallbiznis/pasarku/internal/merchant/repository"
	"github.com/smallbiznis/pasarku/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func strPtr(v string) *string { return &v }

func setup(t *testing.T) (*gorm.DB, dispatchdomain.Service) {
	t.Helper()
	db := dbtest.Open(t, &merchantdomain.Merchant{}, &dispatchdomain.Courier{})
	require.NoError(t, db.Exec(
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, assigned_courier_id INTEGER, status TEXT NOT NULL)`,
	).Error)

	require.NoError(t, db.Create([]merchantdomain.Merchant{
		{ID: 1, Name: "Warung Desa A", VillageID: strPtr("desa-a")},
		{ID: 2, Name: "Toko Tanpa Desa"},
		{ID: 3, Name: "Warung Desa C", VillageID: strPtr("desa-c")},
	}).Error)
	require.NoError(t, db.Create([]dispatchdomain.Courier{
		{ID: 11, Name: "Andi", Status: dispatchdomain.CourierStatusActive, RegistrationStatus: dispatchdomain.RegistrationApproved, IsAvailable: true, VillageID: strPtr("desa-a")},
		{ID: 12, Name: "Budi", Status: dispatchdomain.CourierStatusActive, RegistrationStatus: dispatchdomain.RegistrationApproved, IsAvailable: true, VillageID: strPtr("desa-b")},
		{ID: 13, Name: "Citra", Status: dispatchdomain.CourierStatusActive, RegistrationStatus: dispatchdomain.RegistrationPending, IsAvailable: true, VillageID: strPtr("desa-a")},
	}).Error)

	svc := NewService(Params{
		DB:           db,
		Log:          zap.NewNop(),
		Clock:        clock.NewFakeClock(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)),
		Cfg:          config.Config{Fulfillment: config.DefaultFulfillment()},
		Repo:         repository.Provide(),
		MerchantRepo: merchantrepo.Provide(),
	})
	return db, svc
}

func merchant(t *testing.T, db *gorm.DB, id snowflake.ID) merchantdomain.Merchant {
	t.Helper()
	m, err := merchantrepo.Provide().FindByID(context.Background(), db, id)
	require.NoError(t, err)
	require.NotNil(t, m)
	return *m
}

func TestListCandidatesScopedToVillage(t *testing.T) {
	_, svc := setup(t)

	couriers, err := svc.ListCandidates(context.Background(), "1")
	require.NoError(t, err)
	require.Len(t, couriers, 1)
	assert.Equal(t, snowflake.ID(11), couriers[0].ID)

	couriers, err = svc.ListCandidates(context.Background(), "2")
	require.NoError(t, err)
	assert.Len(t, couriers, 2, "merchant without village sees every approved courier")
}

func TestListCandidatesEmptyPool(t *testing.T) {
	_, svc := setup(t)

	_, err := svc.ListCandidates(context.Background(), "3")
	assert.ErrorIs(t, err, dispatchdomain.ErrNoCouriersAvailable)

	_, err = svc.ListCandidates(context.Background(), "999")
	assert.ErrorIs(t, err, merchantdomain.ErrMerchantNotFound)
}

func TestListCandidatesExcludesBusyCourier(t *testing.T) {
	db, svc := setup(t)
	require.NoError(t, db.Exec(`INSERT INTO orders (id, assigned_courier_id, status) VALUES (1, 11, 'SENT')`).Error)

	_, err := svc.ListCandidates(context.Background(), "1")
	assert.ErrorIs(t, err, dispatchdomain.ErrNoCouriersAvailable)

	require.NoError(t, db.Exec(`UPDATE orders SET status = 'DELIVERED' WHERE id = 1`).Error)
	couriers, err := svc.ListCandidates(context.Background(), "1")
	require.NoError(t, err)
	assert.Len(t, couriers, 1)
}

func TestResolveSelfNeedsNoLookup(t *testing.T) {
	db, svc := setup(t)

	assignment, err := svc.ResolveTx(context.Background(), db, dispatchdomain.ResolveRequest{
		Merchant: merchant(t, db, 3),
		Mode:     dispatchdomain.ModeSelf,
	})
	require.NoError(t, err)
	assert.Equal(t, dispatchdomain.ModeSelf, assignment.Mode)
	assert.Nil(t, assignment.CourierID)
}

func TestResolvePool(t *testing.T) {
	db, svc := setup(t)
	courierID := snowflake.ID(11)

	assignment, err := svc.ResolveTx(context.Background(), db, dispatchdomain.ResolveRequest{
		Merchant:  merchant(t, db, 1),
		Mode:      dispatchdomain.ModePool,
		CourierID: &courierID,
	})
	require.NoError(t, err)
	require.NotNil(t, assignment.CourierID)
	assert.Equal(t, courierID, *assignment.CourierID)
}

func TestResolvePoolRechecksCourier(t *testing.T) {
	db, svc := setup(t)
	courierID := snowflake.ID(11)

	_, err := svc.SetAvailability(context.Background(), "11", false)
	require.NoError(t, err)

	_, err = svc.ResolveTx(context.Background(), db, dispatchdomain.ResolveRequest{
		Merchant:  merchant(t, db, 1),
		Mode:      dispatchdomain.ModePool,
		CourierID: &courierID,
	})
	assert.ErrorIs(t, err, dispatchdomain.ErrCourierUnavailable)

	wrongVillage := snowflake.ID(12)
	_, err = svc.ResolveTx(context.Background(), db, dispatchdomain.ResolveRequest{
		Merchant:  merchant(t, db, 1),
		Mode:      dispatchdomain.ModePool,
		CourierID: &wrongVillage,
	})
	assert.ErrorIs(t, err, dispatchdomain.ErrCourierUnavailable)
}

func TestResolvePoolWithoutCourier(t *testing.T) {
	db, svc := setup(t)

	_, err := svc.ResolveTx(context.Background(), db, dispatchdomain.ResolveRequest{
		Merchant: merchant(t, db, 3),
		Mode:     dispatchdomain.ModePool,
	})
	assert.ErrorIs(t, err, dispatchdomain.ErrNoCouriersAvailable)

	_, err = svc.ResolveTx(context.Background(), db, dispatchdomain.ResolveRequest{
		Merchant: merchant(t, db, 1),
		Mode:     dispatchdomain.ModePool,
	})
	assert.ErrorIs(t, err, dispatchdomain.ErrCourierRequired)
}

func TestResolvePickupOnlyAllowsSelf(t *testing.T) {
	db, svc := setup(t)
	courierID := snowflake.ID(11)

	_, err := svc.ResolveTx(context.Background(), db, dispatchdomain.ResolveRequest{
		Merchant:   merchant(t, db, 1),
		Mode:       dispatchdomain.ModePool,
		CourierID:  &courierID,
		PickupOnly: true,
	})
	assert.ErrorIs(t, err, dispatchdomain.ErrModeNotAllowed)

	_, err = svc.ResolveTx(context.Background(), db, dispatchdomain.ResolveRequest{
		Merchant: merchant(t, db, 1),
		Mode:     "DRONE",
	})
	assert.ErrorIs(t, err, dispatchdomain.ErrInvalidMode)
}

func TestSetAvailability(t *testing.T) {
	_, svc := setup(t)

	courier, err := svc.SetAvailability(context.Background(), "12", false)
	require.NoError(t, err)
	assert.False(t, courier.IsAvailable)

	courier, err = svc.GetCourier(context.Background(), "12")
	require.NoError(t, err)
	assert.False(t, courier.IsAvailable)

	_, err = svc.SetAvailability(context.Background(), "404", true)
	assert.ErrorIs(t, err, dispatchdomain.ErrCourierNotFound)
}
