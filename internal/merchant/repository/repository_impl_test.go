package repository

import (
	"context"
	"testing"

	merchantdomain "github.com/smallbiznis/pasarku/internal/merchant/domain"
	"github.com/smallbiznis/pasarku/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
)

func TestFindByID(t *testing.T) {
	db := dbtest.Open(t, &merchantdomain.Merchant{})
	village := "desa-sukamaju"
	require.NoError(t, db.Create(&merchantdomain.Merchant{
		ID:                        10,
		Name:                      "Warung Bu Sri",
		VillageID:                 &village,
		ConfirmationWindowMinutes: 30,
	}).Error)

	repo := Provide()
	merchant, err := repo.FindByID(context.Background(), db, 10)
	require.NoError(t, err)
	require.NotNil(t, merchant)
	require.Equal(t, "desa-sukamaju", merchant.Village())
	require.Equal(t, 30, merchant.ConfirmationWindowMinutes)

	missing, err := repo.FindByID(context.Background(), db, 11)
	require.NoError(t, err)
	require.Nil(t, missing)
}
