package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	merchantdomain "github.com/smallbiznis/pasarku/internal/merchant/domain"
	"gorm.io/gorm"
)

type ResolveRequest struct {
	Merchant  merchantdomain.Merchant
	Mode      Mode
	CourierID *snowflake.ID
	// PickupOnly restricts the order to handover at the merchant.
	PickupOnly bool
}

type Service interface {
	ListCandidates(ctx context.Context, merchantID string) ([]Courier, error)
	// ResolveTx validates the chosen mode and courier inside the dispatching transaction.
	ResolveTx(ctx context.Context, tx *gorm.DB, req ResolveRequest) (Assignment, error)
	GetCourier(ctx context.Context, courierID string) (Courier, error)
	SetAvailability(ctx context.Context, courierID string, available bool) (Courier, error)
}
