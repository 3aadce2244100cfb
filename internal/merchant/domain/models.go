// Package domain holds the merchant profile fields the fulfillment core reads.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrMerchantNotFound = errors.New("merchant_not_found")
	ErrInvalidMerchant  = errors.New("invalid_merchant")
)

// Merchant is owned by the onboarding collaborator; the core only reads it.
type Merchant struct {
	ID                        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name                      string       `json:"name" gorm:"type:text;not null"`
	VillageID                 *string      `json:"village_id,omitempty" gorm:"type:text;index"`
	ConfirmationWindowMinutes int          `json:"confirmation_window_minutes" gorm:"not null;default:0"`
	CreatedAt                 time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt                 time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Merchant) TableName() string { return "merchants" }

// ConfirmationWindow returns the window during which a new COD order waits for
// the merchant before it is canceled automatically.
func (m Merchant) ConfirmationWindow() time.Duration {
	if m.ConfirmationWindowMinutes <= 0 {
		return 0
	}
	return time.Duration(m.ConfirmationWindowMinutes) * time.Minute
}

// Village returns the merchant village, empty when the merchant has none.
func (m Merchant) Village() string {
	if m.VillageID == nil {
		return ""
	}
	return *m.VillageID
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Merchant, error)
}
