// Package domain contains the merchant quota subscription and its append-only ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusInactive SubscriptionStatus = "INACTIVE"
	SubscriptionStatusExpired  SubscriptionStatus = "EXPIRED"
)

type SubscriptionPaymentStatus string

const (
	SubscriptionPaymentUnpaid          SubscriptionPaymentStatus = "UNPAID"
	SubscriptionPaymentPendingApproval SubscriptionPaymentStatus = "PENDING_APPROVAL"
	SubscriptionPaymentPaid            SubscriptionPaymentStatus = "PAID"
	SubscriptionPaymentRejected        SubscriptionPaymentStatus = "REJECTED"
)

const (
	ReasonOrderDispatch = "order_dispatch"
	ReasonAdjustment    = "adjustment"
)

// MerchantSubscription is a purchased quota package. Records are created by the
// purchase workflow; the core only reads them and debits UsedQuota.
type MerchantSubscription struct {
	ID               snowflake.ID              `json:"id" gorm:"primaryKey"`
	MerchantID       snowflake.ID              `json:"merchant_id" gorm:"not null;index"`
	PackageName      string                    `json:"package_name" gorm:"type:text;not null"`
	TransactionQuota int64                     `json:"transaction_quota" gorm:"not null"`
	UsedQuota        int64                     `json:"used_quota" gorm:"not null;default:0"`
	Status           SubscriptionStatus        `json:"status" gorm:"type:text;not null"`
	PaymentStatus    SubscriptionPaymentStatus `json:"payment_status" gorm:"type:text;not null"`
	ExpiredAt        time.Time                 `json:"expired_at" gorm:"not null"`
	CreatedAt        time.Time                 `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time                 `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (MerchantSubscription) TableName() string { return "merchant_subscriptions" }

func (s MerchantSubscription) Remaining() int64 {
	return s.TransactionQuota - s.UsedQuota
}

// UsableAt reports whether the subscription may be debited at the given time.
func (s MerchantSubscription) UsableAt(now time.Time) bool {
	return s.Status == SubscriptionStatusActive &&
		s.PaymentStatus == SubscriptionPaymentPaid &&
		now.Before(s.ExpiredAt)
}

// QuotaLedgerEntry records one debit. Entries are never updated or deleted.
type QuotaLedgerEntry struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	MerchantID     snowflake.ID  `json:"merchant_id" gorm:"not null;index"`
	SubscriptionID snowflake.ID  `json:"subscription_id" gorm:"not null;uniqueIndex:ux_quota_ledger_subscription_order,priority:1"`
	OrderID        *snowflake.ID `json:"order_id,omitempty" gorm:"uniqueIndex:ux_quota_ledger_subscription_order,priority:2"`
	CreditsUsed    int64         `json:"credits_used" gorm:"not null"`
	OrderTotal     int64         `json:"order_total" gorm:"not null;default:0"`
	RemainingQuota int64         `json:"remaining_quota" gorm:"not null"`
	Reason         string        `json:"reason" gorm:"type:text;not null"`
	Note           *string       `json:"note,omitempty" gorm:"type:text"`
	CreatedAt      time.Time     `json:"created_at" gorm:"not null"`
}

func (QuotaLedgerEntry) TableName() string { return "quota_ledger_entries" }

// QuotaTierRow is a merchant-configured price band.
type QuotaTierRow struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	MerchantID snowflake.ID `json:"merchant_id" gorm:"not null;index"`
	MinAmount  int64        `json:"min_amount" gorm:"not null"`
	MaxAmount  *int64       `json:"max_amount,omitempty"`
	Credits    int64        `json:"credits" gorm:"not null"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (QuotaTierRow) TableName() string { return "quota_tiers" }
