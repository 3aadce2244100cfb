package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/pasarku/internal/payment/domain"
)

// Order is never hard-deleted. Version increases by one with every committed
// change and guards compare-and-set updates.
type Order struct {
	ID                   snowflake.ID         `json:"id" gorm:"primaryKey"`
	BuyerID              snowflake.ID         `json:"buyer_id" gorm:"not null;index;uniqueIndex:ux_orders_buyer_idempotency,priority:1"`
	MerchantID           snowflake.ID         `json:"merchant_id" gorm:"not null;index"`
	Status               Status               `json:"status" gorm:"type:text;not null;index"`
	PaymentMethod        paymentdomain.Method `json:"payment_method" gorm:"type:text;not null"`
	PaymentStatus        paymentdomain.Status `json:"payment_status" gorm:"type:text;not null"`
	DeliveryType         DeliveryType         `json:"delivery_type" gorm:"type:text;not null"`
	AssignedCourierID    *snowflake.ID        `json:"assigned_courier_id,omitempty" gorm:"index"`
	Subtotal             int64                `json:"subtotal" gorm:"not null"`
	ShippingCost         int64                `json:"shipping_cost" gorm:"not null"`
	Total                int64                `json:"total" gorm:"not null"`
	DeliveryAddress      *string              `json:"delivery_address,omitempty" gorm:"type:text"`
	Notes                *string              `json:"notes,omitempty" gorm:"type:text"`
	PaymentProofRef      *string              `json:"payment_proof_ref,omitempty" gorm:"type:text"`
	PodImageRef          *string              `json:"pod_image_ref,omitempty" gorm:"type:text"`
	PodNotes             *string              `json:"pod_notes,omitempty" gorm:"type:text"`
	IdempotencyKey       *string              `json:"-" gorm:"type:text;uniqueIndex:ux_orders_buyer_idempotency,priority:2"`
	Version              int64                `json:"version" gorm:"not null;default:1"`
	ConfirmationDeadline *time.Time           `json:"confirmation_deadline,omitempty" gorm:"index"`
	ConfirmedAt          *time.Time           `json:"confirmed_at,omitempty"`
	PaymentPaidAt        *time.Time           `json:"payment_paid_at,omitempty"`
	AssignedAt           *time.Time           `json:"assigned_at,omitempty"`
	DeliveredAt          *time.Time           `json:"delivered_at,omitempty" gorm:"index"`
	CompletedAt          *time.Time           `json:"completed_at,omitempty"`
	CanceledAt           *time.Time           `json:"canceled_at,omitempty"`
	CreatedAt            time.Time            `json:"created_at" gorm:"not null"`
	UpdatedAt            time.Time            `json:"updated_at" gorm:"not null"`

	Items []OrderItem `json:"items,omitempty" gorm:"-"`
}

func (Order) TableName() string { return "orders" }

func (o Order) PaymentState() paymentdomain.State {
	return paymentdomain.State{
		Method:   o.PaymentMethod,
		Status:   o.PaymentStatus,
		ProofRef: o.PaymentProofRef,
	}
}

// OrderItem is a snapshot of the product at checkout and never changes.
type OrderItem struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID     snowflake.ID `json:"order_id" gorm:"not null;index"`
	ProductID   snowflake.ID `json:"product_id" gorm:"not null"`
	ProductName string       `json:"product_name" gorm:"type:text;not null"`
	UnitPrice   int64        `json:"unit_price" gorm:"not null"`
	Quantity    int64        `json:"quantity" gorm:"not null"`
	Subtotal    int64        `json:"subtotal" gorm:"not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null"`
}

func (OrderItem) TableName() string { return "order_items" }
