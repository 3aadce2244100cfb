package events

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeNewOrder              Type = "NEW_ORDER"
	TypeStatusChanged         Type = "STATUS_CHANGED"
	TypePaymentVerified       Type = "PAYMENT_VERIFIED"
	TypePaymentProofSubmitted Type = "PAYMENT_PROOF_SUBMITTED"
	TypeDispatchAssigned      Type = "DISPATCH_ASSIGNED"
)

var (
	ErrInvalidEvent = errors.New("invalid_event")
	ErrInvalidOrder = errors.New("invalid_order")
)

// Event is what a committing transaction hands to the outbox.
type Event struct {
	OrderID      snowflake.ID
	MerchantID   snowflake.ID
	BuyerID      snowflake.ID
	CourierID    *snowflake.ID
	Type         Type
	FromStatus   string
	ToStatus     string
	Version      int64
	ActorType    string
	ActorID      string
	BuyerVisible bool
	Payload      map[string]any
}

// OrderEvent is one row of the order_events outbox. Rows are never updated
// except for delivery bookkeeping.
type OrderEvent struct {
	ID           string            `json:"id" gorm:"primaryKey;type:text"`
	OrderID      snowflake.ID      `json:"order_id" gorm:"not null;uniqueIndex:ux_order_events_order_version_seq,priority:1"`
	Version      int64             `json:"version" gorm:"not null;uniqueIndex:ux_order_events_order_version_seq,priority:2"`
	Seq          int               `json:"seq" gorm:"not null;uniqueIndex:ux_order_events_order_version_seq,priority:3"`
	MerchantID   snowflake.ID      `json:"merchant_id" gorm:"not null;index"`
	BuyerID      snowflake.ID      `json:"buyer_id" gorm:"not null;index"`
	CourierID    *snowflake.ID     `json:"courier_id,omitempty"`
	Type         Type              `json:"type" gorm:"type:text;not null"`
	FromStatus   string            `json:"from_status,omitempty" gorm:"type:text"`
	ToStatus     string            `json:"to_status" gorm:"type:text;not null"`
	ActorType    string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID      string            `json:"actor_id,omitempty" gorm:"type:text"`
	BuyerVisible bool              `json:"buyer_visible" gorm:"not null;default:false"`
	Payload      datatypes.JSONMap `json:"payload,omitempty"`
	Attempts     int               `json:"-" gorm:"not null;default:0"`
	DispatchedAt *time.Time        `json:"-" gorm:"index"`
	CreatedAt    time.Time         `json:"created_at" gorm:"not null"`
}

func (OrderEvent) TableName() string { return "order_events" }

// After reports whether e is strictly newer than the (version, seq) cursor.
func (e OrderEvent) After(version int64, seq int) bool {
	if e.Version != version {
		return e.Version > version
	}
	return e.Seq > seq
}
