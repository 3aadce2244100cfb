// Package domain describes pool couriers and how an order is handed to one.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type CourierStatus string

const (
	CourierStatusActive   CourierStatus = "ACTIVE"
	CourierStatusInactive CourierStatus = "INACTIVE"
)

type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "PENDING"
	RegistrationApproved RegistrationStatus = "APPROVED"
	RegistrationRejected RegistrationStatus = "REJECTED"
)

// Mode is the delivery path a merchant picks when handing over an order.
type Mode string

const (
	ModeSelf Mode = "SELF"
	ModePool Mode = "POOL"
)

func (m Mode) Valid() bool {
	return m == ModeSelf || m == ModePool
}

type Courier struct {
	ID                 snowflake.ID       `json:"id" gorm:"primaryKey"`
	Name               string             `json:"name" gorm:"type:text;not null"`
	Status             CourierStatus      `json:"status" gorm:"type:text;not null"`
	RegistrationStatus RegistrationStatus `json:"registration_status" gorm:"type:text;not null"`
	IsAvailable        bool               `json:"is_available" gorm:"not null;default:false"`
	VehicleType        string             `json:"vehicle_type" gorm:"type:text"`
	VillageID          *string            `json:"village_id,omitempty" gorm:"type:text;index"`
	CreatedAt          time.Time          `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time          `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Courier) TableName() string { return "couriers" }

// Eligible reports whether a courier may take a new order from a merchant in
// the given village. An empty village admits the whole pool.
func (c Courier) Eligible(village string, activeOrders int64, maxActive int) bool {
	if c.Status != CourierStatusActive || c.RegistrationStatus != RegistrationApproved || !c.IsAvailable {
		return false
	}
	if village != "" && (c.VillageID == nil || *c.VillageID != village) {
		return false
	}
	return activeOrders < int64(maxActive)
}

// Assignment is the outcome of resolving a dispatch.
type Assignment struct {
	Mode      Mode
	CourierID *snowflake.ID
}
