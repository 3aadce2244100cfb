package domain

import "errors"

var (
	ErrOrderNotFound          = errors.New("order_not_found")
	ErrOrderAccessDenied      = errors.New("order_access_denied")
	ErrInvalidOrder           = errors.New("invalid_order")
	ErrInvalidBuyer           = errors.New("invalid_buyer")
	ErrInvalidMerchant        = errors.New("invalid_merchant")
	ErrInvalidItems           = errors.New("invalid_items")
	ErrInvalidQuantity        = errors.New("invalid_quantity")
	ErrInvalidPrice           = errors.New("invalid_price")
	ErrInvalidShippingCost    = errors.New("invalid_shipping_cost")
	ErrInvalidDeliveryType    = errors.New("invalid_delivery_type")
	ErrInvalidDeliveryAddress = errors.New("invalid_delivery_address")
	ErrInvalidTargetStatus    = errors.New("invalid_target_status")
	ErrInvalidReason          = errors.New("invalid_reason")
	ErrInvalidPODRef          = errors.New("invalid_pod_ref")
	ErrInvalidIdempotencyKey  = errors.New("invalid_idempotency_key")
	ErrIdempotencyKeyReused   = errors.New("idempotency_key_reused")
	ErrDispatchRequired       = errors.New("dispatch_required")
	ErrInvalidTransition      = errors.New("invalid_transition")
	ErrConcurrentModification = errors.New("concurrent_modification")
	ErrAmountOverflow         = errors.New("amount_overflow")
)
