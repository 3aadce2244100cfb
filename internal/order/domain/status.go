package domain

type Status string

const (
	StatusPendingConfirmation Status = "PENDING_CONFIRMATION"
	StatusPendingPayment      Status = "PENDING_PAYMENT"
	StatusNew                 Status = "NEW"
	StatusProcessed           Status = "PROCESSED"
	StatusSent                Status = "SENT"
	StatusDelivered           Status = "DELIVERED"
	StatusDone                Status = "DONE"
	StatusCanceled            Status = "CANCELED"
	StatusRejectedByBuyer     Status = "REJECTED_BY_BUYER"
)

var allStatuses = []Status{
	StatusPendingConfirmation,
	StatusPendingPayment,
	StatusNew,
	StatusProcessed,
	StatusSent,
	StatusDelivered,
	StatusDone,
	StatusCanceled,
	StatusRejectedByBuyer,
}

func (s Status) Valid() bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusCanceled || s == StatusRejectedByBuyer
}

type DeliveryType string

const (
	DeliveryPickup       DeliveryType = "PICKUP"
	DeliveryMerchantSelf DeliveryType = "MERCHANT_SELF"
	DeliveryPoolCourier  DeliveryType = "POOL_COURIER"
)

func (d DeliveryType) Valid() bool {
	return d == DeliveryPickup || d == DeliveryMerchantSelf || d == DeliveryPoolCourier
}
