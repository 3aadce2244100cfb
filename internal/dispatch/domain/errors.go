package domain

import "errors"

var (
	ErrNoCouriersAvailable = errors.New("no_couriers_available")
	ErrCourierUnavailable  = errors.New("courier_unavailable")
	ErrCourierRequired     = errors.New("courier_required")
	ErrCourierNotFound     = errors.New("courier_not_found")
	ErrInvalidCourier      = errors.New("invalid_courier")
	ErrInvalidMode         = errors.New("invalid_dispatch_mode")
	ErrModeNotAllowed      = errors.New("dispatch_mode_not_allowed")
)
