package domain

import "errors"

var (
	ErrQuotaExhausted       = errors.New("quota_exhausted")
	ErrInvalidMerchant      = errors.New("invalid_merchant")
	ErrInvalidOrder         = errors.New("invalid_order")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidCredits       = errors.New("invalid_credits")
	ErrInvalidNote          = errors.New("invalid_note")
	ErrInvalidTierTable     = errors.New("invalid_tier_table")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
)
