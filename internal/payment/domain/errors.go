package domain

import "errors"

var (
	ErrPaymentNotVerified   = errors.New("payment_not_verified")
	ErrPaymentProofMissing  = errors.New("payment_proof_missing")
	ErrPaymentNotRequired   = errors.New("payment_not_required")
	ErrPaymentAlreadyPaid   = errors.New("payment_already_paid")
	ErrInvalidProofRef      = errors.New("invalid_proof_ref")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
)
