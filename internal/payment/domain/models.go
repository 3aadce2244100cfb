package domain

import (
	"strings"
	"unicode/utf8"
)

type Method string

const (
	MethodCashOnDelivery Method = "CASH_ON_DELIVERY"
	MethodBankTransfer   Method = "BANK_TRANSFER"
	MethodGateway        Method = "GATEWAY"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCashOnDelivery, MethodBankTransfer, MethodGateway:
		return true
	}
	return false
}

// RequiresVerification reports whether orders paid this way wait in PENDING_PAYMENT.
func (m Method) RequiresVerification() bool {
	return m == MethodBankTransfer || m == MethodGateway
}

type Status string

const (
	StatusUnpaid       Status = "UNPAID"
	StatusPendingProof Status = "PENDING_PROOF"
	StatusPaid         Status = "PAID"
)

const MaxProofRefLength = 1024

// State is the payment axis of an order as seen by the gate.
type State struct {
	Method   Method
	Status   Status
	ProofRef *string
}

func (s State) HasProof() bool {
	return s.ProofRef != nil && strings.TrimSpace(*s.ProofRef) != ""
}

// InitialStatus seeds paymentStatus at checkout. Cash orders settle at the door.
func InitialStatus(method Method) Status {
	if method.RequiresVerification() {
		return StatusPendingProof
	}
	return StatusUnpaid
}

// NormalizeProofRef trims and validates an opaque proof reference.
func NormalizeProofRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrInvalidProofRef
	}
	if utf8.RuneCountInString(ref) > MaxProofRefLength {
		return "", ErrInvalidProofRef
	}
	return ref, nil
}
