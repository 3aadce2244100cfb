package domain

// Gate decides whether an order blocked on payment may move forward.
type Gate interface {
	// CheckForward guards every forward transition out of PENDING_PAYMENT
	// other than verification itself.
	CheckForward(state State) error
	// CheckProofSubmission validates a buyer proof upload against the current state.
	CheckProofSubmission(state State, ref string) (string, error)
	// CheckManualVerification guards merchant/admin verification.
	CheckManualVerification(state State) error
	// CheckGatewayConfirmation guards the gateway callback path.
	CheckGatewayConfirmation(state State) error
}
