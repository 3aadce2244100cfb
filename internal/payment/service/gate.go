package service

import (
	"github.com/smallbiznis/pasarku/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log *zap.Logger
}

type gate struct {
	log *zap.Logger
}

func NewGate(p Params) domain.Gate {
	return &gate{log: p.Log.Named("payment.gate")}
}

func (g *gate) CheckForward(state domain.State) error {
	if !state.Method.RequiresVerification() {
		return nil
	}
	if state.Status == domain.StatusPaid {
		return nil
	}
	return domain.ErrPaymentNotVerified
}

func (g *gate) CheckProofSubmission(state domain.State, ref string) (string, error) {
	if !state.Method.RequiresVerification() {
		return "", domain.ErrPaymentNotRequired
	}
	if state.Status == domain.StatusPaid {
		return "", domain.ErrPaymentAlreadyPaid
	}
	return domain.NormalizeProofRef(ref)
}

func (g *gate) CheckManualVerification(state domain.State) error {
	if !state.Method.RequiresVerification() {
		return domain.ErrPaymentNotRequired
	}
	if state.Status == domain.StatusPaid {
		return domain.ErrPaymentAlreadyPaid
	}
	if !state.HasProof() {
		return domain.ErrPaymentProofMissing
	}
	return nil
}

func (g *gate) CheckGatewayConfirmation(state domain.State) error {
	if state.Method != domain.MethodGateway {
		g.log.Warn("gateway confirmation for non-gateway order", zap.String("payment_method", string(state.Method)))
		return domain.ErrInvalidPaymentMethod
	}
	if state.Status == domain.StatusPaid {
		return domain.ErrPaymentAlreadyPaid
	}
	return nil
}
