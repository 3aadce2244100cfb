package domain

import "github.com/smallbiznis/pasarku/internal/actor"

type edge struct {
	from Status
	to   Status
}

// transitions is the single authority on which actor types may move an
// order between two states. Guards that depend on order data (payment gate,
// dispatch, proof of delivery, ownership) are applied by the service.
var transitions = map[edge][]actor.Type{}

func allow(from []Status, to Status, actors ...actor.Type) {
	for _, f := range from {
		transitions[edge{from: f, to: to}] = actors
	}
}

func nonTerminal() []Status {
	out := make([]Status, 0, len(allStatuses))
	for _, s := range allStatuses {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out
}

func init() {
	allow([]Status{StatusPendingConfirmation, StatusNew}, StatusProcessed, actor.TypeMerchant, actor.TypeAdmin)
	allow([]Status{StatusPendingPayment}, StatusProcessed, actor.TypeMerchant, actor.TypeAdmin, actor.TypeSystem)
	allow([]Status{StatusProcessed}, StatusSent, actor.TypeMerchant)
	allow([]Status{StatusSent}, StatusDelivered, actor.TypeCourier, actor.TypeMerchant, actor.TypeAdmin)
	allow([]Status{StatusDelivered}, StatusDone, actor.TypeBuyer, actor.TypeSystem)
	allow(nonTerminal(), StatusCanceled, actor.TypeMerchant, actor.TypeAdmin, actor.TypeSystem)
	allow(nonTerminal(), StatusRejectedByBuyer, actor.TypeBuyer)
}

// CanTransition reports whether the edge exists at all.
func CanTransition(from, to Status) bool {
	_, ok := transitions[edge{from: from, to: to}]
	return ok
}

// CheckTransition validates the edge and the actor type for it.
func CheckTransition(from, to Status, actorType actor.Type) error {
	actors, ok := transitions[edge{from: from, to: to}]
	if !ok {
		return ErrInvalidTransition
	}
	for _, t := range actors {
		if t == actorType {
			return nil
		}
	}
	return ErrOrderAccessDenied
}

// MayTarget reports whether the actor type drives any transition into to.
// Used to decide if a same-state request is an idempotent replay.
func MayTarget(to Status, actorType actor.Type) bool {
	for e, actors := range transitions {
		if e.to != to {
			continue
		}
		for _, t := range actors {
			if t == actorType {
				return true
			}
		}
	}
	return false
}

// InitialStatus seeds a new order. A confirmation window only applies to
// cash orders; transfer and gateway orders wait on payment instead.
func InitialStatus(requiresPayment bool, hasConfirmationWindow bool) Status {
	switch {
	case requiresPayment:
		return StatusPendingPayment
	case hasConfirmationWindow:
		return StatusPendingConfirmation
	default:
		return StatusNew
	}
}
