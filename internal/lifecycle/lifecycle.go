// Package lifecycle owns the order status machine. The settlement engine
// never assigns a status directly, it always goes through Advance so that
// an illegal transition is impossible to commit.
package lifecycle

import (
	"github.com/and161185/ecosbor/internal/errs"
	"github.com/and161185/ecosbor/internal/model"
)

// Legal transitions driven by this service. Cancelled, Complained and
// Resolved are reachable only through support tooling, so they have no
// entries here.
var transitions = map[model.OrderStatus][]model.OrderStatus{
	model.WaitingForPayment:        {model.WaitingForAccept},
	model.WaitingForAccept:         {model.WaitingForPickup},
	model.WaitingForPickup:         {model.Completed, model.WaitingForUtilizationFee},
	model.WaitingForUtilizationFee: {model.Completed},
}

func CanTransition(from, to model.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Advance moves the order to the requested status or rejects the move.
func Advance(order *model.Order, to model.OrderStatus) error {
	if !CanTransition(order.Status, to) {
		return errs.ErrInvalidOrderStatus
	}
	order.Status = to
	return nil
}

// AfterAllocation derives the initial status from the allocation itself:
// if every participant pre-accepted (all shares zero) there is nothing to
// collect and the order starts out waiting for an admin.
func AfterAllocation(parts []model.OrderParticipant) model.OrderStatus {
	if AllAccepted(parts) {
		return model.WaitingForAccept
	}
	return model.WaitingForPayment
}

func AllAccepted(parts []model.OrderParticipant) bool {
	for i := range parts {
		if !parts[i].HasAcceptedPayment {
			return false
		}
	}
	return true
}

// AllAdditionalSettled reports whether no participant still owes an unpaid
// top-up share.
func AllAdditionalSettled(parts []model.OrderParticipant) bool {
	for i := range parts {
		if parts[i].AdditionalFeeShare > 0 && !parts[i].HasPaidAdditionalFee {
			return false
		}
	}
	return true
}
