// Package settlement implements the order cost allocation and wallet
// settlement engine. Every operation here either completes all of its
// ledger effects or makes no change at all: the storage layer runs each
// transition inside a single transaction and rolls it back on any error.
package settlement

import (
	"context"
	"strings"
	"time"

	"github.com/and161185/ecosbor/internal/allocation"
	"github.com/and161185/ecosbor/internal/cost"
	"github.com/and161185/ecosbor/internal/errs"
	"github.com/and161185/ecosbor/internal/lifecycle"
	"github.com/and161185/ecosbor/internal/model"
	"github.com/and161185/ecosbor/internal/money"
	"go.uber.org/zap"
)

// Ledger is the wallet collaborator. Amounts are cents; Debit fails with
// errs.ErrInsufficientFunds instead of driving a balance negative.
type Ledger interface {
	Debit(ctx context.Context, userID int, cents int64, kind model.TransactionKind) error
	Credit(ctx context.Context, userID int, cents int64, kind model.TransactionKind) error
}

// Admins answers whether a user may be assigned as an order admin.
type Admins interface {
	AdminExists(ctx context.Context, userID int) (bool, error)
}

// TransitionFunc is what the storage layer executes inside an order-scoped
// transaction: the order row is locked, participants are loaded eagerly,
// and the ledger is bound to the same transaction.
type TransitionFunc func(ctx context.Context, ledger Ledger, order *model.Order, parts []model.OrderParticipant) error

type Engine struct {
	logger *zap.SugaredLogger
}

func NewEngine(logger *zap.SugaredLogger) *Engine {
	return &Engine{logger: logger}
}

// Quote prices an order without persisting anything.
func (e *Engine) Quote(params model.PickupParams, participants int) (model.Quote, error) {
	if participants <= 0 {
		return model.Quote{}, errs.ErrAllocationImpossible
	}

	costCents, prepaidCents, err := cost.Estimate(params)
	if err != nil {
		return model.Quote{}, err
	}

	shares := allocation.EqualSplit(costCents, participants)
	quote := model.Quote{
		Cost:                  money.FromCents(costCents),
		PrepaidUtilizationFee: money.FromCents(prepaidCents),
		Shares:                make([]float64, len(shares)),
	}
	for i, s := range shares {
		quote.Shares[i] = money.FromCents(s)
	}
	return quote, nil
}

// CreateOrder prices the order and splits the cost equally among the given
// users. Participants with a zero share have nothing to pay and pre-accept
// at creation; the initial status is recomputed from the allocation, never
// hard-coded.
func (e *Engine) CreateOrder(params model.PickupParams, groupID int64, userIDs []int, now time.Time) (model.Order, []model.OrderParticipant, error) {
	if len(userIDs) == 0 {
		return model.Order{}, nil, errs.ErrAllocationImpossible
	}

	costCents, prepaidCents, err := cost.Estimate(params)
	if err != nil {
		return model.Order{}, nil, err
	}

	shares := allocation.EqualSplit(costCents, len(userIDs))
	parts := make([]model.OrderParticipant, len(userIDs))
	for i, userID := range userIDs {
		parts[i] = model.OrderParticipant{
			UserID:             userID,
			ShareAmount:        money.FromCents(shares[i]),
			HasAcceptedPayment: shares[i] == 0,
		}
	}

	order := model.Order{
		GroupID:               groupID,
		PickupParams:          params,
		Cost:                  money.FromCents(costCents),
		PrepaidUtilizationFee: money.FromCents(prepaidCents),
		Status:                lifecycle.AfterAllocation(parts),
		CreatedAt:             now,
	}

	e.logger.Infow("order priced", "group_id", groupID, "cost", order.Cost, "participants", len(parts), "status", order.Status)
	return order, parts, nil
}

// CollectPayment debits the calling participant's share and marks it
// accepted. Once every participant accepted, the order moves on to
// WAITING_FOR_ACCEPT and can never fall back.
func (e *Engine) CollectPayment(ctx context.Context, ledger Ledger, order *model.Order, parts []model.OrderParticipant, userID int) error {
	if order.Status != model.WaitingForPayment {
		return errs.ErrInvalidOrderStatus
	}

	idx := participantIndex(parts, userID)
	if idx < 0 {
		return errs.ErrNotParticipant
	}
	if parts[idx].HasAcceptedPayment {
		return errs.ErrAlreadyPaid
	}

	share := money.ToCents(parts[idx].ShareAmount)
	if share < 0 {
		return errs.ErrInvalidAmount
	}
	if share > 0 {
		if err := ledger.Debit(ctx, userID, share, model.GarbageExpense); err != nil {
			return err
		}
	}
	parts[idx].HasAcceptedPayment = true

	if lifecycle.AllAccepted(parts) {
		if err := lifecycle.Advance(order, model.WaitingForAccept); err != nil {
			return err
		}
	}

	e.logger.Infow("payment collected", "order_id", order.ID, "user_id", userID, "share", parts[idx].ShareAmount, "status", order.Status)
	return nil
}

// AssignAdmin attaches an admin to a fully paid order.
func (e *Engine) AssignAdmin(ctx context.Context, admins Admins, order *model.Order, adminID int) error {
	if order.Status != model.WaitingForAccept {
		return errs.ErrInvalidOrderStatus
	}

	exists, err := admins.AdminExists(ctx, adminID)
	if err != nil {
		return err
	}
	if !exists {
		return errs.ErrUserNotFound
	}

	order.AssignedAdminID = &adminID
	if err := lifecycle.Advance(order, model.WaitingForPickup); err != nil {
		return err
	}

	e.logger.Infow("admin assigned", "order_id", order.ID, "admin_id", adminID)
	return nil
}

// SubmitUtilizationFee reconciles the admin's actual fee against the
// prepaid amount. A fee within the prepaid pool pays the admin out and
// refunds the rest proportionally to the original shares; a larger fee
// bills the difference proportionally as top-up shares instead.
func (e *Engine) SubmitUtilizationFee(ctx context.Context, ledger Ledger, order *model.Order, parts []model.OrderParticipant, adminID int, reportedFee float64, proofRef string, now time.Time) error {
	if order.Status != model.WaitingForPickup {
		return errs.ErrInvalidOrderStatus
	}
	if order.AssignedAdminID == nil || *order.AssignedAdminID != adminID {
		return errs.ErrForbidden
	}
	if reportedFee < 0 {
		return errs.ErrInvalidAmount
	}
	if strings.TrimSpace(proofRef) == "" {
		return errs.ErrMissingProof
	}

	fee := money.ToCents(reportedFee)
	prepaid := money.ToCents(order.PrepaidUtilizationFee)
	if prepaid == 0 && money.ToCents(order.Cost) > 0 {
		// orders persisted before the prepaid fee column existed
		_, prepaid = cost.SplitLegacyCost(money.ToCents(order.Cost))
	}

	weights := make([]allocation.Weight, len(parts))
	for i := range parts {
		weights[i] = allocation.Weight{
			ID:     int64(parts[i].UserID),
			Weight: money.ToCents(parts[i].ShareAmount),
		}
	}

	if fee <= prepaid {
		if fee > 0 {
			if err := ledger.Credit(ctx, adminID, fee, model.GarbageIncome); err != nil {
				return err
			}
		}

		refund := prepaid - fee
		if refund > 0 {
			refunds, err := allocation.ProportionalSplit(refund, weights)
			if err != nil {
				return err
			}
			for i, r := range refunds {
				if r == 0 {
					continue
				}
				if err := ledger.Credit(ctx, parts[i].UserID, r, model.Refund); err != nil {
					return err
				}
			}
		}

		for i := range parts {
			parts[i].AdditionalFeeShare = 0
			parts[i].HasPaidAdditionalFee = true
		}
		order.AdditionalUtilizationFee = 0
		if err := lifecycle.Advance(order, model.Completed); err != nil {
			return err
		}
		e.logger.Infow("utilization fee settled", "order_id", order.ID, "fee", reportedFee, "refund", money.FromCents(refund))
	} else {
		outstanding := fee - prepaid
		bills, err := allocation.ProportionalSplit(outstanding, weights)
		if err != nil {
			return err
		}
		for i, b := range bills {
			parts[i].AdditionalFeeShare = money.FromCents(b)
			parts[i].HasPaidAdditionalFee = false
		}
		order.AdditionalUtilizationFee = money.FromCents(outstanding)
		if err := lifecycle.Advance(order, model.WaitingForUtilizationFee); err != nil {
			return err
		}
		e.logger.Infow("utilization fee exceeds prepaid", "order_id", order.ID, "fee", reportedFee, "outstanding", order.AdditionalUtilizationFee)
	}

	order.UtilizationFee = &reportedFee
	order.UtilizationProofRef = &proofRef
	order.UtilizationFeeSubmittedAt = &now
	return nil
}

// PayAdditionalFee settles one participant's top-up share: wallet to
// wallet, participant to admin. The last settled share completes the
// order.
func (e *Engine) PayAdditionalFee(ctx context.Context, ledger Ledger, order *model.Order, parts []model.OrderParticipant, userID int) error {
	if order.Status != model.WaitingForUtilizationFee {
		return errs.ErrInvalidOrderStatus
	}
	if order.AssignedAdminID == nil {
		return errs.ErrInvalidOrderStatus
	}

	idx := participantIndex(parts, userID)
	if idx < 0 {
		return errs.ErrNotParticipant
	}

	amount := money.ToCents(parts[idx].AdditionalFeeShare)
	if parts[idx].HasPaidAdditionalFee || amount <= 0 {
		return errs.ErrAlreadyPaid
	}

	if err := ledger.Debit(ctx, userID, amount, model.GarbageExpense); err != nil {
		return err
	}
	if err := ledger.Credit(ctx, *order.AssignedAdminID, amount, model.GarbageIncome); err != nil {
		return err
	}
	parts[idx].HasPaidAdditionalFee = true

	remaining := money.ToCents(order.AdditionalUtilizationFee) - amount
	if remaining < 0 {
		remaining = 0
	}
	order.AdditionalUtilizationFee = money.FromCents(remaining)

	if lifecycle.AllAdditionalSettled(parts) {
		if err := lifecycle.Advance(order, model.Completed); err != nil {
			return err
		}
	}

	e.logger.Infow("additional fee paid", "order_id", order.ID, "user_id", userID, "amount", parts[idx].AdditionalFeeShare, "status", order.Status)
	return nil
}

func participantIndex(parts []model.OrderParticipant, userID int) int {
	for i := range parts {
		if parts[i].UserID == userID {
			return i
		}
	}
	return -1
}
