package model

import "time"

type OrderStatus string

const (
	WaitingForPayment        OrderStatus = "WAITING_FOR_PAYMENT"
	WaitingForAccept         OrderStatus = "WAITING_FOR_ACCEPT"
	WaitingForPickup         OrderStatus = "WAITING_FOR_PICKUP"
	WaitingForUtilizationFee OrderStatus = "WAITING_FOR_UTILIZATION_FEE"
	Completed                OrderStatus = "COMPLETED"
	Cancelled                OrderStatus = "CANCELLED"
	Complained               OrderStatus = "COMPLAINED"
	Resolved                 OrderStatus = "RESOLVED"
)

type TransactionKind string

const (
	Deposit        TransactionKind = "DEPOSIT"
	Withdrawal     TransactionKind = "WITHDRAWAL"
	GarbageExpense TransactionKind = "GARBAGE_EXPENSE"
	GarbageIncome  TransactionKind = "GARBAGE_INCOME"
	Refund         TransactionKind = "REFUND"
)

type User struct {
	ID    int
	Login string
}

type Wallet struct {
	UserID int     `json:"user_id"`
	Funds  float64 `json:"funds"`
}

type WalletTransaction struct {
	ID        int64           `json:"id"`
	UserID    int             `json:"user_id"`
	Amount    float64         `json:"amount"`
	Kind      TransactionKind `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
}

type PickupParams struct {
	PickupOption      string     `json:"pickup_option"`
	ContainerSize     *string    `json:"container_size,omitempty"`
	DropOffDate       *time.Time `json:"drop_off_date,omitempty"`
	PickupDate        time.Time  `json:"pickup_date"`
	HighPriority      bool       `json:"high_priority"`
	CollectingService bool       `json:"collecting_service"`
}

type Order struct {
	ID      int64 `json:"id"`
	GroupID int64 `json:"group_id"`
	PickupParams
	Cost                      float64     `json:"cost"`
	PrepaidUtilizationFee     float64     `json:"prepaid_utilization_fee"`
	Status                    OrderStatus `json:"status"`
	AssignedAdminID           *int        `json:"assigned_admin_id,omitempty"`
	UtilizationFee            *float64    `json:"utilization_fee,omitempty"`
	AdditionalUtilizationFee  float64     `json:"additional_utilization_fee"`
	UtilizationProofRef       *string     `json:"utilization_proof_ref,omitempty"`
	UtilizationFeeSubmittedAt *time.Time  `json:"utilization_fee_submitted_at,omitempty"`
	CreatedAt                 time.Time   `json:"created_at"`
}

type OrderParticipant struct {
	OrderID              int64   `json:"order_id"`
	UserID               int     `json:"user_id"`
	ShareAmount          float64 `json:"share_amount"`
	HasAcceptedPayment   bool    `json:"has_accepted_payment"`
	AdditionalFeeShare   float64 `json:"additional_fee_share"`
	HasPaidAdditionalFee bool    `json:"has_paid_additional_fee"`
}

type Quote struct {
	Cost                  float64   `json:"cost"`
	PrepaidUtilizationFee float64   `json:"prepaid_utilization_fee"`
	Shares                []float64 `json:"shares"`
}
