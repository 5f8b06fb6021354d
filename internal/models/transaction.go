package models

import "time"

// Transaction types.
const (
	TxnEscrowDeposit  = "escrow_deposit"
	TxnPaymentRelease = "payment_release"
	TxnWalletTopUp    = "wallet_topup"
)

// Transaction is an append-only audit record of money movement. It is
// never mutated after creation.
type Transaction struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	ErrandID     string    `bson:"errand_id,omitempty" json:"errand_id,omitempty"`
	UserID       string    `bson:"user_id" json:"user_id"`
	Counterpart  string    `bson:"counterpart,omitempty" json:"counterpart,omitempty"`
	Amount       float64   `bson:"amount" json:"amount"`
	ServiceFee   float64   `bson:"service_fee,omitempty" json:"service_fee,omitempty"`
	RunnerAmount float64   `bson:"runner_amount,omitempty" json:"runner_amount,omitempty"`
	Type         string    `bson:"type" json:"type"` // escrow_deposit, payment_release, wallet_topup
	Status       string    `bson:"status" json:"status"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}
