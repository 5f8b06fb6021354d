package models

import (
	"time"
)

// Payment statuses. A payment stays pending until the gateway callback
// resolves it; a poll timeout does not resolve it.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
)

type Payment struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	ErrandID      string    `bson:"errand_id" json:"errand_id"`
	PosterID      string    `bson:"poster_id" json:"poster_id"`
	BidIndex      int       `bson:"bid_index" json:"bid_index"`
	BidderID      string    `bson:"bidder_id" json:"bidder_id"`
	BidderName    string    `bson:"bidder_name" json:"bidder_name"`
	Amount        float64   `bson:"amount" json:"amount"`
	PhoneNumber   string    `bson:"phone_number" json:"phone_number"`
	Status        string    `bson:"status" json:"status"`                 // pending, completed, failed
	TransactionID string    `bson:"transaction_id" json:"transaction_id"` // gateway id, idempotency key
	ErrandType    string    `bson:"errand_type" json:"errand_type"`
	Description   string    `bson:"description" json:"description"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}
