package models

import (
	"sort"
	"time"
)

// Errand lifecycle statuses. An errand only ever moves forward through
// ValidTransition edges; "disputed" is terminal pending manual resolution.
const (
	StatusPending         = "pending"
	StatusActive          = "active"
	StatusInProgress      = "in_progress"
	StatusPendingApproval = "pending_client_approval"
	StatusCompleted       = "completed"
	StatusDisputed        = "disputed"
)

// ServiceFeeRate is the platform's cut of the accepted bid amount.
const ServiceFeeRate = 0.20

// Errand represents an errand document in the errands collection.
// Bids are embedded and mutable only while status is pending.
type Errand struct {
	ID                    string     `bson:"_id,omitempty" json:"id"`
	PosterID              string     `bson:"poster_id" json:"poster_id"`
	PosterName            string     `bson:"poster_name" json:"poster_name"`
	ErrandType            string     `bson:"errand_type" json:"errand_type"`
	Description           string     `bson:"description" json:"description"`
	Town                  string     `bson:"town" json:"town"`
	Area                  string     `bson:"area" json:"area"`
	Budget                float64    `bson:"budget" json:"budget"`
	ServiceFeeRate        float64    `bson:"service_fee_rate" json:"service_fee_rate"`
	Bids                  []Bid      `bson:"bids" json:"bids"`
	Status                string     `bson:"status" json:"status"`
	AssignedRunnerID      string     `bson:"assigned_runner_id,omitempty" json:"assigned_runner_id,omitempty"`
	AssignedRunnerName    string     `bson:"assigned_runner_name,omitempty" json:"assigned_runner_name,omitempty"`
	AcceptedBidAmount     float64    `bson:"accepted_bid_amount,omitempty" json:"accepted_bid_amount,omitempty"`
	ServiceFee            float64    `bson:"service_fee,omitempty" json:"service_fee,omitempty"`
	RunnerAmount          float64    `bson:"runner_amount,omitempty" json:"runner_amount,omitempty"`
	PendingPaymentID      string     `bson:"pending_payment_id,omitempty" json:"pending_payment_id,omitempty"`
	CompletionNotes       string     `bson:"completion_notes,omitempty" json:"completion_notes,omitempty"`
	CreatedAt             time.Time  `bson:"created_at" json:"created_at"`
	AcceptedAt            *time.Time `bson:"accepted_at,omitempty" json:"accepted_at,omitempty"`
	StartedAt             *time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	CompletionRequestedAt *time.Time `bson:"completion_requested_at,omitempty" json:"completion_requested_at,omitempty"`
	CompletedAt           *time.Time `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
	DisputedAt            *time.Time `bson:"disputed_at,omitempty" json:"disputed_at,omitempty"`
}

// Bid is a runner's offer on an errand, embedded in the errand document.
type Bid struct {
	RunnerID    string    `bson:"runner_id" json:"runner_id"`
	RunnerName  string    `bson:"runner_name" json:"runner_name"`
	Amount      float64   `bson:"amount" json:"amount"`
	Message     string    `bson:"message" json:"message"`
	SubmittedAt time.Time `bson:"submitted_at" json:"submitted_at"`
}

// ValidTransition reports whether an errand may move from one status to
// another. Skipping states is never allowed.
func ValidTransition(from, to string) bool {
	switch from {
	case StatusPending:
		return to == StatusActive
	case StatusActive:
		return to == StatusInProgress
	case StatusInProgress:
		return to == StatusPendingApproval
	case StatusPendingApproval:
		return to == StatusCompleted || to == StatusDisputed
	default:
		return false
	}
}

// SplitFee divides an accepted bid amount into the service fee and the
// runner's share.
func SplitFee(amount float64) (serviceFee, runnerAmount float64) {
	serviceFee = amount * ServiceFeeRate
	return serviceFee, amount - serviceFee
}

// SortedBids returns a copy of bids ordered ascending by amount. Equal
// amounts keep their original submission order.
func SortedBids(bids []Bid) []Bid {
	out := make([]Bid, len(bids))
	copy(out, bids)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount < out[j].Amount
	})
	return out
}

// RemoveBid returns a copy of bids with the element at index removed,
// preserving the order of the rest.
func RemoveBid(bids []Bid, index int) []Bid {
	out := make([]Bid, 0, len(bids)-1)
	out = append(out, bids[:index]...)
	out = append(out, bids[index+1:]...)
	return out
}
