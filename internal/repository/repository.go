// Package repository provides collection-scoped stores over MongoDB.
// Every mutation of an errand document is guarded by a compare-and-swap
// filter on the expected status, so the poster, the runner, and the
// gateway callback can never race each other into an invalid state.
package repository

import (
	"context"
	"time"

	"github.com/starksgalaxy/errands-gobackend/internal/models"
)

// Store bundles the per-collection stores and the transactional boundary.
type Store interface {
	Users() Users
	Errands() Errands
	Payments() Payments
	Transactions() Transactions
	Disputes() Disputes
	Runners() Runners
	Notifications() Notifications

	// Atomic runs fn so that all store writes issued through ctx inside
	// fn are applied as one unit, or not at all.
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

type Users interface {
	Create(ctx context.Context, u *models.User) (string, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// Debit subtracts amount from the wallet only if the balance covers
	// it; otherwise it fails with ErrInvalidArgument.
	Debit(ctx context.Context, id string, amount float64) error
	Credit(ctx context.Context, id string, amount float64) error
	IncTotalErrands(ctx context.Context, id string) error
}

// Assignment carries the fields set on an errand when a paid bid is
// accepted. The accepted amount is frozen here and never changes again.
type Assignment struct {
	RunnerID     string
	RunnerName   string
	Amount       float64
	ServiceFee   float64
	RunnerAmount float64
	PaymentID    string
	At           time.Time
}

type Errands interface {
	Create(ctx context.Context, e *models.Errand) (string, error)
	GetByID(ctx context.Context, id string) (*models.Errand, error)
	ListByPoster(ctx context.Context, posterID string) ([]models.Errand, error)

	// AppendBid adds a bid while the errand is still pending.
	AppendBid(ctx context.Context, id string, bid models.Bid) error
	// ReplaceBids swaps the whole bid list, guarded on the errand being
	// pending and the list still having expectLen entries.
	ReplaceBids(ctx context.Context, id string, expectLen int, bids []models.Bid) error

	// ReservePayment claims the errand's single in-flight payment slot,
	// guarded on the errand being pending and the slot being free. A
	// second caller loses with ErrInvalidState, so two concurrent
	// initiations can never both reach the gateway.
	ReservePayment(ctx context.Context, id, paymentID string) error
	ClearPendingPayment(ctx context.Context, id string) error

	// Status transitions, each a CAS on the expected source status.
	Activate(ctx context.Context, id string, a Assignment) error
	Start(ctx context.Context, id string, at time.Time) error
	RequestCompletion(ctx context.Context, id, notes string, at time.Time) error
	Complete(ctx context.Context, id string, at time.Time) error
	MarkDisputed(ctx context.Context, id string, at time.Time) error
}

type Payments interface {
	Create(ctx context.Context, p *models.Payment) (string, error)
	GetByID(ctx context.Context, id string) (*models.Payment, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	// ResolveIfPending moves the payment identified by its gateway
	// transaction id from pending to the given terminal status. It
	// reports false when the payment was already resolved, which is how
	// redelivered callbacks become no-ops.
	ResolveIfPending(ctx context.Context, transactionID, to string) (bool, error)
	ListByPoster(ctx context.Context, posterID string, limit int64) ([]models.Payment, error)
}

type Transactions interface {
	Append(ctx context.Context, t *models.Transaction) error
	ListByUser(ctx context.Context, userID string, limit int64) ([]models.Transaction, error)
}

type Disputes interface {
	Create(ctx context.Context, d *models.Dispute) (string, error)
}

type Runners interface {
	Get(ctx context.Context, runnerID string) (*models.RunnerStats, error)
	// IncAssigned bumps total and pending job counters, creating the
	// stats document on first assignment.
	IncAssigned(ctx context.Context, runnerID string) error
	// IncReleased moves a job from pending to completed and adds the
	// released amount to lifetime earnings.
	IncReleased(ctx context.Context, runnerID string, amount float64) error
}

type Notifications interface {
	Create(ctx context.Context, n *models.Notification) error
}
