package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/starksgalaxy/errands-gobackend/internal/apperr"
	"github.com/starksgalaxy/errands-gobackend/internal/events"
	"github.com/starksgalaxy/errands-gobackend/internal/models"
	"github.com/starksgalaxy/errands-gobackend/internal/repository"
	"github.com/starksgalaxy/errands-gobackend/internal/tuma"
)

// Gateway is the slice of the Tuma client the capture saga needs.
type Gateway interface {
	Token(ctx context.Context) (string, error)
	STKPush(ctx context.Context, token string, push tuma.STKPushRequest) (string, error)
}

// CallbackStatusSuccess is the outcome string the gateway posts for a
// confirmed charge; anything else is treated as failure.
const CallbackStatusSuccess = "success"

// Poll outcomes. Timeout means the poller gave up, not that the payment
// failed; the callback may still resolve it later.
const (
	PollCompleted = "completed"
	PollFailed    = "failed"
	PollTimeout   = "timeout"
)

// PaymentService runs the capture saga: STK push initiation, idempotent
// callback processing (which performs the pending→active transition),
// and client-side status polling.
type PaymentService struct {
	store        repository.Store
	gateway      Gateway
	events       events.Publisher
	callbackURL  string
	pollInterval time.Duration
	pollAttempts int
}

func NewPaymentService(store repository.Store, gateway Gateway, pub events.Publisher, callbackURL string, pollInterval time.Duration, pollAttempts int) *PaymentService {
	return &PaymentService{
		store:        store,
		gateway:      gateway,
		events:       pub,
		callbackURL:  callbackURL,
		pollInterval: pollInterval,
		pollAttempts: pollAttempts,
	}
}

type InitiateResult struct {
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
}

// InitiateBidPayment starts the capture saga for one bid. The errand is
// re-fetched so the bid index is validated against the current list. The
// errand's single payment slot is claimed by CAS before the gateway
// round trip, so concurrent initiations cannot both produce a pending
// payment; gateway failures release the slot and leave no record behind.
func (s *PaymentService) InitiateBidPayment(ctx context.Context, posterID, errandID string, bidIndex int, phoneNumber string) (*InitiateResult, error) {
	phone, err := tuma.NormalizePhone(phoneNumber)
	if err != nil {
		return nil, err
	}

	errand, err := s.store.Errands().GetByID(ctx, errandID)
	if err != nil {
		return nil, err
	}
	if errand.PosterID != posterID {
		return nil, fmt.Errorf("you do not own this errand: %w", apperr.ErrPermissionDenied)
	}
	if errand.Status != models.StatusPending {
		return nil, fmt.Errorf("errand is %s, bids can no longer be accepted: %w", errand.Status, apperr.ErrInvalidState)
	}
	if bidIndex < 0 || bidIndex >= len(errand.Bids) {
		return nil, fmt.Errorf("bid %d: %w", bidIndex, apperr.ErrNotFound)
	}

	bid := errand.Bids[bidIndex]

	paymentID := uuid.NewString()
	if err := s.store.Errands().ReservePayment(ctx, errandID, paymentID); err != nil {
		if errors.Is(err, apperr.ErrInvalidState) {
			return nil, fmt.Errorf("a payment for this errand is already in flight: %w", err)
		}
		return nil, err
	}

	token, err := s.gateway.Token(ctx)
	if err != nil {
		s.releaseReservation(ctx, errandID)
		return nil, err
	}
	transactionID, err := s.gateway.STKPush(ctx, token, tuma.STKPushRequest{
		Amount:      bid.Amount,
		Phone:       phone,
		Description: "Payment for errand: " + errand.ErrandType,
		CallbackURL: s.callbackURL,
	})
	if err != nil {
		s.releaseReservation(ctx, errandID)
		return nil, err
	}

	payment := &models.Payment{
		ID:            paymentID,
		ErrandID:      errandID,
		PosterID:      posterID,
		BidIndex:      bidIndex,
		BidderID:      bid.RunnerID,
		BidderName:    bid.RunnerName,
		Amount:        bid.Amount,
		PhoneNumber:   phone,
		Status:        models.PaymentPending,
		TransactionID: transactionID,
		ErrandType:    errand.ErrandType,
		Description:   errand.Description,
	}
	if _, err := s.store.Payments().Create(ctx, payment); err != nil {
		s.releaseReservation(ctx, errandID)
		return nil, err
	}

	log.Printf("Payment initiated: payment=%s errand=%s txn=%s amount=%.2f", payment.ID, errandID, transactionID, bid.Amount)
	return &InitiateResult{
		PaymentID:     payment.ID,
		TransactionID: transactionID,
		Message:       "STK push sent to your phone. Enter your PIN to complete payment.",
	}, nil
}

func (s *PaymentService) releaseReservation(ctx context.Context, errandID string) {
	if err := s.store.Errands().ClearPendingPayment(ctx, errandID); err != nil {
		log.Printf("Failed to release payment reservation on errand %s: %v", errandID, err)
	}
}

// HandleCallback processes a gateway delivery. Gateways redeliver, so a
// payment already resolved is acknowledged without reapplying effects.
// On success the errand's pending→active transition, runner assignment
// and job counter bump happen exactly once, atomically with the payment
// resolution.
func (s *PaymentService) HandleCallback(ctx context.Context, transactionID, status string) error {
	payment, err := s.store.Payments().GetByTransactionID(ctx, transactionID)
	if err != nil {
		return err
	}
	if payment.Status != models.PaymentPending {
		log.Printf("Callback replay for txn=%s (payment already %s), ignoring", transactionID, payment.Status)
		return nil
	}

	if status != CallbackStatusSuccess {
		changed, err := s.store.Payments().ResolveIfPending(ctx, transactionID, models.PaymentFailed)
		if err != nil {
			return err
		}
		if changed {
			// Poster may retry with another bid.
			if err := s.store.Errands().ClearPendingPayment(ctx, payment.ErrandID); err != nil {
				log.Printf("Failed to clear pending payment on errand %s: %v", payment.ErrandID, err)
			}
			_ = s.events.Publish(ctx, events.New(events.TypePaymentFailed, payment.ErrandID, map[string]any{
				"payment_id": payment.ID,
			}))
			log.Printf("Payment failed: payment=%s errand=%s txn=%s", payment.ID, payment.ErrandID, transactionID)
		}
		return nil
	}

	serviceFee, runnerAmount := models.SplitFee(payment.Amount)
	applied := false

	err = s.store.Atomic(ctx, func(ctx context.Context) error {
		changed, err := s.store.Payments().ResolveIfPending(ctx, transactionID, models.PaymentCompleted)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if err := s.store.Errands().Activate(ctx, payment.ErrandID, repository.Assignment{
			RunnerID:     payment.BidderID,
			RunnerName:   payment.BidderName,
			Amount:       payment.Amount,
			ServiceFee:   serviceFee,
			RunnerAmount: runnerAmount,
			PaymentID:    payment.ID,
			At:           time.Now(),
		}); err != nil {
			return err
		}
		if err := s.store.Runners().IncAssigned(ctx, payment.BidderID); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if errors.Is(err, apperr.ErrInvalidState) {
		// The errand was captured by a different payment. This charge
		// cannot activate anything, so record it as failed rather than
		// leaving it pending forever.
		if _, rerr := s.store.Payments().ResolveIfPending(ctx, transactionID, models.PaymentFailed); rerr != nil {
			return rerr
		}
		_ = s.events.Publish(ctx, events.New(events.TypePaymentFailed, payment.ErrandID, map[string]any{
			"payment_id": payment.ID,
		}))
		log.Printf("Payment lost activation: payment=%s errand=%s txn=%s, marked failed", payment.ID, payment.ErrandID, transactionID)
		return nil
	}
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	_ = s.events.Publish(ctx, events.New(events.TypeBidAccepted, payment.ErrandID, map[string]any{
		"runner_id": payment.BidderID,
		"amount":    payment.Amount,
	}))
	_ = s.events.Publish(ctx, events.New(events.TypePaymentCompleted, payment.ErrandID, map[string]any{
		"payment_id":    payment.ID,
		"amount":        payment.Amount,
		"service_fee":   serviceFee,
		"runner_amount": runnerAmount,
	}))
	log.Printf("Payment completed: payment=%s errand=%s runner=%s amount=%.2f", payment.ID, payment.ErrandID, payment.BidderID, payment.Amount)
	return nil
}

// CheckPaymentStatus returns a payment the caller owns. Read-only.
func (s *PaymentService) CheckPaymentStatus(ctx context.Context, callerID, paymentID string) (*models.Payment, error) {
	payment, err := s.store.Payments().GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.PosterID != callerID {
		return nil, fmt.Errorf("access denied: %w", apperr.ErrPermissionDenied)
	}
	return payment, nil
}

// GetPaymentHistory lists the caller's payments, newest first.
func (s *PaymentService) GetPaymentHistory(ctx context.Context, callerID string) ([]models.Payment, error) {
	return s.store.Payments().ListByPoster(ctx, callerID, 50)
}

// PollPaymentStatus checks the payment on a fixed interval until it
// resolves, the attempt budget runs out, or ctx is cancelled. A timeout
// outcome does not resolve the payment; a late callback still applies.
func (s *PaymentService) PollPaymentStatus(ctx context.Context, callerID, paymentID string) (string, error) {
	for attempt := 0; attempt < s.pollAttempts; attempt++ {
		payment, err := s.CheckPaymentStatus(ctx, callerID, paymentID)
		if err != nil {
			return "", err
		}
		switch payment.Status {
		case models.PaymentCompleted:
			return PollCompleted, nil
		case models.PaymentFailed:
			return PollFailed, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
	return PollTimeout, nil
}
