package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/starksgalaxy/errands-gobackend/internal/apperr"
	"github.com/starksgalaxy/errands-gobackend/internal/events"
	"github.com/starksgalaxy/errands-gobackend/internal/models"
	"github.com/starksgalaxy/errands-gobackend/internal/repository"
)

// MinBudget is the lowest amount an errand may be posted for, in KSH.
const MinBudget = 500

// ErrandService owns the errand lifecycle: creation with escrow, the bid
// ledger, and every status transition except payment-driven activation,
// which belongs to PaymentService.
type ErrandService struct {
	store  repository.Store
	events events.Publisher
}

func NewErrandService(store repository.Store, pub events.Publisher) *ErrandService {
	return &ErrandService{store: store, events: pub}
}

type CreateErrandInput struct {
	ErrandType  string  `json:"errand_type"`
	Description string  `json:"description"`
	Town        string  `json:"town"`
	Area        string  `json:"area"`
	Budget      float64 `json:"budget"`
}

// CreateErrand posts a new errand. The budget is moved from the poster's
// wallet into escrow and recorded; both happen in one atomic unit.
func (s *ErrandService) CreateErrand(ctx context.Context, posterID string, in CreateErrandInput) (*models.Errand, error) {
	in.ErrandType = strings.TrimSpace(in.ErrandType)
	in.Description = strings.TrimSpace(in.Description)
	in.Town = strings.TrimSpace(in.Town)
	in.Area = strings.TrimSpace(in.Area)

	if in.ErrandType == "" || in.Description == "" || in.Town == "" || in.Area == "" {
		return nil, fmt.Errorf("errand type, description, town and area are required: %w", apperr.ErrInvalidArgument)
	}
	if in.Budget < MinBudget {
		return nil, fmt.Errorf("minimum budget is KSH %d: %w", MinBudget, apperr.ErrInvalidArgument)
	}

	poster, err := s.store.Users().GetByID(ctx, posterID)
	if err != nil {
		return nil, err
	}

	errand := &models.Errand{
		PosterID:       posterID,
		PosterName:     poster.Name,
		ErrandType:     in.ErrandType,
		Description:    in.Description,
		Town:           in.Town,
		Area:           in.Area,
		Budget:         in.Budget,
		ServiceFeeRate: models.ServiceFeeRate,
		Status:         models.StatusPending,
	}

	err = s.store.Atomic(ctx, func(ctx context.Context) error {
		if err := s.store.Users().Debit(ctx, posterID, in.Budget); err != nil {
			return err
		}
		if _, err := s.store.Errands().Create(ctx, errand); err != nil {
			return err
		}
		return s.store.Transactions().Append(ctx, &models.Transaction{
			ErrandID: errand.ID,
			UserID:   posterID,
			Amount:   in.Budget,
			Type:     models.TxnEscrowDeposit,
			Status:   "completed",
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Errand created: id=%s poster=%s budget=%.2f", errand.ID, posterID, in.Budget)
	return errand, nil
}

func (s *ErrandService) GetErrand(ctx context.Context, id string) (*models.Errand, error) {
	return s.store.Errands().GetByID(ctx, id)
}

func (s *ErrandService) ListMyErrands(ctx context.Context, posterID string) ([]models.Errand, error) {
	return s.store.Errands().ListByPoster(ctx, posterID)
}

// SubmitBid appends a runner's offer while the errand is still pending.
func (s *ErrandService) SubmitBid(ctx context.Context, runnerID, errandID string, amount float64, message string) error {
	if amount <= 0 {
		return fmt.Errorf("bid amount must be positive: %w", apperr.ErrInvalidArgument)
	}

	runner, err := s.store.Users().GetByID(ctx, runnerID)
	if err != nil {
		return err
	}

	errand, err := s.store.Errands().GetByID(ctx, errandID)
	if err != nil {
		return err
	}
	if errand.PosterID == runnerID {
		return fmt.Errorf("cannot bid on your own errand: %w", apperr.ErrInvalidArgument)
	}

	bid := models.Bid{
		RunnerID:    runnerID,
		RunnerName:  runner.Name,
		Amount:      amount,
		Message:     strings.TrimSpace(message),
		SubmittedAt: time.Now(),
	}
	if err := s.store.Errands().AppendBid(ctx, errandID, bid); err != nil {
		return err
	}

	log.Printf("Bid submitted: errand=%s runner=%s amount=%.2f", errandID, runnerID, amount)
	return nil
}

// ListBids returns an errand's bids ordered ascending by amount, ties
// kept in submission order.
func (s *ErrandService) ListBids(ctx context.Context, errandID string) ([]models.Bid, error) {
	errand, err := s.store.Errands().GetByID(ctx, errandID)
	if err != nil {
		return nil, err
	}
	return models.SortedBids(errand.Bids), nil
}

// RejectBid removes the bid at the given position in the stored (not the
// sorted) list. The replacement is guarded on the list being unchanged
// underneath, so a concurrent accept or reject loses cleanly.
func (s *ErrandService) RejectBid(ctx context.Context, posterID, errandID string, index int) error {
	errand, err := s.store.Errands().GetByID(ctx, errandID)
	if err != nil {
		return err
	}
	if errand.PosterID != posterID {
		return fmt.Errorf("you do not own this errand: %w", apperr.ErrPermissionDenied)
	}
	if errand.Status != models.StatusPending {
		return fmt.Errorf("bids are sealed once the errand is %s: %w", errand.Status, apperr.ErrInvalidState)
	}
	if index < 0 || index >= len(errand.Bids) {
		return fmt.Errorf("bid %d: %w", index, apperr.ErrNotFound)
	}

	updated := models.RemoveBid(errand.Bids, index)
	if err := s.store.Errands().ReplaceBids(ctx, errandID, len(errand.Bids), updated); err != nil {
		return err
	}

	log.Printf("Bid rejected: errand=%s index=%d", errandID, index)
	return nil
}

// StartWork moves an active errand to in_progress. Only the assigned
// runner may start.
func (s *ErrandService) StartWork(ctx context.Context, runnerID, errandID string) error {
	errand, err := s.store.Errands().GetByID(ctx, errandID)
	if err != nil {
		return err
	}
	if errand.AssignedRunnerID != runnerID {
		return fmt.Errorf("only the assigned runner may start this errand: %w", apperr.ErrPermissionDenied)
	}
	if err := s.store.Errands().Start(ctx, errandID, time.Now()); err != nil {
		return err
	}
	log.Printf("Errand started: id=%s runner=%s", errandID, runnerID)
	return nil
}

// RequestCompletion signals the poster that the work is done. Only the
// assigned runner may request.
func (s *ErrandService) RequestCompletion(ctx context.Context, runnerID, errandID, notes string) error {
	errand, err := s.store.Errands().GetByID(ctx, errandID)
	if err != nil {
		return err
	}
	if errand.AssignedRunnerID != runnerID {
		return fmt.Errorf("only the assigned runner may request completion: %w", apperr.ErrPermissionDenied)
	}
	if err := s.store.Errands().RequestCompletion(ctx, errandID, strings.TrimSpace(notes), time.Now()); err != nil {
		return err
	}

	_ = s.events.Publish(ctx, events.New(events.TypeCompletionRequested, errandID, map[string]any{
		"runner_id": runnerID,
	}))
	log.Printf("Completion requested: errand=%s runner=%s", errandID, runnerID)
	return nil
}

// ApproveCompletion releases the escrowed funds. The errand is marked
// completed with its frozen amounts, the runner is credited and their
// counters bumped, the poster's errand counter is bumped, and a
// payment_release record is appended, all in one atomic unit.
func (s *ErrandService) ApproveCompletion(ctx context.Context, posterID, errandID string) error {
	errand, err := s.store.Errands().GetByID(ctx, errandID)
	if err != nil {
		return err
	}
	if errand.PosterID != posterID {
		return fmt.Errorf("you do not own this errand: %w", apperr.ErrPermissionDenied)
	}
	if errand.Status != models.StatusPendingApproval {
		return fmt.Errorf("errand is %s, not awaiting approval: %w", errand.Status, apperr.ErrInvalidState)
	}

	runnerID := errand.AssignedRunnerID
	runnerAmount := errand.RunnerAmount

	err = s.store.Atomic(ctx, func(ctx context.Context) error {
		if err := s.store.Errands().Complete(ctx, errandID, time.Now()); err != nil {
			return err
		}
		if err := s.store.Users().Credit(ctx, runnerID, runnerAmount); err != nil {
			return err
		}
		if err := s.store.Runners().IncReleased(ctx, runnerID, runnerAmount); err != nil {
			return err
		}
		if err := s.store.Users().IncTotalErrands(ctx, posterID); err != nil {
			return err
		}
		return s.store.Transactions().Append(ctx, &models.Transaction{
			ErrandID:     errandID,
			UserID:       runnerID,
			Counterpart:  posterID,
			Amount:       errand.AcceptedBidAmount,
			ServiceFee:   errand.ServiceFee,
			RunnerAmount: runnerAmount,
			Type:         models.TxnPaymentRelease,
			Status:       "completed",
		})
	})
	if err != nil {
		return err
	}

	_ = s.events.Publish(ctx, events.New(events.TypeCompletionApproved, errandID, map[string]any{
		"runner_id":     runnerID,
		"runner_amount": runnerAmount,
	}))
	log.Printf("Completion approved: errand=%s runner=%s released=%.2f", errandID, runnerID, runnerAmount)
	return nil
}
