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

// DisputeService handles the poster's escape hatch at approval time.
// Resolution is adjudicated outside this service; we freeze the errand
// and leave an audit trail.
type DisputeService struct {
	store  repository.Store
	events events.Publisher
}

func NewDisputeService(store repository.Store, pub events.Publisher) *DisputeService {
	return &DisputeService{store: store, events: pub}
}

// RaiseDispute freezes an errand awaiting approval. The dispute record,
// the admin notification and the status change apply as one unit; no
// funds move.
func (s *DisputeService) RaiseDispute(ctx context.Context, posterID, errandID, reason, description string) (*models.Dispute, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("a dispute reason is required: %w", apperr.ErrInvalidArgument)
	}

	errand, err := s.store.Errands().GetByID(ctx, errandID)
	if err != nil {
		return nil, err
	}
	if errand.PosterID != posterID {
		return nil, fmt.Errorf("you do not own this errand: %w", apperr.ErrPermissionDenied)
	}
	if errand.Status != models.StatusPendingApproval {
		return nil, fmt.Errorf("errand is %s, disputes are only possible while awaiting approval: %w", errand.Status, apperr.ErrInvalidState)
	}

	dispute := &models.Dispute{
		ErrandID:    errandID,
		PosterID:    posterID,
		Reason:      reason,
		Description: strings.TrimSpace(description),
		Status:      models.DisputeOpen,
	}

	err = s.store.Atomic(ctx, func(ctx context.Context) error {
		if err := s.store.Errands().MarkDisputed(ctx, errandID, time.Now()); err != nil {
			return err
		}
		if _, err := s.store.Disputes().Create(ctx, dispute); err != nil {
			return err
		}
		return s.store.Notifications().Create(ctx, &models.Notification{
			Audience: models.AudienceAdmin,
			Type:     "dispute_raised",
			Message:  fmt.Sprintf("Errand %s disputed by poster: %s", errandID, reason),
			ErrandID: errandID,
		})
	})
	if err != nil {
		return nil, err
	}

	_ = s.events.Publish(ctx, events.New(events.TypeDisputeRaised, errandID, map[string]any{
		"dispute_id": dispute.ID,
		"reason":     reason,
	}))
	log.Printf("Dispute raised: errand=%s dispute=%s", errandID, dispute.ID)
	return dispute, nil
}
