package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/crewdeckhq/crewdeck/internal/models"
	apperrors "github.com/crewdeckhq/crewdeck/pkg/errors"
	"github.com/crewdeckhq/crewdeck/pkg/validator"
)

// SubmitRequestInput carries the intake form fields for a prospective member.
type SubmitRequestInput struct {
	Identity    string `json:"identity" validate:"required"`
	DisplayName string `json:"display_name" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	Pronouns    string `json:"pronouns"`
	Interests   string `json:"interests"`
}

// OnboardingService manages the intake/approval lifecycle for onboarding
// requests. It owns the pending-uniqueness invariant: at most one pending
// request per identity at any time.
type OnboardingService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
}

// OnboardingOption customises the service.
type OnboardingOption func(*OnboardingService)

// WithOnboardingClock injects a custom clock, primarily for testing.
func WithOnboardingClock(clock func() time.Time) OnboardingOption {
	return func(s *OnboardingService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewOnboardingService constructs an OnboardingService.
func NewOnboardingService(db *gorm.DB, audit *AuditService, opts ...OnboardingOption) (*OnboardingService, error) {
	if db == nil {
		return nil, errors.New("onboarding service: db is required")
	}

	service := &OnboardingService{db: db, audit: audit, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Submit files a new onboarding request. An existing pending request for the
// same identity is replaced in place rather than kept as history; an already
// approved identity cannot resubmit.
func (s *OnboardingService) Submit(ctx context.Context, input SubmitRequestInput) (*models.OnboardingRequest, error) {
	ctx = ensureContext(ctx)

	if err := validator.ValidateStruct(input); err != nil {
		return nil, apperrors.NewValidation(err.Error())
	}

	identity := trimmed(input.Identity)
	now := s.now()

	var request models.OnboardingRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var approved int64
		if err := tx.Model(&models.OnboardingRequest{}).
			Where("identity = ? AND status = ?", identity, models.RequestApproved).
			Count(&approved).Error; err != nil {
			return fmt.Errorf("onboarding service: check approved: %w", err)
		}
		if approved > 0 {
			return apperrors.NewConflict("identity has already been approved")
		}

		var pending models.OnboardingRequest
		err := tx.Where("identity = ? AND status = ?", identity, models.RequestPending).
			Take(&pending).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			request = models.OnboardingRequest{
				Identity:    identity,
				DisplayName: trimmed(input.DisplayName),
				Email:       trimmed(input.Email),
				Pronouns:    trimmed(input.Pronouns),
				Interests:   trimmed(input.Interests),
				Status:      models.RequestPending,
				SubmittedAt: now,
			}
			return tx.Create(&request).Error
		case err != nil:
			return fmt.Errorf("onboarding service: find pending: %w", err)
		}

		// Replace the pending submission in place.
		updates := map[string]any{
			"display_name": trimmed(input.DisplayName),
			"email":        trimmed(input.Email),
			"pronouns":     trimmed(input.Pronouns),
			"interests":    trimmed(input.Interests),
			"submitted_at": now,
		}
		if err := tx.Model(&pending).Updates(updates).Error; err != nil {
			return fmt.Errorf("onboarding service: replace pending: %w", err)
		}
		return tx.Take(&request, "id = ?", pending.ID).Error
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Actor:    identity,
		Action:   "onboarding.submit",
		Resource: request.ID,
		Result:   "success",
	})

	return &request, nil
}

// GetPending loads the pending request for an identity.
func (s *OnboardingService) GetPending(ctx context.Context, identity string) (*models.OnboardingRequest, error) {
	ctx = ensureContext(ctx)

	var request models.OnboardingRequest
	err := s.db.WithContext(ctx).
		Where("identity = ? AND status = ?", trimmed(identity), models.RequestPending).
		Take(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("onboarding service: get pending: %w", err)
	}
	return &request, nil
}

// GetByID loads a request by identifier.
func (s *OnboardingService) GetByID(ctx context.Context, id string) (*models.OnboardingRequest, error) {
	ctx = ensureContext(ctx)

	var request models.OnboardingRequest
	err := s.db.WithContext(ctx).Take(&request, "id = ?", trimmed(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("onboarding service: get request: %w", err)
	}
	return &request, nil
}

// ListPending returns pending requests, oldest first.
func (s *OnboardingService) ListPending(ctx context.Context) ([]models.OnboardingRequest, error) {
	ctx = ensureContext(ctx)

	var requests []models.OnboardingRequest
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.RequestPending).
		Order("submitted_at ASC").
		Find(&requests).Error; err != nil {
		return nil, fmt.Errorf("onboarding service: list pending: %w", err)
	}
	return requests, nil
}

// MarkApproved transitions a pending request to approved. It is the
// precondition gate for the approval saga: a non-pending request yields
// ErrRequestNotPending with no side effects.
func (s *OnboardingService) MarkApproved(ctx context.Context, id, reviewer string) (*models.OnboardingRequest, error) {
	return s.review(ctx, id, reviewer, models.RequestApproved, "")
}

// MarkRejected transitions a pending request to rejected.
func (s *OnboardingService) MarkRejected(ctx context.Context, id, reviewer, reason string) (*models.OnboardingRequest, error) {
	return s.review(ctx, id, reviewer, models.RequestRejected, reason)
}

func (s *OnboardingService) review(ctx context.Context, id, reviewer string, status models.RequestStatus, reason string) (*models.OnboardingRequest, error) {
	ctx = ensureContext(ctx)

	var request models.OnboardingRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Take(&request, "id = ?", trimmed(id)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return fmt.Errorf("onboarding service: load request: %w", err)
		}

		if request.Status != models.RequestPending {
			return ErrRequestNotPending
		}

		now := s.now()
		updates := map[string]any{
			"status":      status,
			"reviewed_at": now,
			"reviewer":    trimmed(reviewer),
		}
		if reason != "" {
			updates["rejection_reason"] = trimmed(reason)
		}
		if err := tx.Model(&request).Updates(updates).Error; err != nil {
			return fmt.Errorf("onboarding service: review request: %w", err)
		}
		return tx.Take(&request, "id = ?", request.ID).Error
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Actor:    reviewer,
		Action:   "onboarding." + string(status),
		Resource: request.ID,
		Result:   "success",
		Metadata: map[string]any{"identity": request.Identity},
	})

	return &request, nil
}
