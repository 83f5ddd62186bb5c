package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/crewdeckhq/crewdeck/internal/models"
	"github.com/crewdeckhq/crewdeck/pkg/crypto"
)

// CreateMemberInput carries the fields needed to convert an approved request
// into a canonical member record.
type CreateMemberInput struct {
	Identity    string
	DisplayName string
	Email       string
	Pronouns    string
}

// IntegrationRefs carries external system identifiers to attach to a member.
// Nil fields are left unchanged.
type IntegrationRefs struct {
	AuthUserID    *string
	ProfileDocID  *string
	TrackerUserID *string
}

// MemberService owns the canonical member records.
type MemberService struct {
	db       *gorm.DB
	audit    *AuditService
	vaultKey string
}

// NewMemberService constructs a MemberService. vaultKey seals stored tracker
// tokens at rest.
func NewMemberService(db *gorm.DB, audit *AuditService, vaultKey string) (*MemberService, error) {
	if db == nil {
		return nil, errors.New("member service: db is required")
	}
	return &MemberService{db: db, audit: audit, vaultKey: vaultKey}, nil
}

// CreateOrReuse creates the member record for an identity, or returns the
// existing one. This is the idempotent core of the approval saga's required
// step: a duplicate trigger converges on the same row instead of duplicating
// it.
func (s *MemberService) CreateOrReuse(ctx context.Context, input CreateMemberInput) (member *models.Member, created bool, err error) {
	ctx = ensureContext(ctx)

	identity := trimmed(input.Identity)
	if identity == "" {
		return nil, false, errors.New("member service: identity is required")
	}

	var existing models.Member
	findErr := s.db.WithContext(ctx).Take(&existing, "identity = ?", identity).Error
	if findErr == nil {
		return &existing, false, nil
	}
	if !errors.Is(findErr, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("member service: find member: %w", findErr)
	}

	candidate := models.Member{
		Identity:    identity,
		DisplayName: trimmed(input.DisplayName),
		Email:       trimmed(input.Email),
		Pronouns:    trimmed(input.Pronouns),
		Status:      models.MemberActive,
	}

	if err := s.db.WithContext(ctx).Create(&candidate).Error; err != nil {
		if isUniqueConstraintError(err) {
			// Lost a race with a concurrent creation; reuse the winner.
			if reErr := s.db.WithContext(ctx).Take(&existing, "identity = ?", identity).Error; reErr == nil {
				return &existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("member service: create member: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Actor:    identity,
		Action:   "member.create",
		Resource: candidate.ID,
		Result:   "success",
	})

	return &candidate, true, nil
}

// GetByID loads a member by identifier.
func (s *MemberService) GetByID(ctx context.Context, id string) (*models.Member, error) {
	ctx = ensureContext(ctx)

	var member models.Member
	err := s.db.WithContext(ctx).Take(&member, "id = ?", trimmed(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("member service: get member: %w", err)
	}
	return &member, nil
}

// GetByIdentity loads a member by chat-platform identity.
func (s *MemberService) GetByIdentity(ctx context.Context, identity string) (*models.Member, error) {
	ctx = ensureContext(ctx)

	var member models.Member
	err := s.db.WithContext(ctx).Take(&member, "identity = ?", trimmed(identity)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("member service: get member: %w", err)
	}
	return &member, nil
}

// UpdateIntegrationRefs attaches external system identifiers produced by saga
// steps. Only non-nil fields are written.
func (s *MemberService) UpdateIntegrationRefs(ctx context.Context, memberID string, refs IntegrationRefs) error {
	ctx = ensureContext(ctx)

	updates := map[string]any{}
	if refs.AuthUserID != nil {
		updates["auth_user_id"] = *refs.AuthUserID
	}
	if refs.ProfileDocID != nil {
		updates["profile_doc_id"] = *refs.ProfileDocID
	}
	if refs.TrackerUserID != nil {
		updates["tracker_user_id"] = *refs.TrackerUserID
	}
	if len(updates) == 0 {
		return nil
	}

	result := s.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ?", trimmed(memberID)).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("member service: update refs: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// SetTempCredentialHash stores a bcrypt hash of the one-time credential the
// identity provider issued. The plaintext is never persisted.
func (s *MemberService) SetTempCredentialHash(ctx context.Context, memberID, credential string) error {
	ctx = ensureContext(ctx)

	if credential == "" {
		return nil
	}
	hash, err := crypto.HashPassword(credential)
	if err != nil {
		return fmt.Errorf("member service: hash credential: %w", err)
	}

	return s.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ?", trimmed(memberID)).
		Update("temp_credential_hash", hash).Error
}

// SetTrackerToken seals and stores the member's task-tracker token.
func (s *MemberService) SetTrackerToken(ctx context.Context, memberID, token string) error {
	ctx = ensureContext(ctx)

	sealed, err := crypto.SealString(token, s.vaultKey)
	if err != nil {
		return fmt.Errorf("member service: seal tracker token: %w", err)
	}

	result := s.db.WithContext(ctx).
		Model(&models.Member{}).
		Where("id = ?", trimmed(memberID)).
		Update("tracker_token_sealed", sealed)
	if result.Error != nil {
		return fmt.Errorf("member service: store tracker token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// TrackerToken unseals the member's stored task-tracker token. An empty
// string means the member never connected a tracker account.
func (s *MemberService) TrackerToken(member *models.Member) (string, error) {
	if member == nil {
		return "", errors.New("member service: member is required")
	}
	token, err := crypto.OpenString(member.TrackerTokenSealed, s.vaultKey)
	if err != nil {
		return "", fmt.Errorf("member service: unseal tracker token: %w", err)
	}
	return token, nil
}
