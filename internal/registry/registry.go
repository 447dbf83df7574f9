// Package registry maintains family group records and membership entry
// points: group creation with a unique join code, code lookup, and the
// approval-gated join flow.
package registry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mealsync/mealsync/internal/domain"
	"github.com/mealsync/mealsync/internal/storage"
	"github.com/mealsync/mealsync/internal/validation"
)

// joinCodeAlphabet is the character set for join codes: ^[A-Z0-9]{8}$.
const joinCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxCodeAttempts bounds join-code regeneration on collision.
const maxCodeAttempts = 10

// Registry is the family-group registry. All state lives in the
// injected store; the registry itself is stateless and safe for
// concurrent use.
type Registry struct {
	store  storage.Storage
	logger *zap.Logger
}

// New creates a Registry backed by the given store.
func New(store storage.Storage, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, logger: logger}
}

// CreateGroup creates a family group with a freshly generated unique
// join code and a member count of one (the creator).
func (r *Registry) CreateGroup(ctx context.Context, name, creatorMemberID string, settings domain.GroupSettings) (*domain.FamilyGroup, error) {
	var errs validation.ValidationErrors
	if err := validation.ValidateGroupName(name); err != nil {
		errs.Add("name", name, err.Error())
	}
	if creatorMemberID == "" {
		errs.Add("created_by", "", "creator member id must not be empty")
	}
	if errs.HasErrors() {
		return nil, errs
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateJoinCode()
		if err != nil {
			return nil, fmt.Errorf("generating join code: %w", err)
		}

		group := &domain.FamilyGroup{
			ID:          uuid.New().String(),
			Name:        name,
			JoinCode:    code,
			CreatedBy:   creatorMemberID,
			CreatedAt:   time.Now().UTC(),
			MemberCount: 1,
			Settings:    settings,
		}

		err = r.store.CreateGroup(ctx, group)
		if errors.Is(err, domain.ErrAlreadyExists) {
			// Join code collision; regenerate and retry.
			r.logger.Debug("join code collision, regenerating", zap.String("code", code))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("creating group: %w", err)
		}
		return group, nil
	}
	return nil, fmt.Errorf("exhausted %d join code attempts: %w", maxCodeAttempts, domain.ErrAlreadyExists)
}

// FindByCode resolves a join code to its group. An unknown code is a
// silent miss: the group is nil and the error is nil, and callers
// surface their own not-found message. A malformed code is a
// validation error.
func (r *Registry) FindByCode(ctx context.Context, code string) (*domain.FamilyGroup, error) {
	if err := validation.ValidateJoinCode(code); err != nil {
		var errs validation.ValidationErrors
		errs.Add("code", code, err.Error())
		return nil, errs
	}
	group, err := r.store.GetGroupByJoinCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up join code: %w", err)
	}
	return group, nil
}

// GetGroup fetches a group by id.
func (r *Registry) GetGroup(ctx context.Context, id string) (*domain.FamilyGroup, error) {
	return r.store.GetGroup(ctx, id)
}

// UpdateMemberCount overwrites the cached member count. Idempotent.
func (r *Registry) UpdateMemberCount(ctx context.Context, groupID string, count int) error {
	if count < 0 {
		var errs validation.ValidationErrors
		errs.Add("member_count", fmt.Sprintf("%d", count), "member count must not be negative")
		return errs
	}
	return r.store.UpdateGroupMemberCount(ctx, groupID, count)
}

// UpdateSettings overwrites the group's joining policy.
func (r *Registry) UpdateSettings(ctx context.Context, groupID string, settings domain.GroupSettings) error {
	return r.store.UpdateGroupSettings(ctx, groupID, settings)
}

// DeleteGroup removes a group. Rare explicit admin operation; groups
// are never deleted in the normal flow.
func (r *Registry) DeleteGroup(ctx context.Context, groupID string) error {
	return r.store.DeleteGroup(ctx, groupID)
}

// CreateJoinRequest records a pending join request for a group with
// approval required.
func (r *Registry) CreateJoinRequest(ctx context.Context, groupID, requesterName, requesterID string) (*domain.JoinRequest, error) {
	var errs validation.ValidationErrors
	if err := validation.ValidateMemberName(requesterName); err != nil {
		errs.Add("requester_name", requesterName, err.Error())
	}
	if requesterID == "" {
		errs.Add("requester_id", "", "requester id must not be empty")
	}
	if errs.HasErrors() {
		return nil, errs
	}

	if _, err := r.store.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}

	jr := &domain.JoinRequest{
		ID:            uuid.New().String(),
		GroupID:       groupID,
		RequesterName: requesterName,
		RequesterID:   requesterID,
		Status:        domain.JoinRequestPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.store.CreateJoinRequest(ctx, jr); err != nil {
		return nil, fmt.Errorf("creating join request: %w", err)
	}
	return jr, nil
}

// ListJoinRequests lists a group's join requests, oldest first.
func (r *Registry) ListJoinRequests(ctx context.Context, groupID string) ([]*domain.JoinRequest, error) {
	return r.store.ListJoinRequests(ctx, groupID)
}

// RespondToJoinRequest approves or rejects a pending request. Approval
// creates the member and refreshes the group member count; the created
// member is returned. Responding to an already-settled request is a
// conflict.
func (r *Registry) RespondToJoinRequest(ctx context.Context, requestID string, approved bool) (*domain.FamilyMember, error) {
	jr, err := r.store.GetJoinRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if jr.Status != domain.JoinRequestPending {
		return nil, fmt.Errorf("join request %s already %s: %w", jr.ID, jr.Status, domain.ErrAlreadyExists)
	}

	now := time.Now().UTC()
	jr.RespondedAt = &now
	if !approved {
		jr.Status = domain.JoinRequestRejected
		if err := r.store.UpdateJoinRequest(ctx, jr); err != nil {
			return nil, fmt.Errorf("updating join request: %w", err)
		}
		return nil, nil
	}

	jr.Status = domain.JoinRequestApproved
	if err := r.store.UpdateJoinRequest(ctx, jr); err != nil {
		return nil, fmt.Errorf("updating join request: %w", err)
	}

	member := &domain.FamilyMember{
		ID:        jr.RequesterID,
		FamilyID:  jr.GroupID,
		Name:      jr.RequesterName,
		Role:      domain.RoleParent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.CreateMember(ctx, member); err != nil {
		return nil, fmt.Errorf("creating member from join request: %w", err)
	}
	if err := r.refreshMemberCount(ctx, jr.GroupID); err != nil {
		return nil, err
	}

	r.logger.Info("join request approved",
		zap.String("group_id", jr.GroupID),
		zap.String("member_id", member.ID))
	return member, nil
}

// refreshMemberCount recounts members and overwrites the cached count.
func (r *Registry) refreshMemberCount(ctx context.Context, groupID string) error {
	count, err := r.store.CountMembers(ctx, groupID)
	if err != nil {
		return fmt.Errorf("counting members: %w", err)
	}
	return r.store.UpdateGroupMemberCount(ctx, groupID, count)
}

// generateJoinCode draws a uniform random 8-character code over [A-Z0-9].
// Bytes at or above the largest multiple of the alphabet size are
// rejected and redrawn, so no character is over-represented.
func generateJoinCode() (string, error) {
	const limit = 256 - 256%len(joinCodeAlphabet)
	code := make([]byte, 0, validation.JoinCodeLength)
	buf := make([]byte, validation.JoinCodeLength)
	for len(code) < validation.JoinCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, joinCodeAlphabet[int(b)%len(joinCodeAlphabet)])
			if len(code) == validation.JoinCodeLength {
				break
			}
		}
	}
	return string(code), nil
}
