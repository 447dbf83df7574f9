// Package directory manages the family member roster within a group,
// including the per-member proxy permission flag.
package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mealsync/mealsync/internal/domain"
	"github.com/mealsync/mealsync/internal/storage"
	"github.com/mealsync/mealsync/internal/validation"
)

// Directory is the member directory for family groups.
type Directory struct {
	store  storage.Storage
	logger *zap.Logger
}

// New creates a Directory backed by the given store.
func New(store storage.Storage, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{store: store, logger: logger}
}

// AddMember creates a member in the given family group and refreshes
// the group's member count.
func (d *Directory) AddMember(ctx context.Context, familyID, name string, role domain.MemberRole, isProxy bool) (*domain.FamilyMember, error) {
	var errs validation.ValidationErrors
	if err := validation.ValidateMemberName(name); err != nil {
		errs.Add("name", name, err.Error())
	}
	if err := validation.ValidateRole(role); err != nil {
		errs.Add("role", string(role), err.Error())
	}
	if errs.HasErrors() {
		return nil, errs
	}

	// The group must exist before members can be attached to it.
	if _, err := d.store.GetGroup(ctx, familyID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	member := &domain.FamilyMember{
		ID:        uuid.New().String(),
		FamilyID:  familyID,
		Name:      name,
		Role:      role,
		IsProxy:   isProxy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.store.CreateMember(ctx, member); err != nil {
		return nil, fmt.Errorf("creating member: %w", err)
	}
	if err := d.refreshMemberCount(ctx, familyID); err != nil {
		return nil, err
	}

	d.logger.Info("member added",
		zap.String("family_id", familyID),
		zap.String("member_id", member.ID),
		zap.Bool("is_proxy", isProxy))
	return member, nil
}

// JoinGroup attaches an existing identity to the group roster. Unlike
// AddMember the member id is supplied by the caller, because a joining
// device already holds its id from sign-in.
func (d *Directory) JoinGroup(ctx context.Context, familyID, memberID, name string, role domain.MemberRole) (*domain.FamilyMember, error) {
	var errs validation.ValidationErrors
	if err := validation.ValidateMemberName(name); err != nil {
		errs.Add("name", name, err.Error())
	}
	if err := validation.ValidateRole(role); err != nil {
		errs.Add("role", string(role), err.Error())
	}
	if memberID == "" {
		errs.Add("member_id", "", "member id must not be empty")
	}
	if errs.HasErrors() {
		return nil, errs
	}

	if _, err := d.store.GetGroup(ctx, familyID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	member := &domain.FamilyMember{
		ID:        memberID,
		FamilyID:  familyID,
		Name:      name,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.store.CreateMember(ctx, member); err != nil {
		return nil, fmt.Errorf("joining group: %w", err)
	}
	if err := d.refreshMemberCount(ctx, familyID); err != nil {
		return nil, err
	}

	d.logger.Info("member joined",
		zap.String("family_id", familyID),
		zap.String("member_id", memberID))
	return member, nil
}

// GetMember fetches a member by id.
func (d *Directory) GetMember(ctx context.Context, memberID string) (*domain.FamilyMember, error) {
	return d.store.GetMember(ctx, memberID)
}

// ListMembers returns the group's roster in creation order.
func (d *Directory) ListMembers(ctx context.Context, familyID string) ([]*domain.FamilyMember, error) {
	return d.store.ListMembers(ctx, familyID)
}

// UpdateMember overwrites the full member record keyed by id. Used for
// profile edits and proxy permission toggles alike.
func (d *Directory) UpdateMember(ctx context.Context, memberID, name string, role domain.MemberRole, isProxy bool) (*domain.FamilyMember, error) {
	var errs validation.ValidationErrors
	if err := validation.ValidateMemberName(name); err != nil {
		errs.Add("name", name, err.Error())
	}
	if err := validation.ValidateRole(role); err != nil {
		errs.Add("role", string(role), err.Error())
	}
	if errs.HasErrors() {
		return nil, errs
	}

	member, err := d.store.GetMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	member.Name = name
	member.Role = role
	member.IsProxy = isProxy
	member.UpdatedAt = time.Now().UTC()

	if err := d.store.UpdateMember(ctx, member); err != nil {
		return nil, fmt.Errorf("updating member: %w", err)
	}
	return member, nil
}

// DeleteMember removes a member from the roster and refreshes the
// group's member count. Historical personal responses referencing the
// member are kept; display layers handle the unknown id.
func (d *Directory) DeleteMember(ctx context.Context, memberID string) error {
	member, err := d.store.GetMember(ctx, memberID)
	if err != nil {
		return err
	}
	if err := d.store.DeleteMember(ctx, memberID); err != nil {
		return err
	}
	if err := d.refreshMemberCount(ctx, member.FamilyID); err != nil {
		return err
	}

	d.logger.Info("member deleted",
		zap.String("family_id", member.FamilyID),
		zap.String("member_id", memberID))
	return nil
}

func (d *Directory) refreshMemberCount(ctx context.Context, familyID string) error {
	count, err := d.store.CountMembers(ctx, familyID)
	if err != nil {
		return fmt.Errorf("counting members: %w", err)
	}
	return d.store.UpdateGroupMemberCount(ctx, familyID, count)
}
