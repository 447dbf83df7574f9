package registry

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealsync/mealsync/internal/domain"
	"github.com/mealsync/mealsync/internal/storage/memory"
	"github.com/mealsync/mealsync/internal/validation"
)

var joinCodeRe = regexp.MustCompile(`^[A-Z0-9]{8}$`)

func TestCreateGroup(t *testing.T) {
	reg := New(memory.New(), nil)

	group, err := reg.CreateGroup(context.Background(), "The Smiths", "creator-1", domain.GroupSettings{})
	require.NoError(t, err)

	assert.NotEmpty(t, group.ID)
	assert.Equal(t, "The Smiths", group.Name)
	assert.Equal(t, "creator-1", group.CreatedBy)
	assert.Equal(t, 1, group.MemberCount)
	assert.Regexp(t, joinCodeRe, group.JoinCode)
}

func TestCreateGroupValidation(t *testing.T) {
	reg := New(memory.New(), nil)
	ctx := context.Background()

	var verrs validation.ValidationErrors

	_, err := reg.CreateGroup(ctx, "", "creator-1", domain.GroupSettings{})
	assert.ErrorAs(t, err, &verrs)

	_, err = reg.CreateGroup(ctx, "The Smiths", "", domain.GroupSettings{})
	assert.ErrorAs(t, err, &verrs)
}

func TestJoinCodesUnique(t *testing.T) {
	reg := New(memory.New(), nil)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		group, err := reg.CreateGroup(ctx, "Group", "creator-1", domain.GroupSettings{})
		require.NoError(t, err)
		assert.False(t, seen[group.JoinCode], "duplicate join code %s", group.JoinCode)
		seen[group.JoinCode] = true
	}
}

func TestGenerateJoinCodeDrawsFullAlphabet(t *testing.T) {
	// 500 codes = 4000 characters; a character the generator can never
	// emit (or systematically under-draws) would be missing here.
	seen := make(map[byte]bool)
	for i := 0; i < 500; i++ {
		code, err := generateJoinCode()
		require.NoError(t, err)
		assert.Regexp(t, joinCodeRe, code)
		for j := 0; j < len(code); j++ {
			seen[code[j]] = true
		}
	}
	assert.Len(t, seen, len(joinCodeAlphabet))
}

func TestFindByCode(t *testing.T) {
	reg := New(memory.New(), nil)
	ctx := context.Background()

	created, err := reg.CreateGroup(ctx, "The Smiths", "creator-1", domain.GroupSettings{})
	require.NoError(t, err)

	found, err := reg.FindByCode(ctx, created.JoinCode)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, created.ID, found.ID)

	// Well-formed but unknown: silent miss, not an error.
	found, err = reg.FindByCode(ctx, "ZZZZ9999")
	require.NoError(t, err)
	assert.Nil(t, found)

	// Malformed: validation error.
	var verrs validation.ValidationErrors
	_, err = reg.FindByCode(ctx, "short")
	assert.ErrorAs(t, err, &verrs)
	_, err = reg.FindByCode(ctx, "abcd1234")
	assert.ErrorAs(t, err, &verrs)
}

func TestUpdateMemberCount(t *testing.T) {
	reg := New(memory.New(), nil)
	ctx := context.Background()

	group, err := reg.CreateGroup(ctx, "The Smiths", "creator-1", domain.GroupSettings{})
	require.NoError(t, err)

	require.NoError(t, reg.UpdateMemberCount(ctx, group.ID, 4))
	// Idempotent
	require.NoError(t, reg.UpdateMemberCount(ctx, group.ID, 4))

	got, err := reg.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.MemberCount)

	var verrs validation.ValidationErrors
	err = reg.UpdateMemberCount(ctx, group.ID, -1)
	assert.ErrorAs(t, err, &verrs)
}

func TestUpdateSettings(t *testing.T) {
	store := memory.New()
	reg := New(store, nil)
	ctx := context.Background()

	group, err := reg.CreateGroup(ctx, "The Smiths", "creator-1", domain.GroupSettings{})
	require.NoError(t, err)

	err = reg.UpdateSettings(ctx, group.ID, domain.GroupSettings{RequireApproval: true})
	require.NoError(t, err)

	got, err := reg.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, got.Settings.RequireApproval)
}

func TestJoinRequestFlow(t *testing.T) {
	store := memory.New()
	reg := New(store, nil)
	ctx := context.Background()

	group, err := reg.CreateGroup(ctx, "The Smiths", "creator-1", domain.GroupSettings{RequireApproval: true})
	require.NoError(t, err)

	jr, err := reg.CreateJoinRequest(ctx, group.ID, "Alice", "alice-device")
	require.NoError(t, err)
	assert.Equal(t, domain.JoinRequestPending, jr.Status)

	requests, err := reg.ListJoinRequests(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, requests, 1)

	member, err := reg.RespondToJoinRequest(ctx, jr.ID, true)
	require.NoError(t, err)
	require.NotNil(t, member)
	assert.Equal(t, "alice-device", member.ID)
	assert.Equal(t, group.ID, member.FamilyID)
	assert.Equal(t, "Alice", member.Name)

	// Approval refreshed the cached member count.
	got, err := reg.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MemberCount)

	// Responding twice is a conflict.
	_, err = reg.RespondToJoinRequest(ctx, jr.ID, true)
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestJoinRequestRejection(t *testing.T) {
	store := memory.New()
	reg := New(store, nil)
	ctx := context.Background()

	group, err := reg.CreateGroup(ctx, "The Smiths", "creator-1", domain.GroupSettings{RequireApproval: true})
	require.NoError(t, err)

	jr, err := reg.CreateJoinRequest(ctx, group.ID, "Bob", "bob-device")
	require.NoError(t, err)

	member, err := reg.RespondToJoinRequest(ctx, jr.ID, false)
	require.NoError(t, err)
	assert.Nil(t, member)

	// No member record was created.
	_, err = store.GetMember(ctx, "bob-device")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateJoinRequestUnknownGroup(t *testing.T) {
	reg := New(memory.New(), nil)
	_, err := reg.CreateJoinRequest(context.Background(), "nope", "Alice", "alice-device")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
