package storage

import (
	"context"
	"time"

	"github.com/mealsync/mealsync/internal/domain"
)

// Storage defines the interface for the shared document store. Records
// live in four collections: family groups, family members, meal
// attendance entries, and join requests. Implementations must be safe
// for concurrent use. Every attendance write is a whole-document upsert
// so concurrent writers resolve last-write-wins at the entry level.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// Family groups
	CreateGroup(ctx context.Context, g *domain.FamilyGroup) error
	GetGroup(ctx context.Context, id string) (*domain.FamilyGroup, error)
	GetGroupByJoinCode(ctx context.Context, code string) (*domain.FamilyGroup, error)
	UpdateGroupMemberCount(ctx context.Context, id string, count int) error
	UpdateGroupSettings(ctx context.Context, id string, settings domain.GroupSettings) error
	DeleteGroup(ctx context.Context, id string) error

	// Family members
	CreateMember(ctx context.Context, m *domain.FamilyMember) error
	GetMember(ctx context.Context, id string) (*domain.FamilyMember, error)
	ListMembers(ctx context.Context, familyID string) ([]*domain.FamilyMember, error)
	UpdateMember(ctx context.Context, m *domain.FamilyMember) error
	DeleteMember(ctx context.Context, id string) error
	CountMembers(ctx context.Context, familyID string) (int, error)

	// Meal attendance. Entries are keyed by (familyID, date, mealType);
	// date is "" in ListAttendance to list all dates.
	UpsertAttendance(ctx context.Context, e *domain.AttendanceEntry) error
	GetAttendance(ctx context.Context, familyID, date string, meal domain.MealType) (*domain.AttendanceEntry, error)
	ListAttendance(ctx context.Context, familyID, date string) ([]*domain.AttendanceEntry, error)
	DeleteExpiredAttendance(ctx context.Context, familyID string, cutoff time.Time) (int, error)
	DeleteAttendanceByDate(ctx context.Context, familyID, date string) (int, error)

	// Join requests
	CreateJoinRequest(ctx context.Context, jr *domain.JoinRequest) error
	GetJoinRequest(ctx context.Context, id string) (*domain.JoinRequest, error)
	ListJoinRequests(ctx context.Context, groupID string) ([]*domain.JoinRequest, error)
	UpdateJoinRequest(ctx context.Context, jr *domain.JoinRequest) error
}
