package sql

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/mealsync/mealsync/internal/domain"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrAlreadyExists.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

// Store implements the storage.Storage interface using SQL. The shared
// document store runs on PostgreSQL in production and SQLite in
// single-host development; both dialects are covered by the same
// statements.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New creates a new SQL store and runs pending migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ============================================
// Family groups
// ============================================

// groupRow flattens the settings document into columns.
type groupRow struct {
	ID              string    `db:"id"`
	Name            string    `db:"name"`
	JoinCode        string    `db:"join_code"`
	CreatedBy       string    `db:"created_by"`
	CreatedAt       time.Time `db:"created_at"`
	MemberCount     int       `db:"member_count"`
	AllowGuestJoin  bool      `db:"allow_guest_join"`
	RequireApproval bool      `db:"require_approval"`
}

func (r *groupRow) toDomain() *domain.FamilyGroup {
	return &domain.FamilyGroup{
		ID:          r.ID,
		Name:        r.Name,
		JoinCode:    r.JoinCode,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		MemberCount: r.MemberCount,
		Settings: domain.GroupSettings{
			AllowGuestJoin:  r.AllowGuestJoin,
			RequireApproval: r.RequireApproval,
		},
	}
}

const groupColumns = `id, name, join_code, created_by, created_at, member_count, allow_guest_join, require_approval`

func (s *Store) CreateGroup(ctx context.Context, g *domain.FamilyGroup) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO family_groups (`+groupColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.Name, g.JoinCode, g.CreatedBy, g.CreatedAt, g.MemberCount,
		g.Settings.AllowGuestJoin, g.Settings.RequireApproval)
	return wrapUniqueError(err)
}

func (s *Store) GetGroup(ctx context.Context, id string) (*domain.FamilyGroup, error) {
	var row groupRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+groupColumns+` FROM family_groups WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (s *Store) GetGroupByJoinCode(ctx context.Context, code string) (*domain.FamilyGroup, error) {
	var row groupRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+groupColumns+` FROM family_groups WHERE join_code = $1`, code)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateGroupMemberCount(ctx context.Context, id string, count int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE family_groups SET member_count = $1 WHERE id = $2`, count, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateGroupSettings(ctx context.Context, id string, settings domain.GroupSettings) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE family_groups SET allow_guest_join = $1, require_approval = $2 WHERE id = $3`,
		settings.AllowGuestJoin, settings.RequireApproval, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteGroup(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM family_groups WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ============================================
// Family members
// ============================================

const memberColumns = `id, family_id, name, role, is_proxy, created_at, updated_at`

func (s *Store) CreateMember(ctx context.Context, m *domain.FamilyMember) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO family_members (`+memberColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.FamilyID, m.Name, m.Role, m.IsProxy, m.CreatedAt, m.UpdatedAt)
	return wrapUniqueError(err)
}

func (s *Store) GetMember(ctx context.Context, id string) (*domain.FamilyMember, error) {
	var m domain.FamilyMember
	err := s.db.GetContext(ctx, &m,
		`SELECT `+memberColumns+` FROM family_members WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return &m, err
}

func (s *Store) ListMembers(ctx context.Context, familyID string) ([]*domain.FamilyMember, error) {
	members := make([]*domain.FamilyMember, 0)
	err := s.db.SelectContext(ctx, &members,
		`SELECT `+memberColumns+` FROM family_members WHERE family_id = $1 ORDER BY created_at, id`,
		familyID)
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (s *Store) UpdateMember(ctx context.Context, m *domain.FamilyMember) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE family_members SET name = $1, role = $2, is_proxy = $3, updated_at = $4 WHERE id = $5`,
		m.Name, m.Role, m.IsProxy, m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMember(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM family_members WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) CountMembers(ctx context.Context, familyID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM family_members WHERE family_id = $1`, familyID)
	return count, err
}

// ============================================
// Meal attendance
// ============================================

// attendanceRow stores the attendee set and response list as JSON
// documents so the whole entry persists in one row write.
type attendanceRow struct {
	ID           string     `db:"id"`
	FamilyID     string     `db:"family_id"`
	Date         string     `db:"date"`
	MealType     string     `db:"meal_type"`
	Attendees    string     `db:"attendees"`
	RegisteredBy string     `db:"registered_by"`
	CreatedAt    time.Time  `db:"created_at"`
	Deadline     *time.Time `db:"deadline"`
	IsLocked     bool       `db:"is_locked"`
	Responses    string     `db:"responses"`
	UpdatedAt    time.Time  `db:"updated_at"`
}

func (r *attendanceRow) toDomain() (*domain.AttendanceEntry, error) {
	e := &domain.AttendanceEntry{
		ID:           r.ID,
		FamilyID:     r.FamilyID,
		Date:         r.Date,
		MealType:     domain.MealType(r.MealType),
		RegisteredBy: r.RegisteredBy,
		CreatedAt:    r.CreatedAt,
		Deadline:     r.Deadline,
		IsLocked:     r.IsLocked,
	}
	if err := json.Unmarshal([]byte(r.Attendees), &e.Attendees); err != nil {
		return nil, fmt.Errorf("decoding attendees for entry %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.Responses), &e.Responses); err != nil {
		return nil, fmt.Errorf("decoding responses for entry %s: %w", r.ID, err)
	}
	return e, nil
}

const attendanceColumns = `id, family_id, date, meal_type, attendees, registered_by, created_at, deadline, is_locked, responses, updated_at`

func (s *Store) UpsertAttendance(ctx context.Context, e *domain.AttendanceEntry) error {
	attendees, err := json.Marshal(e.Attendees)
	if err != nil {
		return fmt.Errorf("encoding attendees: %w", err)
	}
	responses, err := json.Marshal(e.Responses)
	if err != nil {
		return fmt.Errorf("encoding responses: %w", err)
	}

	// Single-statement whole-document write; the last writer for a
	// given (family, date, meal) key wins.
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meal_attendances (`+attendanceColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (family_id, date, meal_type) DO UPDATE SET
		   attendees = excluded.attendees,
		   registered_by = excluded.registered_by,
		   deadline = excluded.deadline,
		   is_locked = excluded.is_locked,
		   responses = excluded.responses,
		   updated_at = excluded.updated_at`,
		e.ID, e.FamilyID, e.Date, string(e.MealType), string(attendees),
		e.RegisteredBy, e.CreatedAt, e.Deadline, e.IsLocked, string(responses), time.Now())
	return err
}

func (s *Store) GetAttendance(ctx context.Context, familyID, date string, meal domain.MealType) (*domain.AttendanceEntry, error) {
	var row attendanceRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+attendanceColumns+` FROM meal_attendances
		 WHERE family_id = $1 AND date = $2 AND meal_type = $3`,
		familyID, date, string(meal))
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (s *Store) ListAttendance(ctx context.Context, familyID, date string) ([]*domain.AttendanceEntry, error) {
	var rows []attendanceRow
	var err error
	if date == "" {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT `+attendanceColumns+` FROM meal_attendances
			 WHERE family_id = $1 ORDER BY date, meal_type`, familyID)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT `+attendanceColumns+` FROM meal_attendances
			 WHERE family_id = $1 AND date = $2 ORDER BY date, meal_type`, familyID, date)
	}
	if err != nil {
		return nil, err
	}
	entries := make([]*domain.AttendanceEntry, 0, len(rows))
	for i := range rows {
		e, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Store) DeleteExpiredAttendance(ctx context.Context, familyID string, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM meal_attendances
		 WHERE family_id = $1 AND deadline IS NOT NULL AND deadline < $2`,
		familyID, cutoff)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

func (s *Store) DeleteAttendanceByDate(ctx context.Context, familyID, date string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM meal_attendances WHERE family_id = $1 AND date = $2`,
		familyID, date)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

// ============================================
// Join requests
// ============================================

const joinRequestColumns = `id, group_id, requester_name, requester_id, status, created_at, responded_at`

func (s *Store) CreateJoinRequest(ctx context.Context, jr *domain.JoinRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO join_requests (`+joinRequestColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		jr.ID, jr.GroupID, jr.RequesterName, jr.RequesterID, string(jr.Status),
		jr.CreatedAt, jr.RespondedAt)
	return wrapUniqueError(err)
}

func (s *Store) GetJoinRequest(ctx context.Context, id string) (*domain.JoinRequest, error) {
	var jr domain.JoinRequest
	err := s.db.GetContext(ctx, &jr,
		`SELECT `+joinRequestColumns+` FROM join_requests WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	return &jr, err
}

func (s *Store) ListJoinRequests(ctx context.Context, groupID string) ([]*domain.JoinRequest, error) {
	requests := make([]*domain.JoinRequest, 0)
	err := s.db.SelectContext(ctx, &requests,
		`SELECT `+joinRequestColumns+` FROM join_requests WHERE group_id = $1 ORDER BY created_at`,
		groupID)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (s *Store) UpdateJoinRequest(ctx context.Context, jr *domain.JoinRequest) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE join_requests SET status = $1, responded_at = $2 WHERE id = $3`,
		string(jr.Status), jr.RespondedAt, jr.ID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}
