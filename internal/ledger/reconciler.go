// Package ledger owns the canonical per-(date, meal) attendance records
// and the reconciliation logic that folds individual member responses
// into them. Entries move through Unregistered -> Open -> Locked: the
// first response creates the entry with a computed deadline, later
// responses mutate it in place, and once the deadline passes every
// write is rejected. Locking is computed at write time, never stored as
// a transition.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mealsync/mealsync/internal/domain"
	"github.com/mealsync/mealsync/internal/storage"
	"github.com/mealsync/mealsync/internal/validation"
)

// Clock supplies the current time; injected so tests can pin it.
type Clock func() time.Time

// Reconciler validates and applies attendance mutations. It is
// stateless over an injected store, so each family group's ledger can
// be exercised in isolation.
type Reconciler struct {
	store  storage.Storage
	policy DeadlinePolicy
	clock  Clock
	logger *zap.Logger

	// allowExpired disables the deadline gate. Exists only as an
	// explicit configuration escape hatch; defaults to off.
	allowExpired bool
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(r *Reconciler) { r.clock = clock }
}

// WithAllowExpired disables deadline enforcement when on is true.
func WithAllowExpired(on bool) Option {
	return func(r *Reconciler) { r.allowExpired = on }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reconciler) { r.logger = logger }
}

// NewReconciler creates a Reconciler over the given store and deadline
// policy.
func NewReconciler(store storage.Storage, policy DeadlinePolicy, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:  store,
		policy: policy,
		clock:  time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SubmitResponse folds one member's attend/not-attend answer into the
// entry for (date, meal), creating the entry with a fresh deadline if
// it does not exist yet. A repeated response by the same member
// supersedes the earlier one, so the call is idempotent on the derived
// attendee set. The whole entry persists as one document write.
func (r *Reconciler) SubmitResponse(ctx context.Context, familyID, actingID, targetID, date string, meal domain.MealType, willAttend bool) (*domain.AttendanceEntry, error) {
	if err := validateKey(date, meal); err != nil {
		return nil, err
	}
	if err := r.authorize(ctx, actingID, []string{targetID}); err != nil {
		return nil, err
	}

	now := r.clock()
	entry, err := r.loadOrCreate(ctx, familyID, actingID, date, meal, now)
	if err != nil {
		return nil, err
	}
	if entry.LockedAt(now) && !r.allowExpired {
		return nil, domain.ErrDeadlinePassed
	}

	entry.SetResponse(domain.PersonalResponse{
		ID:             uuid.New().String(),
		FamilyMemberID: targetID,
		Date:           date,
		MealType:       meal,
		WillAttend:     willAttend,
		RespondedAt:    now,
	})
	entry.RegisteredBy = actingID

	if err := r.store.UpsertAttendance(ctx, entry); err != nil {
		return nil, fmt.Errorf("persisting attendance entry: %w", err)
	}

	r.logger.Debug("response reconciled",
		zap.String("family_id", familyID),
		zap.String("member_id", targetID),
		zap.String("date", date),
		zap.String("meal", string(meal)),
		zap.Bool("will_attend", willAttend))
	return entry, nil
}

// RegisterAttendance is the bulk/proxy registration path. It is applied
// as a batch of per-member responses: every roster member receives a
// response whose answer is membership of attendeeIDs, and ids outside
// the roster are folded in the same way. The attendee set therefore
// stays derivable from the response list no matter which path wrote
// the entry last.
func (r *Reconciler) RegisterAttendance(ctx context.Context, familyID, actingID, date string, meal domain.MealType, attendeeIDs []string) (*domain.AttendanceEntry, error) {
	if err := validateKey(date, meal); err != nil {
		return nil, err
	}

	attending := make(map[string]bool, len(attendeeIDs))
	for _, id := range attendeeIDs {
		attending[id] = true
	}

	members, err := r.store.ListMembers(ctx, familyID)
	if err != nil {
		return nil, fmt.Errorf("listing members: %w", err)
	}
	targets := make([]string, 0, len(members)+len(attendeeIDs))
	seen := make(map[string]bool, len(members)+len(attendeeIDs))
	for _, m := range members {
		targets = append(targets, m.ID)
		seen[m.ID] = true
	}
	for _, id := range attendeeIDs {
		if !seen[id] {
			targets = append(targets, id)
		}
	}

	// The batch rewrites every roster member's response, so the
	// authorization targets are the whole batch, not just attendeeIDs.
	if err := r.authorize(ctx, actingID, targets); err != nil {
		return nil, err
	}

	now := r.clock()
	entry, err := r.loadOrCreate(ctx, familyID, actingID, date, meal, now)
	if err != nil {
		return nil, err
	}
	if entry.LockedAt(now) && !r.allowExpired {
		return nil, domain.ErrDeadlinePassed
	}

	for _, id := range targets {
		entry.SetResponse(domain.PersonalResponse{
			ID:             uuid.New().String(),
			FamilyMemberID: id,
			Date:           date,
			MealType:       meal,
			WillAttend:     attending[id],
			RespondedAt:    now,
		})
	}
	entry.RegisteredBy = actingID

	if err := r.store.UpsertAttendance(ctx, entry); err != nil {
		return nil, fmt.Errorf("persisting attendance entry: %w", err)
	}

	r.logger.Info("bulk attendance registered",
		zap.String("family_id", familyID),
		zap.String("registered_by", actingID),
		zap.String("date", date),
		zap.String("meal", string(meal)),
		zap.Int("attendees", len(entry.Attendees)))
	return entry, nil
}

// GetEntry returns the entry for (date, meal), or ErrNotFound while the
// key is still unregistered.
func (r *Reconciler) GetEntry(ctx context.Context, familyID, date string, meal domain.MealType) (*domain.AttendanceEntry, error) {
	if err := validateKey(date, meal); err != nil {
		return nil, err
	}
	return r.store.GetAttendance(ctx, familyID, date, meal)
}

// ListEntries lists a family's entries, optionally filtered by date
// (empty date lists all).
func (r *Reconciler) ListEntries(ctx context.Context, familyID, date string) ([]*domain.AttendanceEntry, error) {
	if date != "" {
		if err := validateDateOnly(date); err != nil {
			return nil, err
		}
	}
	return r.store.ListAttendance(ctx, familyID, date)
}

// ClearExpired removes every entry whose deadline lies before the
// moment of the call and returns the number removed.
func (r *Reconciler) ClearExpired(ctx context.Context, familyID string) (int, error) {
	removed, err := r.store.DeleteExpiredAttendance(ctx, familyID, r.clock())
	if err != nil {
		return 0, fmt.Errorf("clearing expired entries: %w", err)
	}
	if removed > 0 {
		r.logger.Info("expired attendance cleared",
			zap.String("family_id", familyID),
			zap.Int("removed", removed))
	}
	return removed, nil
}

// ResetForDate removes every entry matching the date and returns the
// number removed.
func (r *Reconciler) ResetForDate(ctx context.Context, familyID, date string) (int, error) {
	if err := validateDateOnly(date); err != nil {
		return 0, err
	}
	removed, err := r.store.DeleteAttendanceByDate(ctx, familyID, date)
	if err != nil {
		return 0, fmt.Errorf("resetting date %s: %w", date, err)
	}
	return removed, nil
}

// loadOrCreate fetches the entry for the key or creates a fresh Open
// entry with a deadline computed from the policy.
func (r *Reconciler) loadOrCreate(ctx context.Context, familyID, actingID, date string, meal domain.MealType, now time.Time) (*domain.AttendanceEntry, error) {
	entry, err := r.store.GetAttendance(ctx, familyID, date, meal)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("loading attendance entry: %w", err)
	}
	return &domain.AttendanceEntry{
		ID:           uuid.New().String(),
		FamilyID:     familyID,
		Date:         date,
		MealType:     meal,
		Attendees:    []string{},
		RegisteredBy: actingID,
		CreatedAt:    now,
		Deadline:     r.policy.DeadlineFor(date, meal, now),
		Responses:    []domain.PersonalResponse{},
	}, nil
}

// authorize enforces the proxy rule: a member may always mutate their
// own attendance; touching anyone else requires the acting member's
// IsProxy flag. Role is never consulted.
func (r *Reconciler) authorize(ctx context.Context, actingID string, targetIDs []string) error {
	if actingID == "" {
		return domain.ErrUnauthorized
	}
	selfOnly := true
	for _, id := range targetIDs {
		if id != actingID {
			selfOnly = false
			break
		}
	}
	if selfOnly {
		return nil
	}

	acting, err := r.store.GetMember(ctx, actingID)
	if err != nil {
		return fmt.Errorf("resolving acting member: %w", err)
	}
	if !acting.IsProxy {
		return domain.ErrPermissionDenied
	}
	return nil
}

func validateKey(date string, meal domain.MealType) error {
	var errs validation.ValidationErrors
	if err := validation.ValidateDate(date); err != nil {
		errs.Add("date", date, err.Error())
	}
	if err := validation.ValidateMealType(meal); err != nil {
		errs.Add("meal_type", string(meal), err.Error())
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateDateOnly(date string) error {
	if err := validation.ValidateDate(date); err != nil {
		var errs validation.ValidationErrors
		errs.Add("date", date, err.Error())
		return errs
	}
	return nil
}
