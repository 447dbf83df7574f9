package domain

import (
	"sort"
	"time"
)

// MealType identifies one of the three daily meals.
type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
)

// MealTypes lists all meal types in day order.
func MealTypes() []MealType {
	return []MealType{MealBreakfast, MealLunch, MealDinner}
}

// ValidMealType reports whether m is a known meal type.
func ValidMealType(m MealType) bool {
	return m == MealBreakfast || m == MealLunch || m == MealDinner
}

// EntryState is the computed lifecycle state of an attendance entry.
// Unregistered entries have no stored record at all, so only Open and
// Locked appear on live entries.
type EntryState string

const (
	EntryOpen   EntryState = "open"
	EntryLocked EntryState = "locked"
)

// PersonalResponse is one member's attend/not-attend answer for a single
// date and meal. Responses are owned by their attendance entry and have
// no independent lifecycle.
type PersonalResponse struct {
	ID             string    `json:"id"`
	FamilyMemberID string    `json:"family_member_id"`
	Date           string    `json:"date"`
	MealType       MealType  `json:"meal_type"`
	WillAttend     bool      `json:"will_attend"`
	RespondedAt    time.Time `json:"responded_at"`
}

// AttendanceEntry is the canonical attendance record for one
// (family, date, meal) tuple. Attendees is always derived from
// Responses; mutate Responses through SetResponse so the derivation
// never drifts.
type AttendanceEntry struct {
	ID           string             `json:"id" db:"id"`
	FamilyID     string             `json:"family_id" db:"family_id"`
	Date         string             `json:"date" db:"date"`
	MealType     MealType           `json:"meal_type" db:"meal_type"`
	Attendees    []string           `json:"attendees" db:"-"`
	RegisteredBy string             `json:"registered_by" db:"registered_by"`
	CreatedAt    time.Time          `json:"created_at" db:"created_at"`
	Deadline     *time.Time         `json:"deadline,omitempty" db:"deadline"`
	IsLocked     bool               `json:"is_locked" db:"is_locked"`
	Responses    []PersonalResponse `json:"responses" db:"-"`
}

// LockedAt reports whether the entry rejects writes at the given time.
// An entry is locked once the deadline passes or the lock flag is set.
func (e *AttendanceEntry) LockedAt(now time.Time) bool {
	if e.IsLocked {
		return true
	}
	return e.Deadline != nil && !now.Before(*e.Deadline)
}

// StateAt returns the computed entry state at the given time.
func (e *AttendanceEntry) StateAt(now time.Time) EntryState {
	if e.LockedAt(now) {
		return EntryLocked
	}
	return EntryOpen
}

// SetResponse folds one personal response into the entry. Any earlier
// response by the same member is superseded, and the attendee set is
// recomputed from the full response list.
func (e *AttendanceEntry) SetResponse(resp PersonalResponse) {
	kept := e.Responses[:0]
	for _, r := range e.Responses {
		if r.FamilyMemberID != resp.FamilyMemberID {
			kept = append(kept, r)
		}
	}
	e.Responses = append(kept, resp)
	e.recomputeAttendees()
}

// ResponseFor returns the member's current response, if any.
func (e *AttendanceEntry) ResponseFor(memberID string) (PersonalResponse, bool) {
	for _, r := range e.Responses {
		if r.FamilyMemberID == memberID {
			return r, true
		}
	}
	return PersonalResponse{}, false
}

// recomputeAttendees rebuilds Attendees as the sorted set of member ids
// with a positive response.
func (e *AttendanceEntry) recomputeAttendees() {
	attendees := make([]string, 0, len(e.Responses))
	for _, r := range e.Responses {
		if r.WillAttend {
			attendees = append(attendees, r.FamilyMemberID)
		}
	}
	sort.Strings(attendees)
	e.Attendees = attendees
}

// Clone returns a deep copy of the entry. Stores hand out clones so
// callers can mutate and write back without aliasing shared state.
func (e *AttendanceEntry) Clone() *AttendanceEntry {
	c := *e
	if e.Deadline != nil {
		d := *e.Deadline
		c.Deadline = &d
	}
	c.Attendees = append([]string(nil), e.Attendees...)
	c.Responses = append([]PersonalResponse(nil), e.Responses...)
	return &c
}

// SubmitResponseRequest is the request body for submitting a single
// member's response. MemberID defaults to the acting member.
type SubmitResponseRequest struct {
	MemberID   string   `json:"member_id,omitempty"`
	Date       string   `json:"date"`
	MealType   MealType `json:"meal_type"`
	WillAttend bool     `json:"will_attend"`
}

// RegisterAttendanceRequest is the request body for the bulk/proxy
// registration path.
type RegisterAttendanceRequest struct {
	Date        string   `json:"date"`
	MealType    MealType `json:"meal_type"`
	AttendeeIDs []string `json:"attendee_ids"`
}
